package lineage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// SkipReason explains why a table was demoted out of a propagation.
type SkipReason string

const (
	SkipNoMapping     SkipReason = "no_mapping"      // template maps no column for this table
	SkipFieldNotFound SkipReason = "field_not_found" // mapped column absent from the live table
	SkipTypeMismatch  SkipReason = "type_mismatch"   // live column type disagrees with the template
)

// TableUpdate is one table's outcome within a propagation.
type TableUpdate struct {
	Table       string     `json:"table"`
	Field       string     `json:"field,omitempty"`
	RowsUpdated int        `json:"rows_updated"`
	Skipped     bool       `json:"skipped,omitempty"`
	SkipReason  SkipReason `json:"skip_reason,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// PropagationResult is the propagation outcome document. Writes are
// per-table and independent; a failed table never rolls back another, and
// the caller always sees exactly which tables succeeded.
type PropagationResult struct {
	Kind         string        `json:"kind"`
	Company      string        `json:"company"`
	Batch        string        `json:"batch"`
	Template     string        `json:"template"`
	Success      bool          `json:"success"`
	TotalUpdated int           `json:"total_rows_updated"`
	Tables       []TableUpdate `json:"tables"`
	Errors       []string      `json:"errors,omitempty"`
}

// KindPropagation tags the propagation result variant.
const KindPropagation = "field_propagation"

// sliceForTable maps a canonical table to the trace slice whose row
// indices address it. The ledger's batch-keyed slice wins over the
// purchase-side one: propagation targets the requested batch's rows.
var sliceForTable = map[string]string{
	schema.TableChecks:         SliceChecks,
	schema.TableLedger:         SliceLedger,
	schema.TablePaymentHeader:  SlicePaymentHeader,
	schema.TablePaymentDetail:  SlicePaymentDetail,
	schema.TablePurchaseHeader: SlicePurchaseHeader,
	schema.TablePurchaseDetail: SlicePurchaseDetail,
}

// Propagate applies a single-field correction to every traced row of the
// included tables. Tables that fail template validation are demoted with a
// reason and the rest proceed; row indices come from a trace run inside
// this request, never from an earlier one.
func Propagate(ctx context.Context, store recordstore.Store, dataDir, company, batch string,
	tpl schema.Template, newValue string, include []string) (*PropagationResult, error) {

	batch = strings.TrimSpace(batch)
	res := &PropagationResult{
		Kind:     KindPropagation,
		Company:  company,
		Batch:    batch,
		Template: tpl.Name,
	}

	// Row indices are only trustworthy within this request: re-trace now
	// and write against what this trace saw.
	lin, err := Follow(ctx, store, dataDir, company, batch)
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, table := range include {
		tu := TableUpdate{Table: table}

		field, ok := tpl.Fields[table]
		if !ok {
			tu.Skipped, tu.SkipReason = true, SkipNoMapping
			res.Tables = append(res.Tables, tu)
			continue
		}
		tu.Field = field

		sliceName, ok := sliceForTable[table]
		if !ok {
			tu.Skipped, tu.SkipReason = true, SkipNoMapping
			res.Tables = append(res.Tables, tu)
			continue
		}
		slice := lin.Slice(sliceName)
		if slice.Error != "" {
			tu.Error = slice.Error
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", table, slice.Error))
			res.Tables = append(res.Tables, tu)
			failed++
			continue
		}

		// Validate against the live table, not the catalog: legacy data
		// drifts, and a template written for one dataset may reference a
		// column another dataset never had.
		colIdx := -1
		for i, c := range slice.Columns {
			if c == field {
				colIdx = i
				break
			}
		}
		if colIdx == -1 {
			tu.Skipped, tu.SkipReason = true, SkipFieldNotFound
			res.Tables = append(res.Tables, tu)
			continue
		}
		if types := tableTypes(store, dataDir, table); types != nil && colIdx < len(types) && types[colIdx] != tpl.Type {
			tu.Skipped, tu.SkipReason = true, SkipTypeMismatch
			res.Tables = append(res.Tables, tu)
			continue
		}

		for _, row := range slice.Rows {
			err := store.UpdateField(ctx, dataDir, table, row.Index, field, newValue)
			if err != nil {
				if errors.Is(err, recordstore.ErrOutOfRange) {
					err = fmt.Errorf("%w: %s row %d shifted since trace", recordstore.ErrRowIndexStale, table, row.Index)
				}
				tu.Error = err.Error()
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", table, err))
				failed++
				break
			}
			tu.RowsUpdated++
			res.TotalUpdated++
		}
		res.Tables = append(res.Tables, tu)
	}

	res.Success = res.TotalUpdated > 0 && failed == 0
	return res, nil
}

// tableTypes re-opens the table briefly for its live column types; nil if
// it cannot be read (the column existence check already passed, so the
// update path will surface any real failure).
func tableTypes(store recordstore.Store, dataDir, table string) []recordstore.FieldType {
	tbl, err := store.OpenTable(dataDir, table)
	if err != nil {
		return nil
	}
	defer tbl.Close()
	return tbl.Types()
}
