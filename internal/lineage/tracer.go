// Package lineage traces one transaction batch across the five interlinked
// tables and propagates field corrections across the rows a trace found.
// The tables share no foreign keys; the only links are the repeated CBATCH
// field and, from payment details back to the originating purchase, the
// CBILLTOKEN field.
package lineage

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// Slice identifiers. The purchase-side ledger postings get their own slice
// because they are found through CBILLTOKEN, not the requested batch.
const (
	SliceChecks         = "checks"
	SliceLedger         = "ledger"
	SlicePaymentHeader  = "payment_header"
	SlicePaymentDetail  = "payment_detail"
	SliceLedgerPurchase = "ledger_purchase"
	SlicePurchaseHeader = "purchase_header"
	SlicePurchaseDetail = "purchase_detail"
)

// TableSlice is one table's contribution to a trace. A slice that could
// not be read carries its own error and empty rows; it never aborts the
// sibling slices.
type TableSlice struct {
	Name    string            `json:"name"`
	Table   string            `json:"table"`
	Via     string            `json:"via"` // linking field: CBATCH or CBILLTOKEN
	Columns []string          `json:"columns,omitempty"`
	Rows    []recordstore.Row `json:"rows,omitempty"`
	Count   int               `json:"count"`
	Error   string            `json:"error,omitempty"`
}

// BatchLineage is the trace result document.
type BatchLineage struct {
	Kind         string       `json:"kind"`
	Company      string       `json:"company"`
	Batch        string       `json:"batch"`
	Slices       []TableSlice `json:"slices"`
	BillTokens   []string     `json:"bill_tokens"`
	TotalRecords int          `json:"total_records_found"`
}

// KindBatchLineage tags the trace result variant.
const KindBatchLineage = "batch_lineage"

// Slice returns the named slice, nil if absent.
func (b *BatchLineage) Slice(name string) *TableSlice {
	for i := range b.Slices {
		if b.Slices[i].Name == name {
			return &b.Slices[i]
		}
	}
	return nil
}

// scanSlice fills a slice with the table's rows whose linking field equals
// one of the wanted values. Open and scan failures land in slice.Error.
func scanSlice(ctx context.Context, store recordstore.Store, dataDir string, s *TableSlice, field string, wanted map[string]struct{}, sourceCode string) {
	tbl, err := store.OpenTable(dataDir, s.Table)
	if err != nil {
		s.Error = err.Error()
		return
	}
	defer tbl.Close()
	cols := tbl.Columns()
	s.Columns = cols

	err = tbl.Scan(ctx, func(row recordstore.Row) error {
		if sourceCode != "" && row.Field(cols, schema.FieldSource) != sourceCode {
			return nil
		}
		v := strings.TrimSpace(row.Field(cols, field))
		if _, ok := wanted[v]; !ok {
			return nil
		}
		s.Rows = append(s.Rows, row)
		return nil
	})
	if err != nil {
		s.Error = err.Error()
		s.Rows = nil
	}
	s.Count = len(s.Rows)
}

// Follow traces a batch id through checks, ledger, and payments, then hops
// via the payment details' bill tokens to the originating purchase batch.
// Zero matches everywhere is an empty result, not an error.
func Follow(ctx context.Context, store recordstore.Store, dataDir, company, batch string) (*BatchLineage, error) {
	batch = strings.TrimSpace(batch)

	lin := &BatchLineage{
		Kind:    KindBatchLineage,
		Company: company,
		Batch:   batch,
		Slices: []TableSlice{
			{Name: SliceChecks, Table: schema.TableChecks, Via: schema.FieldBatch},
			{Name: SliceLedger, Table: schema.TableLedger, Via: schema.FieldBatch},
			{Name: SlicePaymentHeader, Table: schema.TablePaymentHeader, Via: schema.FieldBatch},
			{Name: SlicePaymentDetail, Table: schema.TablePaymentDetail, Via: schema.FieldBatch},
			{Name: SliceLedgerPurchase, Table: schema.TableLedger, Via: schema.FieldBillToken},
			{Name: SlicePurchaseHeader, Table: schema.TablePurchaseHeader, Via: schema.FieldBillToken},
			{Name: SlicePurchaseDetail, Table: schema.TablePurchaseDetail, Via: schema.FieldBillToken},
		},
	}

	byBatch := map[string]struct{}{batch: {}}

	// Levels 1-3: independent tables, independent failures. Each scan owns
	// its slice and reports errors there, so the group never errors.
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range []string{SliceChecks, SliceLedger, SlicePaymentHeader, SlicePaymentDetail} {
		s := lin.Slice(name)
		g.Go(func() error {
			scanSlice(gctx, store, dataDir, s, schema.FieldBatch, byBatch, "")
			return nil
		})
	}
	_ = g.Wait()

	// Collect the distinct original-purchase batch ids off the matched
	// payment details.
	tokens := make(map[string]struct{})
	det := lin.Slice(SlicePaymentDetail)
	for _, row := range det.Rows {
		tok := strings.TrimSpace(row.Field(det.Columns, schema.FieldBillToken))
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	for tok := range tokens {
		lin.BillTokens = append(lin.BillTokens, tok)
	}
	sort.Strings(lin.BillTokens)

	// Levels 4-5: purchase side, keyed by the tokens. The purchase-side
	// ledger slice only wants AP-sourced postings.
	if len(tokens) > 0 {
		scanSlice(ctx, store, dataDir, lin.Slice(SliceLedgerPurchase), schema.FieldBatch, tokens, schema.SourcePurchase)
		scanSlice(ctx, store, dataDir, lin.Slice(SlicePurchaseHeader), schema.FieldBatch, tokens, "")
		scanSlice(ctx, store, dataDir, lin.Slice(SlicePurchaseDetail), schema.FieldBatch, tokens, "")
	}

	for _, s := range lin.Slices {
		lin.TotalRecords += s.Count
	}
	return lin, nil
}
