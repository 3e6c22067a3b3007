package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// DuplicateGroup is a set of checks sharing one CIDCHEC key.
type DuplicateGroup struct {
	Key         string          `json:"key"`
	Count       int             `json:"occurrence_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Rows        []RowRef        `json:"rows"`
}

// DuplicateResult is the duplicate-key audit document.
type DuplicateResult struct {
	Kind          Kind             `json:"kind"`
	Company       string           `json:"company"`
	TotalChecks   int              `json:"total_checks"`
	EmptyKeyCount int              `json:"empty_key_count"`
	Groups        []DuplicateGroup `json:"groups"`
	Severity      Severity         `json:"severity"`
	Message       string           `json:"message"`
}

// DuplicateCIDCHEC groups checks by their dedup key. The key is system
// generated and unique by construction, so this is pure grouping and
// counting; any group larger than one is a defect. Empty keys are excluded
// from grouping but counted.
func DuplicateCIDCHEC(ctx context.Context, store recordstore.Store, dataDir, company string, th Thresholds) (*DuplicateResult, error) {
	th = th.withDefaults()

	tbl, err := openPrimary(store, dataDir, schema.TableChecks)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()
	cols := tbl.Columns()

	res := &DuplicateResult{Kind: KindDuplicateKey, Company: company}
	groups := make(map[string]*DuplicateGroup)

	err = tbl.Scan(ctx, func(row recordstore.Row) error {
		res.TotalChecks++
		key := row.Field(cols, schema.FieldDedupKey)
		if key == "" {
			res.EmptyKeyCount++
			return nil
		}
		g, ok := groups[key]
		if !ok {
			g = &DuplicateGroup{Key: key, TotalAmount: decimal.Zero}
			groups[key] = g
		}
		g.Count++
		g.TotalAmount = g.TotalAmount.Add(parseAmount(row.Field(cols, schema.FieldAmount)))
		if len(g.Rows) < th.MaxRowRefs {
			g.Rows = append(g.Rows, snapshot(schema.TableChecks, cols, row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		if g.Count > 1 {
			res.Groups = append(res.Groups, *g)
		}
	}
	sort.Slice(res.Groups, func(i, j int) bool {
		if res.Groups[i].Count != res.Groups[j].Count {
			return res.Groups[i].Count > res.Groups[j].Count
		}
		return res.Groups[i].Key < res.Groups[j].Key
	})

	if len(res.Groups) > 0 {
		res.Severity = SeverityHigh
		res.Message = fmt.Sprintf("%d duplicate CIDCHEC group(s) across %d checks", len(res.Groups), res.TotalChecks)
	} else {
		res.Severity = SeverityLow
		res.Message = fmt.Sprintf("no duplicate keys in %d checks (%d empty)", res.TotalChecks, res.EmptyKeyCount)
	}
	return res, nil
}
