package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-fs/recon-cli/internal/dbf"
	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// MatchingOptions filters the check-to-GL matching audit. Zero times leave
// the corresponding end of the date range open.
type MatchingOptions struct {
	Account    string
	Start      time.Time
	End        time.Time
	Thresholds Thresholds
}

// MatchingResult is the check-to-GL matching audit document.
type MatchingResult struct {
	Kind          Kind   `json:"kind"`
	Company       string `json:"company"`
	AccountFilter string `json:"account_filter,omitempty"`
	Start         string `json:"start,omitempty"`
	End           string `json:"end,omitempty"`

	TotalChecks          int      `json:"total_checks"`
	TotalLedgerEntries   int      `json:"total_ledger_entries"`
	UnmatchedChecks      []RowRef `json:"unmatched_checks"`
	UnmatchedLedger      []RowRef `json:"unmatched_ledger"`
	UnmatchedCheckCount  int      `json:"unmatched_check_count"`
	UnmatchedLedgerCount int      `json:"unmatched_ledger_count"`
	PerfectMatch         bool     `json:"perfect_match"`

	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func inRange(dateValue string, start, end time.Time) bool {
	d, ok := dbf.ParseDate(dateValue)
	if !ok {
		// Undated rows stay in scope; they cannot be excluded by a range.
		return true
	}
	if !start.IsZero() && d.Before(start) {
		return false
	}
	if !end.IsZero() && d.After(end) {
		return false
	}
	return true
}

// matchKey builds the exact-tuple key (batch, amount, account). No fuzzy
// tolerance: a cent of drift is a mismatch.
func matchKey(batch, account string, amount string) string {
	return batch + "\x00" + parseAmount(amount).StringFixed(2) + "\x00" + account
}

// CheckGLMatching verifies that every check in range has a matching
// check-posting ledger entry keyed by (batch, amount, account), and the
// inverse. Both unmatched directions are reported.
func CheckGLMatching(ctx context.Context, store recordstore.Store, dataDir, company string, opts MatchingOptions) (*MatchingResult, error) {
	th := opts.Thresholds.withDefaults()

	res := &MatchingResult{
		Kind:          KindCheckGLMatch,
		Company:       company,
		AccountFilter: opts.Account,
	}
	if !opts.Start.IsZero() {
		res.Start = opts.Start.Format("2006-01-02")
	}
	if !opts.End.IsZero() {
		res.End = opts.End.Format("2006-01-02")
	}

	// Ledger pass: per-key occurrence count plus one representative row.
	ledger, err := openPrimary(store, dataDir, schema.TableLedger)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()
	lcols := ledger.Columns()

	type ledgerGroup struct {
		ref   RowRef
		count int
	}
	ledgerKeys := make(map[string]*ledgerGroup)
	err = ledger.Scan(ctx, func(row recordstore.Row) error {
		if row.Field(lcols, schema.FieldSource) != schema.SourceCheck {
			return nil
		}
		account := row.Field(lcols, schema.FieldAccount)
		if opts.Account != "" && account != opts.Account {
			return nil
		}
		if !inRange(row.Field(lcols, schema.FieldDate), opts.Start, opts.End) {
			return nil
		}
		res.TotalLedgerEntries++

		amount := row.Field(lcols, schema.FieldDebit)
		if parseAmount(amount).IsZero() {
			amount = row.Field(lcols, schema.FieldCredit)
		}
		k := matchKey(row.Field(lcols, schema.FieldBatch), account, amount)
		if g, ok := ledgerKeys[k]; ok {
			g.count++
		} else {
			ledgerKeys[k] = &ledgerGroup{ref: snapshot(schema.TableLedger, lcols, row), count: 1}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Check pass against the ledger key set.
	checks, err := openPrimary(store, dataDir, schema.TableChecks)
	if err != nil {
		return nil, err
	}
	defer checks.Close()
	ccols := checks.Columns()

	checkKeys := make(map[string]struct{})
	err = checks.Scan(ctx, func(row recordstore.Row) error {
		account := row.Field(ccols, schema.FieldAccount)
		if opts.Account != "" && account != opts.Account {
			return nil
		}
		if !inRange(row.Field(ccols, schema.FieldDate), opts.Start, opts.End) {
			return nil
		}
		res.TotalChecks++

		k := matchKey(row.Field(ccols, schema.FieldBatch), account, row.Field(ccols, schema.FieldAmount))
		checkKeys[k] = struct{}{}
		if _, ok := ledgerKeys[k]; !ok {
			res.UnmatchedCheckCount++
			if len(res.UnmatchedChecks) < th.MaxRowRefs {
				res.UnmatchedChecks = append(res.UnmatchedChecks, snapshot(schema.TableChecks, ccols, row))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for k, g := range ledgerKeys {
		if _, ok := checkKeys[k]; !ok {
			res.UnmatchedLedgerCount += g.count
			if len(res.UnmatchedLedger) < th.MaxRowRefs {
				res.UnmatchedLedger = append(res.UnmatchedLedger, g.ref)
			}
		}
	}

	res.PerfectMatch = res.UnmatchedCheckCount == 0 && res.UnmatchedLedgerCount == 0
	switch {
	case res.PerfectMatch:
		res.Severity = SeverityLow
		res.Message = fmt.Sprintf("perfect match: %d checks against %d ledger entries", res.TotalChecks, res.TotalLedgerEntries)
	default:
		res.Severity = SeverityHigh
		res.Message = fmt.Sprintf("%d unmatched check(s), %d unmatched ledger entr(ies)", res.UnmatchedCheckCount, res.UnmatchedLedgerCount)
	}
	return res, nil
}
