package audit

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// GLBalanceOptions filters and tunes the GL balance audit.
type GLBalanceOptions struct {
	Account    string
	Thresholds Thresholds
}

// AccountImbalance is one account's debit/credit gap.
type AccountImbalance struct {
	Account    string          `json:"account"`
	Debits     decimal.Decimal `json:"debits"`
	Credits    decimal.Decimal `json:"credits"`
	Difference decimal.Decimal `json:"difference"`
}

// EntryGroup is a set of ledger entries sharing account, date, and amount.
type EntryGroup struct {
	Account string          `json:"account"`
	Date    string          `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
	Count   int             `json:"count"`
	Rows    []RowRef        `json:"rows"`
}

// GLBalanceResult is the GL balance audit document.
type GLBalanceResult struct {
	Kind          Kind            `json:"kind"`
	Company       string          `json:"company"`
	AccountFilter string          `json:"account_filter,omitempty"`
	Entries       int             `json:"entries"`
	TotalDebits   decimal.Decimal `json:"total_debits"`
	TotalCredits  decimal.Decimal `json:"total_credits"`
	Difference    decimal.Decimal `json:"difference"`
	Balanced      bool            `json:"balanced"`

	DuplicateGroups []EntryGroup       `json:"duplicate_groups"`
	ZeroAmountRows  []RowRef           `json:"zero_amount_rows"`
	SuspiciousRows  []RowRef           `json:"suspicious_rows"`
	TopImbalances   []AccountImbalance `json:"top_imbalances"`

	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// topImbalanceCount bounds the accounts-by-imbalance list.
const topImbalanceCount = 5

// groupRowCap bounds the snapshots kept per duplicate group; the group's
// Count still reflects every member.
const groupRowCap = 10

type suspectCandidate struct {
	ref    RowRef
	amount float64
}

// GLBalance validates that the ledger balances in aggregate and flags
// duplicate, zero-amount, and suspicious entries in the same single scan.
func GLBalance(ctx context.Context, store recordstore.Store, dataDir, company string, opts GLBalanceOptions) (*GLBalanceResult, error) {
	th := opts.Thresholds.withDefaults()

	tbl, err := openPrimary(store, dataDir, schema.TableLedger)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()
	cols := tbl.Columns()

	res := &GLBalanceResult{
		Kind:          KindGLBalance,
		Company:       company,
		AccountFilter: opts.Account,
		TotalDebits:   decimal.Zero,
		TotalCredits:  decimal.Zero,
	}

	type acctSums struct{ debits, credits decimal.Decimal }
	accounts := make(map[string]*acctSums)
	groups := make(map[string]*EntryGroup)

	// Welford accumulators for the amount distribution, plus a bounded
	// candidate pool holding the largest magnitudes seen. Row values are
	// gone once the scan moves on, so outliers against the final mean can
	// only come from this pool.
	var n int
	var mean, m2 float64
	candidates := make([]suspectCandidate, 0, th.MaxRowRefs+1)

	err = tbl.Scan(ctx, func(row recordstore.Row) error {
		account := row.Field(cols, schema.FieldAccount)
		if opts.Account != "" && account != opts.Account {
			return nil
		}
		res.Entries++

		debit := parseAmount(row.Field(cols, schema.FieldDebit))
		credit := parseAmount(row.Field(cols, schema.FieldCredit))
		res.TotalDebits = res.TotalDebits.Add(debit)
		res.TotalCredits = res.TotalCredits.Add(credit)

		sums, ok := accounts[account]
		if !ok {
			sums = &acctSums{debits: decimal.Zero, credits: decimal.Zero}
			accounts[account] = sums
		}
		sums.debits = sums.debits.Add(debit)
		sums.credits = sums.credits.Add(credit)

		amount := debit
		if amount.IsZero() {
			amount = credit
		}

		if debit.IsZero() && credit.IsZero() {
			if len(res.ZeroAmountRows) < th.MaxRowRefs {
				res.ZeroAmountRows = append(res.ZeroAmountRows, snapshot(schema.TableLedger, cols, row))
			}
		}

		date := row.Field(cols, schema.FieldDate)
		key := account + "\x00" + date + "\x00" + amount.StringFixed(2)
		g, ok := groups[key]
		if !ok {
			g = &EntryGroup{Account: account, Date: date, Amount: amount}
			groups[key] = g
		}
		g.Count++
		if len(g.Rows) < groupRowCap {
			g.Rows = append(g.Rows, snapshot(schema.TableLedger, cols, row))
		}

		af, _ := amount.Float64()
		abs := math.Abs(af)
		n++
		delta := af - mean
		mean += delta / float64(n)
		m2 += delta * (af - mean)

		if len(candidates) < th.MaxRowRefs {
			candidates = append(candidates, suspectCandidate{ref: snapshot(schema.TableLedger, cols, row), amount: abs})
		} else {
			min := 0
			for i := 1; i < len(candidates); i++ {
				if candidates[i].amount < candidates[min].amount {
					min = i
				}
			}
			if abs > candidates[min].amount {
				candidates[min] = suspectCandidate{ref: snapshot(schema.TableLedger, cols, row), amount: abs}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Difference = res.TotalDebits.Sub(res.TotalCredits)
	res.Balanced = res.Difference.IsZero()

	for _, g := range groups {
		if g.Count > th.DuplicateMultiplicity {
			res.DuplicateGroups = append(res.DuplicateGroups, *g)
		}
	}
	sort.Slice(res.DuplicateGroups, func(i, j int) bool {
		return res.DuplicateGroups[i].Count > res.DuplicateGroups[j].Count
	})

	var stddev float64
	if n > 1 {
		stddev = math.Sqrt(m2 / float64(n-1))
	}
	cutoff := math.Abs(mean) + th.StdDevMultiple*stddev
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].amount > candidates[j].amount })
	for _, c := range candidates {
		if c.amount > th.AmountCeiling || (stddev > 0 && c.amount > cutoff) {
			res.SuspiciousRows = append(res.SuspiciousRows, c.ref)
		}
	}

	for account, sums := range accounts {
		diff := sums.debits.Sub(sums.credits)
		if diff.IsZero() {
			continue
		}
		res.TopImbalances = append(res.TopImbalances, AccountImbalance{
			Account:    account,
			Debits:     sums.debits,
			Credits:    sums.credits,
			Difference: diff,
		})
	}
	sort.Slice(res.TopImbalances, func(i, j int) bool {
		return res.TopImbalances[i].Difference.Abs().GreaterThan(res.TopImbalances[j].Difference.Abs())
	})
	if len(res.TopImbalances) > topImbalanceCount {
		res.TopImbalances = res.TopImbalances[:topImbalanceCount]
	}

	switch {
	case !res.Balanced:
		res.Severity = SeverityHigh
		res.Message = fmt.Sprintf("ledger out of balance by %s", res.Difference.StringFixed(2))
	case len(res.DuplicateGroups) > 0 || len(res.SuspiciousRows) > 0 || len(res.ZeroAmountRows) > 0:
		res.Severity = SeverityMedium
		res.Message = fmt.Sprintf("ledger balanced; %d duplicate group(s), %d suspicious, %d zero-amount",
			len(res.DuplicateGroups), len(res.SuspiciousRows), len(res.ZeroAmountRows))
	default:
		res.Severity = SeverityLow
		res.Message = "ledger balanced, no anomalies"
	}
	return res, nil
}
