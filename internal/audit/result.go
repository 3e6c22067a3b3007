// Package audit implements the reconciliation checks over a company's
// ledger tables: GL balance validation, check-to-GL matching, duplicate
// key detection, void verification, and payee identity verification. Each
// check streams its tables once and returns a fixed-schema result document.
package audit

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
)

// Kind tags each result variant.
type Kind string

const (
	KindGLBalance    Kind = "gl_balance"
	KindCheckGLMatch Kind = "check_gl_matching"
	KindDuplicateKey Kind = "duplicate_key"
	KindVoidCheck    Kind = "void_check"
	KindPayeeCID     Kind = "payee_cid"
)

// Severity of a finding.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RowRef points at an offending row: table, positional index, and a
// snapshot of the fields captured at scan time.
type RowRef struct {
	Table    string            `json:"table"`
	RowIndex int               `json:"row_index"`
	Fields   map[string]string `json:"fields"`
}

// Thresholds tunes the auditors. Zero values fall back to defaults.
type Thresholds struct {
	// DuplicateMultiplicity: GL entries sharing account+date+amount more
	// than this many times are flagged.
	DuplicateMultiplicity int
	// StdDevMultiple: amounts beyond this many standard deviations from
	// the ledger mean are suspicious.
	StdDevMultiple float64
	// AmountCeiling: absolute amount above which an entry is suspicious
	// regardless of distribution.
	AmountCeiling float64
	// MaxRowRefs bounds every offending-row list in a result.
	MaxRowRefs int
}

func (t Thresholds) withDefaults() Thresholds {
	if t.DuplicateMultiplicity <= 0 {
		t.DuplicateMultiplicity = 2
	}
	if t.StdDevMultiple <= 0 {
		t.StdDevMultiple = 3
	}
	if t.AmountCeiling <= 0 {
		t.AmountCeiling = 1_000_000
	}
	if t.MaxRowRefs <= 0 {
		t.MaxRowRefs = 100
	}
	return t
}

func snapshot(table string, columns []string, row recordstore.Row) RowRef {
	fields := make(map[string]string, len(columns))
	for i, c := range columns {
		if i < len(row.Values) {
			fields[c] = row.Values[i]
		}
	}
	return RowRef{Table: table, RowIndex: row.Index, Fields: fields}
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

var foldCaser = cases.Fold()

// normalize folds case and collapses interior whitespace so that payee and
// name-on-file comparison is equality-only but layout-insensitive.
func normalize(s string) string {
	return foldCaser.String(strings.Join(strings.Fields(s), " "))
}

// openPrimary opens a table that the calling auditor cannot run without.
func openPrimary(store recordstore.Store, dataDir, table string) (recordstore.Table, error) {
	t, err := store.OpenTable(dataDir, table)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: required table %s", table)
	}
	return t, nil
}
