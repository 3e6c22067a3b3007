package audit

import (
	"context"
	"fmt"

	"github.com/meridian-fs/recon-cli/internal/dbf"
	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// VoidIssueKind names one failed void condition. The two amount-mismatch
// buckets are reported separately; neither is ranked worse than the other.
type VoidIssueKind string

const (
	VoidIssueAmountMismatchZero    VoidIssueKind = "amount_mismatch_void_amount_zero"
	VoidIssueAmountMismatchNonzero VoidIssueKind = "amount_mismatch_void_amount_nonzero"
	VoidIssueNotCleared            VoidIssueKind = "not_cleared"
	VoidIssueMissingRecordDate     VoidIssueKind = "missing_record_date"
)

// VoidIssue is one voided check with its failed conditions. A check can
// accumulate several.
type VoidIssue struct {
	Row    RowRef          `json:"row"`
	Issues []VoidIssueKind `json:"issues"`
}

// VoidResult is the void verification audit document.
type VoidResult struct {
	Kind             Kind                  `json:"kind"`
	Company          string                `json:"company"`
	VoidedChecks     int                   `json:"voided_checks"`
	ChecksWithIssues int                   `json:"checks_with_issues"`
	IssueCounts      map[VoidIssueKind]int `json:"issue_counts"`
	Issues           []VoidIssue           `json:"issues"`
	ComplianceRate   float64               `json:"compliance_rate"`
	// VoidAmountColumnMissing marks older datasets whose checks table
	// predates the void-amount column.
	VoidAmountColumnMissing bool `json:"void_amount_column_missing"`

	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// VoidChecks verifies every voided check independently against three
// conditions: amount equals void amount, cleared flag set, record date
// present.
func VoidChecks(ctx context.Context, store recordstore.Store, dataDir, company string, th Thresholds) (*VoidResult, error) {
	th = th.withDefaults()

	tbl, err := openPrimary(store, dataDir, schema.TableChecks)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()
	cols := tbl.Columns()

	res := &VoidResult{
		Kind:        KindVoidCheck,
		Company:     company,
		IssueCounts: make(map[VoidIssueKind]int),
	}

	hasVoidAmount := false
	for _, c := range cols {
		if c == schema.FieldVoidAmount {
			hasVoidAmount = true
		}
	}
	res.VoidAmountColumnMissing = !hasVoidAmount

	err = tbl.Scan(ctx, func(row recordstore.Row) error {
		if !dbf.ParseLogical(row.Field(cols, schema.FieldVoid)) {
			return nil
		}
		res.VoidedChecks++

		var issues []VoidIssueKind

		if hasVoidAmount {
			amount := parseAmount(row.Field(cols, schema.FieldAmount))
			voidAmount := parseAmount(row.Field(cols, schema.FieldVoidAmount))
			if !amount.Equal(voidAmount) {
				if voidAmount.IsZero() {
					issues = append(issues, VoidIssueAmountMismatchZero)
				} else {
					issues = append(issues, VoidIssueAmountMismatchNonzero)
				}
			}
		}
		if !dbf.ParseLogical(row.Field(cols, schema.FieldCleared)) {
			issues = append(issues, VoidIssueNotCleared)
		}
		if _, ok := dbf.ParseDate(row.Field(cols, schema.FieldRecordDate)); !ok {
			issues = append(issues, VoidIssueMissingRecordDate)
		}

		if len(issues) == 0 {
			return nil
		}
		res.ChecksWithIssues++
		for _, k := range issues {
			res.IssueCounts[k]++
		}
		if len(res.Issues) < th.MaxRowRefs {
			res.Issues = append(res.Issues, VoidIssue{Row: snapshot(schema.TableChecks, cols, row), Issues: issues})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ratio := 0.0
	if res.VoidedChecks > 0 {
		ratio = float64(res.ChecksWithIssues) / float64(res.VoidedChecks)
	}
	res.ComplianceRate = 100 - ratio*100

	switch {
	case res.VoidAmountColumnMissing:
		res.Severity = SeverityInfo
		res.Message = "void-amount column absent from checks table; amount conditions not evaluated"
	case ratio > 0.5:
		res.Severity = SeverityHigh
	case ratio > 0.1:
		res.Severity = SeverityMedium
	default:
		res.Severity = SeverityLow
	}
	if res.Message == "" {
		res.Message = fmt.Sprintf("%d of %d voided check(s) with issues, compliance %.1f%%",
			res.ChecksWithIssues, res.VoidedChecks, res.ComplianceRate)
	}
	return res, nil
}
