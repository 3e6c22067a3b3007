package audit

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// PayeeMismatchReason names why a check failed identity verification.
type PayeeMismatchReason string

const (
	// PayeeNameMismatch: the CID resolves, but the check's payee text does
	// not equal the name on file.
	PayeeNameMismatch PayeeMismatchReason = "name_mismatch"
	// PayeeUnknownCID: the CID resolves in neither master table.
	PayeeUnknownCID PayeeMismatchReason = "unknown_cid"
)

// PayeeMismatch is one check whose payee does not line up with its CID.
type PayeeMismatch struct {
	Row          RowRef              `json:"row"`
	Payee        string              `json:"payee"`
	CID          string              `json:"cid"`
	Reason       PayeeMismatchReason `json:"reason"`
	FoundIn      []string            `json:"found_in,omitempty"`      // master tables where the CID resolved
	NameOnFile   string              `json:"name_on_file,omitempty"`  // for name_mismatch
	ExpectedCIDs []string            `json:"expected_cids,omitempty"` // CIDs whose name matches the payee text
}

// PayeeResult is the payee identity audit document.
type PayeeResult struct {
	Kind          Kind            `json:"kind"`
	Company       string          `json:"company"`
	TotalChecks   int             `json:"total_checks"`
	MismatchCount int             `json:"mismatch_count"`
	Mismatches    []PayeeMismatch `json:"mismatches"`
	Severity      Severity        `json:"severity"`
	Message       string          `json:"message"`
}

type masterEntry struct {
	name   string
	tables []string
}

// loadMaster merges a vendor or investor table into the lookup maps. A CID
// may legitimately appear in both tables.
func loadMaster(ctx context.Context, store recordstore.Store, dataDir, table string,
	byCID map[string]*masterEntry, byName map[string][]string) error {

	tbl, err := store.OpenTable(dataDir, table)
	if err != nil {
		return eris.Wrapf(err, "audit: required table %s", table)
	}
	defer tbl.Close()
	cols := tbl.Columns()

	return tbl.Scan(ctx, func(row recordstore.Row) error {
		cid := row.Field(cols, schema.FieldCID)
		if cid == "" {
			return nil
		}
		name := row.Field(cols, schema.FieldName)
		e, ok := byCID[cid]
		if !ok {
			e = &masterEntry{name: name}
			byCID[cid] = e
		}
		e.tables = append(e.tables, table)
		norm := normalize(name)
		if norm != "" {
			byName[norm] = append(byName[norm], cid)
		}
		return nil
	})
}

// PayeeCIDVerification checks every check's payee text against the name on
// file for its CID in the vendor and investor masters. Comparison is case
// and whitespace insensitive; equality or its absence only, no edit
// distance.
func PayeeCIDVerification(ctx context.Context, store recordstore.Store, dataDir, company string, th Thresholds) (*PayeeResult, error) {
	th = th.withDefaults()

	byCID := make(map[string]*masterEntry)
	byName := make(map[string][]string)
	if err := loadMaster(ctx, store, dataDir, schema.TableVendor, byCID, byName); err != nil {
		return nil, err
	}
	if err := loadMaster(ctx, store, dataDir, schema.TableInvestor, byCID, byName); err != nil {
		return nil, err
	}

	tbl, err := openPrimary(store, dataDir, schema.TableChecks)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()
	cols := tbl.Columns()

	res := &PayeeResult{Kind: KindPayeeCID, Company: company}

	err = tbl.Scan(ctx, func(row recordstore.Row) error {
		res.TotalChecks++
		payee := row.Field(cols, schema.FieldPayee)
		cid := row.Field(cols, schema.FieldCID)
		normPayee := normalize(payee)

		entry, resolved := byCID[cid]
		if resolved && normalize(entry.name) == normPayee {
			return nil
		}

		m := PayeeMismatch{Payee: payee, CID: cid}
		if resolved {
			m.Reason = PayeeNameMismatch
			m.FoundIn = entry.tables
			m.NameOnFile = entry.name
		} else {
			m.Reason = PayeeUnknownCID
		}
		// The payee text may belong to a different CID entirely; report
		// those as the plausible expected values.
		if normPayee != "" {
			m.ExpectedCIDs = byName[normPayee]
		}

		res.MismatchCount++
		if len(res.Mismatches) < th.MaxRowRefs {
			m.Row = snapshot(schema.TableChecks, cols, row)
			res.Mismatches = append(res.Mismatches, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ratio := 0.0
	if res.TotalChecks > 0 {
		ratio = float64(res.MismatchCount) / float64(res.TotalChecks)
	}
	switch {
	case res.MismatchCount == 0:
		res.Severity = SeverityLow
		res.Message = fmt.Sprintf("all %d check payee(s) verified", res.TotalChecks)
	case ratio > 0.5:
		res.Severity = SeverityHigh
	case ratio > 0.1:
		res.Severity = SeverityMedium
	default:
		res.Severity = SeverityLow
	}
	if res.Message == "" {
		res.Message = fmt.Sprintf("%d of %d check(s) failed payee verification", res.MismatchCount, res.TotalChecks)
	}
	return res, nil
}
