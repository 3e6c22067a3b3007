package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

func checkRow(num, date, amount, batch, account string) map[string]string {
	return map[string]string{
		schema.FieldCheckNumber: num,
		schema.FieldDate:        date,
		schema.FieldAmount:      amount,
		schema.FieldBatch:       batch,
		schema.FieldAccount:     account,
	}
}

func TestCheckGLMatchingPerfect(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableChecks,
		checkRow("1001", "20260110", "100.00", "B1", "1000"),
		checkRow("1002", "20260111", "55.25", "B2", "1000"),
	)
	addTable(m, schema.TableLedger,
		ledgerEntry("1000", "20260110", "100.00", "0.00", "B1", schema.SourceCheck),
		ledgerEntry("1000", "20260111", "55.25", "0.00", "B2", schema.SourceCheck),
		// Purchase posting is outside the check-matching scope.
		ledgerEntry("5000", "20260111", "999.00", "0.00", "P9", schema.SourcePurchase),
	)

	res, err := CheckGLMatching(context.Background(), m, testDir, "acme", MatchingOptions{})
	require.NoError(t, err)

	assert.True(t, res.PerfectMatch)
	assert.Equal(t, 2, res.TotalChecks)
	assert.Equal(t, 2, res.TotalLedgerEntries)
	assert.Zero(t, res.UnmatchedCheckCount)
	assert.Zero(t, res.UnmatchedLedgerCount)
	assert.Equal(t, SeverityLow, res.Severity)
}

func TestCheckGLMatchingBothDirections(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableChecks,
		checkRow("1001", "20260110", "100.00", "B1", "1000"),
		// Amount drift of one cent: exact-tuple matching must flag it.
		checkRow("1002", "20260111", "55.26", "B2", "1000"),
	)
	addTable(m, schema.TableLedger,
		ledgerEntry("1000", "20260110", "100.00", "0.00", "B1", schema.SourceCheck),
		ledgerEntry("1000", "20260111", "55.25", "0.00", "B2", schema.SourceCheck),
		ledgerEntry("1000", "20260112", "42.00", "0.00", "B3", schema.SourceCheck),
	)

	res, err := CheckGLMatching(context.Background(), m, testDir, "acme", MatchingOptions{})
	require.NoError(t, err)

	assert.False(t, res.PerfectMatch)
	assert.Equal(t, 1, res.UnmatchedCheckCount)
	assert.Equal(t, 2, res.UnmatchedLedgerCount)
	require.Len(t, res.UnmatchedChecks, 1)
	assert.Equal(t, "1002", res.UnmatchedChecks[0].Fields[schema.FieldCheckNumber])
	assert.Equal(t, SeverityHigh, res.Severity)
}

func TestCheckGLMatchingDateRange(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableChecks,
		checkRow("1001", "20260110", "100.00", "B1", "1000"),
		checkRow("1002", "20260215", "55.25", "B2", "1000"),
	)
	addTable(m, schema.TableLedger,
		ledgerEntry("1000", "20260110", "100.00", "0.00", "B1", schema.SourceCheck),
		ledgerEntry("1000", "20260215", "55.25", "0.00", "B2", schema.SourceCheck),
	)

	jan := MatchingOptions{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	res, err := CheckGLMatching(context.Background(), m, testDir, "acme", jan)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TotalChecks)
	assert.Equal(t, 1, res.TotalLedgerEntries)
	assert.True(t, res.PerfectMatch)
	assert.Equal(t, "2026-01-01", res.Start)
	assert.Equal(t, "2026-01-31", res.End)
}

func TestCheckGLMatchingCountsRepeatedLedgerPostings(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableChecks,
		checkRow("1001", "20260110", "100.00", "B1", "1000"),
	)
	addTable(m, schema.TableLedger,
		ledgerEntry("1000", "20260110", "100.00", "0.00", "B1", schema.SourceCheck),
		// The same orphaned posting twice: both occurrences count.
		ledgerEntry("1000", "20260112", "42.00", "0.00", "B9", schema.SourceCheck),
		ledgerEntry("1000", "20260112", "42.00", "0.00", "B9", schema.SourceCheck),
	)

	res, err := CheckGLMatching(context.Background(), m, testDir, "acme", MatchingOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.UnmatchedLedgerCount)
	require.Len(t, res.UnmatchedLedger, 1, "one representative row per key")
	assert.Equal(t, "B9", res.UnmatchedLedger[0].Fields[schema.FieldBatch])
}

func TestCheckGLMatchingUndatedRowsStayInScope(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableChecks,
		checkRow("1001", "", "42.00", "B7", "1000"),
		checkRow("1002", "20260215", "55.25", "B2", "1000"),
	)
	addTable(m, schema.TableLedger,
		ledgerEntry("1000", "", "42.00", "0.00", "B7", schema.SourceCheck),
		ledgerEntry("1000", "20260215", "55.25", "0.00", "B2", schema.SourceCheck),
	)

	jan := MatchingOptions{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	res, err := CheckGLMatching(context.Background(), m, testDir, "acme", jan)
	require.NoError(t, err)

	// A row without a parseable date cannot be excluded by the range.
	assert.Equal(t, 1, res.TotalChecks)
	assert.Equal(t, 1, res.TotalLedgerEntries)
	assert.True(t, res.PerfectMatch)
}

func TestCheckGLMatchingMissingPrimary(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableLedger)
	_, err := CheckGLMatching(context.Background(), m, testDir, "acme", MatchingOptions{})
	assert.ErrorIs(t, err, recordstore.ErrTableNotFound)
}
