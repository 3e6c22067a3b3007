package lineage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

func dateTemplate() schema.Template {
	tpl, _ := schema.Lookup("batch-date", nil)
	return tpl
}

func TestPropagateAcrossTables(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	seedBatch(m)
	ctx := context.Background()

	include := []string{schema.TableChecks, schema.TableLedger, schema.TablePaymentHeader, schema.TablePaymentDetail}
	res, err := Propagate(ctx, m, testDir, "acme", "PAY7", dateTemplate(), "20260301", include)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 4, res.TotalUpdated)
	assert.Empty(t, res.Errors)

	// The check row actually changed; the non-batch row did not.
	rows := m.Rows(testDir, schema.TableChecks)
	defs := schema.Fields(schema.TableChecks)
	dateIdx := -1
	for i, d := range defs {
		if d.Name == schema.FieldDate {
			dateIdx = i
		}
	}
	assert.Equal(t, "20260301", rows[0][dateIdx])
	assert.Empty(t, rows[1][dateIdx])
}

func TestPropagateIdempotent(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	seedBatch(m)
	ctx := context.Background()
	include := []string{schema.TableChecks, schema.TableLedger}

	first, err := Propagate(ctx, m, testDir, "acme", "PAY7", dateTemplate(), "20260301", include)
	require.NoError(t, err)
	after := m.Rows(testDir, schema.TableChecks)

	second, err := Propagate(ctx, m, testDir, "acme", "PAY7", dateTemplate(), "20260301", include)
	require.NoError(t, err)

	assert.Equal(t, first.TotalUpdated, second.TotalUpdated)
	for i := range first.Tables {
		assert.Equal(t, first.Tables[i].RowsUpdated, second.Tables[i].RowsUpdated)
	}
	assert.Equal(t, after, m.Rows(testDir, schema.TableChecks))
}

func TestPropagateTypeMismatchDemotesTable(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	seedBatch(m)

	// A mapping that points a date-typed template at a text column.
	tpl := schema.Template{
		Name: "bad", Type: recordstore.FieldDate,
		Fields: map[string]string{
			schema.TableChecks: schema.FieldPayee, // text column
			schema.TableLedger: schema.FieldDate,
		},
	}

	res, err := Propagate(context.Background(), m, testDir, "acme", "PAY7", tpl, "20260301", []string{schema.TableChecks, schema.TableLedger})
	require.NoError(t, err)

	require.Len(t, res.Tables, 2)
	checksTU := res.Tables[0]
	assert.True(t, checksTU.Skipped)
	assert.Equal(t, SkipTypeMismatch, checksTU.SkipReason)
	assert.Zero(t, checksTU.RowsUpdated)

	ledgerTU := res.Tables[1]
	assert.Equal(t, 1, ledgerTU.RowsUpdated)
	assert.True(t, res.Success, "demotion is not a failure")
}

func TestPropagateFieldNotFoundDemotesTable(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	seedBatch(m)

	// Narrow checks table missing the batch-account target column.
	m.AddTable(testDir, schema.TableChecks,
		[]string{schema.FieldCheckNumber, schema.FieldBatch},
		[]recordstore.FieldType{recordstore.FieldText, recordstore.FieldText},
		[][]string{{"1001", "PAY7"}},
	)

	tpl, ok := schema.Lookup("batch-account", nil)
	require.True(t, ok)

	res, err := Propagate(context.Background(), m, testDir, "acme", "PAY7", tpl, "2000", []string{schema.TableChecks, schema.TableLedger})
	require.NoError(t, err)

	assert.True(t, res.Tables[0].Skipped)
	assert.Equal(t, SkipFieldNotFound, res.Tables[0].SkipReason)
	assert.Equal(t, 1, res.Tables[1].RowsUpdated)
}

func TestPropagateUnmappedTableSkipped(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	seedBatch(m)

	tpl, ok := schema.Lookup("batch-description", nil)
	require.True(t, ok)

	// Checks has no description mapping in this template.
	res, err := Propagate(context.Background(), m, testDir, "acme", "PAY7", tpl, "corrected", []string{schema.TableChecks, schema.TableLedger})
	require.NoError(t, err)

	assert.True(t, res.Tables[0].Skipped)
	assert.Equal(t, SkipNoMapping, res.Tables[0].SkipReason)
	assert.Equal(t, 1, res.Tables[1].RowsUpdated)
}

func TestPropagateNoRowsNoSuccess(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	seedBatch(m)

	res, err := Propagate(context.Background(), m, testDir, "acme", "NOSUCH", dateTemplate(), "20260301", []string{schema.TableChecks})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.TotalUpdated)
	assert.Empty(t, res.Errors)
}

// staleStore scans normally but reports every write as landing past the
// end of the table, as if rows shifted after the trace.
type staleStore struct {
	*recordstore.Memory
}

func (s *staleStore) UpdateField(ctx context.Context, dataDir, table string, rowIndex int, field, value string) error {
	return recordstore.ErrOutOfRange
}

func TestPropagateStaleRowIndexSurfaces(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	seedBatch(m)

	res, err := Propagate(context.Background(), &staleStore{Memory: m}, testDir, "acme", "PAY7",
		dateTemplate(), "20260301", []string{schema.TableChecks, schema.TableLedger})
	require.NoError(t, err, "a shifted row fails the table, not the request")

	assert.False(t, res.Success)
	assert.Zero(t, res.TotalUpdated)
	require.Len(t, res.Tables, 2)
	for _, tu := range res.Tables {
		assert.Contains(t, tu.Error, "row index stale")
		assert.Contains(t, tu.Error, "shifted since trace")
		assert.Zero(t, tu.RowsUpdated)
	}
	assert.Len(t, res.Errors, 2)

	// The underlying rows are untouched.
	rows := m.Rows(testDir, schema.TableChecks)
	for i, d := range schema.Fields(schema.TableChecks) {
		if d.Name == schema.FieldDate {
			assert.NotEqual(t, "20260301", rows[0][i])
		}
	}
}

func TestPropagateTableErrorDoesNotRollBackOthers(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	seedBatch(m)
	m.FailTable(testDir, schema.TableLedger, recordstore.ErrTableCorrupt)

	res, err := Propagate(context.Background(), m, testDir, "acme", "PAY7", dateTemplate(), "20260301",
		[]string{schema.TableChecks, schema.TableLedger})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
	assert.Equal(t, 1, res.Tables[0].RowsUpdated, "checks write survives the ledger failure")
	assert.NotEmpty(t, res.Tables[1].Error)
}
