package recordstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fs/recon-cli/internal/dbf"
)

func seedChecks(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	f, err := dbf.Create(filepath.Join(dir, "checks.dbf"), []dbf.FieldDescriptor{
		{Name: "CCHECKNO", Type: dbf.TypeCharacter, Length: 10},
		{Name: "NAMOUNT", Type: dbf.TypeNumeric, Length: 12, Decimals: 2},
		{Name: "LVOID", Type: dbf.TypeLogical, Length: 1},
	})
	require.NoError(t, err)
	require.NoError(t, f.Append([]string{"1001", "100.00", "F"}))
	require.NoError(t, f.Append([]string{"1002", "55.25", "T"}))
	require.NoError(t, f.Close())
	return dir
}

func TestDBFStoreOpenAndScan(t *testing.T) {
	t.Parallel()

	dir := seedChecks(t)
	s := NewDBF()

	tbl, err := s.OpenTable(dir, "checks")
	require.NoError(t, err)
	defer tbl.Close()

	assert.Equal(t, "checks", tbl.Name())
	assert.Equal(t, []string{"CCHECKNO", "NAMOUNT", "LVOID"}, tbl.Columns())
	assert.Equal(t, []FieldType{FieldText, FieldNumeric, FieldLogical}, tbl.Types())
	assert.Equal(t, 2, tbl.RecordCount())

	var got []Row
	require.NoError(t, tbl.Scan(context.Background(), func(row Row) error {
		got = append(got, row)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "55.25", got[1].Field(tbl.Columns(), "NAMOUNT"))
	assert.Equal(t, "", got[1].Field(tbl.Columns(), "MISSING"))
}

func TestDBFStoreOpenMissing(t *testing.T) {
	t.Parallel()

	s := NewDBF()
	_, err := s.OpenTable(t.TempDir(), "gltrans")
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = s.OpenTable(filepath.Join(t.TempDir(), "nope"), "gltrans")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestDBFStoreUpdateField(t *testing.T) {
	t.Parallel()

	dir := seedChecks(t)
	s := NewDBF()
	ctx := context.Background()

	require.NoError(t, s.UpdateField(ctx, dir, "checks", 0, "NAMOUNT", "123.45"))

	tbl, err := s.OpenTable(dir, "checks")
	require.NoError(t, err)
	defer tbl.Close()
	var first Row
	require.NoError(t, tbl.Scan(ctx, func(row Row) error {
		if row.Index == 0 {
			first = row
		}
		return nil
	}))
	assert.Equal(t, "123.45", first.Field(tbl.Columns(), "NAMOUNT"))

	assert.ErrorIs(t, s.UpdateField(ctx, dir, "checks", 99, "NAMOUNT", "1.00"), ErrOutOfRange)
	assert.ErrorIs(t, s.UpdateField(ctx, dir, "checks", 0, "NOPE", "1.00"), ErrFieldNotFound)
	assert.ErrorIs(t, s.UpdateField(ctx, dir, "checks", 0, "NAMOUNT", "abc"), ErrTypeRejected)
	assert.ErrorIs(t, s.UpdateField(ctx, dir, "missing", 0, "NAMOUNT", "1.00"), ErrTableNotFound)
}

func TestMemoryStoreSemantics(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	m.AddTable("co", "checks",
		[]string{"CCHECKNO", "NAMOUNT"},
		[]FieldType{FieldText, FieldNumeric},
		[][]string{{"1001", "10.00"}, {"1002", "20.00"}},
	)

	tbl, err := m.OpenTable("co", "checks")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.RecordCount())

	require.NoError(t, m.UpdateField(ctx, "co", "checks", 1, "NAMOUNT", "25.00"))
	assert.Equal(t, "25.00", m.Rows("co", "checks")[1][1])

	// The earlier handle scanned a snapshot, not the mutated table.
	var fromHandle string
	require.NoError(t, tbl.Scan(ctx, func(row Row) error {
		if row.Index == 1 {
			fromHandle = row.Values[1]
		}
		return nil
	}))
	assert.Equal(t, "20.00", fromHandle)

	_, err = m.OpenTable("co", "gltrans")
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.ErrorIs(t, m.UpdateField(ctx, "co", "checks", 9, "NAMOUNT", "1"), ErrOutOfRange)
	assert.ErrorIs(t, m.UpdateField(ctx, "co", "checks", 0, "NOPE", "1"), ErrFieldNotFound)

	m.FailTable("co", "checks", ErrTableCorrupt)
	_, err = m.OpenTable("co", "checks")
	assert.ErrorIs(t, err, ErrTableCorrupt)
}
