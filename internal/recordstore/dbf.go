package recordstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-fs/recon-cli/internal/dbf"
)

// DBFStore is the production Store over dBASE table files. Each table lives
// in <dataDir>/<table>.dbf; lookup is case-insensitive on the file name to
// cope with datasets copied off DOS-era systems.
type DBFStore struct{}

// NewDBF returns a Store backed by dBASE files.
func NewDBF() *DBFStore { return &DBFStore{} }

func (s *DBFStore) resolve(dataDir, table string) (string, error) {
	direct := filepath.Join(dataDir, table+".dbf")
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", eris.Wrapf(ErrTableNotFound, "data dir %s", dataDir)
		}
		return "", eris.Wrapf(err, "recordstore: read data dir %s", dataDir)
	}
	want := strings.ToLower(table) + ".dbf"
	for _, e := range entries {
		if !e.IsDir() && strings.ToLower(e.Name()) == want {
			return filepath.Join(dataDir, e.Name()), nil
		}
	}
	return "", eris.Wrapf(ErrTableNotFound, "%s in %s", table, dataDir)
}

// OpenTable opens a table read-only.
func (s *DBFStore) OpenTable(dataDir, table string) (Table, error) {
	path, err := s.resolve(dataDir, table)
	if err != nil {
		return nil, err
	}
	f, err := dbf.Open(path)
	if err != nil {
		if errors.Is(err, dbf.ErrCorrupt) {
			return nil, eris.Wrapf(ErrTableCorrupt, "%s: %v", table, err)
		}
		return nil, eris.Wrapf(err, "recordstore: open %s", table)
	}
	return &dbfTable{name: table, f: f}, nil
}

// UpdateField opens the table read-write, updates one field of one row,
// and closes it before returning.
func (s *DBFStore) UpdateField(ctx context.Context, dataDir, table string, rowIndex int, field, value string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "recordstore: update cancelled")
	}
	path, err := s.resolve(dataDir, table)
	if err != nil {
		return err
	}
	f, err := dbf.OpenRW(path)
	if err != nil {
		if errors.Is(err, dbf.ErrCorrupt) {
			return eris.Wrapf(ErrTableCorrupt, "%s: %v", table, err)
		}
		return eris.Wrapf(err, "recordstore: open %s for update", table)
	}
	defer f.Close()

	if err := f.UpdateField(rowIndex, field, value); err != nil {
		switch {
		case errors.Is(err, dbf.ErrOutOfRange):
			return eris.Wrapf(ErrOutOfRange, "%s row %d", table, rowIndex)
		case errors.Is(err, dbf.ErrFieldNotFound):
			return eris.Wrapf(ErrFieldNotFound, "%s.%s", table, field)
		case errors.Is(err, dbf.ErrValueRejected):
			return eris.Wrapf(ErrTypeRejected, "%s.%s = %q", table, field, value)
		}
		return err
	}
	return f.Sync()
}

type dbfTable struct {
	name string
	f    *dbf.File
}

func (t *dbfTable) Name() string { return t.name }

func (t *dbfTable) Columns() []string { return t.f.FieldNames() }

func (t *dbfTable) Types() []FieldType {
	fields := t.f.Fields()
	types := make([]FieldType, len(fields))
	for i, fd := range fields {
		types[i] = typeOf(fd.Type)
	}
	return types
}

func (t *dbfTable) RecordCount() int { return t.f.RecordCount() }

func (t *dbfTable) Scan(ctx context.Context, fn func(row Row) error) error {
	err := t.f.Scan(ctx, func(index int, values []string) error {
		return fn(Row{Index: index, Values: values})
	})
	if err != nil && errors.Is(err, dbf.ErrCorrupt) {
		return eris.Wrapf(ErrTableCorrupt, "%s: %v", t.name, err)
	}
	return err
}

func (t *dbfTable) Close() error { return t.f.Close() }

func typeOf(b byte) FieldType {
	switch b {
	case dbf.TypeCharacter:
		return FieldText
	case dbf.TypeNumeric, dbf.TypeFloat:
		return FieldNumeric
	case dbf.TypeDate:
		return FieldDate
	case dbf.TypeLogical:
		return FieldLogical
	}
	return FieldUnknown
}
