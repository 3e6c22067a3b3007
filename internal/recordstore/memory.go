package recordstore

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Memory is an in-memory Store with the same positional-row semantics as
// the DBF store. It exists for tests and for exercising the engine without
// a data directory on disk.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	fail   map[string]error
}

type memTable struct {
	name    string
	columns []string
	types   []FieldType
	rows    [][]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string]*memTable),
		fail:   make(map[string]error),
	}
}

func key(dataDir, table string) string { return dataDir + "/" + table }

// AddTable registers a table with its columns, semantic types, and rows.
func (m *Memory) AddTable(dataDir, table string, columns []string, types []FieldType, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[key(dataDir, table)] = &memTable{name: table, columns: columns, types: types, rows: rows}
}

// FailTable makes subsequent opens of the table return err.
func (m *Memory) FailTable(dataDir, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[key(dataDir, table)] = err
}

// Rows returns a copy of the table's current rows, for assertions.
func (m *Memory) Rows(dataDir, table string) [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[key(dataDir, table)]
	if !ok {
		return nil
	}
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// OpenTable implements Store.
func (m *Memory) OpenTable(dataDir, table string) (Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.fail[key(dataDir, table)]; ok {
		return nil, err
	}
	t, ok := m.tables[key(dataDir, table)]
	if !ok {
		return nil, eris.Wrapf(ErrTableNotFound, "%s in %s", table, dataDir)
	}
	// Snapshot so a concurrent update does not shift rows mid-scan.
	snap := &memTable{name: t.name, columns: t.columns, types: t.types}
	snap.rows = make([][]string, len(t.rows))
	for i, r := range t.rows {
		snap.rows[i] = append([]string(nil), r...)
	}
	return &memHandle{t: snap}, nil
}

// UpdateField implements Store.
func (m *Memory) UpdateField(ctx context.Context, dataDir, table string, rowIndex int, field, value string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "recordstore: update cancelled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[key(dataDir, table)]; ok {
		return err
	}
	t, ok := m.tables[key(dataDir, table)]
	if !ok {
		return eris.Wrapf(ErrTableNotFound, "%s in %s", table, dataDir)
	}
	if rowIndex < 0 || rowIndex >= len(t.rows) {
		return eris.Wrapf(ErrOutOfRange, "%s row %d", table, rowIndex)
	}
	for i, c := range t.columns {
		if c == field {
			t.rows[rowIndex][i] = value
			return nil
		}
	}
	return eris.Wrapf(ErrFieldNotFound, "%s.%s", table, field)
}

type memHandle struct{ t *memTable }

func (h *memHandle) Name() string       { return h.t.name }
func (h *memHandle) Columns() []string  { return h.t.columns }
func (h *memHandle) Types() []FieldType { return h.t.types }
func (h *memHandle) RecordCount() int   { return len(h.t.rows) }
func (h *memHandle) Close() error       { return nil }

func (h *memHandle) Scan(ctx context.Context, fn func(row Row) error) error {
	for i, values := range h.t.rows {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "recordstore: scan cancelled")
		}
		if err := fn(Row{Index: i, Values: values}); err != nil {
			return err
		}
	}
	return nil
}
