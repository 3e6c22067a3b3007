// Package recordstore provides company-scoped access to the legacy
// flat-file ledger tables. Auditors and the lineage tracer read through it;
// the field propagation engine is the only writer.
package recordstore

import (
	"context"
	"errors"
)

// Sentinel errors forming the store's failure taxonomy. Callers match with
// errors.Is and decide per the propagation policy whether a failure is
// fatal for the request or isolated to one table slice.
var (
	ErrTableNotFound = errors.New("recordstore: table not found")
	ErrTableCorrupt  = errors.New("recordstore: table corrupt")
	ErrFieldNotFound = errors.New("recordstore: field not found")
	ErrTypeRejected  = errors.New("recordstore: value rejected for field type")
	ErrOutOfRange    = errors.New("recordstore: row index out of range")
	ErrRowIndexStale = errors.New("recordstore: row index stale")
)

// FieldType is the semantic type of a column.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumeric FieldType = "numeric"
	FieldDate    FieldType = "date"
	FieldLogical FieldType = "logical"
	FieldUnknown FieldType = "unknown"
)

// Row is one record of a table. Index is the record's positional identity
// and is only meaningful for the lifetime of the request that read it.
type Row struct {
	Index  int      `json:"index"`
	Values []string `json:"values"`
}

// Field returns the row's value for the named column, given the table's
// column list.
func (r Row) Field(columns []string, name string) string {
	for i, c := range columns {
		if c == name && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// Table is an open table handle. Scans are restartable by re-opening.
type Table interface {
	Name() string
	Columns() []string
	Types() []FieldType
	RecordCount() int
	Scan(ctx context.Context, fn func(row Row) error) error
	Close() error
}

// Store opens and updates tables under a company's data directory.
type Store interface {
	// OpenTable opens a named table read-only.
	OpenTable(dataDir, table string) (Table, error)
	// UpdateField rewrites one field of one row, addressed positionally.
	// The table is opened, written, and closed within the call.
	UpdateField(ctx context.Context, dataDir, table string, rowIndex int, field, value string) error
}
