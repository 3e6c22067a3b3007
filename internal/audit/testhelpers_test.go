package audit

import (
	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

const testDir = "companies/acme"

// addTable registers a catalog-shaped table on the memory store, with rows
// given as field-name maps; unnamed fields default to empty.
func addTable(m *recordstore.Memory, table string, rows ...map[string]string) {
	defs := schema.Fields(table)
	columns := make([]string, len(defs))
	types := make([]recordstore.FieldType, len(defs))
	for i, d := range defs {
		columns[i] = d.Name
		types[i] = d.Type
	}
	data := make([][]string, len(rows))
	for i, r := range rows {
		values := make([]string, len(columns))
		for j, c := range columns {
			values[j] = r[c]
		}
		data[i] = values
	}
	m.AddTable(testDir, table, columns, types, data)
}

func ledgerEntry(account, date, debit, credit, batch, source string) map[string]string {
	return map[string]string{
		schema.FieldAccount: account,
		schema.FieldDate:    date,
		schema.FieldDebit:   debit,
		schema.FieldCredit:  credit,
		schema.FieldBatch:   batch,
		schema.FieldSource:  source,
	}
}
