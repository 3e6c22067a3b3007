// Package schema is the declarative catalog of the legacy tables: which
// named fields each table carries and their semantic type. The tables are
// linked only by convention through repeated key fields; the catalog is
// where those conventions are written down.
package schema

import "github.com/meridian-fs/recon-cli/internal/recordstore"

// Canonical table names. On disk each is a .dbf file in the company's
// data directory.
const (
	TableChecks         = "checks"
	TableLedger         = "gltrans"
	TablePurchaseHeader = "purchhdr"
	TablePurchaseDetail = "purchdet"
	TablePaymentHeader  = "payhdr"
	TablePaymentDetail  = "paydet"
	TableVendor         = "vendor"
	TableInvestor       = "investor"
)

// Shared and per-table field names.
const (
	FieldBatch     = "CBATCH"     // batch id shared across checks, ledger, payments
	FieldBillToken = "CBILLTOKEN" // on payment details: batch id of the original purchase
	FieldDedupKey  = "CIDCHEC"    // per-check key, unique by construction
	FieldCID       = "CID"        // counterparty id, resolved in vendor/investor

	FieldCheckNumber = "CCHECKNO"
	FieldDate        = "DDATE"
	FieldPayee       = "CPAYEE"
	FieldAmount      = "NAMOUNT"
	FieldAccount     = "CACCTNO"
	FieldCleared     = "LCLEARED"
	FieldVoid        = "LVOID"
	FieldVoidAmount  = "NVOIDAMT"
	FieldRecordDate  = "DRECDATE"

	FieldDebit       = "NDEBIT"
	FieldCredit      = "NCREDIT"
	FieldSource      = "CSOURCE"
	FieldDescription = "CDESC"

	FieldInvoice = "CINVOICE"
	FieldName    = "CNAME"
)

// Ledger source codes, distinguishing which subsystem posted an entry.
const (
	SourceCheck    = "CK" // check payment posting
	SourcePurchase = "AP" // accounts-payable purchase posting
)

// FieldDef is one column of the catalog.
type FieldDef struct {
	Name string                `json:"name"`
	Type recordstore.FieldType `json:"type"`
}

var catalog = map[string][]FieldDef{
	TableChecks: {
		{FieldCheckNumber, recordstore.FieldText},
		{FieldDate, recordstore.FieldDate},
		{FieldPayee, recordstore.FieldText},
		{FieldAmount, recordstore.FieldNumeric},
		{FieldBatch, recordstore.FieldText},
		{FieldAccount, recordstore.FieldText},
		{FieldCleared, recordstore.FieldLogical},
		{FieldVoid, recordstore.FieldLogical},
		{FieldVoidAmount, recordstore.FieldNumeric},
		{FieldRecordDate, recordstore.FieldDate},
		{FieldCID, recordstore.FieldText},
		{FieldDedupKey, recordstore.FieldText},
	},
	TableLedger: {
		{FieldAccount, recordstore.FieldText},
		{FieldDate, recordstore.FieldDate},
		{FieldDescription, recordstore.FieldText},
		{FieldDebit, recordstore.FieldNumeric},
		{FieldCredit, recordstore.FieldNumeric},
		{FieldBatch, recordstore.FieldText},
		{FieldSource, recordstore.FieldText},
		{FieldCID, recordstore.FieldText},
	},
	TablePurchaseHeader: {
		{FieldInvoice, recordstore.FieldText},
		{FieldCID, recordstore.FieldText},
		{FieldDate, recordstore.FieldDate},
		{FieldAmount, recordstore.FieldNumeric},
		{FieldBatch, recordstore.FieldText},
		{FieldDescription, recordstore.FieldText},
		{FieldAccount, recordstore.FieldText},
	},
	TablePurchaseDetail: {
		{FieldInvoice, recordstore.FieldText},
		{FieldCID, recordstore.FieldText},
		{FieldDate, recordstore.FieldDate},
		{FieldAmount, recordstore.FieldNumeric},
		{FieldBatch, recordstore.FieldText},
		{FieldDescription, recordstore.FieldText},
		{FieldAccount, recordstore.FieldText},
	},
	TablePaymentHeader: {
		{FieldInvoice, recordstore.FieldText},
		{FieldCID, recordstore.FieldText},
		{FieldDate, recordstore.FieldDate},
		{FieldAmount, recordstore.FieldNumeric},
		{FieldBatch, recordstore.FieldText},
	},
	TablePaymentDetail: {
		{FieldInvoice, recordstore.FieldText},
		{FieldCID, recordstore.FieldText},
		{FieldDate, recordstore.FieldDate},
		{FieldAmount, recordstore.FieldNumeric},
		{FieldBatch, recordstore.FieldText},
		{FieldBillToken, recordstore.FieldText},
	},
	TableVendor: {
		{FieldCID, recordstore.FieldText},
		{FieldName, recordstore.FieldText},
	},
	TableInvestor: {
		{FieldCID, recordstore.FieldText},
		{FieldName, recordstore.FieldText},
	},
}

// Tables returns the canonical table names in lineage hop order.
func Tables() []string {
	return []string{
		TableChecks, TableLedger,
		TablePaymentHeader, TablePaymentDetail,
		TablePurchaseHeader, TablePurchaseDetail,
		TableVendor, TableInvestor,
	}
}

// Fields returns the cataloged columns of a table, nil if unknown.
func Fields(table string) []FieldDef {
	return catalog[table]
}

// FieldType looks up the semantic type of a table's column.
func FieldType(table, field string) (recordstore.FieldType, bool) {
	for _, fd := range catalog[table] {
		if fd.Name == field {
			return fd.Type, true
		}
	}
	return recordstore.FieldUnknown, false
}

// HasField reports whether the catalog knows the column.
func HasField(table, field string) bool {
	_, ok := FieldType(table, field)
	return ok
}
