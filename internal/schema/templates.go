package schema

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
)

// Template is a named field mapping used by batch field propagation: for
// each table it names the column a new value lands in, and declares the
// semantic type the columns must have.
type Template struct {
	Name   string                `yaml:"name" json:"name"`
	Type   recordstore.FieldType `yaml:"type" json:"type"`
	Fields map[string]string     `yaml:"fields" json:"fields"` // table -> column
	Custom bool                  `yaml:"-" json:"custom,omitempty"`
}

// builtins are the statically known mappings. Custom mappings are a
// distinct variant built with CustomTemplate, never registered here.
var builtins = []Template{
	{
		Name: "batch-date",
		Type: recordstore.FieldDate,
		Fields: map[string]string{
			TableChecks:         FieldDate,
			TableLedger:         FieldDate,
			TablePurchaseHeader: FieldDate,
			TablePurchaseDetail: FieldDate,
			TablePaymentHeader:  FieldDate,
			TablePaymentDetail:  FieldDate,
		},
	},
	{
		Name: "batch-account",
		Type: recordstore.FieldText,
		Fields: map[string]string{
			TableChecks:         FieldAccount,
			TableLedger:         FieldAccount,
			TablePurchaseHeader: FieldAccount,
			TablePurchaseDetail: FieldAccount,
		},
	},
	{
		Name: "batch-description",
		Type: recordstore.FieldText,
		Fields: map[string]string{
			TableLedger:         FieldDescription,
			TablePurchaseHeader: FieldDescription,
			TablePurchaseDetail: FieldDescription,
		},
	},
	{
		Name: "batch-amount",
		Type: recordstore.FieldNumeric,
		Fields: map[string]string{
			TableChecks:         FieldAmount,
			TablePurchaseHeader: FieldAmount,
			TablePurchaseDetail: FieldAmount,
			TablePaymentHeader:  FieldAmount,
			TablePaymentDetail:  FieldAmount,
		},
	},
}

// Builtins returns the built-in templates.
func Builtins() []Template {
	out := make([]Template, len(builtins))
	copy(out, builtins)
	return out
}

// CustomTemplate wraps a caller-supplied mapping as the custom variant.
func CustomTemplate(t recordstore.FieldType, fields map[string]string) Template {
	return Template{Name: "custom", Type: t, Fields: fields, Custom: true}
}

// LoadTemplates reads additional templates from a YAML file.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read templates %s", path)
	}
	var doc struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "schema: parse templates %s", path)
	}
	for _, t := range doc.Templates {
		if err := Validate(t); err != nil {
			return nil, err
		}
	}
	return doc.Templates, nil
}

// Validate checks a template against the catalog: every mapped table must
// be known, every mapped column must exist there, and the column's
// cataloged type must agree with the template's declared type.
func Validate(t Template) error {
	if t.Name == "" {
		return eris.New("schema: template with empty name")
	}
	switch t.Type {
	case recordstore.FieldDate, recordstore.FieldNumeric, recordstore.FieldText, recordstore.FieldLogical:
	default:
		return eris.Errorf("schema: template %s: unknown type %q", t.Name, t.Type)
	}
	if len(t.Fields) == 0 {
		return eris.Errorf("schema: template %s maps no tables", t.Name)
	}
	for table, field := range t.Fields {
		ft, ok := FieldType(table, field)
		if !ok {
			return eris.Errorf("schema: template %s: %s has no column %s", t.Name, table, field)
		}
		if ft != t.Type {
			return eris.Errorf("schema: template %s: %s.%s is %s, template wants %s", t.Name, table, field, ft, t.Type)
		}
	}
	return nil
}

// Lookup finds a template by name among the builtins plus extras.
func Lookup(name string, extras []Template) (Template, bool) {
	for _, t := range extras {
		if t.Name == name {
			return t, true
		}
	}
	for _, t := range builtins {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}
