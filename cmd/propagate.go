package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

var (
	propagateCompany  string
	propagateTemplate string
	propagateType     string
	propagateFields   []string
	propagateValue    string
	propagateTables   []string
)

var propagateCmd = &cobra.Command{
	Use:   "propagate <batch>",
	Short: "Write a corrected field value across every table a batch touches",
	Long:  "Traces the batch first, then updates the mapped column in each included table row by row. Tables whose live schema no longer carries the mapped column are skipped, not failed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, done, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer done()

		tpl, err := resolveTemplate(e.LookupTemplate)
		if err != nil {
			return err
		}

		include := propagateTables
		if len(include) == 0 {
			for table := range tpl.Fields {
				include = append(include, table)
			}
		}

		res, err := e.UpdateBatchFields(ctx, propagateCompany, args[0], tpl, propagateValue, include)
		if err != nil {
			return eris.Wrap(err, "propagate")
		}
		return printJSON(res)
	},
}

// resolveTemplate picks the named template, or builds a custom one from
// --type and repeated --field table=column pairs.
func resolveTemplate(lookup func(string) (schema.Template, bool)) (schema.Template, error) {
	if propagateTemplate != "" {
		if len(propagateFields) > 0 || propagateType != "" {
			return schema.Template{}, eris.New("--template conflicts with --type/--field")
		}
		tpl, ok := lookup(propagateTemplate)
		if !ok {
			return schema.Template{}, eris.Errorf("unknown template %q", propagateTemplate)
		}
		return tpl, nil
	}

	if propagateType == "" || len(propagateFields) == 0 {
		return schema.Template{}, eris.New("either --template or both --type and --field are required")
	}
	fields := make(map[string]string, len(propagateFields))
	for _, pair := range propagateFields {
		table, column, ok := strings.Cut(pair, "=")
		if !ok || table == "" || column == "" {
			return schema.Template{}, eris.Errorf("malformed --field %q, want table=column", pair)
		}
		fields[table] = column
	}
	return schema.CustomTemplate(recordstore.FieldType(propagateType), fields), nil
}

func init() {
	propagateCmd.Flags().StringVarP(&propagateCompany, "company", "c", "", "company data directory name")
	propagateCmd.Flags().StringVar(&propagateTemplate, "template", "", "named field mapping (see `recon-cli templates`)")
	propagateCmd.Flags().StringVar(&propagateType, "type", "", "field type for a custom mapping (text, numeric, date, logical)")
	propagateCmd.Flags().StringArrayVar(&propagateFields, "field", nil, "custom mapping entry, table=column (repeatable)")
	propagateCmd.Flags().StringVar(&propagateValue, "value", "", "new value to write")
	propagateCmd.Flags().StringSliceVar(&propagateTables, "tables", nil, "restrict to these tables (default: all mapped)")
	_ = propagateCmd.MarkFlagRequired("company")
	_ = propagateCmd.MarkFlagRequired("value")
	rootCmd.AddCommand(propagateCmd)
}
