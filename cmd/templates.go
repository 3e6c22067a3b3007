package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meridian-fs/recon-cli/internal/schema"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the available field mapping templates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, done, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		asJSON, _ := cmd.Flags().GetBool("json")
		templates := e.Templates()
		if asJSON {
			return printJSON(templates)
		}

		formatTemplates(templates)
		return nil
	},
}

func formatTemplates(templates []schema.Template) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tTABLES")
	for _, t := range templates {
		tables := make([]string, 0, len(t.Fields))
		for table, column := range t.Fields {
			tables = append(tables, table+"."+column)
		}
		sort.Strings(tables)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Type, strings.Join(tables, ", "))
	}
	_ = w.Flush()
}

func init() {
	templatesCmd.Flags().Bool("json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(templatesCmd)
}
