package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var traceCompany string

var traceCmd = &cobra.Command{
	Use:   "trace <batch>",
	Short: "Trace a batch number across checks, ledger, payments, and purchases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, done, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer done()

		lin, err := e.FollowBatchNumber(ctx, traceCompany, args[0])
		if err != nil {
			return eris.Wrap(err, "trace")
		}
		return printJSON(lin)
	},
}

func init() {
	traceCmd.Flags().StringVarP(&traceCompany, "company", "c", "", "company data directory name")
	_ = traceCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(traceCmd)
}
