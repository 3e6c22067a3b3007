package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var auditCompany string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run reconciliation audits against a company's ledger tables",
}

var auditGLCmd = &cobra.Command{
	Use:   "gl",
	Short: "Verify general ledger debits equal credits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, done, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer done()

		account, _ := cmd.Flags().GetString("account")
		res, err := e.ValidateGLBalances(ctx, auditCompany, account)
		if err != nil {
			return eris.Wrap(err, "audit gl")
		}
		return printJSON(res)
	},
}

var auditChecksCmd = &cobra.Command{
	Use:   "checks",
	Short: "Match check records against their ledger entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, done, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer done()

		account, _ := cmd.Flags().GetString("account")
		start, err := parseDateFlag(cmd, "start")
		if err != nil {
			return err
		}
		end, err := parseDateFlag(cmd, "end")
		if err != nil {
			return err
		}

		res, err := e.AuditCheckGLMatching(ctx, auditCompany, account, start, end)
		if err != nil {
			return eris.Wrap(err, "audit checks")
		}
		return printJSON(res)
	},
}

var auditDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find check records sharing a dedup key",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, done, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer done()

		res, err := e.AuditDuplicateCIDCHEC(ctx, auditCompany)
		if err != nil {
			return eris.Wrap(err, "audit duplicates")
		}
		return printJSON(res)
	},
}

var auditVoidsCmd = &cobra.Command{
	Use:   "voids",
	Short: "Verify voided checks follow the void conventions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, done, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer done()

		res, err := e.AuditVoidChecks(ctx, auditCompany)
		if err != nil {
			return eris.Wrap(err, "audit voids")
		}
		return printJSON(res)
	},
}

var auditPayeesCmd = &cobra.Command{
	Use:   "payees",
	Short: "Verify check payees against the vendor and investor masters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, done, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer done()

		res, err := e.AuditPayeeCIDVerification(ctx, auditCompany)
		if err != nil {
			return eris.Wrap(err, "audit payees")
		}
		return printJSON(res)
	},
}

// parseDateFlag reads a YYYY-MM-DD flag; an empty flag yields a zero time.
func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse --%s", name)
	}
	return ts, nil
}

func init() {
	auditCmd.PersistentFlags().StringVarP(&auditCompany, "company", "c", "", "company data directory name")
	_ = auditCmd.MarkPersistentFlagRequired("company")

	auditGLCmd.Flags().String("account", "", "restrict to one GL account")
	auditChecksCmd.Flags().String("account", "", "restrict to one GL account")
	auditChecksCmd.Flags().String("start", "", "earliest check date (YYYY-MM-DD)")
	auditChecksCmd.Flags().String("end", "", "latest check date (YYYY-MM-DD)")

	auditCmd.AddCommand(auditGLCmd)
	auditCmd.AddCommand(auditChecksCmd)
	auditCmd.AddCommand(auditDuplicatesCmd)
	auditCmd.AddCommand(auditVoidsCmd)
	auditCmd.AddCommand(auditPayeesCmd)
	rootCmd.AddCommand(auditCmd)
}
