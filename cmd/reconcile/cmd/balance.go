package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blueharbor-marine/reconcile/pkg/applier"
	"github.com/blueharbor-marine/reconcile/pkg/balancer"
	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/report"
)

var (
	balanceScope     string
	balanceClamp     bool
	balanceGraceDays int
	balanceWrite     bool
	balanceYes       bool
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Recompute obligation balances from linked payments",
	Long: `Balance rederives every obligation's paid amount and balance from the
payments attached to it, by internal link or shared business key. A
residual within one cent of zero is snapped to exactly 0.00; anything
larger stands as a real discrepancy.

Overpayments are preserved as negative balances by default. With
--clamp-overpay they are zeroed and the clamped amount is reported as a
credit owed, so money is never silently absorbed. Cancelled-but-paid
obligations and suspicious payment links are flagged for review, never
auto-fixed.`,
	RunE: runBalance,
}

func init() {
	balanceCmd.Flags().StringVar(&balanceScope, "scope", "", "restrict to one calendar year, e.g. 2023")
	balanceCmd.Flags().BoolVar(&balanceClamp, "clamp-overpay", false, "zero negative balances and report the credit owed")
	balanceCmd.Flags().IntVar(&balanceGraceDays, "predate-grace-days", 30, "days a payment may precede its obligation before being flagged")
	balanceCmd.Flags().BoolVar(&balanceWrite, "write", false, "apply recomputed totals (default is dry-run)")
	balanceCmd.Flags().BoolVar(&balanceYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, _, conn, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer conn.Close()

	clamp := balanceClamp || cfg.ClampOverpay
	scope := balanceScope
	if scope == "" {
		scope = cfg.Scope
	}

	obStore := db.NewObligationStore(conn)
	payStore := db.NewPaymentStore(conn)

	obligations, err := obStore.List(ctx, scope)
	if err != nil {
		return err
	}

	opts := balancer.Options{ClampOverpay: clamp, PredateGraceDays: balanceGraceDays}
	summary := report.Summary{DryRun: !balanceWrite}
	plan := applier.NewPlan()
	var flags []balancer.IntegrityFlag

	for _, o := range obligations {
		payments, err := payStore.ListForObligation(ctx, o.ID, o.BusinessKey, o.Date.Year())
		if err != nil {
			return err
		}

		res := balancer.Recompute(o, payments, opts)
		flags = append(flags, res.Flags...)

		if res.Changed {
			plan.AddObligationTotals(obStore, o, res.PaidAmount, res.Balance,
				fmt.Sprintf("recomputed from %d linked payment(s)", len(payments)))
		}
		if res.CreditOwed.IsPositive() {
			plan.AddCreditOwed(o, res.CreditOwed)
			cmd.Printf("obligation %d (%s): credit owed %s\n",
				o.ID, o.BusinessKey, res.CreditOwed.StringFixed(2))
		}
	}

	for _, f := range flags {
		cmd.Printf("flag [%s] obligation %d: %s\n", f.Kind, f.ObligationID, f.Detail)
	}

	audit := db.NewAuditStore(conn)
	runner := applier.NewRunner(conn, audit, obStore)
	outcome, err := runner.Run(ctx, plan, applier.Options{
		Write:        balanceWrite,
		Confirm:      confirm(balanceYes),
		ClampOverpay: clamp,
	})
	if err != nil {
		summary.RolledBack = true
		report.WriteSummary(os.Stdout, summary)
		return err
	}
	summary.Changes = outcome.Previewed
	summary.Applied = outcome.Applied

	report.WriteChangePlan(os.Stdout, plan, balanceWrite && outcome.Applied > 0)
	report.WriteSummary(os.Stdout, summary)

	exitCode = summary.ExitCode()
	return nil
}
