package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blueharbor-marine/reconcile/pkg/applier"
	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/dedupe"
	"github.com/blueharbor-marine/reconcile/pkg/model"
	"github.com/blueharbor-marine/reconcile/pkg/report"
)

var (
	dedupeScope string
	dedupeWrite bool
	dedupeYes   bool
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find duplicate transactions and propose removals",
	Long: `Dedupe groups transactions sharing the same date, amount and
counterparty and classifies each group. Groups containing a verified or
locked record, or matching a known legitimate recurring pattern from the
rules file, are reported but never touched. For the rest the earliest
record is kept and the later copies are proposed for deletion.

Deletions are proposals: nothing is removed without --write and an
explicit confirmation, and affected rows are snapshotted first.`,
	RunE: runDedupe,
}

func init() {
	dedupeCmd.Flags().StringVar(&dedupeScope, "scope", "", "restrict to one calendar year, e.g. 2023")
	dedupeCmd.Flags().BoolVar(&dedupeWrite, "write", false, "apply confirmed deletions (default is dry-run)")
	dedupeCmd.Flags().BoolVar(&dedupeYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, rules, conn, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer conn.Close()

	scope := dedupeScope
	if scope == "" {
		scope = cfg.Scope
	}

	txStore := db.NewTransactionStore(conn)
	records, err := txStore.List(ctx, scope)
	if err != nil {
		return err
	}

	byID := make(map[int64]model.CanonicalTransaction, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	detector := dedupe.New(rules)
	groups := detector.FindGroups(records)

	summary := report.Summary{DryRun: !dedupeWrite, Duplicates: len(groups)}
	plan := applier.NewPlan()
	for _, g := range groups {
		if g.Verdict != model.VerdictDuplicate {
			continue
		}
		for _, id := range g.MemberIDs {
			if id == g.KeepID {
				continue
			}
			plan.AddTransactionDelete(txStore, byID[id],
				fmt.Sprintf("duplicate of %d in group %s", g.KeepID, g.Key))
		}
	}

	obStore := db.NewObligationStore(conn)
	audit := db.NewAuditStore(conn)
	runner := applier.NewRunner(conn, audit, obStore)
	outcome, err := runner.Run(ctx, plan, applier.Options{
		Write:   dedupeWrite,
		Confirm: confirm(dedupeYes),
	})
	if err != nil {
		summary.RolledBack = true
		report.WriteSummary(os.Stdout, summary)
		return err
	}
	summary.Changes = outcome.Previewed
	summary.Applied = outcome.Applied

	// The stored group table is derived and rebuilt whole on every write run.
	if dedupeWrite {
		linkStore := db.NewLinkStore(conn)
		if err := linkStore.ClearDerived(ctx, "duplicate_groups"); err != nil {
			return err
		}
		for i := range groups {
			if err := linkStore.SaveDuplicateGroup(ctx, &groups[i]); err != nil {
				return err
			}
		}
	}

	report.WriteDuplicates(os.Stdout, groups)
	report.WriteChangePlan(os.Stdout, plan, dedupeWrite && outcome.Applied > 0)
	report.WriteSummary(os.Stdout, summary)

	exitCode = summary.ExitCode()
	return nil
}
