package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/blueharbor-marine/reconcile/pkg/adapter"
	"github.com/blueharbor-marine/reconcile/pkg/applier"
	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/fingerprint"
	"github.com/blueharbor-marine/reconcile/pkg/model"
	"github.com/blueharbor-marine/reconcile/pkg/precedence"
	"github.com/blueharbor-marine/reconcile/pkg/report"
)

var (
	importSource string
	importFile   string
	importWrite  bool
	importYes    bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a source extract into the canonical store",
	Long: `Import reads one source file (CSV with a header row), normalizes each
row into a canonical record, and stores the new ones. Rows whose content
fingerprint is already present for the same source and date range are
skipped, so re-importing the same extract is a no-op. Rows the adapter
cannot map are counted and skipped, never fabricated.

When an obligation's business key is already present from another source,
the total due is settled by the configured authority order and the
disagreement is recorded as a conflict.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "source system (bank, primary, legacy, payroll, receipt)")
	importCmd.Flags().StringVar(&importFile, "file", "", "path to the source extract")
	importCmd.Flags().BoolVar(&importWrite, "write", false, "apply changes (default is dry-run)")
	importCmd.Flags().BoolVar(&importYes, "yes", false, "skip the confirmation prompt")
	importCmd.MarkFlagRequired("source")
	importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	source, err := parseSource(importSource)
	if err != nil {
		return err
	}

	_, rules, conn, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer conn.Close()

	rows, err := adapter.ReadRows(importFile)
	if err != nil {
		return err
	}

	var (
		transactions []model.CanonicalTransaction
		payments     []model.PaymentRecord
		obligations  []model.Obligation
		summary      report.Summary
	)
	summary.DryRun = !importWrite

	for i, row := range rows {
		res, err := adapter.Adapt(source, row)
		if err != nil {
			slog.Debug("skipping unrecognized row", "row", i+2, "error", err)
			summary.Unrecognized++
			continue
		}
		switch {
		case res.Transaction != nil:
			transactions = append(transactions, *res.Transaction)
		case res.Payment != nil:
			payments = append(payments, *res.Payment)
		case res.Obligation != nil:
			obligations = append(obligations, *res.Obligation)
		}
	}

	txStore := db.NewTransactionStore(conn)
	payStore := db.NewPaymentStore(conn)
	obStore := db.NewObligationStore(conn)
	linkStore := db.NewLinkStore(conn)
	guard := fingerprint.NewGuard(txStore, payStore)

	// Nothing is written yet: fresh rows and corrections are collected
	// first, confirmed once, and committed as one batch below.
	freshTx, txCounts, err := guard.FilterTransactions(ctx, source, transactions)
	if err != nil {
		return err
	}
	summary.Imported += txCounts.Imported
	summary.SkippedDuplicate += txCounts.SkippedDuplicate

	freshPay, payCounts, err := guard.FilterPayments(ctx, payments)
	if err != nil {
		return err
	}
	summary.Imported += payCounts.Imported
	summary.SkippedDuplicate += payCounts.SkippedDuplicate

	// Obligations dedupe on business key rather than content hash: the same
	// reservation arrives from more than one system with disagreeing totals,
	// and precedence decides which total stands.
	resolver := precedence.New(rules)
	plan := applier.NewPlan()
	var (
		conflicts []model.ConflictRecord
		freshOb   []model.Obligation
	)

	for i := range obligations {
		o := &obligations[i]
		existing, err := obStore.GetByBusinessKey(ctx, o.BusinessKey)
		if err != nil {
			return err
		}

		prior := priorObligation(existing, o.Date)
		if prior == nil {
			summary.Imported++
			freshOb = append(freshOb, *o)
			continue
		}

		if prior.Source == o.Source {
			summary.SkippedDuplicate++
			continue
		}

		values := map[model.Source]decimal.Decimal{
			prior.Source: prior.TotalDue,
			o.Source:     o.TotalDue,
		}
		winner, conflict, err := resolver.Resolve(o.BusinessKey, "total_due", values)
		if err != nil {
			return err
		}
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
			summary.Conflicted++
		}
		if !winner.Equal(prior.TotalDue) {
			plan.AddObligationTotalDue(obStore, *prior, winner,
				fmt.Sprintf("authority order settles total due for %s", o.BusinessKey))
		} else {
			summary.SkippedDuplicate++
		}
	}

	// One confirmation covers the whole batch: fresh inserts plus any
	// precedence corrections. Declining leaves the store untouched.
	inserts := len(freshTx) + len(freshPay) + len(freshOb)
	confirmed := false
	if importWrite && inserts+len(plan.Changes) > 0 {
		confirmed = confirm(importYes)(inserts + len(plan.Changes))
		if !confirmed {
			slog.Info("write not confirmed, leaving store untouched")
		}
	}

	if confirmed && inserts > 0 {
		err := conn.Transaction(ctx, func(tx *sql.Tx) error {
			for i := range freshTx {
				if _, err := txStore.InsertTx(tx, &freshTx[i]); err != nil {
					return err
				}
			}
			for i := range freshPay {
				if _, err := payStore.InsertTx(tx, &freshPay[i].Record, freshPay[i].Hash); err != nil {
					return err
				}
			}
			for i := range freshOb {
				if _, err := obStore.InsertTx(tx, &freshOb[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			summary.RolledBack = true
			report.WriteSummary(os.Stdout, summary)
			return err
		}
	}

	audit := db.NewAuditStore(conn)
	runner := applier.NewRunner(conn, audit, obStore)
	outcome, err := runner.Run(ctx, plan, applier.Options{
		Write:   importWrite && confirmed,
		Confirm: func(int) bool { return confirmed },
	})
	if err != nil {
		summary.RolledBack = true
		report.WriteSummary(os.Stdout, summary)
		return err
	}
	summary.Changes = outcome.Previewed
	summary.Applied = outcome.Applied

	if confirmed {
		for i := range conflicts {
			if err := linkStore.SaveConflict(ctx, &conflicts[i]); err != nil {
				return err
			}
		}
		history := db.NewImportHistory(conn)
		if err := history.Record(ctx, db.ImportRecord{
			Source:           source,
			FileName:         filepath.Base(importFile),
			Imported:         summary.Imported,
			SkippedDuplicate: summary.SkippedDuplicate,
			Unrecognized:     summary.Unrecognized,
		}); err != nil {
			return err
		}
	}

	report.WriteChangePlan(os.Stdout, plan, importWrite && outcome.Applied > 0)
	report.WriteConflicts(os.Stdout, conflicts)
	report.WriteSummary(os.Stdout, summary)

	exitCode = summary.ExitCode()
	return nil
}

// priorObligation picks the stored row an incoming obligation collides with.
// Business keys recur across statement-book years, so only a row within the
// same calendar year counts as the same reservation.
func priorObligation(existing []model.Obligation, date time.Time) *model.Obligation {
	for i := range existing {
		if existing[i].Date.Year() == date.Year() {
			return &existing[i]
		}
	}
	return nil
}

func parseSource(s string) (model.Source, error) {
	switch model.Source(s) {
	case model.SourceBank, model.SourcePrimary, model.SourceLegacy, model.SourcePayroll, model.SourceReceipt:
		return model.Source(s), nil
	}
	return "", fmt.Errorf("unknown source %q (expected bank, primary, legacy, payroll or receipt)", s)
}
