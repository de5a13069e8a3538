package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blueharbor-marine/reconcile/pkg/applier"
	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/matcher"
	"github.com/blueharbor-marine/reconcile/pkg/model"
	"github.com/blueharbor-marine/reconcile/pkg/report"
)

var (
	matchScope         string
	matchPopulation    string
	matchToleranceDays int
	matchMinConfidence float64
	matchWrite         bool
	matchYes           bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Link unmatched payments to the obligations they pay down",
	Long: `Match runs the staged matching engine over every unlinked payment:
exact business key first, then amount within a date window, then fuzzy
counterparty text. Each accepted link carries a confidence score and a
rationale; ambiguous payments produce no link and are listed for manual
review instead.

The date window comes from the rules file per record population
(--population) or from an explicit --date-tolerance-days override.`,
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().StringVar(&matchScope, "scope", "", "restrict to one calendar year, e.g. 2023")
	matchCmd.Flags().StringVar(&matchPopulation, "population", "receipt_payments", "record population named in the rules file")
	matchCmd.Flags().IntVar(&matchToleranceDays, "date-tolerance-days", 0, "override the rules-file date window")
	matchCmd.Flags().Float64Var(&matchMinConfidence, "min-confidence", 0, "override the configured acceptance threshold")
	matchCmd.Flags().BoolVar(&matchWrite, "write", false, "apply links (default is dry-run)")
	matchCmd.Flags().BoolVar(&matchYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, rules, conn, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer conn.Close()

	tolerance := matchToleranceDays
	if tolerance == 0 {
		tolerance, err = rules.ToleranceDays(matchPopulation)
		if err != nil {
			return err
		}
	}
	minConfidence := cfg.MinConfidence
	if matchMinConfidence > 0 {
		minConfidence = matchMinConfidence
	}

	engine, err := matcher.New(matcher.Config{
		DateToleranceDays: tolerance,
		MinConfidence:     minConfidence,
	})
	if err != nil {
		return err
	}

	scope := matchScope
	if scope == "" {
		scope = cfg.Scope
	}

	payStore := db.NewPaymentStore(conn)
	obStore := db.NewObligationStore(conn)
	txStore := db.NewTransactionStore(conn)
	linkStore := db.NewLinkStore(conn)

	payments, err := payStore.ListUnlinked(ctx, scope)
	if err != nil {
		return err
	}
	obligations, err := obStore.List(ctx, scope)
	if err != nil {
		return err
	}
	transactions, err := txStore.List(ctx, scope)
	if err != nil {
		return err
	}
	candidates := matcher.ObligationCandidates(obligations)
	txCandidates := matcher.TransactionCandidates(transactions)

	summary := report.Summary{DryRun: !matchWrite}
	plan := applier.NewPlan()
	var links []model.ReconciliationLink

	for _, p := range payments {
		res := engine.Match(p, candidates)
		if !res.Matched {
			if strings.HasPrefix(res.Rationale, "no candidates") {
				summary.NoCandidates++
			} else {
				summary.Ambiguous++
			}
			cmd.Printf("payment %d unmatched: %s\n", p.ID, res.Rationale)
			continue
		}

		summary.Matched++
		plan.AddPaymentLink(payStore, p, res.CandidateID, res.Confidence, res.Rationale)

		link := model.ReconciliationLink{
			PaymentID:    p.ID,
			ObligationID: res.CandidateID,
			Confidence:   res.Confidence,
			Method:       res.Method,
			Rationale:    res.Rationale,
		}
		// Pin the bank movement that evidences this payment, when one
		// matches unambiguously.
		if txRes := engine.Match(p, txCandidates); txRes.Matched {
			link.TransactionID = txRes.CandidateID
		}
		links = append(links, link)
	}

	audit := db.NewAuditStore(conn)
	runner := applier.NewRunner(conn, audit, obStore)
	outcome, err := runner.Run(ctx, plan, applier.Options{
		Write:        matchWrite,
		Confirm:      confirm(matchYes),
		ClampOverpay: cfg.ClampOverpay,
	})
	if err != nil {
		summary.RolledBack = true
		report.WriteSummary(os.Stdout, summary)
		return err
	}
	summary.Changes = outcome.Previewed
	summary.Applied = outcome.Applied

	// Links are derived artifacts, rebuilt alongside the canonical link
	// column. A weaker decision never overwrites a stronger stored one.
	if matchWrite && outcome.Applied > 0 {
		for i := range links {
			if _, err := linkStore.SaveLink(ctx, &links[i]); err != nil {
				return err
			}
		}
	}

	report.WriteChangePlan(os.Stdout, plan, matchWrite && outcome.Applied > 0)
	report.WriteSummary(os.Stdout, summary)

	exitCode = summary.ExitCode()
	return nil
}
