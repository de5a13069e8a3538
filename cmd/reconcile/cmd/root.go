// Package cmd provides CLI commands for reconcile.
package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blueharbor-marine/reconcile/pkg/config"
	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/report"
)

var (
	cfgFile   string
	rulesFile string
	debug     bool

	// exitCode carries the run outcome to main: 0 no changes, 1 rolled
	// back, 3 changes, 4 unresolved ambiguities.
	exitCode int
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile financial records into one consistent ledger",
	Long: `reconcile is a batch tool that merges financial records from
disagreeing sources (bank exports, the legacy reservation database,
payroll sheets, scanned receipts, the primary store) into one
internally-consistent ledger.

It decides which records refer to the same real-world transaction,
recomputes per-reservation balances, and flags what it cannot resolve
rather than guessing. Every mutating command is dry-run by default,
snapshots affected rows before writing, and commits one transaction
per batch.

Example:
  reconcile import --source bank --file statements.csv
  reconcile match --scope 2023 --min-confidence 0.8
  reconcile balance --scope 2023 --write`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return report.ExitRolledBack
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "rules file (default from config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadEnvironment loads config, rules and the database connection shared by
// every subcommand. The connection is passed explicitly into each store;
// nothing holds process-wide database state.
func loadEnvironment() (*config.Config, *config.Rules, *db.Connection, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	rulesPath := cfg.RulesPath
	if rulesFile != "" {
		rulesPath = rulesFile
	}
	rules, err := config.LoadRules(rulesPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load rules: %w", err)
	}

	conn, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return cfg, rules, conn, nil
}

// confirm asks the operator to approve a write batch on stdin. The --yes
// flag supplies an always-true confirmer for scripted runs.
func confirm(assumeYes bool) func(changes int) bool {
	if assumeYes {
		return func(int) bool { return true }
	}
	return func(changes int) bool {
		fmt.Printf("Apply %d change(s)? [y/N]: ", changes)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
