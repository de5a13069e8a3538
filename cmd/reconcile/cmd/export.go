package cmd

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/export"
	"github.com/blueharbor-marine/reconcile/pkg/model"
	"github.com/blueharbor-marine/reconcile/pkg/pathutil"
)

var (
	exportScope    string
	exportRoot     string
	exportAccounts string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the reconciled store as plain-text ledger files",
	Long: `Export renders canonical transactions as beancount-syntax ledger files,
one file per month under the output root. Account names come from the YAML
account mapping; movements without a mapped category land in explicit
Uncategorized accounts so nothing disappears. Exported files are derived
artifacts and each scoped month is rebuilt from scratch on every run.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportScope, "scope", "", "restrict to one calendar year, e.g. 2023")
	exportCmd.Flags().StringVar(&exportRoot, "out", "./ledger", "output root directory")
	exportCmd.Flags().StringVar(&exportAccounts, "accounts", "./accounts.yaml", "account mapping file")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, rules, conn, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer conn.Close()

	mapper, err := export.NewMapper(exportAccounts)
	if err != nil {
		return err
	}

	scope := exportScope
	if scope == "" {
		scope = cfg.Scope
	}

	txStore := db.NewTransactionStore(conn)
	records, err := txStore.List(ctx, scope)
	if err != nil {
		return err
	}

	builder := export.NewBuilder(mapper, rules)
	repo := export.NewRepository(pathutil.NewLayout(exportRoot))

	byMonth := make(map[string][]model.CanonicalTransaction)
	for _, t := range records {
		key := t.Date.Format("2006-01")
		byMonth[key] = append(byMonth[key], t)
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	entries := 0
	for _, month := range months {
		if err := repo.RemoveMonthFile(month); err != nil {
			return err
		}
		for _, t := range byMonth[month] {
			if err := repo.AppendEntry(month, builder.FromTransaction(t)); err != nil {
				return err
			}
			entries++
		}
	}

	cmd.Printf("exported %d entries across %d month file(s) under %s\n",
		entries, len(months), exportRoot)
	return nil
}
