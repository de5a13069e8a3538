package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/blueharbor-marine/reconcile/pkg/db"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Long:  `Stats displays aggregate counts for the canonical store and the import history.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, _, conn, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer conn.Close()

	history := db.NewImportHistory(conn)
	stats, err := history.GetStats(ctx)
	if err != nil {
		return err
	}

	cmd.Println("=== Store Statistics ===")
	cmd.Printf("Transactions:   %d\n", stats.TotalTransactions)
	cmd.Printf("Obligations:    %d\n", stats.TotalObligations)
	cmd.Printf("Payments:       %d\n", stats.TotalPayments)
	cmd.Printf("Links:          %d\n", stats.TotalLinks)
	cmd.Printf("Conflicts:      %d\n", stats.TotalConflicts)
	cmd.Printf("Import runs:    %d\n", stats.ImportRuns)
	if stats.LastImport.Valid {
		cmd.Printf("Last import:    %s\n", stats.LastImport.String)
	} else {
		cmd.Println("Last import:    never")
	}

	return nil
}
