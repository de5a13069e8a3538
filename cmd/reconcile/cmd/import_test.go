package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blueharbor-marine/reconcile/pkg/db"
)

func setupImportTest(t *testing.T, csv string) string {
	t.Helper()
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.yaml")
	rules := "authority_order:\n  total_due: [primary, legacy, receipt]\n"
	if err := os.WriteFile(rulesPath, []byte(rules), 0644); err != nil {
		t.Fatal(err)
	}
	csvPath := filepath.Join(dir, "bank.csv")
	if err := os.WriteFile(csvPath, []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(dir, "ledger.db")
	t.Setenv("RECON_DATABASE_PATH", dbPath)
	t.Setenv("RECON_RULES_PATH", rulesPath)

	importSource = "bank"
	importFile = csvPath
	t.Cleanup(func() {
		importSource, importFile, importWrite, importYes = "", "", false, false
	})

	return dbPath
}

func countTransactions(t *testing.T, path string) int {
	t.Helper()
	conn, err := db.Open(path)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer conn.Close()

	var n int
	if err := conn.QueryRow(context.Background(), `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

// stdinAnswer substitutes stdin for one confirmation prompt.
func stdinAnswer(t *testing.T, answer string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteString(answer); err != nil {
		t.Fatal(err)
	}
	w.Close()

	orig := os.Stdin
	os.Stdin = r
	t.Cleanup(func() {
		os.Stdin = orig
		r.Close()
	})
}

func TestImportDeclinedWritesNothing(t *testing.T) {
	csv := "Date,Amount,Memo\n" +
		"2023-05-04,-740.50,Harbour Fuel No. 2\n" +
		"2023-05-05,2500.00,Deposit R-2023-114\n"
	dbPath := setupImportTest(t, csv)
	importWrite = true
	importYes = false
	stdinAnswer(t, "n\n")

	if err := runImport(importCmd, nil); err != nil {
		t.Fatalf("runImport() failed: %v", err)
	}
	if n := countTransactions(t, dbPath); n != 0 {
		t.Errorf("declined write persisted %d transaction(s)", n)
	}
}

func TestImportWriteCommitsBatch(t *testing.T) {
	csv := "Date,Amount,Memo\n" +
		"2023-05-04,-740.50,Harbour Fuel No. 2\n" +
		"2023-05-05,2500.00,Deposit R-2023-114\n"
	dbPath := setupImportTest(t, csv)
	importWrite = true
	importYes = true

	if err := runImport(importCmd, nil); err != nil {
		t.Fatalf("runImport() failed: %v", err)
	}
	if n := countTransactions(t, dbPath); n != 2 {
		t.Fatalf("transactions = %d, expected 2", n)
	}

	// Re-importing the same extract is a no-op.
	if err := runImport(importCmd, nil); err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if n := countTransactions(t, dbPath); n != 2 {
		t.Errorf("re-import grew the store to %d transaction(s)", n)
	}
}

func TestImportDryRunWritesNothing(t *testing.T) {
	csv := "Date,Amount,Memo\n2023-05-04,-740.50,Harbour Fuel No. 2\n"
	dbPath := setupImportTest(t, csv)
	importWrite = false
	importYes = false

	if err := runImport(importCmd, nil); err != nil {
		t.Fatalf("runImport() failed: %v", err)
	}
	if n := countTransactions(t, dbPath); n != 0 {
		t.Errorf("dry run persisted %d transaction(s)", n)
	}
}
