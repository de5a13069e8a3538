package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/config"
	"github.com/blueharbor-marine/reconcile/pkg/model"
	"github.com/blueharbor-marine/reconcile/pkg/pathutil"
)

func layoutForTest(t *testing.T) *pathutil.Layout {
	t.Helper()
	return pathutil.NewLayout(t.TempDir())
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testMapper(t *testing.T) *Mapper {
	t.Helper()
	path := writeFile(t, "accounts.yaml", `
currency: AUD
source_accounts:
  bank: Assets:Bank:Operating
category_accounts:
  - category: fuel
    account: Expenses:Vessel:Fuel
fallbacks:
  debit: Expenses:Uncategorized
  credit: Income:Charter
`)
	m, err := NewMapper(path)
	if err != nil {
		t.Fatalf("NewMapper() failed: %v", err)
	}
	return m
}

func testBuilderRules(t *testing.T) *config.Rules {
	t.Helper()
	path := writeFile(t, "rules.yaml", `
recurring_patterns:
  - pattern: 'harbour fuel'
    category: fuel
    confidence_weight: 0.9
`)
	rules, err := config.LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() failed: %v", err)
	}
	return rules
}

func TestFromTransactionCategoryAccount(t *testing.T) {
	b := NewBuilder(testMapper(t), testBuilderRules(t))

	e := b.FromTransaction(model.CanonicalTransaction{
		ID: 1, Source: model.SourceBank, Date: day("2023-05-04"),
		Amount: amt("-740.50"), Memo: "Harbour Fuel No. 2",
		NormalizedMemo: "harbour fuel no. 2", CounterpartyHint: "harbour fuel no. 2",
	})

	if len(e.Postings) != 2 {
		t.Fatalf("postings = %d", len(e.Postings))
	}
	if e.Postings[0].Account != "Assets:Bank:Operating" {
		t.Errorf("source account = %q", e.Postings[0].Account)
	}
	if !e.Postings[0].Amount.Equal(amt("-740.50")) {
		t.Errorf("source amount = %s", e.Postings[0].Amount)
	}
	if e.Postings[1].Account != "Expenses:Vessel:Fuel" {
		t.Errorf("counter account = %q, expected category mapping", e.Postings[1].Account)
	}
	if !e.Postings[0].Amount.Add(e.Postings[1].Amount).IsZero() {
		t.Error("postings must balance")
	}
}

func TestFromTransactionFallbacksBySign(t *testing.T) {
	b := NewBuilder(testMapper(t), nil)

	debit := b.FromTransaction(model.CanonicalTransaction{
		Source: model.SourceBank, Date: day("2023-05-04"),
		Amount: amt("-50.00"), Memo: "unknown vendor", NormalizedMemo: "unknown vendor",
	})
	if debit.Postings[1].Account != "Expenses:Uncategorized" {
		t.Errorf("debit counter = %q", debit.Postings[1].Account)
	}

	credit := b.FromTransaction(model.CanonicalTransaction{
		Source: model.SourceBank, Date: day("2023-05-04"),
		Amount: amt("2500.00"), Memo: "deposit R-2023-114", NormalizedMemo: "deposit r-2023-114",
	})
	if credit.Postings[1].Account != "Income:Charter" {
		t.Errorf("credit counter = %q", credit.Postings[1].Account)
	}
}

func TestFormatEntry(t *testing.T) {
	e := Entry{
		Date:      "2023-05-04",
		Narration: "Harbour Fuel No. 2",
		Payee:     "harbour fuel",
		Tags:      []string{"stmt-4411"},
		Postings: []Posting{
			{Account: "Assets:Bank:Operating", Amount: amt("-740.50"), Currency: "AUD"},
			{Account: "Expenses:Vessel:Fuel", Amount: amt("740.50"), Currency: "AUD"},
		},
	}

	got := Format(e)
	if !strings.HasPrefix(got, `2023-05-04 * "harbour fuel" "Harbour Fuel No. 2" #stmt-4411`) {
		t.Errorf("header line wrong:\n%s", got)
	}
	if !strings.Contains(got, "-740.50 AUD") || !strings.Contains(got, "740.50 AUD") {
		t.Errorf("amounts missing:\n%s", got)
	}
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Errorf("expected header plus two postings, got %d lines", len(lines))
	}
}

func TestRepositoryAppendAndRemove(t *testing.T) {
	repo := NewRepository(layoutForTest(t))

	e := Entry{
		Date: "2023-05-04", Narration: "fuel",
		Postings: []Posting{
			{Account: "Assets:Bank:Operating", Amount: amt("-740.50"), Currency: "AUD"},
			{Account: "Expenses:Vessel:Fuel", Amount: amt("740.50"), Currency: "AUD"},
		},
	}
	if err := repo.AppendEntry("2023-05", e); err != nil {
		t.Fatalf("AppendEntry() failed: %v", err)
	}

	content, err := repo.ReadMonthFile("2023-05")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "; Ledger for 2023-05") {
		t.Error("generated header missing")
	}
	if !strings.Contains(content, "2023-05-04 *") {
		t.Error("entry missing")
	}

	if err := repo.RemoveMonthFile("2023-05"); err != nil {
		t.Fatalf("RemoveMonthFile() failed: %v", err)
	}
	content, err = repo.ReadMonthFile("2023-05")
	if err != nil {
		t.Fatal(err)
	}
	if content != "" {
		t.Error("file should be gone")
	}

	// Removing a missing file is fine.
	if err := repo.RemoveMonthFile("2023-06"); err != nil {
		t.Errorf("missing file remove errored: %v", err)
	}
}
