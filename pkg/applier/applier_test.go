package applier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/model"
)

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

type harness struct {
	conn         *db.Connection
	obligations  *db.ObligationStore
	transactions *db.TransactionStore
	audit        *db.AuditStore
	runner       *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	h := &harness{
		conn:         conn,
		obligations:  db.NewObligationStore(conn),
		transactions: db.NewTransactionStore(conn),
		audit:        db.NewAuditStore(conn),
	}
	h.runner = NewRunner(conn, h.audit, h.obligations)
	return h
}

func (h *harness) insertObligation(t *testing.T, o model.Obligation) model.Obligation {
	t.Helper()
	id, err := h.obligations.Insert(context.Background(), &o)
	if err != nil {
		t.Fatalf("insert obligation failed: %v", err)
	}
	o.ID = id
	return o
}

func alwaysYes(int) bool { return true }

func TestRunDryRunHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.insertObligation(t, model.Obligation{
		Source: model.SourceLegacy, BusinessKey: "R-2023-114", Date: day("2023-05-20"),
		TotalDue: amt("2500.00"), PaidAmount: amt("0.00"), Balance: amt("2500.00"),
	})

	plan := NewPlan()
	plan.AddObligationTotals(h.obligations, o, amt("2000.00"), amt("500.00"), "recomputed")

	outcome, err := h.runner.Run(ctx, plan, Options{Write: false, Confirm: alwaysYes})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if outcome.Previewed != 2 || outcome.Applied != 0 {
		t.Errorf("outcome = %+v, expected preview-only", outcome)
	}

	stored, err := h.obligations.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.PaidAmount.Equal(amt("0.00")) {
		t.Errorf("dry run mutated paid_amount to %s", stored.PaidAmount)
	}
}

func TestRunWriteAppliesBacksUpAndAudits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.insertObligation(t, model.Obligation{
		Source: model.SourceLegacy, BusinessKey: "R-2023-114", Date: day("2023-05-20"),
		TotalDue: amt("2500.00"), PaidAmount: amt("0.00"), Balance: amt("2500.00"),
	})

	plan := NewPlan()
	plan.AddObligationTotals(h.obligations, o, amt("2000.00"), amt("500.00"), "recomputed")

	ts := day("2023-09-01")
	outcome, err := h.runner.Run(ctx, plan, Options{
		Write:   true,
		Confirm: alwaysYes,
		Now:     func() time.Time { return ts },
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if outcome.Applied != 2 || outcome.RolledBack {
		t.Fatalf("outcome = %+v", outcome)
	}

	stored, err := h.obligations.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.PaidAmount.Equal(amt("2000.00")) || !stored.Balance.Equal(amt("500.00")) {
		t.Errorf("totals not applied: paid %s balance %s", stored.PaidAmount, stored.Balance)
	}

	// Backup snapshot holds the pre-write row.
	if len(outcome.Backups) != 1 {
		t.Fatalf("Backups = %v, expected one table", outcome.Backups)
	}
	want := db.BackupTableName("obligations", ts)
	if outcome.Backups[0] != want {
		t.Errorf("backup table = %q, expected %q", outcome.Backups[0], want)
	}
	var backupPaid string
	err = h.conn.QueryRow(ctx, `SELECT paid_amount FROM `+want+` WHERE id = ?`, o.ID).Scan(&backupPaid)
	if err != nil {
		t.Fatalf("backup row missing: %v", err)
	}
	if backupPaid != "0.00" {
		t.Errorf("backup paid_amount = %q, expected pre-write 0.00", backupPaid)
	}

	// Machine-readable audit rows for both planned changes.
	rows, err := h.audit.ListRunAudit(ctx, plan.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("audit rows = %d, expected 2", len(rows))
	}
	if rows[0].Field != "paid_amount" || rows[0].NewValue != "2000.00" || !rows[0].Applied {
		t.Errorf("audit row 0 = %+v", rows[0])
	}
}

func TestRunRecordsCreditOwedInAudit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.insertObligation(t, model.Obligation{
		Source: model.SourceLegacy, BusinessKey: "R-2023-114", Date: day("2023-05-20"),
		TotalDue: amt("2000.00"), PaidAmount: amt("0.00"), Balance: amt("2000.00"),
	})

	// Overpaid by 250.00, clamped: balance lands at zero and the credit is
	// carried as an audit-only row.
	plan := NewPlan()
	plan.AddObligationTotals(h.obligations, o, amt("2250.00"), amt("0.00"), "recomputed")
	plan.AddCreditOwed(o, amt("250.00"))

	outcome, err := h.runner.Run(ctx, plan, Options{
		Write:        true,
		Confirm:      alwaysYes,
		ClampOverpay: true,
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if outcome.Applied != 3 {
		t.Fatalf("Applied = %d, expected 3", outcome.Applied)
	}

	rows, err := h.audit.ListRunAudit(ctx, plan.RunID)
	if err != nil {
		t.Fatal(err)
	}
	var credit *db.AuditRow
	for i := range rows {
		if rows[i].Field == "credit_owed" {
			credit = &rows[i]
		}
	}
	if credit == nil {
		t.Fatal("no credit_owed audit row recorded")
	}
	if credit.NewValue != "250.00" || !credit.Applied {
		t.Errorf("credit row = %+v", credit)
	}
}

func TestRunRefusesProtectedRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	locked := model.CanonicalTransaction{
		ID: 1, Source: model.SourceBank, Date: day("2023-05-04"),
		Amount: amt("-740.50"), Memo: "harbour fuel", Locked: true,
	}

	plan := NewPlan()
	plan.AddTransactionDelete(h.transactions, locked, "duplicate")

	_, err := h.runner.Run(ctx, plan, Options{Write: true, Confirm: alwaysYes})
	if !errors.Is(err, model.ErrProtectedRecord) {
		t.Fatalf("expected ErrProtectedRecord, got %v", err)
	}

	// Dry run refuses too: protection is not a function of mode.
	_, err = h.runner.Run(ctx, plan, Options{Write: false})
	if !errors.Is(err, model.ErrProtectedRecord) {
		t.Fatalf("dry run should also refuse, got %v", err)
	}
}

func TestRunRollsBackOnInvariantViolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.insertObligation(t, model.Obligation{
		Source: model.SourceLegacy, BusinessKey: "R-2023-114", Date: day("2023-05-20"),
		TotalDue: amt("2500.00"), PaidAmount: amt("0.00"), Balance: amt("2500.00"),
	})

	// Totals that do not satisfy balance == total_due - paid.
	plan := NewPlan()
	plan.AddObligationTotals(h.obligations, o, amt("2000.00"), amt("999.00"), "bad math")

	outcome, err := h.runner.Run(ctx, plan, Options{Write: true, Confirm: alwaysYes})
	if !errors.Is(err, model.ErrIntegrityViolation) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}
	if !outcome.RolledBack || outcome.Applied != 0 {
		t.Errorf("outcome = %+v, expected rollback", outcome)
	}

	stored, err := h.obligations.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.PaidAmount.Equal(amt("0.00")) || !stored.Balance.Equal(amt("2500.00")) {
		t.Errorf("rollback left totals at paid %s balance %s", stored.PaidAmount, stored.Balance)
	}
}

func TestRunNilConfirmDenies(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.insertObligation(t, model.Obligation{
		Source: model.SourceLegacy, BusinessKey: "R-2023-114", Date: day("2023-05-20"),
		TotalDue: amt("2500.00"), PaidAmount: amt("0.00"), Balance: amt("2500.00"),
	})

	plan := NewPlan()
	plan.AddObligationTotals(h.obligations, o, amt("2000.00"), amt("500.00"), "recomputed")

	outcome, err := h.runner.Run(ctx, plan, Options{Write: true})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if outcome.Applied != 0 {
		t.Errorf("unconfirmed run applied %d changes", outcome.Applied)
	}
}
