package fingerprint

import (
	"context"
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

func openTestDB(t *testing.T) *db.Connection {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testTx(key, date, memo, amount string) model.CanonicalTransaction {
	t := model.CanonicalTransaction{
		Source:         model.SourceBank,
		ExternalID:     key,
		Date:           day(date),
		Amount:         amt(amount),
		Memo:           memo,
		NormalizedMemo: model.NormalizeText(memo),
	}
	t.ContentHash = Fingerprint(key, t.Date, t.NormalizedMemo, t.Amount)
	return t
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("067", day("2023-05-04"), "harbour fuel", amt("-740.50"))
	b := Fingerprint("067", day("2023-05-04"), "harbour fuel", amt("-740.500"))
	if a != b {
		t.Error("same tuple must hash identically regardless of decimal exponent")
	}

	changed := []string{
		Fingerprint("068", day("2023-05-04"), "harbour fuel", amt("-740.50")),
		Fingerprint("067", day("2023-05-05"), "harbour fuel", amt("-740.50")),
		Fingerprint("067", day("2023-05-04"), "harbour fuel x", amt("-740.50")),
		Fingerprint("067", day("2023-05-04"), "harbour fuel", amt("-740.51")),
	}
	for i, c := range changed {
		if c == a {
			t.Errorf("variant %d should produce a different hash", i)
		}
	}
}

func TestFilterTransactionsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	txStore := db.NewTransactionStore(conn)
	guard := NewGuard(txStore, db.NewPaymentStore(conn))

	batch := []model.CanonicalTransaction{
		testTx("067", "2023-05-04", "harbour fuel", "-740.50"),
		testTx("068", "2023-05-05", "island provisioning", "-120.00"),
	}

	fresh, counts, err := guard.FilterTransactions(ctx, model.SourceBank, batch)
	if err != nil {
		t.Fatalf("FilterTransactions() failed: %v", err)
	}
	if counts.Imported != 2 || counts.SkippedDuplicate != 0 {
		t.Fatalf("first pass counts = %+v", counts)
	}
	for i := range fresh {
		if _, err := txStore.Insert(ctx, &fresh[i]); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	// Re-importing the identical extract is a no-op.
	fresh, counts, err = guard.FilterTransactions(ctx, model.SourceBank, batch)
	if err != nil {
		t.Fatalf("second FilterTransactions() failed: %v", err)
	}
	if len(fresh) != 0 {
		t.Errorf("expected nothing fresh, got %d", len(fresh))
	}
	if counts.Imported != 0 || counts.SkippedDuplicate != 2 {
		t.Errorf("second pass counts = %+v", counts)
	}
}

func TestFilterTransactionsIntraBatchDuplicates(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	guard := NewGuard(db.NewTransactionStore(conn), db.NewPaymentStore(conn))

	dup := testTx("067", "2023-05-04", "harbour fuel", "-740.50")
	fresh, counts, err := guard.FilterTransactions(ctx, model.SourceBank,
		[]model.CanonicalTransaction{dup, dup})
	if err != nil {
		t.Fatalf("FilterTransactions() failed: %v", err)
	}
	if len(fresh) != 1 || counts.SkippedDuplicate != 1 {
		t.Errorf("fresh = %d, counts = %+v", len(fresh), counts)
	}
}

func TestFilterPaymentsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	payStore := db.NewPaymentStore(conn)
	guard := NewGuard(db.NewTransactionStore(conn), payStore)

	batch := []model.PaymentRecord{
		{BusinessKey: "067", Amount: amt("740.50"), Date: day("2023-05-04"), Method: "cheque", Memo: "CHQ 67"},
	}

	fresh, counts, err := guard.FilterPayments(ctx, batch)
	if err != nil {
		t.Fatalf("FilterPayments() failed: %v", err)
	}
	if counts.Imported != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	if _, err := payStore.Insert(ctx, &fresh[0].Record, fresh[0].Hash); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	fresh, counts, err = guard.FilterPayments(ctx, batch)
	if err != nil {
		t.Fatalf("second FilterPayments() failed: %v", err)
	}
	if len(fresh) != 0 || counts.SkippedDuplicate != 1 {
		t.Errorf("fresh = %d, counts = %+v", len(fresh), counts)
	}
}
