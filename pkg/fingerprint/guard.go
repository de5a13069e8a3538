package fingerprint

import (
	"context"
	"time"

	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Counts is the imported / skipped_duplicate pair reported for every import
// run, plus the rows the adapter could not map.
type Counts struct {
	Imported         int
	SkippedDuplicate int
	Unrecognized     int
}

// Guard filters incoming records against hashes already stored for the same
// source and date range, making repeated imports idempotent.
type Guard struct {
	transactions *db.TransactionStore
	payments     *db.PaymentStore
}

// NewGuard creates a Guard over the given stores.
func NewGuard(transactions *db.TransactionStore, payments *db.PaymentStore) *Guard {
	return &Guard{transactions: transactions, payments: payments}
}

// FilterTransactions splits a batch into records to insert and exact
// duplicates to skip. Duplicates within the batch itself are also skipped.
func (g *Guard) FilterTransactions(ctx context.Context, source model.Source, records []model.CanonicalTransaction) ([]model.CanonicalTransaction, Counts, error) {
	var counts Counts
	if len(records) == 0 {
		return nil, counts, nil
	}

	from, to := dateRange(records)
	existing, err := g.transactions.ExistingHashes(ctx, source, from, to)
	if err != nil {
		return nil, counts, err
	}

	seen := make(map[string]bool, len(records))
	var fresh []model.CanonicalTransaction
	for _, r := range records {
		if existing[r.ContentHash] || seen[r.ContentHash] {
			counts.SkippedDuplicate++
			continue
		}
		seen[r.ContentHash] = true
		fresh = append(fresh, r)
		counts.Imported++
	}

	return fresh, counts, nil
}

// HashedPayment pairs a payment with its content hash for insertion.
type HashedPayment struct {
	Record model.PaymentRecord
	Hash   string
}

// FilterPayments computes payment fingerprints and splits the batch the same
// way FilterTransactions does.
func (g *Guard) FilterPayments(ctx context.Context, records []model.PaymentRecord) ([]HashedPayment, Counts, error) {
	var counts Counts
	if len(records) == 0 {
		return nil, counts, nil
	}

	from, to := paymentDateRange(records)
	existing, err := g.payments.ExistingHashes(ctx, from, to)
	if err != nil {
		return nil, counts, err
	}

	seen := make(map[string]bool, len(records))
	var fresh []HashedPayment
	for _, r := range records {
		hash := Fingerprint(r.BusinessKey, r.Date, model.NormalizeText(r.Memo), r.Amount)
		if existing[hash] || seen[hash] {
			counts.SkippedDuplicate++
			continue
		}
		seen[hash] = true
		fresh = append(fresh, HashedPayment{Record: r, Hash: hash})
		counts.Imported++
	}

	return fresh, counts, nil
}

func dateRange(records []model.CanonicalTransaction) (time.Time, time.Time) {
	from, to := records[0].Date, records[0].Date
	for _, r := range records[1:] {
		if r.Date.Before(from) {
			from = r.Date
		}
		if r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to
}

func paymentDateRange(records []model.PaymentRecord) (time.Time, time.Time) {
	from, to := records[0].Date, records[0].Date
	for _, r := range records[1:] {
		if r.Date.Before(from) {
			from = r.Date
		}
		if r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to
}
