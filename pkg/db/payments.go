package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// PaymentStore manages payment rows.
type PaymentStore struct {
	conn *Connection
}

// NewPaymentStore creates a new PaymentStore.
func NewPaymentStore(conn *Connection) *PaymentStore {
	return &PaymentStore{conn: conn}
}

const insertPayment = `
	INSERT INTO payments (business_key, amount, date, method, memo, obligation_id, content_hash)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

func paymentArgs(p *model.PaymentRecord, contentHash string) []interface{} {
	return []interface{}{
		p.BusinessKey,
		p.Amount.StringFixed(2),
		p.Date.Format(DateLayout),
		p.Method,
		p.Memo,
		p.ObligationID,
		contentHash,
	}
}

// Insert stores a payment and returns its ID.
func (s *PaymentStore) Insert(ctx context.Context, p *model.PaymentRecord, contentHash string) (int64, error) {
	res, err := s.conn.Exec(ctx, insertPayment, paymentArgs(p, contentHash)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert payment: %w", err)
	}
	return res.LastInsertId()
}

// InsertTx stores a payment inside the caller's transaction.
func (s *PaymentStore) InsertTx(tx *sql.Tx, p *model.PaymentRecord, contentHash string) (int64, error) {
	res, err := tx.Exec(insertPayment, paymentArgs(p, contentHash)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert payment: %w", err)
	}
	return res.LastInsertId()
}

// ExistingHashes returns the payment content hashes already stored within a
// date range, for the import guard.
func (s *PaymentStore) ExistingHashes(ctx context.Context, from, to time.Time) (map[string]bool, error) {
	query := `SELECT content_hash FROM payments WHERE date >= ? AND date <= ?`

	rows, err := s.conn.Query(ctx, query, from.Format(DateLayout), to.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing payment hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		hashes[h] = true
	}

	return hashes, rows.Err()
}

// ListUnlinked retrieves payments with no obligation link, oldest ID first.
func (s *PaymentStore) ListUnlinked(ctx context.Context, scope string) ([]model.PaymentRecord, error) {
	query := selectPayments + ` WHERE obligation_id = 0`
	var args []interface{}
	if scope != "" {
		query += ` AND date >= ? AND date <= ?`
		args = append(args, scope+"-01-01", scope+"-12-31")
	}
	query += ` ORDER BY id`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

// ListForObligation retrieves every payment attached to an obligation by
// either link path: the internal ID or the shared business key. Historical
// data drift means both paths are live. Business keys recur across
// statement-book years, so the key path is bounded to the obligation's
// calendar year; without the bound one payment would be summed into every
// obligation reusing the key.
func (s *PaymentStore) ListForObligation(ctx context.Context, obligationID int64, businessKey string, year int) ([]model.PaymentRecord, error) {
	query := selectPayments + ` WHERE obligation_id = ?`
	args := []interface{}{obligationID}
	if businessKey != "" {
		query += ` OR (business_key = ? AND obligation_id = 0 AND date >= ? AND date <= ?)`
		args = append(args, businessKey,
			fmt.Sprintf("%d-01-01", year), fmt.Sprintf("%d-12-31", year))
	}
	query += ` ORDER BY id`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for obligation: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

// LinkTx sets a payment's obligation link inside the caller's transaction.
func (s *PaymentStore) LinkTx(tx *sql.Tx, paymentID, obligationID int64) error {
	_, err := tx.Exec(`UPDATE payments SET obligation_id = ? WHERE id = ?`, obligationID, paymentID)
	if err != nil {
		return fmt.Errorf("failed to link payment: %w", err)
	}
	return nil
}

const selectPayments = `
	SELECT id, business_key, amount, date, method, memo, obligation_id
	FROM payments`

func scanPayment(scan func(...interface{}) error) (*model.PaymentRecord, error) {
	var (
		p         model.PaymentRecord
		key       sql.NullString
		amountStr string
		dateStr   string
		method    sql.NullString
		memo      sql.NullString
	)

	err := scan(&p.ID, &key, &amountStr, &dateStr, &method, &memo, &p.ObligationID)
	if err != nil {
		return nil, err
	}

	p.BusinessKey = key.String
	p.Method = method.String
	p.Memo = memo.String
	if p.Date, err = time.Parse(DateLayout, dateStr); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	if p.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	return &p, nil
}

func collectPayments(rows *sql.Rows) ([]model.PaymentRecord, error) {
	var out []model.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
