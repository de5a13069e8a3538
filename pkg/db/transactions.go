package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// DateLayout is the ISO calendar date format used in every date column.
const DateLayout = "2006-01-02"

// TransactionStore manages canonical transaction rows.
type TransactionStore struct {
	conn *Connection
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(conn *Connection) *TransactionStore {
	return &TransactionStore{conn: conn}
}

const insertTransaction = `
	INSERT INTO transactions
		(source, external_id, date, amount, memo, normalized_memo,
		 counterparty_hint, content_hash, verified, locked)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func transactionArgs(t *model.CanonicalTransaction) []interface{} {
	return []interface{}{
		string(t.Source),
		t.ExternalID,
		t.Date.Format(DateLayout),
		t.Amount.StringFixed(2),
		t.Memo,
		t.NormalizedMemo,
		t.CounterpartyHint,
		t.ContentHash,
		boolToInt(t.Verified),
		boolToInt(t.Locked),
	}
}

// Insert stores a canonical transaction and returns its ID.
func (s *TransactionStore) Insert(ctx context.Context, t *model.CanonicalTransaction) (int64, error) {
	res, err := s.conn.Exec(ctx, insertTransaction, transactionArgs(t)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return res.LastInsertId()
}

// InsertTx stores a canonical transaction inside the caller's transaction,
// so one import batch commits or rolls back as a unit.
func (s *TransactionStore) InsertTx(tx *sql.Tx, t *model.CanonicalTransaction) (int64, error) {
	res, err := tx.Exec(insertTransaction, transactionArgs(t)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return res.LastInsertId()
}

// ExistingHashes returns the content hashes already stored for a source
// within a date range. The import guard uses this to skip exact re-imports.
func (s *TransactionStore) ExistingHashes(ctx context.Context, source model.Source, from, to time.Time) (map[string]bool, error) {
	query := `
		SELECT content_hash FROM transactions
		WHERE source = ? AND date >= ? AND date <= ?
	`

	rows, err := s.conn.Query(ctx, query, string(source), from.Format(DateLayout), to.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing hashes: %w", err)
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

// Get retrieves a transaction by ID. Returns nil if not found.
func (s *TransactionStore) Get(ctx context.Context, id int64) (*model.CanonicalTransaction, error) {
	row := s.conn.QueryRow(ctx, selectTransactions+` WHERE id = ?`, id)
	t, err := scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// List retrieves transactions in stable ID order, optionally bounded to a
// single year scope ("2023"). Stable ordering keeps matching deterministic.
func (s *TransactionStore) List(ctx context.Context, scope string) ([]model.CanonicalTransaction, error) {
	query := selectTransactions
	var args []interface{}
	if scope != "" {
		query += ` WHERE date >= ? AND date <= ?`
		args = append(args, scope+"-01-01", scope+"-12-31")
	}
	query += ` ORDER BY id`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.CanonicalTransaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *t)
	}

	return out, rows.Err()
}

// DeleteTx removes a transaction inside the caller's transaction. Only the
// change applier calls this, after a snapshot, for confirmed duplicate
// proposals. Protected rows never reach it.
func (s *TransactionStore) DeleteTx(tx *sql.Tx, id int64) error {
	_, err := tx.Exec(`DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

const selectTransactions = `
	SELECT id, source, external_id, date, amount, memo, normalized_memo,
	       counterparty_hint, content_hash, verified, locked
	FROM transactions`

func scanTransaction(scan func(...interface{}) error) (*model.CanonicalTransaction, error) {
	var (
		t            model.CanonicalTransaction
		source       string
		externalID   sql.NullString
		dateStr      string
		amountStr    string
		counterparty sql.NullString
		verified     int
		locked       int
	)

	err := scan(&t.ID, &source, &externalID, &dateStr, &amountStr, &t.Memo,
		&t.NormalizedMemo, &counterparty, &t.ContentHash, &verified, &locked)
	if err != nil {
		return nil, err
	}

	t.Source = model.Source(source)
	t.ExternalID = externalID.String
	t.CounterpartyHint = counterparty.String
	t.Verified = verified != 0
	t.Locked = locked != 0

	if t.Date, err = time.Parse(DateLayout, dateStr); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
