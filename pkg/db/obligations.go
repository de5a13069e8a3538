package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// ObligationStore manages obligation rows.
type ObligationStore struct {
	conn *Connection
}

// NewObligationStore creates a new ObligationStore.
func NewObligationStore(conn *Connection) *ObligationStore {
	return &ObligationStore{conn: conn}
}

const insertObligation = `
	INSERT INTO obligations (source, business_key, date, total_due, paid_amount, balance, cancelled)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

func obligationArgs(o *model.Obligation) []interface{} {
	return []interface{}{
		string(o.Source),
		o.BusinessKey,
		o.Date.Format(DateLayout),
		o.TotalDue.StringFixed(2),
		o.PaidAmount.StringFixed(2),
		o.Balance.StringFixed(2),
		boolToInt(o.Cancelled),
	}
}

// Insert stores an obligation and returns its ID. Balance starts equal to
// total_due; the balancer recomputes it from linked payments.
func (s *ObligationStore) Insert(ctx context.Context, o *model.Obligation) (int64, error) {
	res, err := s.conn.Exec(ctx, insertObligation, obligationArgs(o)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert obligation: %w", err)
	}
	return res.LastInsertId()
}

// InsertTx stores an obligation inside the caller's transaction.
func (s *ObligationStore) InsertTx(tx *sql.Tx, o *model.Obligation) (int64, error) {
	res, err := tx.Exec(insertObligation, obligationArgs(o)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert obligation: %w", err)
	}
	return res.LastInsertId()
}

// Get retrieves an obligation by ID. Returns nil if not found.
func (s *ObligationStore) Get(ctx context.Context, id int64) (*model.Obligation, error) {
	row := s.conn.QueryRow(ctx, selectObligations+` WHERE id = ?`, id)
	o, err := scanObligation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligation: %w", err)
	}
	return o, nil
}

// GetByBusinessKey retrieves obligations sharing a business key, oldest
// first. Business keys can recur across statement-book boundaries, so more
// than one row is a legitimate outcome.
func (s *ObligationStore) GetByBusinessKey(ctx context.Context, key string) ([]model.Obligation, error) {
	rows, err := s.conn.Query(ctx, selectObligations+` WHERE business_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations by key: %w", err)
	}
	defer rows.Close()
	return collectObligations(rows)
}

// List retrieves obligations in stable ID order, optionally scoped to a year.
func (s *ObligationStore) List(ctx context.Context, scope string) ([]model.Obligation, error) {
	query := selectObligations
	var args []interface{}
	if scope != "" {
		query += ` WHERE date >= ? AND date <= ?`
		args = append(args, scope+"-01-01", scope+"-12-31")
	}
	query += ` ORDER BY id`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	defer rows.Close()
	return collectObligations(rows)
}

// GetTx retrieves an obligation inside the caller's transaction, so the
// post-write verification sees the uncommitted state.
func (s *ObligationStore) GetTx(tx *sql.Tx, id int64) (*model.Obligation, error) {
	row := tx.QueryRow(selectObligations+` WHERE id = ?`, id)
	o, err := scanObligation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligation in tx: %w", err)
	}
	return o, nil
}

// UpdateTotalsTx writes a recomputed paid amount and balance inside the
// caller's transaction. Only the balancer output ever reaches this method.
func (s *ObligationStore) UpdateTotalsTx(tx *sql.Tx, id int64, paid, balance decimal.Decimal) error {
	_, err := tx.Exec(
		`UPDATE obligations SET paid_amount = ?, balance = ? WHERE id = ?`,
		paid.StringFixed(2), balance.StringFixed(2), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update obligation totals: %w", err)
	}
	return nil
}

// UpdateTotalDueTx writes a precedence-resolved total due inside the
// caller's transaction.
func (s *ObligationStore) UpdateTotalDueTx(tx *sql.Tx, id int64, totalDue decimal.Decimal) error {
	_, err := tx.Exec(`UPDATE obligations SET total_due = ? WHERE id = ?`, totalDue.StringFixed(2), id)
	if err != nil {
		return fmt.Errorf("failed to update obligation total due: %w", err)
	}
	return nil
}

const selectObligations = `
	SELECT id, source, business_key, date, total_due, paid_amount, balance, cancelled
	FROM obligations`

func scanObligation(scan func(...interface{}) error) (*model.Obligation, error) {
	var (
		o         model.Obligation
		source    string
		dateStr   string
		dueStr    string
		paidStr   string
		balStr    string
		cancelled int
	)

	err := scan(&o.ID, &source, &o.BusinessKey, &dateStr, &dueStr, &paidStr, &balStr, &cancelled)
	if err != nil {
		return nil, err
	}

	o.Source = model.Source(source)
	o.Cancelled = cancelled != 0
	if o.Date, err = time.Parse(DateLayout, dateStr); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	if o.TotalDue, err = decimal.NewFromString(dueStr); err != nil {
		return nil, fmt.Errorf("invalid total_due %q: %w", dueStr, err)
	}
	if o.PaidAmount, err = decimal.NewFromString(paidStr); err != nil {
		return nil, fmt.Errorf("invalid paid_amount %q: %w", paidStr, err)
	}
	if o.Balance, err = decimal.NewFromString(balStr); err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", balStr, err)
	}

	return &o, nil
}

func collectObligations(rows *sql.Rows) ([]model.Obligation, error) {
	var out []model.Obligation
	for rows.Next() {
		o, err := scanObligation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
