package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AuditRow is one machine-readable before/after entry for a run.
type AuditRow struct {
	RunID      string
	Table      string
	EntityID   int64
	Field      string
	OldValue   string
	NewValue   string
	Reason     string
	Confidence float64
	Applied    bool
}

// AuditStore manages run_audit rows and pre-mutation backup snapshots.
type AuditStore struct {
	conn *Connection
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(conn *Connection) *AuditStore {
	return &AuditStore{conn: conn}
}

// RecordTx stores an audit row inside the caller's transaction.
func (s *AuditStore) RecordTx(tx *sql.Tx, row AuditRow) error {
	_, err := tx.Exec(`
		INSERT INTO run_audit
			(run_id, entity_table, entity_id, field, old_value, new_value, reason, confidence, applied)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.Table, row.EntityID, row.Field,
		row.OldValue, row.NewValue, row.Reason, row.Confidence, boolToInt(row.Applied),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit row: %w", err)
	}
	return nil
}

// BackupTableName builds the deterministic snapshot table name for one
// mutated table in one run. Snapshots are retained indefinitely for audit
// and rollback.
func BackupTableName(table string, ts time.Time) string {
	return fmt.Sprintf("backup_%s_%s", table, ts.Format("20060102150405"))
}

// SnapshotTx copies the affected rows of a table into a timestamped backup
// table inside the caller's transaction, before any write touches them.
func (s *AuditStore) SnapshotTx(tx *sql.Tx, table string, ids []int64, ts time.Time) (string, error) {
	if !validTableName(table) {
		return "", fmt.Errorf("refusing to snapshot table %q", table)
	}
	if len(ids) == 0 {
		return "", nil
	}

	backup := BackupTableName(table, ts)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s WHERE id IN (%s)`,
		backup, table, placeholders,
	)
	if _, err := tx.Exec(query, args...); err != nil {
		return "", fmt.Errorf("failed to snapshot %s: %w", table, err)
	}

	return backup, nil
}

// ListRunAudit retrieves the audit rows for a run.
func (s *AuditStore) ListRunAudit(ctx context.Context, runID string) ([]AuditRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT run_id, entity_table, entity_id, field, old_value, new_value, reason, confidence, applied
		FROM run_audit WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit rows: %w", err)
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var (
			r       AuditRow
			oldV    sql.NullString
			newV    sql.NullString
			reason  sql.NullString
			applied int
		)
		if err := rows.Scan(&r.RunID, &r.Table, &r.EntityID, &r.Field,
			&oldV, &newV, &reason, &r.Confidence, &applied); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		r.OldValue = oldV.String
		r.NewValue = newV.String
		r.Reason = reason.String
		r.Applied = applied != 0
		out = append(out, r)
	}

	return out, rows.Err()
}

// validTableName allows only the engine's own entity tables as snapshot
// sources. The name is interpolated into SQL, so it is allowlisted.
func validTableName(table string) bool {
	switch table {
	case "transactions", "obligations", "payments", "reconciliation_links":
		return true
	}
	return false
}
