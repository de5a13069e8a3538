package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// ImportRecord represents one processed source file with its counts.
type ImportRecord struct {
	ID               int64
	Source           model.Source
	FileName         string
	Imported         int
	SkippedDuplicate int
	Unrecognized     int
	ImportedAt       time.Time
}

// ImportHistory manages the import_history table.
type ImportHistory struct {
	conn *Connection
}

// NewImportHistory creates a new ImportHistory instance.
func NewImportHistory(conn *Connection) *ImportHistory {
	return &ImportHistory{conn: conn}
}

// Record stores the counts for one import run.
func (h *ImportHistory) Record(ctx context.Context, rec ImportRecord) error {
	query := `
		INSERT INTO import_history (source, file_name, imported, skipped_duplicate, unrecognized)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := h.conn.Exec(ctx, query,
		string(rec.Source), rec.FileName, rec.Imported, rec.SkippedDuplicate, rec.Unrecognized)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}

	return nil
}

// Stats holds aggregate counts for the stats command.
type Stats struct {
	TotalTransactions int
	TotalObligations  int
	TotalPayments     int
	TotalLinks        int
	TotalConflicts    int
	ImportRuns        int
	LastImport        sql.NullString
}

// GetStats returns aggregate statistics about the store.
func (h *ImportHistory) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM transactions`, &stats.TotalTransactions},
		{`SELECT COUNT(*) FROM obligations`, &stats.TotalObligations},
		{`SELECT COUNT(*) FROM payments`, &stats.TotalPayments},
		{`SELECT COUNT(*) FROM reconciliation_links`, &stats.TotalLinks},
		{`SELECT COUNT(*) FROM conflicts`, &stats.TotalConflicts},
		{`SELECT COUNT(*) FROM import_history`, &stats.ImportRuns},
	}
	for _, c := range counts {
		if err := h.conn.QueryRow(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	err := h.conn.QueryRow(ctx, `SELECT MAX(imported_at) FROM import_history`).Scan(&stats.LastImport)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last import time: %w", err)
	}

	return &stats, nil
}
