package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// LinkStore manages reconciliation links, duplicate groups and conflict
// records. All three are engine-owned derived artifacts.
type LinkStore struct {
	conn *Connection
}

// NewLinkStore creates a new LinkStore.
func NewLinkStore(conn *Connection) *LinkStore {
	return &LinkStore{conn: conn}
}

// SaveLink stores a reconciliation link for a payment. An existing link with
// equal or higher confidence is kept: the engine never silently overwrites a
// high-confidence decision with a weaker one.
func (s *LinkStore) SaveLink(ctx context.Context, link *model.ReconciliationLink) (bool, error) {
	var existing float64
	err := s.conn.QueryRow(ctx,
		`SELECT confidence FROM reconciliation_links WHERE payment_id = ?`,
		link.PaymentID,
	).Scan(&existing)

	switch {
	case err == sql.ErrNoRows:
		// no existing link, insert below
	case err != nil:
		return false, fmt.Errorf("failed to check existing link: %w", err)
	case existing >= link.Confidence:
		return false, nil
	default:
		if _, err := s.conn.Exec(ctx,
			`DELETE FROM reconciliation_links WHERE payment_id = ?`, link.PaymentID); err != nil {
			return false, fmt.Errorf("failed to supersede link: %w", err)
		}
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO reconciliation_links
			(payment_id, transaction_id, obligation_id, confidence, method, rationale)
		VALUES (?, ?, ?, ?, ?, ?)`,
		link.PaymentID, link.TransactionID, link.ObligationID,
		link.Confidence, string(link.Method), link.Rationale,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert link: %w", err)
	}

	return true, nil
}

// ListLinks retrieves all links in payment order.
func (s *LinkStore) ListLinks(ctx context.Context) ([]model.ReconciliationLink, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, payment_id, transaction_id, obligation_id, confidence, method, rationale
		FROM reconciliation_links ORDER BY payment_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var out []model.ReconciliationLink
	for rows.Next() {
		var l model.ReconciliationLink
		var method string
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.TransactionID, &l.ObligationID,
			&l.Confidence, &method, &l.Rationale); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		l.Method = model.MatchMethod(method)
		out = append(out, l)
	}

	return out, rows.Err()
}

// ClearDerived deletes regenerable artifacts before a fresh engine run.
// Duplicate groups and conflicts are never the sole copy of a decision, so
// a re-run rebuilds them from the canonical tables. With no arguments both
// tables are cleared.
func (s *LinkStore) ClearDerived(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		tables = []string{"duplicate_groups", "conflicts"}
	}
	for _, table := range tables {
		switch table {
		case "duplicate_groups", "conflicts":
		default:
			return fmt.Errorf("not a derived table: %s", table)
		}
		if _, err := s.conn.Exec(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// SaveDuplicateGroup stores a duplicate candidate group.
func (s *LinkStore) SaveDuplicateGroup(ctx context.Context, g *model.DuplicateGroup) error {
	ids := make([]string, len(g.MemberIDs))
	for i, id := range g.MemberIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO duplicate_groups (group_key, member_ids, keep_id, verdict, reason)
		VALUES (?, ?, ?, ?, ?)`,
		g.Key, strings.Join(ids, ","), g.KeepID, string(g.Verdict), g.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert duplicate group: %w", err)
	}
	return nil
}

// ListDuplicateGroups retrieves all duplicate groups.
func (s *LinkStore) ListDuplicateGroups(ctx context.Context) ([]model.DuplicateGroup, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT group_key, member_ids, keep_id, verdict, reason
		FROM duplicate_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate groups: %w", err)
	}
	defer rows.Close()

	var out []model.DuplicateGroup
	for rows.Next() {
		var (
			g       model.DuplicateGroup
			members string
			verdict string
			reason  sql.NullString
		)
		if err := rows.Scan(&g.Key, &members, &g.KeepID, &verdict, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate group: %w", err)
		}
		g.Verdict = model.DuplicateVerdict(verdict)
		g.Reason = reason.String
		for _, part := range strings.Split(members, ",") {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid member id %q: %w", part, err)
			}
			g.MemberIDs = append(g.MemberIDs, id)
		}
		out = append(out, g)
	}

	return out, rows.Err()
}

// SaveConflict records a settled source disagreement.
func (s *LinkStore) SaveConflict(ctx context.Context, c *model.ConflictRecord) error {
	parts := make([]string, 0, len(c.Values))
	for src, v := range c.Values {
		parts = append(parts, string(src)+"="+v)
	}
	// Stable order for reproducible rows.
	sort.Strings(parts)

	_, err := s.conn.Exec(ctx, `
		INSERT INTO conflicts (entity_id, field, source_values, winner, reason)
		VALUES (?, ?, ?, ?, ?)`,
		c.EntityID, c.Field, strings.Join(parts, ";"), string(c.Winner), c.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

// CountConflicts returns the number of recorded conflicts.
func (s *LinkStore) CountConflicts(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM conflicts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}
