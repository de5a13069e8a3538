// Package applier is the safety harness around every mutation the engine
// makes. Runs are dry-run by default; a write run snapshots the affected
// rows into timestamped backup tables, performs all writes for the batch in
// one transaction, re-checks the relevant invariants, and commits only if
// they hold. Protected records are immutable under every mode.
//
// State machine: DRY_RUN -> PREVIEW -> [confirm] -> BACKUP -> APPLY ->
// VERIFY -> COMMIT|ROLLBACK.
package applier

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/balancer"
	"github.com/blueharbor-marine/reconcile/pkg/db"
	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Change is one planned field mutation with its before/after values. The
// apply closure performs the actual write; everything else is audit data.
type Change struct {
	Table      string
	EntityID   int64
	Field      string
	OldValue   string
	NewValue   string
	Reason     string
	Confidence float64
	Protected  bool

	apply func(tx *sql.Tx) error
}

// Plan is one logical correction batch. It maps to exactly one transaction.
type Plan struct {
	RunID   string
	Changes []Change
}

// NewPlan creates an empty plan with a fresh run ID.
func NewPlan() *Plan {
	return &Plan{RunID: uuid.NewString()}
}

// AddObligationTotals plans the balancer's recomputed totals for one
// obligation.
func (p *Plan) AddObligationTotals(store *db.ObligationStore, o model.Obligation, paid, balance decimal.Decimal, reason string) {
	id := o.ID
	p.Changes = append(p.Changes,
		Change{
			Table:    "obligations",
			EntityID: id,
			Field:    "paid_amount",
			OldValue: o.PaidAmount.StringFixed(2),
			NewValue: paid.StringFixed(2),
			Reason:   reason,
			apply: func(tx *sql.Tx) error {
				return store.UpdateTotalsTx(tx, id, paid, balance)
			},
		},
		Change{
			Table:    "obligations",
			EntityID: id,
			Field:    "balance",
			OldValue: o.Balance.StringFixed(2),
			NewValue: balance.StringFixed(2),
			Reason:   reason,
			// The totals update writes both columns; the second change is
			// audit-only.
			apply: nil,
		},
	)
}

// AddCreditOwed records a clamped overpayment as an audit-only change. The
// clamp zeroes the stored balance, so the credit's machine-readable trace
// lives in the run audit rather than only in the run output.
func (p *Plan) AddCreditOwed(o model.Obligation, credit decimal.Decimal) {
	p.Changes = append(p.Changes, Change{
		Table:    "obligations",
		EntityID: o.ID,
		Field:    "credit_owed",
		OldValue: "0.00",
		NewValue: credit.StringFixed(2),
		Reason:   fmt.Sprintf("overpayment on %s clamped to zero balance", o.BusinessKey),
		apply:    nil,
	})
}

// AddObligationTotalDue plans a precedence-resolved total due value.
func (p *Plan) AddObligationTotalDue(store *db.ObligationStore, o model.Obligation, totalDue decimal.Decimal, reason string) {
	id := o.ID
	p.Changes = append(p.Changes, Change{
		Table:    "obligations",
		EntityID: id,
		Field:    "total_due",
		OldValue: o.TotalDue.StringFixed(2),
		NewValue: totalDue.StringFixed(2),
		Reason:   reason,
		apply: func(tx *sql.Tx) error {
			return store.UpdateTotalDueTx(tx, id, totalDue)
		},
	})
}

// AddTransactionDelete plans removing one member of a confirmed duplicate
// group. The Protected flag carries through so the runner refuses the whole
// batch if a verified or locked row was ever planned.
func (p *Plan) AddTransactionDelete(store *db.TransactionStore, t model.CanonicalTransaction, reason string) {
	id := t.ID
	p.Changes = append(p.Changes, Change{
		Table:     "transactions",
		EntityID:  id,
		Field:     "deleted",
		OldValue:  t.Amount.StringFixed(2) + " " + t.Memo,
		NewValue:  "",
		Reason:    reason,
		Protected: t.Protected(),
		apply: func(tx *sql.Tx) error {
			return store.DeleteTx(tx, id)
		},
	})
}

// AddPaymentLink plans linking a payment to an obligation.
func (p *Plan) AddPaymentLink(store *db.PaymentStore, payment model.PaymentRecord, obligationID int64, confidence float64, reason string) {
	paymentID := payment.ID
	p.Changes = append(p.Changes, Change{
		Table:      "payments",
		EntityID:   paymentID,
		Field:      "obligation_id",
		OldValue:   fmt.Sprintf("%d", payment.ObligationID),
		NewValue:   fmt.Sprintf("%d", obligationID),
		Reason:     reason,
		Confidence: confidence,
		apply: func(tx *sql.Tx) error {
			return store.LinkTx(tx, paymentID, obligationID)
		},
	})
}

// Options control one run.
type Options struct {
	// Write enables mutation. False is a dry run: the full plan is
	// previewed through the same code path, with zero side effects.
	Write bool

	// Confirm is consulted once before any write. A nil Confirm denies,
	// keeping non-interactive runs safe.
	Confirm func(changes int) bool

	// ClampOverpay loosens the balance invariant check for clamped
	// obligations, whose credit was exported instead of stored.
	ClampOverpay bool

	// Now supplies the backup timestamp. Nil means time.Now.
	Now func() time.Time
}

// Outcome summarizes one run for reporting and exit-status mapping.
type Outcome struct {
	RunID      string
	Previewed  int
	Applied    int
	Backups    []string
	RolledBack bool
}

// Runner executes plans against the store.
type Runner struct {
	conn        *db.Connection
	audit       *db.AuditStore
	obligations *db.ObligationStore
}

// NewRunner creates a Runner.
func NewRunner(conn *db.Connection, audit *db.AuditStore, obligations *db.ObligationStore) *Runner {
	return &Runner{conn: conn, audit: audit, obligations: obligations}
}

// Run executes one plan under the safety state machine.
func (r *Runner) Run(ctx context.Context, plan *Plan, opts Options) (*Outcome, error) {
	outcome := &Outcome{RunID: plan.RunID, Previewed: len(plan.Changes)}

	// Protected records are immutable by construction, under any mode.
	for _, c := range plan.Changes {
		if c.Protected {
			return outcome, fmt.Errorf("%w: %s %d", model.ErrProtectedRecord, c.Table, c.EntityID)
		}
	}

	if len(plan.Changes) == 0 || !opts.Write {
		return outcome, nil
	}

	if opts.Confirm == nil || !opts.Confirm(len(plan.Changes)) {
		slog.Info("write not confirmed, leaving store untouched", "run_id", plan.RunID)
		return outcome, nil
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	ts := now()

	err := r.conn.Transaction(ctx, func(tx *sql.Tx) error {
		// BACKUP: snapshot every affected row before the first write.
		for _, table := range affectedTables(plan.Changes) {
			backup, err := r.audit.SnapshotTx(tx, table, affectedIDs(plan.Changes, table), ts)
			if err != nil {
				return err
			}
			if backup != "" {
				outcome.Backups = append(outcome.Backups, backup)
			}
		}

		// APPLY: all writes for the batch inside the one transaction.
		for _, c := range plan.Changes {
			if c.apply != nil {
				if err := c.apply(tx); err != nil {
					return fmt.Errorf("apply %s.%s for %d: %w", c.Table, c.Field, c.EntityID, err)
				}
			}
			if err := r.audit.RecordTx(tx, db.AuditRow{
				RunID:      plan.RunID,
				Table:      c.Table,
				EntityID:   c.EntityID,
				Field:      c.Field,
				OldValue:   c.OldValue,
				NewValue:   c.NewValue,
				Reason:     c.Reason,
				Confidence: c.Confidence,
				Applied:    true,
			}); err != nil {
				return err
			}
			outcome.Applied++
		}

		// VERIFY: re-run the balance invariant on every touched obligation
		// against the uncommitted state. Any failure rolls the batch back.
		return r.verify(tx, plan.Changes, opts.ClampOverpay)
	})
	if err != nil {
		outcome.Applied = 0
		outcome.Backups = nil
		outcome.RolledBack = true
		return outcome, err
	}

	slog.Info("batch committed",
		"run_id", plan.RunID, "applied", outcome.Applied, "backups", len(outcome.Backups))
	return outcome, nil
}

func (r *Runner) verify(tx *sql.Tx, changes []Change, clampOverpay bool) error {
	for _, id := range affectedIDs(changes, "obligations") {
		o, err := r.obligations.GetTx(tx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("%w: obligation %d disappeared during apply", model.ErrIntegrityViolation, id)
		}
		if err := balancer.CheckInvariant(*o, clampOverpay); err != nil {
			return err
		}
	}
	return nil
}

func affectedTables(changes []Change) []string {
	seen := make(map[string]bool)
	for _, c := range changes {
		seen[c.Table] = true
	}
	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func affectedIDs(changes []Change, table string) []int64 {
	seen := make(map[int64]bool)
	for _, c := range changes {
		if c.Table == table {
			seen[c.EntityID] = true
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
