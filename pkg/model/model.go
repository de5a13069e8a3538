// Package model defines the canonical entity shapes shared by every stage of
// the reconciliation pipeline. All monetary values are fixed-point decimals;
// float64 is never used for money.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies the system a record was extracted from.
type Source string

const (
	SourceBank    Source = "bank"    // externally verified bank statement export
	SourcePrimary Source = "primary" // primary system-of-record
	SourceLegacy  Source = "legacy"  // legacy desktop reservation database export
	SourcePayroll Source = "payroll" // spreadsheet payroll reconstruction
	SourceReceipt Source = "receipt" // scanned receipt rows
)

// MatchMethod names the matching stage that produced a link.
type MatchMethod string

const (
	MatchExact      MatchMethod = "exact"
	MatchAmountDate MatchMethod = "amount_date"
	MatchFuzzy      MatchMethod = "fuzzy"
)

// CanonicalTransaction is one money movement from a source feed, normalized
// by the adapter. Once Locked is set the record is immutable by engine policy.
type CanonicalTransaction struct {
	ID               int64
	Source           Source
	ExternalID       string
	Date             time.Time
	Amount           decimal.Decimal // signed: debits negative, credits positive
	Memo             string          // original text, retained for display
	NormalizedMemo   string          // trimmed, lowercased, used for matching
	CounterpartyHint string
	ContentHash      string
	Verified         bool
	Locked           bool
}

// Protected reports whether the record may be mutated or proposed for
// deletion. Verified and locked records are immutable by construction.
func (t *CanonicalTransaction) Protected() bool {
	return t.Verified || t.Locked
}

// Obligation is a billable unit (a charter reservation, an invoice) with a
// total due and an accumulating paid amount. Balance is the only field that
// is recomputed rather than entered; it is never hand-edited.
type Obligation struct {
	ID          int64
	Source      Source // which system this row was extracted from
	BusinessKey string // e.g. reservation number, shared across systems
	Date        time.Time
	TotalDue    decimal.Decimal
	PaidAmount  decimal.Decimal
	Balance     decimal.Decimal
	Cancelled   bool
}

// PaymentRecord is one payment toward an obligation. ObligationID is zero
// while the payment is orphaned pending matching.
type PaymentRecord struct {
	ID           int64
	BusinessKey  string
	Amount       decimal.Decimal
	Date         time.Time
	Method       string
	Memo         string // free text from the source row, e.g. "CHQ 67"
	ObligationID int64  // 0 = unlinked
}

// ReconciliationLink records the Matching Engine's decision that a payment
// and a transaction or obligation refer to the same real-world event. Links
// are derived artifacts: regenerable from scratch, deterministic given the
// same inputs, never the sole copy of a decision.
type ReconciliationLink struct {
	ID            int64
	PaymentID     int64
	TransactionID int64 // 0 = none
	ObligationID  int64 // 0 = none
	Confidence    float64
	Method        MatchMethod
	Rationale     string
}

// DuplicateVerdict classifies a duplicate candidate group.
type DuplicateVerdict string

const (
	VerdictDuplicate DuplicateVerdict = "duplicate"
	VerdictProtected DuplicateVerdict = "protected"
	VerdictAmbiguous DuplicateVerdict = "ambiguous"
)

// DuplicateGroup is a set of records sharing (date, amount, counterparty).
// KeepID is the earliest member; the rest are proposed for deletion only
// when the verdict is duplicate. Proposals are never auto-applied.
type DuplicateGroup struct {
	Key       string
	MemberIDs []int64
	KeepID    int64
	Verdict   DuplicateVerdict
	Reason    string
}

// ConflictRecord documents a disagreement between sources about the same
// fact, and which source won. The losing value is superseded, not deleted.
type ConflictRecord struct {
	EntityID string
	Field    string
	Values   map[Source]string
	Winner   Source
	Reason   string
}

// GroupKey builds the duplicate-grouping key for a transaction.
// Counterparty text is normalized so trivial formatting differences between
// imports collapse into the same group.
func GroupKey(date time.Time, amount decimal.Decimal, counterparty string) string {
	return date.Format("2006-01-02") + "|" + amount.StringFixed(2) + "|" + NormalizeText(counterparty)
}

// NormalizeText lowercases, trims and collapses internal whitespace. The
// adapter applies it once at ingest; matching and dedupe reuse the result.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// CentTolerance is the amount below which two monetary values are considered
// equal: rounding dust, not a real discrepancy.
var CentTolerance = decimal.NewFromFloat(0.01)

// WithinCent reports whether a and b differ by at most one cent.
func WithinCent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(CentTolerance)
}
