// Package balancer recomputes obligation paid amounts and balances from
// linked payments, applies residual snapping and optional overpayment
// clamping, and flags linkage errors it cannot resolve on its own.
package balancer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Options control one recompute pass.
type Options struct {
	// ClampOverpay zeroes negative balances (credits). Off by default:
	// credits are preserved and reported. When on, the clamped amount is
	// exported as a credit-owed record so money is never silently absorbed.
	ClampOverpay bool

	// PredateGraceDays is how many days a payment may precede its
	// obligation's date before it is flagged. Deposits legitimately arrive
	// ahead of a charter; a payment months earlier is a linkage error.
	PredateGraceDays int
}

// FlagKind names an integrity violation class.
type FlagKind string

const (
	FlagCancelledButPaid FlagKind = "cancelled_but_paid"
	FlagPaymentPredates  FlagKind = "payment_predates_obligation"
	FlagKeyLinkMismatch  FlagKind = "business_key_link_mismatch"
)

// IntegrityFlag is a detected linkage or state error. Flags are reported,
// never auto-fixed: the correct resolution needs external knowledge, such
// as whether the customer rebooked after cancelling.
type IntegrityFlag struct {
	Kind         FlagKind
	ObligationID int64
	PaymentID    int64
	Detail       string
}

// Result is the outcome of recomputing one obligation.
type Result struct {
	ObligationID int64
	PaidAmount   decimal.Decimal
	Balance      decimal.Decimal
	CreditOwed   decimal.Decimal // nonzero only when clamping fired
	Flags        []IntegrityFlag
	Changed      bool // true when the stored totals differ from the recomputed ones
}

// Recompute derives an obligation's paid amount and balance from the
// payments attached to it by either link path, internal ID or business
// key. Historical drift left both live.
//
// Residual snapping: a balance within one cent of zero is set to exactly
// 0.00, eliminating rounding dust without hiding real discrepancies.
func Recompute(o model.Obligation, payments []model.PaymentRecord, opts Options) Result {
	res := Result{ObligationID: o.ID, CreditOwed: decimal.Zero}

	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
		res.Flags = append(res.Flags, paymentFlags(o, p, opts)...)
	}
	paid = paid.Round(2)

	balance := o.TotalDue.Sub(paid).Round(2)
	if model.WithinCent(balance, decimal.Zero) {
		balance = decimal.Zero.Round(2)
	}

	if balance.IsNegative() && opts.ClampOverpay {
		res.CreditOwed = balance.Neg()
		balance = decimal.Zero.Round(2)
	}

	if o.Cancelled && paid.IsPositive() {
		res.Flags = append(res.Flags, IntegrityFlag{
			Kind:         FlagCancelledButPaid,
			ObligationID: o.ID,
			Detail: fmt.Sprintf("obligation %s cancelled but %s paid; investigate, do not assume zero",
				o.BusinessKey, paid.StringFixed(2)),
		})
	}

	res.PaidAmount = paid
	res.Balance = balance
	res.Changed = !paid.Equal(o.PaidAmount) || !balance.Equal(o.Balance)
	return res
}

// paymentFlags checks one payment's linkage against its obligation.
func paymentFlags(o model.Obligation, p model.PaymentRecord, opts Options) []IntegrityFlag {
	var flags []IntegrityFlag

	grace := opts.PredateGraceDays
	if grace < 0 {
		grace = 0
	}
	if p.Date.AddDate(0, 0, grace).Before(o.Date) {
		flags = append(flags, IntegrityFlag{
			Kind:         FlagPaymentPredates,
			ObligationID: o.ID,
			PaymentID:    p.ID,
			Detail: fmt.Sprintf("payment dated %s predates obligation dated %s beyond %d day grace",
				p.Date.Format("2006-01-02"), o.Date.Format("2006-01-02"), grace),
		})
	}

	if p.BusinessKey != "" && p.ObligationID == o.ID && p.BusinessKey != o.BusinessKey {
		flags = append(flags, IntegrityFlag{
			Kind:         FlagKeyLinkMismatch,
			ObligationID: o.ID,
			PaymentID:    p.ID,
			Detail: fmt.Sprintf("payment declares key %q but is linked to obligation with key %q",
				p.BusinessKey, o.BusinessKey),
		})
	}

	return flags
}

// CheckInvariant verifies the balance invariant after a write:
// balance == round(total_due - paid_amount, 2) within one cent. The change
// applier re-runs this before commit and rolls back on failure. Under
// clampOverpay a zero balance with a negative expected value is legal,
// because the credit was exported instead of stored.
func CheckInvariant(o model.Obligation, clampOverpay bool) error {
	expected := o.TotalDue.Sub(o.PaidAmount).Round(2)
	if model.WithinCent(o.Balance, expected) {
		return nil
	}
	if clampOverpay && o.Balance.IsZero() && expected.IsNegative() {
		return nil
	}
	return fmt.Errorf("%w: obligation %d balance %s, expected %s",
		model.ErrIntegrityViolation, o.ID, o.Balance.StringFixed(2), expected.StringFixed(2))
}
