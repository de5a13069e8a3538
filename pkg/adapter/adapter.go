// Package adapter normalizes heterogeneous source rows into canonical
// records. Adapt is a pure function of the row and its source tag: dates
// become ISO calendar dates, amounts become signed fixed-point decimals,
// memo text is normalized for matching while the original is retained.
package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/fingerprint"
	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Result holds the single canonical record produced from one source row.
// Exactly one field is non-nil.
type Result struct {
	Transaction *model.CanonicalTransaction
	Payment     *model.PaymentRecord
	Obligation  *model.Obligation
}

// Adapt maps one source-specific row to a canonical record, or fails with
// ErrUnrecognizedSchema. Rows that fail are skipped and counted by the
// caller, never fabricated.
func Adapt(source model.Source, row map[string]string) (*Result, error) {
	switch source {
	case model.SourceBank:
		t, err := bankTransaction(row)
		if err != nil {
			return nil, err
		}
		return &Result{Transaction: t}, nil
	case model.SourcePayroll:
		t, err := payrollTransaction(row)
		if err != nil {
			return nil, err
		}
		return &Result{Transaction: t}, nil
	case model.SourceReceipt:
		p, err := receiptPayment(row)
		if err != nil {
			return nil, err
		}
		return &Result{Payment: p}, nil
	case model.SourceLegacy, model.SourcePrimary:
		o, err := obligationRow(row)
		if err != nil {
			return nil, err
		}
		o.Source = source
		return &Result{Obligation: o}, nil
	}
	return nil, fmt.Errorf("%w: unknown source %q", model.ErrUnrecognizedSchema, source)
}

// bankTransaction maps a bank statement export row. Bank rows carry the
// verified/locked protection flags set during statement verification.
func bankTransaction(row map[string]string) (*model.CanonicalTransaction, error) {
	date, err := requireDate(row, "date")
	if err != nil {
		return nil, err
	}
	amount, err := requireAmount(row, "amount")
	if err != nil {
		return nil, err
	}
	memo, ok := field(row, "memo", "description")
	if !ok {
		return nil, fmt.Errorf("%w: bank row missing memo", model.ErrUnrecognizedSchema)
	}

	t := &model.CanonicalTransaction{
		Source:           model.SourceBank,
		ExternalID:       row["external_id"],
		Date:             date,
		Amount:           amount,
		Memo:             memo,
		NormalizedMemo:   model.NormalizeText(memo),
		CounterpartyHint: row["counterparty"],
		Verified:         flag(row["verified"]),
		Locked:           flag(row["locked"]),
	}
	if t.CounterpartyHint == "" {
		t.CounterpartyHint = t.NormalizedMemo
	}
	t.ContentHash = fingerprint.Fingerprint(keyOrID(row["cheque_no"], t.ExternalID), t.Date, t.NormalizedMemo, t.Amount)

	return t, nil
}

// payrollTransaction maps a payroll spreadsheet row into a debit movement.
func payrollTransaction(row map[string]string) (*model.CanonicalTransaction, error) {
	date, err := requireDate(row, "pay_date", "date")
	if err != nil {
		return nil, err
	}
	amount, err := requireAmount(row, "net_amount", "amount")
	if err != nil {
		return nil, err
	}
	employee, ok := field(row, "employee", "name")
	if !ok {
		return nil, fmt.Errorf("%w: payroll row missing employee", model.ErrUnrecognizedSchema)
	}

	// Payroll sheets record amounts unsigned; paying wages is a debit.
	if amount.IsPositive() {
		amount = amount.Neg()
	}

	memo := "payroll " + employee
	t := &model.CanonicalTransaction{
		Source:           model.SourcePayroll,
		Date:             date,
		Amount:           amount,
		Memo:             memo,
		NormalizedMemo:   model.NormalizeText(memo),
		CounterpartyHint: model.NormalizeText(employee),
	}
	t.ContentHash = fingerprint.Fingerprint(employee, t.Date, t.NormalizedMemo, t.Amount)

	return t, nil
}

// receiptPayment maps a scanned receipt row to a payment record. The
// business key is the cheque or receipt number when one was legible.
func receiptPayment(row map[string]string) (*model.PaymentRecord, error) {
	date, err := requireDate(row, "date")
	if err != nil {
		return nil, err
	}
	amount, err := requireAmount(row, "amount")
	if err != nil {
		return nil, err
	}

	key, _ := field(row, "cheque_no", "receipt_no", "business_key")
	memo, _ := field(row, "memo", "description")
	return &model.PaymentRecord{
		BusinessKey: strings.TrimSpace(key),
		Amount:      amount,
		Date:        date,
		Method:      strings.ToLower(strings.TrimSpace(row["method"])),
		Memo:        memo,
	}, nil
}

// obligationRow maps a reservation row from the legacy desktop export or
// the primary store.
func obligationRow(row map[string]string) (*model.Obligation, error) {
	key, ok := field(row, "reservation_no", "business_key")
	if !ok {
		return nil, fmt.Errorf("%w: obligation row missing reservation number", model.ErrUnrecognizedSchema)
	}
	date, err := requireDate(row, "charter_date", "date")
	if err != nil {
		return nil, err
	}
	due, err := requireAmount(row, "total_due")
	if err != nil {
		return nil, err
	}

	return &model.Obligation{
		BusinessKey: strings.TrimSpace(key),
		Date:        date,
		TotalDue:    due,
		Balance:     due,
		Cancelled:   flag(row["cancelled"]),
	}, nil
}

// dateLayouts are the calendar formats seen across the source extracts.
// The legacy desktop export writes day-first dates.
var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

func requireDate(row map[string]string, keys ...string) (time.Time, error) {
	raw, ok := field(row, keys...)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing date field %v", model.ErrUnrecognizedSchema, keys)
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", model.ErrUnrecognizedSchema, raw)
}

func requireAmount(row map[string]string, keys ...string) (decimal.Decimal, error) {
	raw, ok := field(row, keys...)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: missing amount field %v", model.ErrUnrecognizedSchema, keys)
	}
	return ParseAmount(raw)
}

// ParseAmount converts source amount text to a signed fixed-point decimal.
// Accepts currency symbols, thousands separators and accounting-style
// parentheses for negatives. Money never passes through float64.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: unparseable amount %q", model.ErrUnrecognizedSchema, raw)
	}
	if neg {
		d = d.Neg()
	}
	return d.Round(2), nil
}

// field returns the first present, non-empty key.
func field(row map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" {
			return v, true
		}
	}
	return "", false
}

func flag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func keyOrID(key, id string) string {
	if key != "" {
		return key
	}
	return id
}
