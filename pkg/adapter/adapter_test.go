package adapter

import (
	"errors"
	"testing"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"plain", "1234.56", "1234.56", false},
		{"currency symbol", "$1,234.56", "1234.56", false},
		{"thousands", "12,345", "12345.00", false},
		{"negative sign", "-740.50", "-740.50", false},
		{"accounting parens", "(740.50)", "-740.50", false},
		{"parens with symbol", "($1,000.00)", "-1000.00", false},
		{"whitespace", "  99.90 ", "99.90", false},
		{"rounds sub-cent", "10.005", "10.01", false},
		{"garbage", "twelve dollars", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, model.ErrUnrecognizedSchema) {
					t.Errorf("error should wrap ErrUnrecognizedSchema, got %v", err)
				}
				return
			}
			if got.StringFixed(2) != tt.expected {
				t.Errorf("ParseAmount(%q) = %s, expected %s", tt.input, got.StringFixed(2), tt.expected)
			}
		})
	}
}

func TestAdaptBankRow(t *testing.T) {
	res, err := Adapt(model.SourceBank, map[string]string{
		"date":        "2023-05-04",
		"amount":      "-740.50",
		"memo":        "Harbour  Fuel No. 2",
		"cheque_no":   "067",
		"external_id": "stmt-4411",
		"verified":    "1",
	})
	if err != nil {
		t.Fatalf("Adapt() failed: %v", err)
	}
	tx := res.Transaction
	if tx == nil {
		t.Fatal("expected a transaction")
	}
	if tx.Source != model.SourceBank {
		t.Errorf("Source = %q", tx.Source)
	}
	if tx.Amount.StringFixed(2) != "-740.50" {
		t.Errorf("Amount = %s", tx.Amount.StringFixed(2))
	}
	if tx.NormalizedMemo != "harbour fuel no. 2" {
		t.Errorf("NormalizedMemo = %q", tx.NormalizedMemo)
	}
	if !tx.Verified {
		t.Error("verified flag lost")
	}
	if tx.ContentHash == "" {
		t.Error("content hash missing")
	}
}

func TestAdaptBankRowDayFirstDate(t *testing.T) {
	res, err := Adapt(model.SourceBank, map[string]string{
		"date":   "04/05/2023",
		"amount": "100.00",
		"memo":   "deposit",
	})
	if err != nil {
		t.Fatalf("Adapt() failed: %v", err)
	}
	if got := res.Transaction.Date.Format("2006-01-02"); got != "2023-05-04" {
		t.Errorf("Date = %s, expected day-first parse to 2023-05-04", got)
	}
}

func TestAdaptPayrollNegatesAmount(t *testing.T) {
	res, err := Adapt(model.SourcePayroll, map[string]string{
		"pay_date":   "2023-06-30",
		"net_amount": "1850.00",
		"employee":   "J. Whitford",
	})
	if err != nil {
		t.Fatalf("Adapt() failed: %v", err)
	}
	if res.Transaction.Amount.StringFixed(2) != "-1850.00" {
		t.Errorf("Amount = %s, wages must be a debit", res.Transaction.Amount.StringFixed(2))
	}
}

func TestAdaptReceiptPayment(t *testing.T) {
	res, err := Adapt(model.SourceReceipt, map[string]string{
		"date":      "2023-05-04",
		"amount":    "740.50",
		"cheque_no": "067",
		"method":    "Cheque",
		"memo":      "CHQ 67 fuel",
	})
	if err != nil {
		t.Fatalf("Adapt() failed: %v", err)
	}
	p := res.Payment
	if p == nil {
		t.Fatal("expected a payment")
	}
	if p.BusinessKey != "067" {
		t.Errorf("BusinessKey = %q", p.BusinessKey)
	}
	if p.Method != "cheque" {
		t.Errorf("Method = %q, expected lowercased", p.Method)
	}
}

func TestAdaptObligationRow(t *testing.T) {
	res, err := Adapt(model.SourceLegacy, map[string]string{
		"reservation_no": "R-2023-114",
		"charter_date":   "2023-05-20",
		"total_due":      "2,500.00",
		"cancelled":      "no",
	})
	if err != nil {
		t.Fatalf("Adapt() failed: %v", err)
	}
	o := res.Obligation
	if o == nil {
		t.Fatal("expected an obligation")
	}
	if o.Source != model.SourceLegacy {
		t.Errorf("Source = %q, expected legacy", o.Source)
	}
	if o.TotalDue.StringFixed(2) != "2500.00" {
		t.Errorf("TotalDue = %s", o.TotalDue.StringFixed(2))
	}
	if !o.Balance.Equal(o.TotalDue) {
		t.Errorf("initial balance %s should equal total due %s", o.Balance, o.TotalDue)
	}
	if o.Cancelled {
		t.Error("cancelled misparsed")
	}
}

func TestAdaptUnrecognizedRows(t *testing.T) {
	tests := []struct {
		name   string
		source model.Source
		row    map[string]string
	}{
		{"bank missing amount", model.SourceBank, map[string]string{"date": "2023-05-04", "memo": "x"}},
		{"bank bad date", model.SourceBank, map[string]string{"date": "May 4th", "amount": "1.00", "memo": "x"}},
		{"payroll missing employee", model.SourcePayroll, map[string]string{"pay_date": "2023-06-30", "net_amount": "100"}},
		{"obligation missing key", model.SourceLegacy, map[string]string{"charter_date": "2023-05-20", "total_due": "100"}},
		{"unknown source", model.Source("fax"), map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Adapt(tt.source, tt.row)
			if !errors.Is(err, model.ErrUnrecognizedSchema) {
				t.Errorf("expected ErrUnrecognizedSchema, got %v", err)
			}
		})
	}
}
