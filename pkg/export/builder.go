package export

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/config"
	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Entry is one ledger entry: a date, a narration and balancing postings.
type Entry struct {
	Date      string // YYYY-MM-DD
	Narration string
	Payee     string
	Tags      []string
	Postings  []Posting
}

// Posting is one leg of an entry. Amounts stay fixed-point decimals all the
// way to the rendered text.
type Posting struct {
	Account  string
	Amount   decimal.Decimal
	Currency string
	Comment  string
}

// Builder turns canonical records into ledger entries using the account
// mapping and the rules file's category table.
type Builder struct {
	mapper *Mapper
	rules  *config.Rules
}

// NewBuilder creates a Builder. A nil rules set disables category lookup;
// every counter posting then uses the sign fallback.
func NewBuilder(mapper *Mapper, rules *config.Rules) *Builder {
	return &Builder{mapper: mapper, rules: rules}
}

// FromTransaction builds the double-entry form of one canonical transaction:
// the source account takes the signed movement and the counter account
// balances it.
func (b *Builder) FromTransaction(t model.CanonicalTransaction) Entry {
	currency := b.mapper.Currency()

	sourceAccount := b.mapper.SourceAccount(t.Source)
	if sourceAccount == "" {
		sourceAccount = "Assets:Unmapped:" + sanitizeAccount(string(t.Source))
	}

	category := ""
	if b.rules != nil {
		category, _ = b.rules.IsRecurring(counterpartyText(t))
	}
	counterAccount := b.mapper.CounterAccount(category, t.Amount.IsPositive())

	var tags []string
	if t.ExternalID != "" {
		tags = append(tags, t.ExternalID)
	}

	return Entry{
		Date:      t.Date.Format("2006-01-02"),
		Narration: t.Memo,
		Payee:     t.CounterpartyHint,
		Tags:      tags,
		Postings: []Posting{
			{Account: sourceAccount, Amount: t.Amount, Currency: currency},
			{Account: counterAccount, Amount: t.Amount.Neg(), Currency: currency},
		},
	}
}

// Format renders an entry in beancount syntax.
func Format(e Entry) string {
	var sb strings.Builder

	sb.WriteString(e.Date)
	sb.WriteString(" *")
	if e.Payee != "" {
		sb.WriteString(fmt.Sprintf(" %q", e.Payee))
	}
	sb.WriteString(fmt.Sprintf(" %q", e.Narration))
	for _, tag := range e.Tags {
		sb.WriteString(" #")
		sb.WriteString(sanitizeTag(tag))
	}
	sb.WriteString("\n")

	for _, p := range e.Postings {
		sb.WriteString("  ")
		sb.WriteString(p.Account)

		pad := 60 - len(p.Account)
		if pad < 1 {
			pad = 1
		}
		sb.WriteString(strings.Repeat(" ", pad))

		sb.WriteString(p.Amount.StringFixed(2))
		sb.WriteString(" ")
		sb.WriteString(p.Currency)
		if p.Comment != "" {
			sb.WriteString(" ; ")
			sb.WriteString(p.Comment)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func sanitizeAccount(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "")
	if name == "" {
		return "Unknown"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func sanitizeTag(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, tag)
}

func counterpartyText(t model.CanonicalTransaction) string {
	if t.CounterpartyHint != "" {
		return t.CounterpartyHint
	}
	return t.NormalizedMemo
}
