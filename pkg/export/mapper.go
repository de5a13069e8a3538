// Package export renders the reconciled store as plain-text ledger files in
// beancount syntax, one file per month. Exported files are derived
// artifacts: regenerable from the store, never the sole copy of a decision.
package export

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// CategoryAccount maps a rules-file category to a ledger account.
type CategoryAccount struct {
	Category string `yaml:"category"`
	Account  string `yaml:"account"`
}

// AccountMappingConfig is the YAML account mapping table. Account names live
// in configuration, not code, so the chart of accounts can change without a
// rebuild.
type AccountMappingConfig struct {
	Currency         string                  `yaml:"currency"`
	SourceAccounts   map[model.Source]string `yaml:"source_accounts"`
	CategoryAccounts []CategoryAccount       `yaml:"category_accounts"`
	Fallbacks        struct {
		Debit  string `yaml:"debit"`
		Credit string `yaml:"credit"`
	} `yaml:"fallbacks"`
}

// Mapper resolves ledger accounts for canonical records.
type Mapper struct {
	config     AccountMappingConfig
	byCategory map[string]string
}

// NewMapper loads and validates an account mapping file.
func NewMapper(configPath string) (*Mapper, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read account mapping: %w", err)
	}

	var config AccountMappingConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Currency == "" {
		config.Currency = "AUD"
	}
	if config.Fallbacks.Debit == "" {
		config.Fallbacks.Debit = "Expenses:Uncategorized"
	}
	if config.Fallbacks.Credit == "" {
		config.Fallbacks.Credit = "Income:Uncategorized"
	}

	m := &Mapper{
		config:     config,
		byCategory: make(map[string]string, len(config.CategoryAccounts)),
	}
	for _, c := range config.CategoryAccounts {
		m.byCategory[c.Category] = c.Account
	}

	return m, nil
}

// Currency returns the configured ledger currency.
func (m *Mapper) Currency() string {
	return m.config.Currency
}

// SourceAccount returns the asset or expense account a source's movements
// post against, or empty if the source is unmapped.
func (m *Mapper) SourceAccount(source model.Source) string {
	return m.config.SourceAccounts[source]
}

// CategoryAccount returns the account for a rules-file category, or empty.
func (m *Mapper) CategoryAccount(category string) string {
	return m.byCategory[category]
}

// CounterAccount picks the balancing account for a movement: the category
// account when one is mapped, otherwise the explicit fallback by sign.
// Unmapped movements always land somewhere visible.
func (m *Mapper) CounterAccount(category string, credit bool) string {
	if account := m.byCategory[category]; account != "" {
		return account
	}
	if credit {
		return m.config.Fallbacks.Credit
	}
	return m.config.Fallbacks.Debit
}
