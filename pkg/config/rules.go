package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// RecurringPattern marks a counterparty pattern as a known legitimate
// recurring charge (a numbered-location vendor series, a documented
// NSF-reversal pair). Groups matching one of these are never proposed
// for deletion. Matching rules live in configuration, not code, so they
// can be tested independently of the engine.
type RecurringPattern struct {
	Pattern          string  `yaml:"pattern"`
	Category         string  `yaml:"category"`
	ConfidenceWeight float64 `yaml:"confidence_weight"`

	re *regexp.Regexp
}

// DateTolerance is the stage-2 matching window for one record population.
// The window is required, explicit configuration: every population has a
// different typical lag and no default is baked into the engine.
type DateTolerance struct {
	Population    string `yaml:"population"`
	Days          int    `yaml:"days"`
	Justification string `yaml:"justification"`
}

// Rules is the data-driven half of the engine configuration: source
// authority rankings, recurring-charge patterns and date-tolerance windows.
type Rules struct {
	// AuthorityOrder ranks sources per fact type, highest authority first.
	AuthorityOrder map[string][]model.Source `yaml:"authority_order"`

	RecurringPatterns []RecurringPattern `yaml:"recurring_patterns"`
	DateTolerances    []DateTolerance    `yaml:"date_tolerances"`

	toleranceByPop map[string]DateTolerance
}

// LoadRules loads and validates the rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := rules.build(); err != nil {
		return nil, err
	}

	return &rules, nil
}

// build compiles patterns and indexes tolerances.
func (r *Rules) build() error {
	for i := range r.RecurringPatterns {
		p := &r.RecurringPatterns[i]
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			return fmt.Errorf("invalid recurring pattern %q: %w", p.Pattern, err)
		}
		p.re = re
	}

	r.toleranceByPop = make(map[string]DateTolerance, len(r.DateTolerances))
	for _, t := range r.DateTolerances {
		if t.Days <= 0 {
			return fmt.Errorf("date tolerance for population %q must be positive, got %d", t.Population, t.Days)
		}
		if t.Justification == "" {
			return fmt.Errorf("date tolerance for population %q requires a justification", t.Population)
		}
		r.toleranceByPop[t.Population] = t
	}

	return nil
}

// ToleranceDays returns the configured date window for a record population.
// There is no fallback constant: an unconfigured population is an error.
func (r *Rules) ToleranceDays(population string) (int, error) {
	t, ok := r.toleranceByPop[population]
	if !ok {
		return 0, fmt.Errorf("no date tolerance configured for population %q", population)
	}
	return t.Days, nil
}

// Authority returns the source ranking for a fact type, highest first.
// Returns nil if the fact type has no configured ranking.
func (r *Rules) Authority(factType string) []model.Source {
	return r.AuthorityOrder[factType]
}

// IsRecurring reports whether a normalized counterparty matches a known
// legitimate recurring pattern, and the matched category.
func (r *Rules) IsRecurring(counterparty string) (string, bool) {
	for i := range r.RecurringPatterns {
		p := &r.RecurringPatterns[i]
		if p.re != nil && p.re.MatchString(counterparty) {
			return p.Category, true
		}
	}
	return "", false
}
