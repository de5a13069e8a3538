// Package precedence settles disagreements between sources about the same
// fact. The authority ranking is declared per fact type in the rules file;
// the highest-ranked source that actually reported a value wins, and the
// losing values are recorded, never deleted.
package precedence

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/config"
	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Resolver applies the configured authority order.
type Resolver struct {
	rules *config.Rules
}

// New creates a Resolver over the rules file's authority_order table.
func New(rules *config.Rules) *Resolver {
	return &Resolver{rules: rules}
}

// Resolve picks the winning value for a monetary fact reported by several
// sources. Silence from a higher-authority source is not confirmation of
// zero: absent sources are skipped and the next rank is consulted. A
// ConflictRecord is returned whenever present sources disagree beyond a
// cent, even though the disagreement is auto-resolved.
func (r *Resolver) Resolve(entityID, factType string, values map[model.Source]decimal.Decimal) (decimal.Decimal, *model.ConflictRecord, error) {
	order := r.rules.Authority(factType)
	if len(order) == 0 {
		return decimal.Zero, nil, fmt.Errorf("no authority order configured for fact type %q", factType)
	}
	if len(values) == 0 {
		return decimal.Zero, nil, fmt.Errorf("no source values supplied for %s.%s", entityID, factType)
	}

	var (
		winner      model.Source
		winnerValue decimal.Decimal
		found       bool
	)
	for _, src := range order {
		if v, ok := values[src]; ok {
			winner = src
			winnerValue = v
			found = true
			break
		}
	}
	if !found {
		return decimal.Zero, nil, fmt.Errorf("no configured source present for %s.%s", entityID, factType)
	}

	if !disagrees(values, winnerValue) {
		return winnerValue, nil, nil
	}

	conflict := &model.ConflictRecord{
		EntityID: entityID,
		Field:    factType,
		Values:   make(map[model.Source]string, len(values)),
		Winner:   winner,
		Reason:   fmt.Sprintf("%s outranks other sources for %s", winner, factType),
	}
	for src, v := range values {
		conflict.Values[src] = v.StringFixed(2)
	}

	return winnerValue, conflict, nil
}

// disagrees reports whether any present source differs from the winning
// value beyond cent-level tolerance.
func disagrees(values map[model.Source]decimal.Decimal, winner decimal.Decimal) bool {
	for _, v := range values {
		if !model.WithinCent(v, winner) {
			return true
		}
	}
	return false
}
