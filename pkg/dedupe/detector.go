// Package dedupe groups transactions that share (date, amount, normalized
// counterparty) and classifies each group. It only ever proposes deletions:
// a human confirms every removal, and protected groups are never proposed
// at all.
package dedupe

import (
	"fmt"
	"sort"

	"github.com/blueharbor-marine/reconcile/pkg/config"
	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Detector finds duplicate candidate groups among canonical transactions.
type Detector struct {
	rules *config.Rules
}

// New creates a Detector using the recurring-pattern table from the rules
// file. An empty rules set disables pattern protection but not the
// verified/locked protection, which always applies.
func New(rules *config.Rules) *Detector {
	return &Detector{rules: rules}
}

// FindGroups groups the records and classifies every group of size > 1.
//
// A group is protected, and excluded from deletion proposals, when any
// member is verified or locked, or when the counterparty matches a known
// legitimate recurring pattern (numbered-location vendor series, documented
// NSF-reversal pairs). Within an unprotected group the earliest ID is kept
// and the rest are proposed for deletion.
func (d *Detector) FindGroups(records []model.CanonicalTransaction) []model.DuplicateGroup {
	byKey := make(map[string][]model.CanonicalTransaction)
	for _, r := range records {
		key := model.GroupKey(r.Date, r.Amount, counterparty(r))
		byKey[key] = append(byKey[key], r)
	}

	// Deterministic output order regardless of map iteration.
	keys := make([]string, 0, len(byKey))
	for k, members := range byKey {
		if len(members) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var groups []model.DuplicateGroup
	for _, key := range keys {
		members := byKey[key]
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

		ids := make([]int64, len(members))
		for i, m := range members {
			ids[i] = m.ID
		}

		group := model.DuplicateGroup{
			Key:       key,
			MemberIDs: ids,
			KeepID:    ids[0],
		}

		if reason, protected := d.protectionReason(members); protected {
			group.Verdict = model.VerdictProtected
			group.Reason = reason
		} else {
			group.Verdict = model.VerdictDuplicate
			group.Reason = fmt.Sprintf("keep earliest id %d, propose %d deletion(s)", ids[0], len(ids)-1)
		}

		groups = append(groups, group)
	}

	return groups
}

// protectionReason reports why a group must not be touched, if any member
// satisfies the protection predicate.
func (d *Detector) protectionReason(members []model.CanonicalTransaction) (string, bool) {
	for _, m := range members {
		if m.Protected() {
			return fmt.Sprintf("member %d is verified/locked", m.ID), true
		}
	}
	if d.rules != nil {
		for _, m := range members {
			if category, ok := d.rules.IsRecurring(counterparty(m)); ok {
				return fmt.Sprintf("matches recurring pattern category %q", category), true
			}
		}
	}
	return "", false
}

func counterparty(t model.CanonicalTransaction) string {
	if t.CounterpartyHint != "" {
		return t.CounterpartyHint
	}
	return t.NormalizedMemo
}
