package db

import (
	"context"
	"testing"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

func openTestDB(t *testing.T) *Connection {
	t.Helper()
	conn, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSaveLinkKeepsStrongerDecision(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore(openTestDB(t))

	saved, err := store.SaveLink(ctx, &model.ReconciliationLink{
		PaymentID: 1, ObligationID: 10, Confidence: 0.95,
		Method: model.MatchAmountDate, Rationale: "amount equal, 1 day apart",
	})
	if err != nil || !saved {
		t.Fatalf("first save = %v, %v", saved, err)
	}

	// A weaker link never displaces a stronger stored one.
	saved, err = store.SaveLink(ctx, &model.ReconciliationLink{
		PaymentID: 1, ObligationID: 11, Confidence: 0.70,
		Method: model.MatchFuzzy, Rationale: "similar text",
	})
	if err != nil {
		t.Fatal(err)
	}
	if saved {
		t.Error("weaker link should not overwrite")
	}

	links, err := store.ListLinks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || links[0].ObligationID != 10 {
		t.Fatalf("links = %+v", links)
	}

	// A stronger link supersedes.
	saved, err = store.SaveLink(ctx, &model.ReconciliationLink{
		PaymentID: 1, ObligationID: 12, Confidence: 1.0,
		Method: model.MatchExact, Rationale: "business key match",
	})
	if err != nil || !saved {
		t.Fatalf("stronger save = %v, %v", saved, err)
	}
	links, err = store.ListLinks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || links[0].ObligationID != 12 || links[0].Method != model.MatchExact {
		t.Fatalf("links = %+v", links)
	}
}

func TestDuplicateGroupRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore(openTestDB(t))

	err := store.SaveDuplicateGroup(ctx, &model.DuplicateGroup{
		Key:       "2023-04-01|-120.00|island provisioning",
		MemberIDs: []int64{1, 3, 7},
		KeepID:    1,
		Verdict:   model.VerdictDuplicate,
		Reason:    "keep earliest id 1, propose 2 deletion(s)",
	})
	if err != nil {
		t.Fatalf("SaveDuplicateGroup() failed: %v", err)
	}

	groups, err := store.ListDuplicateGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d", len(groups))
	}
	g := groups[0]
	if len(g.MemberIDs) != 3 || g.MemberIDs[2] != 7 {
		t.Errorf("MemberIDs = %v", g.MemberIDs)
	}
	if g.Verdict != model.VerdictDuplicate || g.KeepID != 1 {
		t.Errorf("group = %+v", g)
	}
}

func TestClearDerivedIsSelective(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore(openTestDB(t))

	if err := store.SaveConflict(ctx, &model.ConflictRecord{
		EntityID: "R-2023-114", Field: "total_due",
		Values: map[model.Source]string{model.SourcePrimary: "2500.00", model.SourceLegacy: "2300.00"},
		Winner: model.SourcePrimary, Reason: "primary outranks other sources for total_due",
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveDuplicateGroup(ctx, &model.DuplicateGroup{
		Key: "k", MemberIDs: []int64{1, 2}, KeepID: 1, Verdict: model.VerdictDuplicate,
	}); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearDerived(ctx, "duplicate_groups"); err != nil {
		t.Fatal(err)
	}

	groups, err := store.ListDuplicateGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Errorf("duplicate groups survived clear: %+v", groups)
	}
	n, err := store.CountConflicts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("conflicts = %d, expected untouched 1", n)
	}

	if err := store.ClearDerived(ctx, "run_audit"); err == nil {
		t.Error("non-derived table must be refused")
	}
}
