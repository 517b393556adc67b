package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/siloworks/siloguard/pkg/siloguard/internalerr"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
)

const site = "example.com"

func TestCreateAssignment_DuplicateActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	_, err := s.CreateAssignment(ctx, store.Assignment{Site: site, Keyword: "roof repair", PageID: 1})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err = s.CreateAssignment(ctx, store.Assignment{Site: site, Keyword: "roof repair", PageID: 2})
	if !errors.Is(err, internalerr.ErrDuplicate) {
		t.Errorf("second active claim should be ErrDuplicate, got %v", err)
	}

	// Same keyword on a different site is fine.
	if _, err := s.CreateAssignment(ctx, store.Assignment{Site: "other.com", Keyword: "roof repair", PageID: 3}); err != nil {
		t.Errorf("same keyword on other site: %v", err)
	}
}

func TestReassignKeyword(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	if _, err := s.CreateAssignment(ctx, store.Assignment{Site: site, Keyword: "roof repair", PageID: 1, PageURL: "https://example.com/old/"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	next, err := s.ReassignKeyword(ctx, site, "roof repair", 2, "https://example.com/new/", "manual reassign")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if next.PageID != 2 || next.Status != store.AssignmentActive {
		t.Errorf("new assignment = %+v", next)
	}

	active, ok, err := s.GetAssignment(ctx, site, "roof repair")
	if err != nil || !ok {
		t.Fatalf("get after reassign: ok=%v err=%v", ok, err)
	}
	if active.PageID != 2 {
		t.Errorf("active owner = page %d, want 2", active.PageID)
	}

	// Old owner no longer holds anything.
	if _, ok, _ := s.GetAssignmentByPage(ctx, site, 1); ok {
		t.Error("page 1 should hold no active assignment")
	}

	events, err := s.ListAssignmentEvents(ctx, site, "roof repair")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 history event, got %d", len(events))
	}
	if events[0].FromPageID != 1 || events[0].ToPageID != 2 {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].ID == "" {
		t.Error("event should carry an id")
	}
}

func TestReassignKeyword_NoActiveOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	next, err := s.ReassignKeyword(ctx, site, "roof repair", 5, "https://example.com/page/", "claim")
	if err != nil {
		t.Fatalf("reassign without owner: %v", err)
	}
	if next.PageID != 5 {
		t.Errorf("owner = %d, want 5", next.PageID)
	}

	events, _ := s.ListAssignmentEvents(ctx, site, "roof repair")
	if len(events) != 1 || events[0].FromPageID != 0 {
		t.Errorf("events = %+v", events)
	}
}

func TestResolveConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	err := s.SaveConflicts(ctx, []store.Conflict{{
		ID:       "c1",
		Site:     site,
		Type:     "TAXONOMY_CLASH",
		Severity: "HIGH",
		Priority: 45,
		Pages: []store.ConflictPage{
			{PageID: 1, PageURL: "https://example.com/shop/jazz-shoes/"},
			{PageID: 2, PageURL: "https://example.com/product-category/jazz-shoes/"},
		},
	}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	resolved, err := s.ResolveConflict(ctx, store.Resolution{ConflictID: "c1", Action: "redirect", ResolvedBy: "admin"}, store.ConflictResolved)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != store.ConflictResolved || resolved.ResolvedAt == nil {
		t.Errorf("conflict = %+v", resolved)
	}

	_, err = s.ResolveConflict(ctx, store.Resolution{ConflictID: "c1", Action: "dismiss"}, store.ConflictDismissed)
	if internalerr.CodeOf(err) != internalerr.CodeAlreadyResolved {
		t.Errorf("second resolve: code = %s, want ALREADY_RESOLVED", internalerr.CodeOf(err))
	}

	_, err = s.ResolveConflict(ctx, store.Resolution{ConflictID: "missing"}, store.ConflictResolved)
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("missing conflict: %v", err)
	}
}

func seedResolvableConflict(t *testing.T, ctx context.Context, s store.Store) {
	t.Helper()
	if _, err := s.CreateAssignment(ctx, store.Assignment{
		Site: site, Keyword: "jazz shoes", PageID: 1, PageURL: "https://example.com/blog/jazz-shoes/",
	}); err != nil {
		t.Fatalf("assignment: %v", err)
	}
	if err := s.SaveConflicts(ctx, []store.Conflict{{
		ID:       "c1",
		Site:     site,
		Type:     "GSC_CONFIRMED",
		Severity: "HIGH",
		Query:    "jazz shoes",
		Priority: 85,
	}}); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func applyRedirectAndReassign() store.ResolutionApply {
	return store.ResolutionApply{
		Resolution: store.Resolution{ConflictID: "c1", Action: "redirect", ResolvedBy: "admin"},
		NewStatus:  store.ConflictResolved,
		Redirect: &store.Redirect{
			Site:       site,
			SourceURL:  "https://example.com/blog/jazz-shoes/",
			TargetURL:  "https://example.com/product-category/jazz-shoes/",
			Status:     store.RedirectActive,
			ConflictID: "c1",
		},
		Reassign: &store.KeywordReassign{
			Site:      site,
			Keyword:   "jazz shoes",
			ToPageID:  2,
			ToPageURL: "https://example.com/product-category/jazz-shoes/",
			Reason:    "conflict c1 resolved via redirect",
		},
	}
}

func TestApplyResolution(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	seedResolvableConflict(t, ctx, s)

	applied, err := s.ApplyResolution(ctx, applyRedirectAndReassign())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.Conflict.Status != store.ConflictResolved || applied.Conflict.ResolvedAt == nil {
		t.Errorf("conflict = %+v", applied.Conflict)
	}
	if applied.Redirect == nil || applied.Redirect.Status != store.RedirectActive {
		t.Errorf("redirect = %+v", applied.Redirect)
	}
	if applied.Assignment == nil || applied.Assignment.PageID != 2 {
		t.Errorf("assignment = %+v", applied.Assignment)
	}

	owner, ok, err := s.GetAssignment(ctx, site, "jazz shoes")
	if err != nil || !ok {
		t.Fatalf("owner: ok=%v err=%v", ok, err)
	}
	if owner.PageID != 2 {
		t.Errorf("owner = page %d, want 2", owner.PageID)
	}
	events, _ := s.ListAssignmentEvents(ctx, site, "jazz shoes")
	if len(events) != 1 {
		t.Errorf("events = %+v", events)
	}
}

// A conflict closed between the caller's read and the apply must reject the
// whole batch: no redirect, no reassignment, no second resolution record.
func TestApplyResolution_ClosedConflictWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	seedResolvableConflict(t, ctx, s)

	if _, err := s.ResolveConflict(ctx, store.Resolution{ConflictID: "c1", Action: "dismiss"}, store.ConflictDismissed); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	_, err := s.ApplyResolution(ctx, applyRedirectAndReassign())
	if internalerr.CodeOf(err) != internalerr.CodeAlreadyResolved {
		t.Fatalf("code = %s, want ALREADY_RESOLVED", internalerr.CodeOf(err))
	}

	if _, ok, _ := s.GetRedirectBySource(ctx, site, "https://example.com/blog/jazz-shoes/"); ok {
		t.Error("rejected apply left a redirect behind")
	}
	owner, _, _ := s.GetAssignment(ctx, site, "jazz shoes")
	if owner.PageID != 1 {
		t.Errorf("owner = page %d, want unchanged", owner.PageID)
	}
	events, _ := s.ListAssignmentEvents(ctx, site, "jazz shoes")
	if len(events) != 0 {
		t.Errorf("events = %+v", events)
	}
}

// A redirect failure inside the batch keeps the conflict open and the
// registry untouched.
func TestApplyResolution_RedirectFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	seedResolvableConflict(t, ctx, s)

	// Reverse redirect turns the apply's redirect into a 2-cycle.
	if _, _, err := s.CreateRedirect(ctx, store.Redirect{
		Site:      site,
		SourceURL: "https://example.com/product-category/jazz-shoes/",
		TargetURL: "https://example.com/blog/jazz-shoes/",
		Status:    store.RedirectActive,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := s.ApplyResolution(ctx, applyRedirectAndReassign())
	if internalerr.CodeOf(err) != internalerr.CodeRedirectLoop {
		t.Fatalf("code = %s, want REDIRECT_LOOP", internalerr.CodeOf(err))
	}

	c, _, err := s.GetConflict(ctx, "c1")
	if err != nil {
		t.Fatalf("get conflict: %v", err)
	}
	if c.Status != store.ConflictOpen {
		t.Errorf("conflict status = %s, want still open", c.Status)
	}
	owner, _, _ := s.GetAssignment(ctx, site, "jazz shoes")
	if owner.PageID != 1 {
		t.Errorf("owner = page %d, want unchanged", owner.PageID)
	}
}

func TestListConflicts_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	err := s.SaveConflicts(ctx, []store.Conflict{
		{ID: "low", Site: site, Type: "NEAR_DUPLICATE_CONTENT", Severity: "LOW", Priority: 30},
		{ID: "high", Site: site, Type: "GSC_CONFIRMED", Severity: "SEVERE", Priority: 100},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	open, err := s.ListConflicts(ctx, site, store.ConflictOpen)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 || open[0].ID != "high" {
		t.Errorf("order = %+v", open)
	}
}

func TestCreateRedirect_LoopAndChain(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	a := "https://example.com/a/"
	b := "https://example.com/b/"
	c := "https://example.com/c/"

	if _, chain, err := s.CreateRedirect(ctx, store.Redirect{Site: site, SourceURL: a, TargetURL: b}); err != nil || chain != "" {
		t.Fatalf("a->b: chain=%q err=%v", chain, err)
	}

	// b->a closes a 2-cycle.
	_, _, err := s.CreateRedirect(ctx, store.Redirect{Site: site, SourceURL: b, TargetURL: a})
	if internalerr.CodeOf(err) != internalerr.CodeRedirectLoop {
		t.Errorf("loop: code = %s, want REDIRECT_LOOP", internalerr.CodeOf(err))
	}

	// Self-redirect is also a loop.
	_, _, err = s.CreateRedirect(ctx, store.Redirect{Site: site, SourceURL: c, TargetURL: c})
	if internalerr.CodeOf(err) != internalerr.CodeRedirectLoop {
		t.Errorf("self loop: code = %s", internalerr.CodeOf(err))
	}

	// c->a chains through a->b; the final destination comes back as a hint
	// and is recorded on the row.
	created, chain, err := s.CreateRedirect(ctx, store.Redirect{Site: site, SourceURL: c, TargetURL: a})
	if err != nil {
		t.Fatalf("c->a: %v", err)
	}
	if chain != b {
		t.Errorf("chain target = %q, want %q", chain, b)
	}
	if created.ChainDepth != 1 || created.FinalDestination != b {
		t.Errorf("chain metadata = depth %d final %q, want 1 and %q", created.ChainDepth, created.FinalDestination, b)
	}

	// Duplicate source.
	_, _, err = s.CreateRedirect(ctx, store.Redirect{Site: site, SourceURL: a, TargetURL: c})
	if !errors.Is(err, internalerr.ErrDuplicate) {
		t.Errorf("duplicate source: %v", err)
	}
}

func TestCreateRedirect_Defaults(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	r, _, err := s.CreateRedirect(ctx, store.Redirect{Site: site, SourceURL: "https://example.com/x/", TargetURL: "https://example.com/y/"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.StatusCode != 301 || r.Status != store.RedirectPendingReview || r.ID == "" {
		t.Errorf("defaults not applied: %+v", r)
	}
	if r.IsVerified || r.ChainDepth != 0 || r.FinalDestination != "https://example.com/y/" {
		t.Errorf("fresh redirect = %+v", r)
	}
}

func TestUpdateRedirectVerification_KeepsLifecycleStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	r, _, err := s.CreateRedirect(ctx, store.Redirect{
		Site: site, SourceURL: "https://example.com/x/", TargetURL: "https://example.com/y/",
		Status: store.RedirectActive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = s.UpdateRedirectVerification(ctx, r.ID, store.RedirectVerification{
		Status:           store.VerificationBroken,
		ChainDepth:       2,
		FinalDestination: "https://example.com/z/",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	got, ok, err := s.GetRedirectBySource(ctx, site, "https://example.com/x/")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != store.RedirectActive {
		t.Errorf("lifecycle status = %s, want still active", got.Status)
	}
	if !got.IsVerified || got.VerificationStatus != store.VerificationBroken {
		t.Errorf("verification = verified %v status %s", got.IsVerified, got.VerificationStatus)
	}
	if got.ChainDepth != 2 || got.FinalDestination != "https://example.com/z/" {
		t.Errorf("chain metadata = %+v", got)
	}
	if got.LastCheckedAt == nil {
		t.Error("check timestamp missing")
	}
}

func TestRemoveRedirect(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	r, _, err := s.CreateRedirect(ctx, store.Redirect{
		Site: site, SourceURL: "https://example.com/x/", TargetURL: "https://example.com/y/",
		Status: store.RedirectActive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := s.RemoveRedirect(ctx, r.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Status != store.RedirectRemoved {
		t.Errorf("status = %s, want removed", removed.Status)
	}

	active, err := s.ListRedirects(ctx, site, store.RedirectActive)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active redirects = %+v", active)
	}

	if _, err := s.RemoveRedirect(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("missing redirect: %v", err)
	}
}

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	item, err := s.EnqueueItem(ctx, store.QueueItem{Site: site, ConflictID: "c1", Action: "REDIRECT_TO_CANONICAL"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item.Status != store.QueuePending {
		t.Errorf("status = %s, want pending", item.Status)
	}

	if _, err := s.UpdateQueueStatus(ctx, item.ID, store.QueueInProgress); err != nil {
		t.Fatalf("in_progress: %v", err)
	}

	done, err := s.CompleteQueueItem(ctx, item.ID, []string{"created redirect", "marked conflict resolved"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != store.QueueCompleted || done.CompletedAt == nil || len(done.StepLog) != 2 {
		t.Errorf("completed item = %+v", done)
	}

	_, err = s.CompleteQueueItem(ctx, item.ID, nil)
	if internalerr.CodeOf(err) != internalerr.CodeAlreadyCompleted {
		t.Errorf("second complete: code = %s, want ALREADY_COMPLETED", internalerr.CodeOf(err))
	}
}

func TestSafePairs_Ordered(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	if err := s.AddSafePair(ctx, store.SafePair{Site: site, PageA: 9, PageB: 3, Reason: "intentional"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Reversed order is the same pair.
	if err := s.AddSafePair(ctx, store.SafePair{Site: site, PageA: 3, PageB: 9, Reason: "updated"}); err != nil {
		t.Fatalf("add reversed: %v", err)
	}

	pairs, err := s.ListSafePairs(ctx, site)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].PageA != 3 || pairs[0].PageB != 9 || pairs[0].Reason != "updated" {
		t.Errorf("pair = %+v", pairs[0])
	}
}

func TestValidations_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	for _, result := range []string{"PASS", "WARN", "BLOCK"} {
		if err := s.AppendValidation(ctx, store.ValidationRecord{Site: site, Slug: "new-page", Result: result}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records, err := s.ListValidations(ctx, site, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Result != "BLOCK" || records[1].Result != "WARN" {
		t.Errorf("order = %s, %s", records[0].Result, records[1].Result)
	}
}
