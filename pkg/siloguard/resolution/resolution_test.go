package resolution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/siloworks/siloguard/pkg/siloguard/internalerr"
	"github.com/siloworks/siloguard/pkg/siloguard/registry"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
	"github.com/siloworks/siloguard/pkg/siloguard/store/memstore"
)

const (
	site      = "example.com"
	loserURL  = "https://example.com/blog/jazz-shoes/"
	winnerURL = "https://example.com/product-category/jazz-shoes/"
)

func fixture(t *testing.T) (*Service, store.Store, *registry.Registry) {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	reg := registry.New(st)

	if _, err := reg.Assign(ctx, site, "jazz shoes", 1, loserURL, "bootstrap"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := st.SaveConflicts(ctx, []store.Conflict{{
		ID:       "c1",
		Site:     site,
		Type:     "GSC_CONFIRMED",
		Severity: "HIGH",
		Query:    "jazz shoes",
		Priority: 85,
		Pages: []store.ConflictPage{
			{PageID: 2, PageURL: winnerURL, Role: "winner", Clicks: 40},
			{PageID: 1, PageURL: loserURL, Role: "loser", Clicks: 5},
		},
	}}); err != nil {
		t.Fatalf("save conflicts: %v", err)
	}
	return New(st), st, reg
}

func TestResolve_RedirectAndReassign(t *testing.T) {
	ctx := context.Background()
	svc, _, reg := fixture(t)

	outcome, err := svc.Resolve(ctx, Request{
		ConflictID:      "c1",
		Action:          ActionRedirect,
		ReassignKeyword: true,
		ResolvedBy:      "reviewer",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if outcome.Redirect == nil {
		t.Fatal("expected a redirect")
	}
	if outcome.Redirect.SourceURL != loserURL || outcome.Redirect.TargetURL != winnerURL {
		t.Errorf("redirect = %s -> %s", outcome.Redirect.SourceURL, outcome.Redirect.TargetURL)
	}
	if outcome.Redirect.Status != store.RedirectActive {
		t.Errorf("redirect status = %s, want active", outcome.Redirect.Status)
	}
	if !outcome.KeywordReassigned {
		t.Error("keyword should have been reassigned")
	}
	owner, ok, err := reg.GetOwner(ctx, site, "jazz shoes")
	if err != nil || !ok {
		t.Fatalf("owner: ok=%v err=%v", ok, err)
	}
	if owner.PageID != 2 {
		t.Errorf("owner = page %d, want the winner", owner.PageID)
	}
	if outcome.Conflict.Status != store.ConflictResolved || outcome.Conflict.ResolvedAt == nil {
		t.Errorf("conflict = %+v", outcome.Conflict)
	}

	// Resolving twice fails cleanly.
	_, err = svc.Resolve(ctx, Request{ConflictID: "c1", Action: ActionRedirect})
	if internalerr.CodeOf(err) != internalerr.CodeAlreadyResolved {
		t.Errorf("second resolve code = %s, want ALREADY_RESOLVED", internalerr.CodeOf(err))
	}
}

func TestResolve_InvalidAction(t *testing.T) {
	svc, _, _ := fixture(t)

	_, err := svc.Resolve(context.Background(), Request{ConflictID: "c1", Action: "obliterate"})
	if internalerr.CodeOf(err) != internalerr.CodeInvalidAction {
		t.Errorf("code = %s, want INVALID_ACTION", internalerr.CodeOf(err))
	}
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Error("should wrap ErrInvalidInput")
	}
}

func TestResolve_UnknownConflict(t *testing.T) {
	svc, _, _ := fixture(t)

	_, err := svc.Resolve(context.Background(), Request{ConflictID: "nope", Action: ActionRedirect})
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

// A redirect loop must abort the whole resolution: conflict stays open and
// the registry is untouched.
func TestResolve_LoopAbortsEverything(t *testing.T) {
	ctx := context.Background()
	svc, st, reg := fixture(t)

	if _, _, err := st.CreateRedirect(ctx, store.Redirect{
		Site: site, SourceURL: winnerURL, TargetURL: loserURL, Status: store.RedirectActive,
	}); err != nil {
		t.Fatalf("seed reverse redirect: %v", err)
	}

	_, err := svc.Resolve(ctx, Request{
		ConflictID:      "c1",
		Action:          ActionRedirect,
		ReassignKeyword: true,
	})
	if internalerr.CodeOf(err) != internalerr.CodeRedirectLoop {
		t.Fatalf("code = %s, want REDIRECT_LOOP", internalerr.CodeOf(err))
	}

	c, _, err := st.GetConflict(ctx, "c1")
	if err != nil {
		t.Fatalf("get conflict: %v", err)
	}
	if c.Status != store.ConflictOpen {
		t.Errorf("conflict status = %s, want still open", c.Status)
	}
	owner, _, _ := reg.GetOwner(ctx, site, "jazz shoes")
	if owner.PageID != 1 {
		t.Errorf("owner = page %d, want unchanged", owner.PageID)
	}
}

// A conflict closed by another reviewer must reject the resolution with all
// of its writes: no redirect appears and the keyword keeps its owner.
func TestResolve_ClosedConflictLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	svc, st, reg := fixture(t)

	if _, err := svc.Dismiss(ctx, "c1", "handled elsewhere", "other-reviewer"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	_, err := svc.Resolve(ctx, Request{
		ConflictID:      "c1",
		Action:          ActionRedirect,
		ReassignKeyword: true,
		ResolvedBy:      "reviewer",
	})
	if internalerr.CodeOf(err) != internalerr.CodeAlreadyResolved {
		t.Fatalf("code = %s, want ALREADY_RESOLVED", internalerr.CodeOf(err))
	}

	if _, ok, _ := st.GetRedirectBySource(ctx, site, loserURL); ok {
		t.Error("rejected resolution left a redirect behind")
	}
	owner, _, _ := reg.GetOwner(ctx, site, "jazz shoes")
	if owner.PageID != 1 {
		t.Errorf("owner = page %d, want unchanged", owner.PageID)
	}
	c, _, err := st.GetConflict(ctx, "c1")
	if err != nil {
		t.Fatalf("get conflict: %v", err)
	}
	if c.Status != store.ConflictDismissed {
		t.Errorf("conflict status = %s, want dismissed", c.Status)
	}
}

func TestDismiss(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := fixture(t)

	outcome, err := svc.Dismiss(ctx, "c1", "intentional duplicate", "reviewer")
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if outcome.Conflict.Status != store.ConflictDismissed {
		t.Errorf("status = %s, want dismissed", outcome.Conflict.Status)
	}
	if outcome.Redirect != nil {
		t.Error("dismiss must not create redirects")
	}
	redirects, err := st.ListRedirects(ctx, site, "")
	if err != nil {
		t.Fatalf("list redirects: %v", err)
	}
	if len(redirects) != 0 {
		t.Errorf("redirects = %+v", redirects)
	}
}

func TestEnqueueAndExecute(t *testing.T) {
	ctx := context.Background()
	svc, st, reg := fixture(t)

	conflict, _, err := st.GetConflict(ctx, "c1")
	if err != nil {
		t.Fatalf("get conflict: %v", err)
	}
	item, err := svc.Enqueue(ctx, conflict, ActionRedirect)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item.Status != store.QueuePending || item.Priority != 85 {
		t.Errorf("item = %+v", item)
	}
	if item.PrimaryURL != winnerURL || item.SecondaryURL != loserURL || item.Keyword != "jazz shoes" {
		t.Errorf("item urls = %+v", item)
	}

	done, err := svc.Execute(ctx, item.ID, "reviewer")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if done.Status != store.QueueCompleted || done.CompletedAt == nil {
		t.Errorf("done = %+v", done)
	}
	joined := strings.Join(done.StepLog, "\n")
	for _, want := range []string{"created 301", "reassigned keyword", "marked resolved"} {
		if !strings.Contains(joined, want) {
			t.Errorf("step log missing %q:\n%s", want, joined)
		}
	}

	owner, _, _ := reg.GetOwner(ctx, site, "jazz shoes")
	if owner.PageID != 2 {
		t.Errorf("owner = page %d, want the winner", owner.PageID)
	}
	if _, ok, _ := st.GetRedirectBySource(ctx, site, loserURL); !ok {
		t.Error("redirect missing after execution")
	}

	_, err = svc.Execute(ctx, item.ID, "reviewer")
	if internalerr.CodeOf(err) != internalerr.CodeAlreadyCompleted {
		t.Errorf("re-execute code = %s, want ALREADY_COMPLETED", internalerr.CodeOf(err))
	}
}

func TestExecute_FailureMarksItemFailed(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := fixture(t)

	conflict, _, err := st.GetConflict(ctx, "c1")
	if err != nil {
		t.Fatalf("get conflict: %v", err)
	}
	item, err := svc.Enqueue(ctx, conflict, ActionRedirect)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, _, err := st.CreateRedirect(ctx, store.Redirect{
		Site: site, SourceURL: winnerURL, TargetURL: loserURL, Status: store.RedirectActive,
	}); err != nil {
		t.Fatalf("seed reverse redirect: %v", err)
	}

	_, err = svc.Execute(ctx, item.ID, "reviewer")
	if internalerr.CodeOf(err) != internalerr.CodeRedirectLoop {
		t.Fatalf("code = %s, want REDIRECT_LOOP", internalerr.CodeOf(err))
	}
	after, ok, err := st.GetQueueItem(ctx, item.ID)
	if err != nil || !ok {
		t.Fatalf("get item: ok=%v err=%v", ok, err)
	}
	if after.Status != store.QueueFailed {
		t.Errorf("item status = %s, want failed", after.Status)
	}
}
