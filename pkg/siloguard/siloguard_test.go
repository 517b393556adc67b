package siloguard

import (
	"context"
	"testing"

	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/config"
	"github.com/siloworks/siloguard/pkg/siloguard/detect"
	"github.com/siloworks/siloguard/pkg/siloguard/preflight"
	"github.com/siloworks/siloguard/pkg/siloguard/resolution"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
	"github.com/siloworks/siloguard/pkg/siloguard/store/memstore"
)

func newEngine(t *testing.T) (*Siloguard, store.Store) {
	t.Helper()
	comp, err := (&config.Loader{}).Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	comp.Site = config.Site{Name: "example.com", Brand: "Acme", HomepageTitle: "Acme Contracting"}

	st := memstore.New()
	sg, err := New(Options{Store: st, Config: comp})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return sg, st
}

func clashInput() DetectionInput {
	return DetectionInput{
		Pages: []classify.PageInput{
			{ID: 1, URL: "https://example.com/shop/jazz-shoes/", Title: "Jazz Shoes | Acme"},
			{ID: 2, URL: "https://example.com/product-category/jazz-shoes/", Title: "Jazz Shoes | Acme"},
		},
		SearchRows: []detect.SearchRow{
			{Query: "jazz shoes", PageURL: "https://example.com/product-category/jazz-shoes/", Clicks: 50, Impressions: 600},
			{Query: "jazz shoes", PageURL: "https://example.com/shop/jazz-shoes/", Clicks: 10, Impressions: 300},
		},
	}
}

func TestRunDetection_PersistsConflicts(t *testing.T) {
	ctx := context.Background()
	sg, st := newEngine(t)

	result, err := sg.RunDetection(ctx, clashInput())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if result.StaticIssues == 0 || result.SearchIssues != 1 {
		t.Fatalf("issues: static=%d search=%d", result.StaticIssues, result.SearchIssues)
	}

	open, err := st.ListConflicts(ctx, "example.com", store.ConflictOpen)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != len(result.Conflicts) || len(open) == 0 {
		t.Fatalf("persisted %d conflicts, result carries %d", len(open), len(result.Conflicts))
	}

	var clash *store.Conflict
	for i := range open {
		if open[i].Type == string(detect.TaxonomyClash) {
			clash = &open[i]
		}
	}
	if clash == nil {
		t.Fatal("taxonomy clash missing from persisted conflicts")
	}
	// Search rows cover both pages, so the static finding is promoted.
	if clash.Badge != string(detect.BadgeConfirmed) || clash.Bucket != string(detect.BucketSearchConflict) {
		t.Errorf("clash badge=%s bucket=%s, want confirmed search conflict", clash.Badge, clash.Bucket)
	}
	if clash.Priority <= 0 {
		t.Errorf("priority = %d", clash.Priority)
	}

	winners := 0
	for _, p := range clash.Pages {
		if p.Role == "winner" {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winner count = %d, want exactly 1", winners)
	}
}

func TestRunDetection_SafePairSuppressesStatic(t *testing.T) {
	ctx := context.Background()
	sg, _ := newEngine(t)

	if err := sg.AddSafePair(ctx, 1, 2, "intentional shop/category duplication"); err != nil {
		t.Fatalf("safe pair: %v", err)
	}
	in := clashInput()
	in.SearchRows = nil

	result, err := sg.RunDetection(ctx, in)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if result.StaticIssues != 0 {
		t.Errorf("static issues = %d, want 0 with the pair exempted", result.StaticIssues)
	}
}

func TestProposeFixes_RankedPlans(t *testing.T) {
	ctx := context.Background()
	sg, _ := newEngine(t)

	result, err := sg.RunDetection(ctx, clashInput())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	plans, err := sg.ProposeFixes(result.Issues)
	if err != nil {
		t.Fatalf("plans: %v", err)
	}
	if len(plans) != len(result.Issues) {
		t.Fatalf("plans = %d, issues = %d", len(plans), len(result.Issues))
	}
	for i := 1; i < len(plans); i++ {
		if plans[i].Priority > plans[i-1].Priority {
			t.Errorf("plans out of order at %d: %d > %d", i, plans[i].Priority, plans[i-1].Priority)
		}
	}
	if plans[0].WinnerURL == "" {
		t.Error("top plan has no recommended winner")
	}
}

func TestListConflictsAndSummary(t *testing.T) {
	ctx := context.Background()
	sg, _ := newEngine(t)

	result, err := sg.RunDetection(ctx, clashInput())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	all, err := sg.ListConflicts(ctx, ConflictFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(result.Conflicts) {
		t.Fatalf("open conflicts = %d, want %d", len(all), len(result.Conflicts))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Priority > all[i-1].Priority {
			t.Errorf("listing out of order at %d", i)
		}
	}

	sev := all[0].Severity
	filtered, err := sg.ListConflicts(ctx, ConflictFilter{Severity: sev})
	if err != nil {
		t.Fatalf("filter severity: %v", err)
	}
	if len(filtered) == 0 {
		t.Fatal("severity filter dropped everything")
	}
	for _, c := range filtered {
		if c.Severity != sev {
			t.Errorf("conflict %s severity = %s, want %s", c.ID, c.Severity, sev)
		}
	}

	// Only the search-backed conflicts carry impressions.
	busy, err := sg.ListConflicts(ctx, ConflictFilter{MinImpressions: 900})
	if err != nil {
		t.Fatalf("filter impressions: %v", err)
	}
	if len(busy) == 0 || len(busy) >= len(all) {
		t.Errorf("impression filter kept %d of %d", len(busy), len(all))
	}

	summary, err := sg.SeveritySummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	total := 0
	for _, n := range summary {
		total += n
	}
	if total != len(all) {
		t.Errorf("summary total = %d, want %d", total, len(all))
	}
}

func TestPreflightAndResolveThroughFacade(t *testing.T) {
	ctx := context.Background()
	sg, st := newEngine(t)

	verdict, err := sg.Preflight(ctx, preflight.Proposal{
		Title:   "Kitchen Remodeling Ideas",
		Slug:    "kitchen-remodeling",
		Keyword: "kitchen remodeling",
	}, nil)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	if verdict.Status != preflight.StatusPass {
		t.Errorf("verdict = %s", verdict.Status)
	}

	result, err := sg.RunDetection(ctx, clashInput())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	outcome, err := sg.Dismiss(ctx, result.Conflicts[0].ID, "reviewed, intentional", "reviewer")
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if outcome.Conflict.Status != store.ConflictDismissed {
		t.Errorf("status = %s", outcome.Conflict.Status)
	}

	// The remaining conflicts resolve through the queue.
	item, err := sg.EnqueueFix(ctx, result.Conflicts[1].ID, resolution.ActionRedirect)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done, err := sg.ExecuteFix(ctx, item.ID, "reviewer")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if done.Status != store.QueueCompleted {
		t.Errorf("queue item = %+v", done)
	}
	c, _, err := st.GetConflict(ctx, result.Conflicts[1].ID)
	if err != nil {
		t.Fatalf("get conflict: %v", err)
	}
	if c.Status != store.ConflictResolved {
		t.Errorf("conflict status = %s", c.Status)
	}
}
