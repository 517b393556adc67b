package score

import (
	"testing"

	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/detect"
)

func TestPriority_Components(t *testing.T) {
	s := NewScorer(DefaultWeights())

	cases := []struct {
		name  string
		issue detect.Issue
		want  int
	}{
		{
			"severe search conflict with heavy traffic",
			detect.Issue{Bucket: detect.BucketSearchConflict, Severity: detect.SeveritySevere, TotalImpressions: 5000},
			100,
		},
		{
			"high search conflict, mid traffic",
			detect.Issue{Bucket: detect.BucketSearchConflict, Severity: detect.SeverityHigh, TotalImpressions: 250},
			80,
		},
		{
			"static high, no traffic data",
			detect.Issue{Bucket: detect.BucketSiteDuplication, Severity: detect.SeverityHigh},
			45,
		},
		{
			"static low with trickle traffic",
			detect.Issue{Bucket: detect.BucketSiteDuplication, Severity: detect.SeverityLow, TotalImpressions: 10},
			35,
		},
		{
			"zero issue",
			detect.Issue{},
			0,
		},
	}
	for _, tc := range cases {
		if got := s.Priority(tc.issue); got != tc.want {
			t.Errorf("%s: priority = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestPriority_Clamped(t *testing.T) {
	w := DefaultWeights()
	w.SearchConflict = 90
	s := NewScorer(w)

	issue := detect.Issue{
		Bucket:           detect.BucketSearchConflict,
		Severity:         detect.SeveritySevere,
		TotalImpressions: 2000,
	}
	if got := s.Priority(issue); got != 100 {
		t.Errorf("priority = %d, want clamp at 100", got)
	}
}

func TestRank_OrderAndStability(t *testing.T) {
	s := NewScorer(DefaultWeights())
	issues := []detect.Issue{
		{Bucket: detect.BucketSiteDuplication, Severity: detect.SeverityLow, SharedSlug: "b"},
		{Bucket: detect.BucketSearchConflict, Severity: detect.SeveritySevere, TotalImpressions: 5000, Query: "roof repair"},
		{Bucket: detect.BucketSiteDuplication, Severity: detect.SeverityLow, SharedSlug: "a"},
	}

	ranked := s.Rank(issues)
	if ranked[0].Issue.Query != "roof repair" {
		t.Errorf("top issue = %q, want the severe search conflict", ranked[0].Issue.Query)
	}
	if ranked[1].Issue.SharedSlug != "a" || ranked[2].Issue.SharedSlug != "b" {
		t.Errorf("tied issues should sort by slug, got %q then %q",
			ranked[1].Issue.SharedSlug, ranked[2].Issue.SharedSlug)
	}
	if ranked[0].Breakdown.Bucket != 50 || ranked[0].Breakdown.Severity != 30 || ranked[0].Breakdown.Traffic != 20 {
		t.Errorf("breakdown = %+v", ranked[0].Breakdown)
	}
}

func searchIssue(t *testing.T) detect.Issue {
	t.Helper()
	pages := classify.New().ClassifyAll([]classify.PageInput{
		{ID: 1, URL: "https://example.com/blog/roof-repair-tips/"},
		{ID: 2, URL: "https://example.com/services/roof-repair/"},
	})
	return detect.Issue{
		Type:  detect.GSCConfirmed,
		Pages: pages,
		Rows: []detect.QueryRow{
			{NormalizedURL: pages[0].NormalizedURL, Clicks: 5, Impressions: 400},
			{NormalizedURL: pages[1].NormalizedURL, Clicks: 30, Impressions: 600},
		},
	}
}

func TestRecommendWinner_ClicksDecide(t *testing.T) {
	scores := RecommendWinner(searchIssue(t))
	if len(scores) != 2 {
		t.Fatalf("expected 2 scored pages, got %d", len(scores))
	}

	recommended := 0
	for _, ps := range scores {
		if ps.Recommended {
			recommended++
		}
	}
	if recommended != 1 {
		t.Fatalf("expected exactly 1 recommended winner, got %d", recommended)
	}
	if !scores[0].Recommended || scores[0].Page.PageID != 2 {
		t.Errorf("winner = page %d with %d clicks, want page 2",
			scores[0].Page.PageID, scores[0].Clicks)
	}
}

func TestRecommendWinner_StaticFallsBackToAuthority(t *testing.T) {
	pages := classify.New().ClassifyAll([]classify.PageInput{
		{ID: 1, URL: "https://example.com/blog/jazz-shoes/"},
		{ID: 2, URL: "https://example.com/product-category/jazz-shoes/"},
	})
	issue := detect.Issue{Type: detect.TaxonomyClash, Pages: pages}

	scores := RecommendWinner(issue)
	if !scores[0].Recommended || scores[0].Page.PageID != 2 {
		t.Errorf("category page should outrank blog, winner = page %d", scores[0].Page.PageID)
	}
}

func TestRecommendWinner_HomepageNeverWinsByAuthority(t *testing.T) {
	pages := classify.New().ClassifyAll([]classify.PageInput{
		{ID: 1, URL: "https://example.com/", IsHomepage: true},
		{ID: 2, URL: "https://example.com/services/roof-repair/"},
	})
	issue := detect.Issue{Type: detect.GSCHomepageHoarding, Pages: pages}

	scores := RecommendWinner(issue)
	if scores[0].Page.Type == classify.TypeHomepage {
		t.Error("homepage should not be the recommended winner on authority alone")
	}
}

func TestRecommendWinner_Empty(t *testing.T) {
	if got := RecommendWinner(detect.Issue{}); got != nil {
		t.Errorf("expected nil for an issue with no pages, got %v", got)
	}
}
