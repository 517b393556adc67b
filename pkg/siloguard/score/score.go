// Package score turns detected issues into a fix order. Priority blends the
// evidence bucket, the severity, and the traffic at stake; winner selection
// ranks an issue's pages and recommends exactly one canonical.
package score

import (
	"sort"

	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/detect"
)

// Weights defines the priority scoring weights
type Weights struct {
	SearchConflict  int // search-validated evidence
	SiteDuplication int // pattern-only evidence

	Severe int
	High   int
	Medium int
	Low    int

	TrafficHigh int // impressions at or above TrafficHighFloor
	TrafficMid  int
	TrafficLow  int // any nonzero impressions

	TrafficHighFloor int64
	TrafficMidFloor  int64
}

// DefaultWeights returns the weights the fix queue was tuned with.
func DefaultWeights() Weights {
	return Weights{
		SearchConflict:   50,
		SiteDuplication:  25,
		Severe:           30,
		High:             20,
		Medium:           10,
		Low:              5,
		TrafficHigh:      20,
		TrafficMid:       10,
		TrafficLow:       5,
		TrafficHighFloor: 1000,
		TrafficMidFloor:  100,
	}
}

// Scorer calculates fix priorities for detected issues
type Scorer struct {
	weights Weights
}

// NewScorer creates a new scorer with the given weights
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Priority returns the issue's fix priority on a 0-100 scale.
func (s *Scorer) Priority(issue detect.Issue) int {
	return s.PriorityWithBreakdown(issue).Total
}

// Breakdown provides detailed priority information
type Breakdown struct {
	Bucket   int
	Severity int
	Traffic  int
	Total    int
}

// PriorityWithBreakdown calculates priority with per-component detail.
func (s *Scorer) PriorityWithBreakdown(issue detect.Issue) Breakdown {
	b := Breakdown{}

	switch issue.Bucket {
	case detect.BucketSearchConflict:
		b.Bucket = s.weights.SearchConflict
	case detect.BucketSiteDuplication:
		b.Bucket = s.weights.SiteDuplication
	}

	switch issue.Severity {
	case detect.SeveritySevere:
		b.Severity = s.weights.Severe
	case detect.SeverityHigh:
		b.Severity = s.weights.High
	case detect.SeverityMedium:
		b.Severity = s.weights.Medium
	case detect.SeverityLow:
		b.Severity = s.weights.Low
	}

	switch {
	case issue.TotalImpressions >= s.weights.TrafficHighFloor:
		b.Traffic = s.weights.TrafficHigh
	case issue.TotalImpressions >= s.weights.TrafficMidFloor:
		b.Traffic = s.weights.TrafficMid
	case issue.TotalImpressions > 0:
		b.Traffic = s.weights.TrafficLow
	}

	b.Total = b.Bucket + b.Severity + b.Traffic
	if b.Total > 100 {
		b.Total = 100
	}
	if b.Total < 0 {
		b.Total = 0
	}
	return b
}

// Ranked pairs an issue with its computed priority.
type Ranked struct {
	Issue     detect.Issue
	Priority  int
	Breakdown Breakdown
}

// Rank scores every issue and returns them highest priority first. Ties
// break on query then shared slug so the order is stable across runs.
func (s *Scorer) Rank(issues []detect.Issue) []Ranked {
	ranked := make([]Ranked, len(issues))
	for i, issue := range issues {
		b := s.PriorityWithBreakdown(issue)
		ranked[i] = Ranked{Issue: issue, Priority: b.Total, Breakdown: b}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		if ranked[i].Issue.Query != ranked[j].Issue.Query {
			return ranked[i].Issue.Query < ranked[j].Issue.Query
		}
		return ranked[i].Issue.SharedSlug < ranked[j].Issue.SharedSlug
	})
	return ranked
}

// PageScore is one candidate page's standing within an issue.
type PageScore struct {
	Page        classify.Classification
	Clicks      int64
	Impressions int64
	Recommended bool
}

// RecommendWinner ranks an issue's pages and marks exactly one as the
// recommended canonical. Search-validated issues rank on real clicks; static
// issues fall back to page-type authority. Ties break on shortest path then
// alphabetical URL so the recommendation is deterministic.
func RecommendWinner(issue detect.Issue) []PageScore {
	if len(issue.Pages) == 0 {
		return nil
	}

	scores := make([]PageScore, len(issue.Pages))
	metrics := make(map[string]detect.QueryRow, len(issue.Rows))
	for _, row := range issue.Rows {
		metrics[row.NormalizedURL] = row
	}
	for i, page := range issue.Pages {
		scores[i] = PageScore{Page: page}
		if row, ok := metrics[page.NormalizedURL]; ok {
			scores[i].Clicks = row.Clicks
			scores[i].Impressions = row.Impressions
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Clicks != b.Clicks {
			return a.Clicks > b.Clicks
		}
		if a.Impressions != b.Impressions {
			return a.Impressions > b.Impressions
		}
		ra, rb := authorityRank(a.Page.Type), authorityRank(b.Page.Type)
		if ra != rb {
			return ra < rb
		}
		if la, lb := len(a.Page.NormalizedPath), len(b.Page.NormalizedPath); la != lb {
			return la < lb
		}
		return a.Page.NormalizedURL < b.Page.NormalizedURL
	})

	// The homepage never wins a keyword away from a dedicated page, even
	// when it currently hoards the clicks.
	winner := 0
	for i := range scores {
		if scores[i].Page.Type != classify.TypeHomepage {
			winner = i
			break
		}
	}
	scores[winner].Recommended = true
	return scores
}

// Winner returns the recommended page from a RecommendWinner result.
func Winner(scores []PageScore) (PageScore, bool) {
	for _, ps := range scores {
		if ps.Recommended {
			return ps, true
		}
	}
	return PageScore{}, false
}

// authorityRank orders page types by how strong a canonical they make.
// Money pages beat support content; the homepage never wins a keyword it is
// cannibalizing from a dedicated page.
func authorityRank(t classify.PageType) int {
	switch t {
	case classify.TypeCategoryWoo, classify.TypeShop:
		return 0
	case classify.TypeServiceHub:
		return 1
	case classify.TypeProduct, classify.TypeServiceSpoke:
		return 2
	case classify.TypeLocation:
		return 3
	case classify.TypeGeneral, classify.TypePortfolio:
		return 4
	case classify.TypeBlog:
		return 5
	case classify.TypeHomepage:
		return 6
	default:
		return 7
	}
}
