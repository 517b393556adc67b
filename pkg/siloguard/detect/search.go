package detect

import (
	"sort"
	"strings"

	"github.com/siloworks/siloguard/pkg/siloguard/classify"
)

// SearchRow is one raw per-query line from the search data source.
type SearchRow struct {
	Query       string
	PageURL     string
	Clicks      int64
	Impressions int64
	Position    float64
}

// SearchConfig controls search-validated detection.
type SearchConfig struct {
	// MinImpressions drops rows below this floor. Default: 20
	MinImpressions int64

	// PrimaryShare: when the top page holds at least this impression share,
	// the search engine has already decided and the query is not flagged.
	// Default: 0.85
	PrimaryShare float64

	// SecondaryShare: the second page must hold at least this share for a
	// confirmed conflict. Default: 0.15
	SecondaryShare float64

	// NoiseShare: rows below this share with zero clicks are dropped.
	// Default: 0.05
	NoiseShare float64

	// SevereShare and SeverePages: SEVERE when at least SeverePages pages
	// each hold SevereShare. Defaults: 0.10 and 3
	SevereShare float64
	SeverePages int

	// HighSecondary: HIGH when the secondary share reaches this. Default: 0.35
	HighSecondary float64

	// MaxClusterSize caps the pages carried on one issue, keeping the
	// highest-impression members. Default: 15
	MaxClusterSize int
}

// DefaultSearchConfig returns the tuned thresholds.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MinImpressions: 20,
		PrimaryShare:   0.85,
		SecondaryShare: 0.15,
		NoiseShare:     0.05,
		SevereShare:    0.10,
		SeverePages:    3,
		HighSecondary:  0.35,
		MaxClusterSize: 15,
	}
}

// RunSearch validates cannibalization against query-level search data.
// Branded queries (matching brandName or the homepage title) are excluded;
// rows are mapped to known pages via normalized URL. Read-only.
func RunSearch(classifications []classify.Classification, rows []SearchRow, brandName, homepageTitle string, cfg SearchConfig) []Issue {
	if len(rows) == 0 {
		return nil
	}

	byURL := make(map[string]classify.Classification, len(classifications))
	for _, pc := range classifications {
		byURL[pc.NormalizedURL] = pc
	}

	brand := newBrandMatcher(brandName, homepageTitle)

	queryGroups := make(map[string][]QueryRow)
	for _, row := range rows {
		query := strings.ToLower(strings.TrimSpace(row.Query))
		if query == "" || row.Impressions < cfg.MinImpressions {
			continue
		}
		if brand.isBranded(query) {
			continue
		}

		normalized := classify.NormalizeURL(row.PageURL)
		pc, ok := byURL[normalized]
		if !ok {
			continue
		}

		queryGroups[query] = append(queryGroups[query], QueryRow{
			Query:         query,
			PageURL:       row.PageURL,
			NormalizedURL: normalized,
			Page:          pc,
			Clicks:        row.Clicks,
			Impressions:   row.Impressions,
			Position:      row.Position,
		})
	}

	var issues []Issue
	for query, group := range queryGroups {
		if len(group) < 2 {
			continue
		}
		if issue, ok := analyzeQueryGroup(query, group, cfg); ok {
			issues = append(issues, issue)
		}
	}

	// Map iteration order is random; keep output stable for callers.
	sort.Slice(issues, func(i, j int) bool { return issues[i].Query < issues[j].Query })
	return issues
}

func analyzeQueryGroup(query string, rows []QueryRow, cfg SearchConfig) (Issue, bool) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Impressions > rows[j].Impressions })

	var total int64
	for _, r := range rows {
		total += r.Impressions
	}
	if total == 0 {
		return Issue{}, false
	}
	for i := range rows {
		rows[i].Share = float64(rows[i].Impressions) / float64(total)
	}

	// Noise filter: tiny share with no clicks is not real competition.
	filtered := rows[:0]
	for _, r := range rows {
		if r.Share < cfg.NoiseShare && r.Clicks == 0 {
			continue
		}
		filtered = append(filtered, r)
	}
	rows = filtered
	if len(rows) < 2 {
		return Issue{}, false
	}

	// The search engine has already consolidated on a primary page. Left
	// for the wrong-winner check, not flagged as cannibalization.
	primary := rows[0]
	if primary.Share >= cfg.PrimaryShare {
		return Issue{}, false
	}
	if rows[1].Share < cfg.SecondaryShare {
		return Issue{}, false
	}

	if cfg.MaxClusterSize > 0 && len(rows) > cfg.MaxClusterSize {
		rows = rows[:cfg.MaxClusterSize]
	}

	pages := make([]classify.Classification, len(rows))
	var totalClicks int64
	hasHomepage, hasBlog, hasCategory := false, false, false
	for i, r := range rows {
		pages[i] = r.Page
		totalClicks += r.Clicks
		switch r.Page.Type {
		case classify.TypeHomepage:
			hasHomepage = true
		case classify.TypeBlog:
			hasBlog = true
		case classify.TypeCategoryWoo, classify.TypeShop, classify.TypeServiceHub, classify.TypeServiceSpoke:
			hasCategory = true
		}
	}

	var ct ConflictType
	switch {
	case hasHomepage && primary.Page.Type == classify.TypeHomepage:
		ct = GSCHomepageHoarding
	case hasHomepage:
		ct = GSCHomepageSplit
	case hasBlog && hasCategory:
		ct = GSCBlogVsCategory
	default:
		ct = GSCConfirmed
	}

	issue := newIssue(ct, searchSeverity(rows, cfg), pages)
	issue.Query = query
	issue.QueryIntent, issue.HasLocalModifier = ClassifyQueryIntent(query)
	issue.IsPluralQuery = IsPluralQuery(query)
	issue.TotalImpressions = total
	issue.TotalClicks = totalClicks
	issue.Rows = rows
	return issue, true
}

// searchSeverity ranks the impression distribution:
// SEVERE when 3+ pages each hold 10%+, else HIGH at secondary 35%+, else
// MEDIUM at secondary 15%+, else LOW.
func searchSeverity(rows []QueryRow, cfg SearchConfig) Severity {
	strong := 0
	for _, r := range rows {
		if r.Share >= cfg.SevereShare {
			strong++
		}
	}
	if strong >= cfg.SeverePages {
		return SeveritySevere
	}
	if len(rows) >= 2 {
		switch {
		case rows[1].Share >= cfg.HighSecondary:
			return SeverityHigh
		case rows[1].Share >= cfg.SecondaryShare:
			return SeverityMedium
		}
	}
	return SeverityLow
}

// Upgrade promotes static issues whose page set overlaps a search-validated
// issue: badge CONFIRMED, bucket SEARCH_CONFLICT, gsc_validated. Search data
// is ground truth and overrides pattern heuristics. Returns the (mutated)
// static slice.
func Upgrade(static []Issue, searchValidated []Issue) []Issue {
	searchURLs := make(map[string]struct{})
	for _, issue := range searchValidated {
		for _, row := range issue.Rows {
			searchURLs[row.NormalizedURL] = struct{}{}
		}
	}

	for i := range static {
		for _, page := range static[i].Pages {
			if _, ok := searchURLs[page.NormalizedURL]; ok {
				static[i].Badge = BadgeConfirmed
				static[i].Bucket = BucketSearchConflict
				static[i].GSCValidated = true
				break
			}
		}
	}
	return static
}

// Merge combines upgraded static issues and search issues into one set.
func Merge(static []Issue, searchValidated []Issue) []Issue {
	merged := Upgrade(static, searchValidated)
	return append(merged, searchValidated...)
}
