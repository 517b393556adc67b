package detect

import (
	"math"

	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/textsim"
)

// StaticConfig controls the pattern-based detections.
type StaticConfig struct {
	// NearDupHigh is the slug-token similarity above which a pair is a
	// MEDIUM near-duplicate. Default: 0.80
	NearDupHigh float64

	// NearDupLow is the similarity above which a pair is still flagged LOW:
	// URL tokens send a competing ranking signal even below the duplicate
	// threshold. Default: 0.60
	NearDupLow float64

	// BoilerplateMin is the minimum number of location pages sharing a title
	// template before the group is flagged. Default: 3
	BoilerplateMin int
}

// DefaultStaticConfig returns the thresholds the detections were tuned with.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		NearDupHigh:    0.80,
		NearDupLow:     0.60,
		BoilerplateMin: 3,
	}
}

// RunStatic executes the five pattern-based detections over classified
// pages. It needs no search data and touches no persisted state. Pairs in
// safe are exempt from every detection.
func RunStatic(classifications []classify.Classification, safe Exemptions, cfg StaticConfig) []Issue {
	var issues []Issue
	issues = append(issues, detectTaxonomyClash(classifications, safe)...)
	issues = append(issues, detectLegacyVariants(classifications, safe)...)
	issues = append(issues, detectNearDuplicates(classifications, safe, cfg)...)
	issues = append(issues, detectContextDuplicates(classifications, safe)...)
	issues = append(issues, detectLocationBoilerplate(classifications, cfg)...)
	return issues
}

// detectTaxonomyClash flags pages that share a final slug segment but live
// under two or more distinct folder roots, e.g. /shop/jazz-shoes/ vs
// /product-category/jazz-shoes/.
func detectTaxonomyClash(classifications []classify.Classification, safe Exemptions) []Issue {
	groups := make(map[string][]classify.Classification)
	for _, pc := range classifications {
		if pc.SlugLast == "" {
			continue
		}
		if pc.Type == classify.TypeHomepage || pc.Type == classify.TypeUtility {
			continue
		}
		groups[pc.SlugLast] = append(groups[pc.SlugLast], pc)
	}

	var issues []Issue
	for slug, pages := range groups {
		if len(pages) < 2 {
			continue
		}
		roots := make(map[string]struct{})
		for _, page := range pages {
			roots[page.FolderRoot] = struct{}{}
		}
		if len(roots) < 2 {
			continue
		}

		kept := filterSafeGroup(pages, safe)
		if len(kept) < 2 {
			continue
		}

		issue := newIssue(TaxonomyClash, SeverityHigh, kept)
		issue.SharedSlug = slug
		issue.FolderCount = len(roots)
		issues = append(issues, issue)
	}
	return issues
}

// detectLegacyVariants flags legacy URL variants: LEGACY_CLEANUP when a
// clean counterpart exists at the suffix-stripped path, LEGACY_ORPHAN when
// it does not.
func detectLegacyVariants(classifications []classify.Classification, safe Exemptions) []Issue {
	byPath := make(map[string]classify.Classification, len(classifications))
	for _, pc := range classifications {
		byPath[pc.NormalizedPath] = pc
	}

	var issues []Issue
	for _, legacy := range classifications {
		if !legacy.IsLegacyVariant {
			continue
		}
		cleanPath := classify.StripLegacySuffix(legacy.NormalizedPath)
		clean, found := byPath[cleanPath]

		if found && clean.PageID != legacy.PageID {
			if safe != nil && safe.IsSafe(legacy.PageID, clean.PageID) {
				continue
			}
			issue := newIssue(LegacyCleanup, SeverityHigh, []classify.Classification{legacy, clean})
			issue.LegacyURL = legacy.URL
			issue.CleanURL = clean.URL
			issues = append(issues, issue)
			continue
		}

		issue := newIssue(LegacyOrphan, SeverityMedium, []classify.Classification{legacy})
		issue.LegacyURL = legacy.URL
		issues = append(issues, issue)
	}
	return issues
}

// detectNearDuplicates compares every page pair's slug tokens. Similarity
// above NearDupHigh is MEDIUM, above NearDupLow is LOW; both carry the
// SLUG_PIVOT action because the slug itself must change.
func detectNearDuplicates(classifications []classify.Classification, safe Exemptions, cfg StaticConfig) []Issue {
	var pages []classify.Classification
	for _, pc := range classifications {
		if pc.Type == classify.TypeHomepage || pc.Type == classify.TypeUtility {
			continue
		}
		pages = append(pages, pc)
	}

	var issues []Issue
	for i := 0; i < len(pages); i++ {
		for j := i + 1; j < len(pages); j++ {
			a, b := pages[i], pages[j]
			if safe != nil && safe.IsSafe(a.PageID, b.PageID) {
				continue
			}

			sim := textsim.SlugSimilarity(a.NormalizedPath, b.NormalizedPath)
			if sim <= cfg.NearDupLow {
				continue
			}

			severity := SeverityLow
			if sim > cfg.NearDupHigh {
				severity = SeverityMedium
			}
			issue := newIssue(NearDuplicateContent, severity, []classify.Classification{a, b})
			issue.SimilarityScore = math.Round(sim*100) / 100
			issues = append(issues, issue)
		}
	}
	return issues
}

// detectContextDuplicates flags service pages sharing a service keyword but
// living under two or more distinct parent paths, e.g.
// /services/event-planning/ vs /residential/event-planning/.
func detectContextDuplicates(classifications []classify.Classification, safe Exemptions) []Issue {
	groups := make(map[string][]classify.Classification)
	for _, pc := range classifications {
		if pc.ServiceKeyword == "" {
			continue
		}
		if pc.Type != classify.TypeServiceHub && pc.Type != classify.TypeServiceSpoke {
			continue
		}
		groups[pc.ServiceKeyword] = append(groups[pc.ServiceKeyword], pc)
	}

	var issues []Issue
	for kw, pages := range groups {
		if len(pages) < 2 {
			continue
		}
		parents := make(map[string]struct{})
		for _, page := range pages {
			parents[page.ParentPath] = struct{}{}
		}
		if len(parents) < 2 {
			continue
		}

		kept := filterSafeGroup(pages, safe)
		if len(kept) < 2 {
			continue
		}

		issue := newIssue(ContextDuplicate, SeverityMedium, kept)
		issue.ServiceKeyword = kw
		issues = append(issues, issue)
	}
	return issues
}

// detectLocationBoilerplate flags groups of location pages whose titles
// reduce to the same template once the geo token is removed. A content
// quality issue rather than a keyword conflict, so safe pairs do not apply:
// the problem is the template, not any specific pair.
func detectLocationBoilerplate(classifications []classify.Classification, cfg StaticConfig) []Issue {
	var locations []classify.Classification
	for _, pc := range classifications {
		if pc.Type == classify.TypeLocation {
			locations = append(locations, pc)
		}
	}
	if len(locations) < cfg.BoilerplateMin {
		return nil
	}

	groups := make(map[string][]classify.Classification)
	for _, page := range locations {
		template := classify.TitleTemplate(page.Title, page.GeoNode)
		if template == "" {
			continue
		}
		groups[template] = append(groups[template], page)
	}

	var issues []Issue
	for template, pages := range groups {
		if len(pages) < cfg.BoilerplateMin {
			continue
		}
		issue := newIssue(LocationBoilerplate, SeverityMedium, pages)
		issue.TitleTemplate = template
		issues = append(issues, issue)
	}
	return issues
}
