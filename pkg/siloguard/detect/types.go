// Package detect finds keyword-cannibalization issues. The static detector
// (phase 3) works from URL/content patterns alone; the search-validated
// detector (phase 4) works from query-level click and impression data.
// Upgrade reconciles the two: search data is ground truth and promotes
// overlapping static findings.
package detect

import "github.com/siloworks/siloguard/pkg/siloguard/classify"

// ConflictType is the closed taxonomy of detected issue kinds.
type ConflictType string

const (
	// SITE_DUPLICATION bucket (static detection)
	TaxonomyClash        ConflictType = "TAXONOMY_CLASH"
	LegacyCleanup        ConflictType = "LEGACY_CLEANUP"
	LegacyOrphan         ConflictType = "LEGACY_ORPHAN"
	NearDuplicateContent ConflictType = "NEAR_DUPLICATE_CONTENT"
	ContextDuplicate     ConflictType = "CONTEXT_DUPLICATE"
	LocationBoilerplate  ConflictType = "LOCATION_BOILERPLATE"

	// SEARCH_CONFLICT bucket (search-console validated)
	GSCConfirmed        ConflictType = "GSC_CONFIRMED"
	GSCBlogVsCategory   ConflictType = "GSC_BLOG_VS_CATEGORY"
	GSCHomepageHoarding ConflictType = "GSC_HOMEPAGE_HOARDING"
	GSCHomepageSplit    ConflictType = "GSC_HOMEPAGE_SPLIT"
)

// Severity ranks how damaging an issue is.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
	SeveritySevere Severity = "SEVERE"
)

// Badge marks how much evidence backs an issue.
type Badge string

const (
	BadgePotential Badge = "POTENTIAL"
	BadgeConfirmed Badge = "CONFIRMED"
)

// Bucket groups issues by evidence source.
type Bucket string

const (
	BucketSiteDuplication Bucket = "SITE_DUPLICATION"
	BucketSearchConflict  Bucket = "SEARCH_CONFLICT"
)

// ActionCode names the remediation class the fix engine handles.
type ActionCode string

const (
	ActionRedirectToCanonical     ActionCode = "REDIRECT_TO_CANONICAL"
	ActionReviewAndRedirect       ActionCode = "REVIEW_AND_REDIRECT"
	ActionRewriteLocalEvidence    ActionCode = "REWRITE_LOCAL_EVIDENCE"
	ActionStrengthenCorrectPage   ActionCode = "STRENGTHEN_CORRECT_PAGE"
	ActionRedirectOrDifferentiate ActionCode = "REDIRECT_OR_DIFFERENTIATE"
	ActionHomepageDeoptimize      ActionCode = "HOMEPAGE_DEOPTIMIZE"
	ActionSlugPivot               ActionCode = "SLUG_PIVOT"
)

// TypeInfo describes a conflict type's fixed attributes.
type TypeInfo struct {
	Bucket      Bucket
	Badge       Badge
	Description string
	Action      ActionCode
}

var typeInfos = map[ConflictType]TypeInfo{
	TaxonomyClash:        {BucketSiteDuplication, BadgePotential, "Same slug exists in different folder structures", ActionRedirectToCanonical},
	LegacyCleanup:        {BucketSiteDuplication, BadgePotential, "Legacy variant page detected with clean version available", ActionRedirectToCanonical},
	LegacyOrphan:         {BucketSiteDuplication, BadgePotential, "Legacy variant page with no clean version", ActionReviewAndRedirect},
	NearDuplicateContent: {BucketSiteDuplication, BadgePotential, "URLs with high slug token similarity", ActionSlugPivot},
	ContextDuplicate:     {BucketSiteDuplication, BadgePotential, "Same service slug under different parent paths", ActionRedirectOrDifferentiate},
	LocationBoilerplate:  {BucketSiteDuplication, BadgePotential, "3+ location pages with identical title template", ActionRewriteLocalEvidence},
	GSCConfirmed:         {BucketSearchConflict, BadgeConfirmed, "Multiple pages ranking for same query", ActionRedirectToCanonical},
	GSCBlogVsCategory:    {BucketSearchConflict, BadgeConfirmed, "Blog competing with category for commercial query", ActionStrengthenCorrectPage},
	GSCHomepageHoarding:  {BucketSearchConflict, BadgeConfirmed, "Homepage ranking instead of dedicated page", ActionHomepageDeoptimize},
	GSCHomepageSplit:     {BucketSearchConflict, BadgeConfirmed, "Homepage splitting impressions with service/product page", ActionHomepageDeoptimize},
}

// InfoFor returns the fixed attributes of a conflict type.
func InfoFor(ct ConflictType) (TypeInfo, bool) {
	info, ok := typeInfos[ct]
	return info, ok
}

// ActionInfo describes one remediation class.
type ActionInfo struct {
	Label             string
	Description       string
	RequiresUserInput bool
}

var actionInfos = map[ActionCode]ActionInfo{
	ActionRedirectToCanonical:     {"Redirect to Canonical", "Clear winner exists. Redirect duplicates via 301.", false},
	ActionReviewAndRedirect:       {"Review and Redirect", "No clear canonical. User must choose winner.", true},
	ActionRewriteLocalEvidence:    {"Rewrite with Local Evidence", "Location pages need unique local content.", false},
	ActionStrengthenCorrectPage:   {"Strengthen Correct Page", "Wrong page winning. Boost correct page authority.", false},
	ActionRedirectOrDifferentiate: {"Redirect or Differentiate", "Either merge pages or add unique differentiating content.", true},
	ActionHomepageDeoptimize:      {"De-optimize Homepage", "Homepage is cannibalizing a dedicated page. Strip the keyword from homepage title, H1, meta, and body, then strengthen the correct page.", false},
	ActionSlugPivot:               {"Slug Pivot + Differentiate", "Competing pages have high slug similarity. Differentiate content and change the losing slug; old slug gets a 301 to the new one.", true},
}

// ActionInfoFor returns the metadata for an action code.
func ActionInfoFor(code ActionCode) (ActionInfo, bool) {
	info, ok := actionInfos[code]
	return info, ok
}

// QueryRow is one per-page line of an analyzed query: the raw search metrics
// plus the computed impression share.
type QueryRow struct {
	Query         string
	PageURL       string
	NormalizedURL string
	Page          classify.Classification
	Clicks        int64
	Impressions   int64
	Position      float64
	Share         float64
}

// Issue is one detected cannibalization situation.
type Issue struct {
	Type     ConflictType
	Severity Severity
	Badge    Badge
	Bucket   Bucket
	Action   ActionCode
	Pages    []classify.Classification

	// Static detection metadata
	SharedSlug      string
	FolderCount     int
	LegacyURL       string
	CleanURL        string
	SimilarityScore float64
	ServiceKeyword  string
	TitleTemplate   string

	// Search detection metadata
	Query            string
	QueryIntent      Intent
	HasLocalModifier bool
	IsPluralQuery    bool
	TotalImpressions int64
	TotalClicks      int64
	Rows             []QueryRow

	// Set by Upgrade when search data confirms a static finding.
	GSCValidated bool
}

// newIssue stamps the fixed badge/bucket/action for a conflict type.
func newIssue(ct ConflictType, severity Severity, pages []classify.Classification) Issue {
	info := typeInfos[ct]
	return Issue{
		Type:     ct,
		Severity: severity,
		Badge:    info.Badge,
		Bucket:   info.Bucket,
		Action:   info.Action,
		Pages:    pages,
	}
}
