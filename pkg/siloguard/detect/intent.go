package detect

import (
	"strings"

	"github.com/siloworks/siloguard/pkg/siloguard/wordlist"
)

// Intent classifies what a searcher wants from a query.
type Intent string

const (
	IntentTransactional Intent = "transactional"
	IntentInformational Intent = "informational"
	IntentListicle      Intent = "listicle"
	IntentNavigational  Intent = "navigational"
	IntentUnknown       Intent = "unknown"
)

var intentMarkers = []struct {
	intent  Intent
	markers []string
}{
	{IntentInformational, []string{
		"how", "what", "why", "when", "where", "who", "which",
		"guide", "tips", "ideas", "tutorial", "learn", "understand",
		"meaning", "definition", "explain", "difference",
	}},
	{IntentListicle, []string{
		"best", "top", "review", "reviews", "vs", "versus",
		"compare", "comparison", "ranking", "rated",
	}},
	{IntentNavigational, []string{
		"login", "contact", "about", "hours", "location",
		"address", "phone", "directions", "map",
	}},
	{IntentTransactional, []string{
		"buy", "purchase", "order", "book", "hire", "get", "request",
		"near me", "service", "company", "companies", "business",
		"price", "cost", "quote", "estimate", "pricing",
	}},
}

var localModifiers = []string{
	"near me", "nearby", "local", "city", "cities", "town", "area", "county",
}

// ClassifyQueryIntent returns the query's dominant intent and whether it
// carries a local modifier. First marker category hit wins; informational
// markers are checked first since question words dominate mixed queries.
func ClassifyQueryIntent(query string) (Intent, bool) {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "

	hasLocal := false
	for _, mod := range localModifiers {
		if strings.Contains(q, " "+mod+" ") {
			hasLocal = true
			break
		}
	}

	for _, group := range intentMarkers {
		for _, marker := range group.markers {
			if strings.Contains(q, " "+marker+" ") {
				return group.intent, hasLocal
			}
		}
	}
	return IntentUnknown, hasLocal
}

// IsPluralQuery reports whether the query's last token looks plural.
// Plural queries usually want a category page, not a single product.
func IsPluralQuery(query string) bool {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return false
	}
	last := fields[len(fields)-1]
	if len(last) < 4 {
		return false
	}
	if strings.HasSuffix(last, "ss") {
		return false
	}
	return strings.HasSuffix(last, "s")
}

// brandMatcher detects branded (navigational) queries which are excluded
// from cannibalization analysis.
type brandMatcher struct {
	brandTokens map[string]struct{}
	indicators  []string
}

func newBrandMatcher(brandName, homepageTitle string) *brandMatcher {
	m := &brandMatcher{
		brandTokens: make(map[string]struct{}),
		indicators:  wordlist.BrandIndicators(),
	}
	// Fall back to the homepage title as the brand signal when no brand
	// name is configured.
	source := brandName
	if source == "" {
		source = homepageTitle
	}
	for _, tok := range strings.Fields(strings.ToLower(source)) {
		if len(tok) > 2 {
			m.brandTokens[tok] = struct{}{}
		}
	}
	return m
}

func (m *brandMatcher) isBranded(query string) bool {
	for _, tok := range strings.Fields(query) {
		if _, ok := m.brandTokens[tok]; ok {
			return true
		}
	}
	for _, ind := range m.indicators {
		if strings.Contains(query, ind) {
			return true
		}
	}
	return false
}
