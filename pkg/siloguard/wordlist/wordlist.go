// Package wordlist holds the fixed word sets used by tokenization and
// intent-skeleton extraction. The defaults match what the detectors and the
// preflight pipeline were tuned against; overriding them piecemeal across
// callers would make thresholds drift, so everything reads from one place.
package wordlist

import "strings"

// Set is a case-insensitive membership set of single tokens.
type Set map[string]struct{}

// NewSet builds a Set from words, lowercasing each.
func NewSet(words []string) Set {
	s := make(Set, len(words))
	for _, w := range words {
		s[strings.ToLower(w)] = struct{}{}
	}
	return s
}

// Has reports whether word is in the set.
func (s Set) Has(word string) bool {
	_, ok := s[strings.ToLower(word)]
	return ok
}

// Add inserts word into the set.
func (s Set) Add(word string) {
	s[strings.ToLower(word)] = struct{}{}
}

// All returns the members in no particular order.
func (s Set) All() []string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	return out
}

// StopWords returns the default English stop-word set shared by every
// similarity computation.
func StopWords() Set {
	return NewSet([]string{
		"a", "an", "the", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "from", "is", "it", "as", "be", "was", "are",
		"been", "being", "have", "has", "had", "do", "does", "did", "will",
		"would", "could", "should", "may", "might", "shall", "can", "not",
		"no", "so", "if", "than", "that", "this", "these", "those", "then",
		"there", "their", "they", "them", "we", "us", "our", "you", "your",
		"he", "she", "his", "her", "its", "my", "me", "i", "am", "up",
		"about", "into", "through", "during", "before", "after", "above",
		"below", "between", "out", "off", "over", "under", "again", "further",
		"once", "here", "when", "where", "why", "how", "all", "each", "every",
		"both", "few", "more", "most", "other", "some", "such", "only", "own",
		"same", "just", "also", "very", "too",
	})
}

// Superlatives returns title words stripped during intent-skeleton
// extraction. "Best X" and "Top X" express the same intent as "X".
func Superlatives() Set {
	return NewSet([]string{
		"best", "top", "ultimate", "leading", "premier", "greatest",
		"finest", "superior", "#1", "number one",
	})
}

// Fillers returns single filler words stripped from intent skeletons.
func Fillers() Set {
	return NewSet([]string{
		"guide", "tips", "complete", "comprehensive", "definitive",
	})
}

// FillerPhrases returns multi-word fillers removed before tokenization
// during skeleton extraction.
func FillerPhrases() []string {
	return []string{"everything you need", "how to", "what is"}
}

// SlugStopWords returns tokens ignored when comparing URL slugs. These are
// structural URL words, not content words.
func SlugStopWords() Set {
	return NewSet([]string{
		"page", "pages", "post", "posts", "product", "products",
		"category", "categories", "tag", "tags", "shop", "store",
		"blog", "news", "article", "articles", "index", "home",
		"www", "http", "https", "html", "php", "aspx", "htm",
		"the", "and", "for", "with", "our", "your", "about",
		"a", "an", "in", "on", "at", "to", "of", "by",
	})
}

// BrandIndicators returns corporate suffix tokens that mark a query as
// branded (navigational) rather than a generic search.
func BrandIndicators() []string {
	return []string{"llc", "inc", "corp", "ltd", "company", "co."}
}

// ServiceKeywords returns tokens that identify a slug as a service page for
// context-duplicate detection.
func ServiceKeywords() Set {
	return NewSet([]string{
		"service", "services", "repair", "install", "installation",
		"maintenance", "cleaning", "restoration", "consultation",
		"design", "build", "remodel", "renovation",
	})
}
