// Package textsim provides the pure text-similarity primitives shared by the
// conflict detectors and the preflight pipeline: tokenization, intent
// skeletons, Levenshtein similarity, and keyword overlap. All functions are
// deterministic and locale-insensitive.
package textsim

import (
	"sort"
	"strings"
	"unicode"

	"github.com/siloworks/siloguard/pkg/siloguard/wordlist"
)

// Tokenizer splits text into lowercase alphanumeric tokens with stop words
// removed.
type Tokenizer struct {
	stops        wordlist.Set
	superlatives wordlist.Set
	fillers      wordlist.Set
	phrases      []string
}

// NewTokenizer creates a tokenizer with the default word lists.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		stops:        wordlist.StopWords(),
		superlatives: wordlist.Superlatives(),
		fillers:      wordlist.Fillers(),
		phrases:      wordlist.FillerPhrases(),
	}
}

// NewTokenizerWithStops creates a tokenizer using a custom stop-word set.
// Skeleton word lists stay at their defaults.
func NewTokenizerWithStops(stops wordlist.Set) *Tokenizer {
	t := NewTokenizer()
	if stops != nil {
		t.stops = stops
	}
	return t
}

// Tokenize returns the lowercase alphanumeric tokens of text, minus stop
// words and single characters.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	for _, raw := range splitAlnum(text) {
		if len(raw) <= 1 {
			continue
		}
		if t.stops.Has(raw) {
			continue
		}
		tokens = append(tokens, raw)
	}
	return tokens
}

// IntentSkeleton reduces a title to its sorted content tokens: filler
// phrases, superlatives, fillers, and stop words are removed. Two titles
// with equal skeletons express the same search intent regardless of surface
// wording.
func (t *Tokenizer) IntentSkeleton(title string) []string {
	text := strings.ToLower(title)
	for _, phrase := range t.phrases {
		text = strings.ReplaceAll(text, phrase, " ")
	}

	var tokens []string
	for _, raw := range splitAlnum(text) {
		if len(raw) <= 1 {
			continue
		}
		if t.stops.Has(raw) || t.superlatives.Has(raw) || t.fillers.Has(raw) {
			continue
		}
		tokens = append(tokens, raw)
	}
	sort.Strings(tokens)
	return tokens
}

// splitAlnum lowercases text and splits it on anything that is not a letter,
// digit, or '#' (kept so "#1" survives superlative matching).
func splitAlnum(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '#' {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// LevenshteinDistance returns the classic edit distance between a and b.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// LevenshteinSimilarity returns 1 - distance/max(len). Two empty strings are
// identical (1.0); exactly one empty string gives 0.0. Inputs are lowercased
// and trimmed before comparison.
func LevenshteinSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	return 1.0 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}

// KeywordOverlap returns |A∩B| / max(|A|,|B|) treating both slices as sets.
// Returns 0.0 if either side is empty.
func KeywordOverlap(wordsA, wordsB []string) float64 {
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}
	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}

	shared := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			shared++
		}
	}
	maxLen := len(setA)
	if len(setB) > maxLen {
		maxLen = len(setB)
	}
	return float64(shared) / float64(maxLen)
}

// SlugTokens splits a URL path into comparison tokens, dropping structural
// slug stop words.
func SlugTokens(path string, stops wordlist.Set) []string {
	if stops == nil {
		stops = wordlist.SlugStopWords()
	}
	cleaned := strings.ToLower(strings.Trim(path, "/"))
	cleaned = strings.NewReplacer("/", " ", "-", " ", "_", " ", ".", " ").Replace(cleaned)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 1 {
			continue
		}
		if stops.Has(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// SlugSimilarity is the keyword overlap of two paths' slug tokens.
func SlugSimilarity(pathA, pathB string) float64 {
	stops := wordlist.SlugStopWords()
	return KeywordOverlap(SlugTokens(pathA, stops), SlugTokens(pathB, stops))
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
