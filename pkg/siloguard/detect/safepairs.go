package detect

import "github.com/siloworks/siloguard/pkg/siloguard/classify"

// Exemptions answers whether a page pair is pre-approved as intentionally
// similar. Every static detection consults the same predicate so exemption
// semantics cannot drift between detections.
type Exemptions interface {
	IsSafe(a, b int64) bool
}

// SafePairs is the map-backed Exemptions implementation.
type SafePairs map[[2]int64]struct{}

// NewSafePairs builds a SafePairs set. Pair order does not matter.
func NewSafePairs(pairs [][2]int64) SafePairs {
	s := make(SafePairs, len(pairs))
	for _, p := range pairs {
		s[orderPair(p[0], p[1])] = struct{}{}
	}
	return s
}

// IsSafe reports whether (a, b) is an approved pair.
func (s SafePairs) IsSafe(a, b int64) bool {
	_, ok := s[orderPair(a, b)]
	return ok
}

func orderPair(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

// filterSafeGroup drops group members that are safe-paired with every other
// member they would conflict with. A page stays in the issue if at least one
// unsafe counterpart remains.
func filterSafeGroup(pages []classify.Classification, safe Exemptions) []classify.Classification {
	if safe == nil {
		return pages
	}
	var kept []classify.Classification
	for _, page := range pages {
		unsafe := false
		for _, other := range pages {
			if page.PageID == other.PageID {
				continue
			}
			if !safe.IsSafe(page.PageID, other.PageID) {
				unsafe = true
				break
			}
		}
		if unsafe {
			kept = append(kept, page)
		}
	}
	return kept
}
