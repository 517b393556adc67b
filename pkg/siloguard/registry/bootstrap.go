package registry

import (
	"context"
	"sort"

	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
)

// Candidate is one existing page competing for its derived keyword during
// bootstrap.
type Candidate struct {
	Page         classify.PageInput
	FocusKeyword string
	WordCount    int
}

// BootstrapResult reports what bootstrap did: the assignments created and
// every page that lost its keyword to a stronger candidate.
type BootstrapResult struct {
	Assigned []store.Assignment
	Losers   []LostClaim
}

// LostClaim is a page whose derived keyword was claimed by another page.
type LostClaim struct {
	PageID       int64
	PageURL      string
	Keyword      string
	WinnerPageID int64
}

// Bootstrap seeds the registry from an existing site. Pages deriving the
// same keyword are resolved by authority: money pages beat the homepage,
// which beats everything else; remaining ties go to word count, then the
// shorter URL, then alphabetical order. Noindex pages never claim keywords.
func (r *Registry) Bootstrap(ctx context.Context, site string, candidates []Candidate) (BootstrapResult, error) {
	classifier := classify.New()

	type contender struct {
		candidate Candidate
		class     classify.Classification
		keyword   string
	}

	groups := make(map[string][]contender)
	var keywords []string
	for _, c := range candidates {
		if c.Page.IsNoindex {
			continue
		}
		class := classifier.Classify(c.Page)
		kw := DeriveKeyword(c.FocusKeyword, c.Page.Title, class.SlugLast)
		if kw == "" {
			continue
		}
		if _, seen := groups[kw]; !seen {
			keywords = append(keywords, kw)
		}
		groups[kw] = append(groups[kw], contender{candidate: c, class: class, keyword: kw})
	}
	sort.Strings(keywords)

	var result BootstrapResult
	for _, kw := range keywords {
		group := groups[kw]
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if ma, mb := isMoneyPage(a.class.Type), isMoneyPage(b.class.Type); ma != mb {
				return ma
			}
			if ha, hb := a.class.Type == classify.TypeHomepage, b.class.Type == classify.TypeHomepage; ha != hb {
				return ha
			}
			if a.candidate.WordCount != b.candidate.WordCount {
				return a.candidate.WordCount > b.candidate.WordCount
			}
			if la, lb := len(a.class.NormalizedURL), len(b.class.NormalizedURL); la != lb {
				return la < lb
			}
			return a.class.NormalizedURL < b.class.NormalizedURL
		})

		winner := group[0]
		a, err := r.Assign(ctx, site, kw, winner.candidate.Page.ID, winner.candidate.Page.URL, "bootstrap")
		if err != nil {
			return BootstrapResult{}, err
		}
		result.Assigned = append(result.Assigned, a)

		for _, loser := range group[1:] {
			result.Losers = append(result.Losers, LostClaim{
				PageID:       loser.candidate.Page.ID,
				PageURL:      loser.candidate.Page.URL,
				Keyword:      kw,
				WinnerPageID: winner.candidate.Page.ID,
			})
		}
	}
	return result, nil
}

// isMoneyPage reports whether a page type sells directly.
func isMoneyPage(t classify.PageType) bool {
	switch t {
	case classify.TypeShop, classify.TypeCategoryWoo, classify.TypeProduct, classify.TypeServiceHub:
		return true
	}
	return false
}
