package wordlist

import "testing"

func TestSetCaseInsensitive(t *testing.T) {
	s := NewSet([]string{"Roofing", "repair"})
	if !s.Has("roofing") || !s.Has("ROOFING") || !s.Has("Repair") {
		t.Error("membership should ignore case")
	}
	if s.Has("plumbing") {
		t.Error("plumbing should not be a member")
	}

	s.Add("Plumbing")
	if !s.Has("plumbing") {
		t.Error("Add should lowercase")
	}
	if len(s.All()) != 3 {
		t.Errorf("All() = %v", s.All())
	}
}

func TestStopWordsCoverCommonFunctionWords(t *testing.T) {
	stop := StopWords()
	for _, w := range []string{"the", "and", "with", "your"} {
		if !stop.Has(w) {
			t.Errorf("%q missing from stop words", w)
		}
	}
	if stop.Has("roofing") {
		t.Error("content words must survive stop filtering")
	}
}

func TestSkeletonWordSets(t *testing.T) {
	if !Superlatives().Has("best") || !Superlatives().Has("Ultimate") {
		t.Error("superlatives missing")
	}
	if !Fillers().Has("guide") {
		t.Error("fillers missing")
	}
	// "how to" strips as a phrase, never as single tokens.
	if Fillers().Has("how") {
		t.Error("single 'how' should not be a filler")
	}
	found := false
	for _, p := range FillerPhrases() {
		if p == "how to" {
			found = true
		}
	}
	if !found {
		t.Error("'how to' missing from filler phrases")
	}
}

func TestSlugStopWordsAreStructuralOnly(t *testing.T) {
	slug := SlugStopWords()
	if !slug.Has("product") || !slug.Has("category") {
		t.Error("structural URL words missing from slug stop words")
	}
	if slug.Has("shoes") {
		t.Error("slug content words must survive")
	}
}
