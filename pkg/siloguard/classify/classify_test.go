package classify

import "testing"

func TestClassify_Homepage(t *testing.T) {
	c := New()
	cls := c.Classify(PageInput{ID: 1, URL: "https://example.com/", IsHomepage: true})
	if cls.Type != TypeHomepage {
		t.Errorf("Type = %s, want homepage", cls.Type)
	}
	if cls.NormalizedPath != "" {
		t.Errorf("NormalizedPath = %q, want empty", cls.NormalizedPath)
	}
}

func TestClassify_FolderRoots(t *testing.T) {
	c := New()
	cases := []struct {
		url  string
		want PageType
	}{
		{"https://example.com/blog/roof-care-tips/", TypeBlog},
		{"https://example.com/shop/jazz-shoes/", TypeShop},
		{"https://example.com/product-category/jazz-shoes/", TypeCategoryWoo},
		{"https://example.com/services/", TypeServiceHub},
		{"https://example.com/services/roof-repair/", TypeServiceSpoke},
		{"https://example.com/service-areas/brooklyn/", TypeLocation},
		{"https://example.com/cart/", TypeUtility},
		{"https://example.com/portfolio/deck-build/", TypePortfolio},
	}
	for _, tc := range cases {
		cls := c.Classify(PageInput{ID: 1, URL: tc.url})
		if cls.Type != tc.want {
			t.Errorf("Classify(%s).Type = %s, want %s", tc.url, cls.Type, tc.want)
		}
	}
}

func TestClassify_SlugAndParent(t *testing.T) {
	c := New()
	cls := c.Classify(PageInput{ID: 7, URL: "https://Example.com/shop/Jazz-Shoes/?utm=x"})
	if cls.SlugLast != "jazz-shoes" {
		t.Errorf("SlugLast = %q, want jazz-shoes", cls.SlugLast)
	}
	if cls.ParentPath != "/shop" {
		t.Errorf("ParentPath = %q, want /shop", cls.ParentPath)
	}
	if cls.NormalizedURL != "example.com/shop/jazz-shoes" {
		t.Errorf("NormalizedURL = %q", cls.NormalizedURL)
	}
}

func TestClassify_LegacyVariant(t *testing.T) {
	c := New()
	cls := c.Classify(PageInput{ID: 2, URL: "https://example.com/services/roof-repair-old/"})
	if !cls.IsLegacyVariant {
		t.Error("expected legacy variant")
	}
	if got := StripLegacySuffix(cls.NormalizedPath); got != "/services/roof-repair" {
		t.Errorf("StripLegacySuffix = %q", got)
	}
}

func TestClassify_NumberedLegacyVariant(t *testing.T) {
	if !IsLegacySlug("obstacle-course-2") {
		t.Error("numbered variant should be legacy")
	}
	if IsLegacySlug("top-10") {
		// -10 is not in the suffix list; only -2..-5 count
		t.Error("top-10 should not be legacy")
	}
}

func TestClassify_ServiceKeyword(t *testing.T) {
	c := New()
	cls := c.Classify(PageInput{ID: 3, URL: "https://example.com/residential/gutter-cleaning/"})
	if cls.Type != TypeServiceSpoke {
		t.Fatalf("Type = %s, want service_spoke", cls.Type)
	}
	if cls.ServiceKeyword != "gutter-cleaning" {
		t.Errorf("ServiceKeyword = %q, want gutter-cleaning", cls.ServiceKeyword)
	}
}

func TestClassify_PostTypeFallback(t *testing.T) {
	c := New()
	cls := c.Classify(PageInput{ID: 4, URL: "https://example.com/my-first-update/", PostType: "post"})
	if cls.Type != TypeBlog {
		t.Errorf("Type = %s, want blog", cls.Type)
	}
}

func TestTitleTemplate(t *testing.T) {
	a := TitleTemplate("Roof Repair in Brooklyn | Acme", "brooklyn")
	b := TitleTemplate("Roof Repair in Queens | Acme", "queens")
	if a != b {
		t.Errorf("templates differ: %q vs %q", a, b)
	}
	if a == "" {
		t.Error("template should not be empty")
	}
}

func TestExtractHeadFacts(t *testing.T) {
	content := `<html><head>
		<link rel="canonical" href="https://example.com/services/roof-repair/">
	</head><body><h1>Roof <em>Repair</em></h1><h1>Second</h1></body></html>`
	facts := ExtractHeadFacts(content)
	if facts.H1 != "Roof Repair" {
		t.Errorf("H1 = %q, want Roof Repair", facts.H1)
	}
	if facts.Canonical != "https://example.com/services/roof-repair/" {
		t.Errorf("Canonical = %q", facts.Canonical)
	}
}

func TestExtractHeadFacts_Empty(t *testing.T) {
	facts := ExtractHeadFacts("plain text, no markup")
	if facts.H1 != "" || facts.Canonical != "" {
		t.Errorf("expected empty facts, got %+v", facts)
	}
}
