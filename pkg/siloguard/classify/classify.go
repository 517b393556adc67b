// Package classify derives detection inputs from synced pages: normalized
// URLs, folder roots, legacy-variant flags, service keywords, geo nodes, and
// a page type. The static and search-validated detectors both consume
// Classification values.
package classify

import (
	"strings"

	"github.com/siloworks/siloguard/pkg/siloguard/wordlist"
)

// PageType is the closed set of classified page roles.
type PageType string

const (
	TypeHomepage     PageType = "homepage"
	TypeUtility      PageType = "utility"
	TypeServiceHub   PageType = "service_hub"
	TypeServiceSpoke PageType = "service_spoke"
	TypeLocation     PageType = "location"
	TypeBlog         PageType = "blog"
	TypeProduct      PageType = "product"
	TypeCategoryWoo  PageType = "category_woo"
	TypeShop         PageType = "shop"
	TypePortfolio    PageType = "portfolio"
	TypeGeneral      PageType = "general"
)

// PageInput is the raw page data the classifier works from. It mirrors what
// the external page store syncs; content is optional and only used for
// H1/canonical extraction.
type PageInput struct {
	ID         int64
	URL        string
	Title      string
	Content    string
	IsHomepage bool
	IsNoindex  bool
	PostType   string
}

// Classification is one page's derived detection input.
type Classification struct {
	PageID          int64
	URL             string
	NormalizedURL   string
	NormalizedPath  string
	SlugLast        string
	FolderRoot      string
	ParentPath      string
	ServiceKeyword  string
	GeoNode         string
	Title           string
	H1              string
	CanonicalURL    string
	IsLegacyVariant bool
	Type            PageType
}

// folderRootOrder maps first path segments to a root class. Order matters:
// the first matching class wins.
var folderRootOrder = []struct {
	class    PageType
	segments []string
}{
	{TypeBlog, []string{"blog", "news", "articles", "post", "posts"}},
	{TypeProduct, []string{"product", "products", "item", "p"}},
	{TypeCategoryWoo, []string{"product-category"}},
	{TypeShop, []string{"shop"}},
	{TypeProduct, []string{"product-rentals"}},
	{TypeServiceHub, []string{"service", "services", "residential", "commercial", "solutions"}},
	{TypeLocation, []string{"location", "locations", "service-area", "service-areas", "city", "cities"}},
	{TypePortfolio, []string{"portfolio", "work", "projects", "gallery"}},
	{TypeUtility, []string{"cart", "checkout", "account", "my-account", "wp-admin", "wp-content", "wp-includes"}},
}

// legacySuffixes are slug endings that mark a page as a legacy URL variant.
// Numbered variants like /obstacle-course-2/ count.
var legacySuffixes = []string{
	"-old", "-backup", "-copy", "-duplicate", "-temp", "-test",
	"-v2", "-v3", "-new", "-draft", "-archive", "-prev", "-previous",
	"-2", "-3", "-4", "-5",
}

// Classifier turns PageInputs into Classifications.
type Classifier struct {
	serviceWords wordlist.Set
}

// New creates a classifier with the default service-keyword list.
func New() *Classifier {
	return &Classifier{serviceWords: wordlist.ServiceKeywords()}
}

// ClassifyAll classifies every input page.
func (c *Classifier) ClassifyAll(pages []PageInput) []Classification {
	out := make([]Classification, 0, len(pages))
	for _, p := range pages {
		out = append(out, c.Classify(p))
	}
	return out
}

// Classify derives a single page's classification.
func (c *Classifier) Classify(p PageInput) Classification {
	path := NormalizePath(p.URL)
	segments := pathSegments(path)

	cls := Classification{
		PageID:         p.ID,
		URL:            p.URL,
		NormalizedURL:  NormalizeURL(p.URL),
		NormalizedPath: path,
		Title:          p.Title,
	}

	if len(segments) > 0 {
		cls.SlugLast = segments[len(segments)-1]
		cls.ParentPath = "/" + strings.Join(segments[:len(segments)-1], "/")
	}
	cls.IsLegacyVariant = IsLegacySlug(cls.SlugLast)

	if p.Content != "" {
		facts := ExtractHeadFacts(p.Content)
		cls.H1 = facts.H1
		cls.CanonicalURL = facts.Canonical
	}

	cls.Type = c.classifyType(p, segments)
	if len(segments) > 0 {
		cls.FolderRoot = segments[0]
	}

	switch cls.Type {
	case TypeServiceHub, TypeServiceSpoke:
		cls.ServiceKeyword = serviceKeywordFromSlug(cls.SlugLast, c.serviceWords)
	case TypeLocation:
		cls.GeoNode = cls.SlugLast
	}

	return cls
}

func (c *Classifier) classifyType(p PageInput, segments []string) PageType {
	if p.IsHomepage || len(segments) == 0 {
		return TypeHomepage
	}

	for _, entry := range folderRootOrder {
		for _, seg := range entry.segments {
			if segments[0] != seg {
				continue
			}
			if entry.class == TypeServiceHub && len(segments) > 1 {
				return TypeServiceSpoke
			}
			return entry.class
		}
	}

	switch p.PostType {
	case "post":
		return TypeBlog
	case "product":
		return TypeProduct
	}

	// A slug containing a service word is a service page even outside a
	// service folder.
	last := segments[len(segments)-1]
	if serviceKeywordFromSlug(last, c.serviceWords) != "" {
		if len(segments) == 1 {
			return TypeServiceHub
		}
		return TypeServiceSpoke
	}

	return TypeGeneral
}

// serviceKeywordFromSlug returns the slug as a service keyword when any of
// its tokens is a service word, "" otherwise.
func serviceKeywordFromSlug(slug string, serviceWords wordlist.Set) string {
	if slug == "" {
		return ""
	}
	for _, tok := range strings.Split(slug, "-") {
		if serviceWords.Has(tok) {
			return slug
		}
	}
	return ""
}

// NormalizeURL lowercases a URL, strips scheme, "www.", query, fragment, and
// the trailing slash. Used to join search rows to known pages.
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"https://", "http://"} {
		u = strings.TrimPrefix(u, prefix)
	}
	u = strings.TrimPrefix(u, "www.")
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimSuffix(u, "/")
}

// NormalizePath returns the lowercase path component of a URL with no
// trailing slash.
func NormalizePath(raw string) string {
	u := NormalizeURL(raw)
	if i := strings.Index(u, "/"); i >= 0 {
		return u[i:]
	}
	return ""
}

func pathSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// IsLegacySlug reports whether slug carries a legacy suffix.
func IsLegacySlug(slug string) bool {
	for _, suffix := range legacySuffixes {
		if strings.HasSuffix(slug, suffix) && len(slug) > len(suffix) {
			return true
		}
	}
	return false
}

// StripLegacySuffix removes the legacy suffix from a normalized path,
// producing the clean counterpart's path. Paths without a legacy suffix are
// returned unchanged.
func StripLegacySuffix(path string) string {
	segments := pathSegments(path)
	if len(segments) == 0 {
		return path
	}
	last := segments[len(segments)-1]
	for _, suffix := range legacySuffixes {
		if strings.HasSuffix(last, suffix) && len(last) > len(suffix) {
			segments[len(segments)-1] = strings.TrimSuffix(last, suffix)
			return "/" + strings.Join(segments, "/")
		}
	}
	return path
}

// TitleTemplate removes the geo token from a location page title and
// collapses whitespace, exposing the shared boilerplate skeleton.
func TitleTemplate(title, geoNode string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return ""
	}
	for _, geoWord := range strings.Split(strings.ToLower(geoNode), "-") {
		if geoWord == "" {
			continue
		}
		t = strings.ReplaceAll(t, geoWord, " ")
	}
	return strings.Join(strings.Fields(t), " ")
}
