// Package registry enforces one page per keyword per site. Assignments are
// exclusive: a keyword claim against a taken keyword fails with
// KEYWORD_TAKEN, and moving a keyword goes through an atomic reassign that
// leaves a history record.
package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/siloworks/siloguard/pkg/siloguard/internalerr"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
)

// Registry wraps the store with keyword ownership rules.
type Registry struct {
	store store.Store
}

// New creates a registry over the given store.
func New(s store.Store) *Registry {
	return &Registry{store: s}
}

// NormalizeKeyword lowercases and collapses whitespace. Keywords compare
// normalized everywhere.
func NormalizeKeyword(kw string) string {
	return strings.Join(strings.Fields(strings.ToLower(kw)), " ")
}

// CheckAvailable reports whether a keyword is free for the given page. A
// keyword owned by excludePageID counts as available: a page never conflicts
// with itself.
func (r *Registry) CheckAvailable(ctx context.Context, site, keyword string, excludePageID int64) (bool, store.Assignment, error) {
	keyword = NormalizeKeyword(keyword)
	owner, ok, err := r.store.GetAssignment(ctx, site, keyword)
	if err != nil {
		return false, store.Assignment{}, err
	}
	if !ok || owner.PageID == excludePageID {
		return true, owner, nil
	}
	return false, owner, nil
}

// Assign claims a keyword for a page. A taken keyword fails with
// KEYWORD_TAKEN carrying the current owner.
func (r *Registry) Assign(ctx context.Context, site, keyword string, pageID int64, pageURL, source string) (store.Assignment, error) {
	keyword = NormalizeKeyword(keyword)
	if keyword == "" {
		return store.Assignment{}, fmt.Errorf("empty keyword: %w", internalerr.ErrInvalidInput)
	}

	a, err := r.store.CreateAssignment(ctx, store.Assignment{
		Site:    site,
		Keyword: keyword,
		PageID:  pageID,
		PageURL: pageURL,
		Source:  source,
	})
	if err != nil {
		if errors.Is(err, internalerr.ErrDuplicate) {
			owner, _, _ := r.store.GetAssignment(ctx, site, keyword)
			return store.Assignment{}, internalerr.New(internalerr.CodeKeywordTaken,
				fmt.Sprintf("keyword %q is already assigned to %s", keyword, owner.PageURL), err).
				WithDetail("owner_page_id", owner.PageID).
				WithDetail("owner_page_url", owner.PageURL)
		}
		return store.Assignment{}, err
	}
	return a, nil
}

// Reassign moves a keyword to a new page atomically. No active owner is not
// an error; the page simply claims the keyword fresh, still with a history
// record.
func (r *Registry) Reassign(ctx context.Context, site, keyword string, toPageID int64, toPageURL, reason string) (store.Assignment, error) {
	keyword = NormalizeKeyword(keyword)
	if keyword == "" {
		return store.Assignment{}, fmt.Errorf("empty keyword: %w", internalerr.ErrInvalidInput)
	}
	return r.store.ReassignKeyword(ctx, site, keyword, toPageID, toPageURL, reason)
}

// List returns every active assignment for a site.
func (r *Registry) List(ctx context.Context, site string) ([]store.Assignment, error) {
	return r.store.ListAssignments(ctx, site)
}

// GetOwner returns the active assignment for a keyword.
func (r *Registry) GetOwner(ctx context.Context, site, keyword string) (store.Assignment, bool, error) {
	return r.store.GetAssignment(ctx, site, NormalizeKeyword(keyword))
}

// History returns the reassignment trail for a keyword, oldest first.
func (r *Registry) History(ctx context.Context, site, keyword string) ([]store.AssignmentEvent, error) {
	return r.store.ListAssignmentEvents(ctx, site, NormalizeKeyword(keyword))
}

// brandSuffix matches the trailing "| Brand" / " - Brand" part of a title.
// Hyphens need surrounding spaces so hyphenated words survive.
var brandSuffix = regexp.MustCompile(`\s*[|–—]\s*|\s+-\s+`)

// DeriveKeyword picks a page's target keyword: the explicit focus keyword
// wins, then the title with the brand suffix stripped, then the slug with
// hyphens turned into spaces.
func DeriveKeyword(focusKeyword, title, slug string) string {
	if kw := NormalizeKeyword(focusKeyword); kw != "" {
		return kw
	}
	if title != "" {
		parts := brandSuffix.Split(title, 2)
		if kw := NormalizeKeyword(parts[0]); kw != "" {
			return kw
		}
	}
	return NormalizeKeyword(strings.ReplaceAll(slug, "-", " "))
}
