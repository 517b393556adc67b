// Package memstore provides an in-memory Store for tests and single-run
// audits. Semantics match the sqlite backend, including uniqueness and
// status-transition failures.
package memstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/siloworks/siloguard/pkg/siloguard/internalerr"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
)

type memStore struct {
	mu sync.RWMutex

	assignments []store.Assignment
	events      []store.AssignmentEvent
	conflicts   map[string]*store.Conflict
	resolutions []store.Resolution
	safePairs   map[[3]interface{}]store.SafePair
	redirects   map[string]*store.Redirect // key: site + "\x00" + source
	queue       map[string]*store.QueueItem
	validations []store.ValidationRecord

	entropy *ulid.MonotonicEntropy
}

// New creates an empty in-memory store.
func New() store.Store {
	return &memStore{
		conflicts: make(map[string]*store.Conflict),
		safePairs: make(map[[3]interface{}]store.SafePair),
		redirects: make(map[string]*store.Redirect),
		queue:     make(map[string]*store.QueueItem),
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) CreateAssignment(_ context.Context, a store.Assignment) (store.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.assignments {
		if existing.Site == a.Site && existing.Keyword == a.Keyword && existing.Status == store.AssignmentActive {
			return store.Assignment{}, fmt.Errorf("assignment %s/%s: %w", a.Site, a.Keyword, internalerr.ErrDuplicate)
		}
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = store.AssignmentActive
	}
	m.assignments = append(m.assignments, a)
	return a, nil
}

func (m *memStore) GetAssignment(_ context.Context, site, keyword string) (store.Assignment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assignments {
		if a.Site == site && a.Keyword == keyword && a.Status == store.AssignmentActive {
			return a, true, nil
		}
	}
	return store.Assignment{}, false, nil
}

func (m *memStore) GetAssignmentByPage(_ context.Context, site string, pageID int64) (store.Assignment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assignments {
		if a.Site == site && a.PageID == pageID && a.Status == store.AssignmentActive {
			return a, true, nil
		}
	}
	return store.Assignment{}, false, nil
}

func (m *memStore) ListAssignments(_ context.Context, site string) ([]store.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Assignment
	for _, a := range m.assignments {
		if a.Site == site && a.Status == store.AssignmentActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out, nil
}

func (m *memStore) ReassignKeyword(_ context.Context, site, keyword string, toPageID int64, toPageURL, reason string) (store.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reassignLocked(site, keyword, toPageID, toPageURL, reason), nil
}

// reassignLocked requires m.mu held for writing. It cannot fail: a missing
// active owner degrades to a fresh claim with an empty from-page.
func (m *memStore) reassignLocked(site, keyword string, toPageID int64, toPageURL, reason string) store.Assignment {
	now := time.Now().UTC()
	var fromPageID int64
	for i := range m.assignments {
		a := &m.assignments[i]
		if a.Site == site && a.Keyword == keyword && a.Status == store.AssignmentActive {
			fromPageID = a.PageID
			a.Status = store.AssignmentReassigned
			a.UpdatedAt = now
			break
		}
	}

	next := store.Assignment{
		ID:        uuid.NewString(),
		Site:      site,
		Keyword:   keyword,
		PageID:    toPageID,
		PageURL:   toPageURL,
		Status:    store.AssignmentActive,
		Source:    "reassign",
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.assignments = append(m.assignments, next)

	m.events = append(m.events, store.AssignmentEvent{
		ID:         ulid.MustNew(ulid.Timestamp(now), m.entropy).String(),
		Site:       site,
		Keyword:    keyword,
		FromPageID: fromPageID,
		ToPageID:   toPageID,
		Reason:     reason,
		At:         now,
	})
	return next
}

func (m *memStore) ListAssignmentEvents(_ context.Context, site, keyword string) ([]store.AssignmentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.AssignmentEvent
	for _, e := range m.events {
		if e.Site == site && e.Keyword == keyword {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) SaveConflicts(_ context.Context, conflicts []store.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range conflicts {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Status == "" {
			c.Status = store.ConflictOpen
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		if existing, ok := m.conflicts[c.ID]; ok {
			c.Status = existing.Status
			c.CreatedAt = existing.CreatedAt
			c.ResolvedAt = existing.ResolvedAt
		}
		stored := c
		m.conflicts[c.ID] = &stored
	}
	return nil
}

func (m *memStore) GetConflict(_ context.Context, id string) (store.Conflict, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conflicts[id]
	if !ok {
		return store.Conflict{}, false, nil
	}
	return *c, true, nil
}

func (m *memStore) ListConflicts(_ context.Context, site, status string) ([]store.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Conflict
	for _, c := range m.conflicts {
		if c.Site != site {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) ResolveConflict(_ context.Context, res store.Resolution, newStatus string) (store.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.openConflictLocked(res.ConflictID)
	if err != nil {
		return store.Conflict{}, err
	}
	return m.closeConflictLocked(c, res, newStatus), nil
}

// openConflictLocked requires m.mu held for writing.
func (m *memStore) openConflictLocked(id string) (*store.Conflict, error) {
	c, ok := m.conflicts[id]
	if !ok {
		return nil, fmt.Errorf("conflict %s: %w", id, internalerr.ErrNotFound)
	}
	if c.Status != store.ConflictOpen {
		return nil, internalerr.New(internalerr.CodeAlreadyResolved,
			fmt.Sprintf("conflict %s is %s", id, c.Status), internalerr.ErrDuplicate)
	}
	return c, nil
}

// closeConflictLocked requires m.mu held for writing and c already checked
// open. It cannot fail.
func (m *memStore) closeConflictLocked(c *store.Conflict, res store.Resolution, newStatus string) store.Conflict {
	now := time.Now().UTC()
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.At.IsZero() {
		res.At = now
	}
	c.Status = newStatus
	c.ResolvedAt = &now
	m.resolutions = append(m.resolutions, res)
	return *c
}

func (m *memStore) ApplyResolution(_ context.Context, req store.ResolutionApply) (store.ResolutionApplied, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.openConflictLocked(req.Resolution.ConflictID)
	if err != nil {
		return store.ResolutionApplied{}, err
	}

	var applied store.ResolutionApplied
	if req.Redirect != nil {
		created, chainTarget, err := m.createRedirectLocked(*req.Redirect)
		if err != nil {
			return store.ResolutionApplied{}, err
		}
		applied.Redirect = &created
		applied.ChainTarget = chainTarget
	}
	if req.Reassign != nil {
		r := req.Reassign
		a := m.reassignLocked(r.Site, r.Keyword, r.ToPageID, r.ToPageURL, r.Reason)
		applied.Assignment = &a
	}
	applied.Conflict = m.closeConflictLocked(c, req.Resolution, req.NewStatus)
	return applied, nil
}

func (m *memStore) AddSafePair(_ context.Context, p store.SafePair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, b := p.PageA, p.PageB
	if a > b {
		a, b = b, a
	}
	p.PageA, p.PageB = a, b
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.safePairs[[3]interface{}{p.Site, a, b}] = p
	return nil
}

func (m *memStore) ListSafePairs(_ context.Context, site string) ([]store.SafePair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.SafePair
	for _, p := range m.safePairs {
		if p.Site == site {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PageA != out[j].PageA {
			return out[i].PageA < out[j].PageA
		}
		return out[i].PageB < out[j].PageB
	})
	return out, nil
}

func redirectKey(site, source string) string { return site + "\x00" + source }

func (m *memStore) CreateRedirect(_ context.Context, r store.Redirect) (store.Redirect, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRedirectLocked(r)
}

// createRedirectLocked requires m.mu held for writing. All checks run before
// the insert, so a failure leaves the store untouched.
func (m *memStore) createRedirectLocked(r store.Redirect) (store.Redirect, string, error) {
	if r.SourceURL == r.TargetURL {
		return store.Redirect{}, "", internalerr.New(internalerr.CodeRedirectLoop,
			fmt.Sprintf("%s -> %s would create a redirect loop", r.SourceURL, r.TargetURL),
			internalerr.ErrInvalidInput)
	}
	if reverse, ok := m.redirects[redirectKey(r.Site, r.TargetURL)]; ok && reverse.TargetURL == r.SourceURL {
		return store.Redirect{}, "", internalerr.New(internalerr.CodeRedirectLoop,
			fmt.Sprintf("%s -> %s would create a redirect loop", r.SourceURL, r.TargetURL),
			internalerr.ErrInvalidInput)
	}
	if _, ok := m.redirects[redirectKey(r.Site, r.SourceURL)]; ok {
		return store.Redirect{}, "", fmt.Errorf("redirect from %s: %w", r.SourceURL, internalerr.ErrDuplicate)
	}

	var chainTarget string
	r.ChainDepth = 0
	r.FinalDestination = r.TargetURL
	if next, ok := m.redirects[redirectKey(r.Site, r.TargetURL)]; ok {
		chainTarget = next.TargetURL
		r.ChainDepth = 1
		r.FinalDestination = next.TargetURL
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StatusCode == 0 {
		r.StatusCode = 301
	}
	if r.Status == "" {
		r.Status = store.RedirectPendingReview
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	stored := r
	m.redirects[redirectKey(r.Site, r.SourceURL)] = &stored
	return r, chainTarget, nil
}

func (m *memStore) GetRedirectBySource(_ context.Context, site, sourceURL string) (store.Redirect, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.redirects[redirectKey(site, sourceURL)]
	if !ok {
		return store.Redirect{}, false, nil
	}
	return *r, true, nil
}

func (m *memStore) ListRedirects(_ context.Context, site, status string) ([]store.Redirect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Redirect
	for _, r := range m.redirects {
		if r.Site != site {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceURL < out[j].SourceURL })
	return out, nil
}

func (m *memStore) UpdateRedirectVerification(_ context.Context, id string, v store.RedirectVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.redirects {
		if r.ID == id {
			r.IsVerified = true
			r.VerificationStatus = v.Status
			r.ChainDepth = v.ChainDepth
			r.FinalDestination = v.FinalDestination
			t := v.CheckedAt.UTC()
			r.LastCheckedAt = &t
			return nil
		}
	}
	return fmt.Errorf("redirect %s: %w", id, internalerr.ErrNotFound)
}

func (m *memStore) RemoveRedirect(_ context.Context, id string) (store.Redirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.redirects {
		if r.ID == id {
			r.Status = store.RedirectRemoved
			return *r, nil
		}
	}
	return store.Redirect{}, fmt.Errorf("redirect %s: %w", id, internalerr.ErrNotFound)
}

func (m *memStore) EnqueueItem(_ context.Context, item store.QueueItem) (store.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = store.QueuePending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	stored := item
	m.queue[item.ID] = &stored
	return item, nil
}

func (m *memStore) GetQueueItem(_ context.Context, id string) (store.QueueItem, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.queue[id]
	if !ok {
		return store.QueueItem{}, false, nil
	}
	return *item, true, nil
}

func (m *memStore) ListQueue(_ context.Context, site, status string) ([]store.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.QueueItem
	for _, item := range m.queue {
		if item.Site != site {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) UpdateQueueStatus(_ context.Context, id, status string) (store.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue[id]
	if !ok {
		return store.QueueItem{}, fmt.Errorf("queue item %s: %w", id, internalerr.ErrNotFound)
	}
	item.Status = status
	return *item, nil
}

func (m *memStore) CompleteQueueItem(_ context.Context, id string, log []string) (store.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.queue[id]
	if !ok {
		return store.QueueItem{}, fmt.Errorf("queue item %s: %w", id, internalerr.ErrNotFound)
	}
	if item.Status == store.QueueCompleted {
		return store.QueueItem{}, internalerr.New(internalerr.CodeAlreadyCompleted,
			fmt.Sprintf("queue item %s is already completed", id), internalerr.ErrDuplicate)
	}

	now := time.Now().UTC()
	item.Status = store.QueueCompleted
	item.StepLog = append([]string(nil), log...)
	item.CompletedAt = &now
	return *item, nil
}

func (m *memStore) AppendValidation(_ context.Context, v store.ValidationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = ulid.MustNew(ulid.Now(), m.entropy).String()
	}
	if v.At.IsZero() {
		v.At = time.Now().UTC()
	}
	m.validations = append(m.validations, v)
	return nil
}

func (m *memStore) ListValidations(_ context.Context, site string, limit int) ([]store.ValidationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []store.ValidationRecord
	for i := len(m.validations) - 1; i >= 0 && len(out) < limit; i-- {
		if m.validations[i].Site == site {
			out = append(out, m.validations[i])
		}
	}
	return out, nil
}
