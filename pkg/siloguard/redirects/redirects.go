// Package redirects manages the 301 graph: creation with loop and chain
// checks, and a verification sweep that probes each registered redirect
// against the live site.
package redirects

import (
	"context"
	"net/http"
	"time"

	"github.com/siloworks/siloguard/pkg/siloguard/store"
)

// Service wraps the store's redirect operations.
type Service struct {
	store  store.Store
	client Doer

	// CheckTimeout bounds each probe during a sweep. A probe that cannot
	// answer in time counts as broken.
	CheckTimeout time.Duration
}

// Doer is the subset of http.Client the sweep needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// New creates a redirect service. A nil client gets a default http.Client
// that does not follow redirects, since the probe inspects the 301 itself.
func New(s store.Store, client Doer) *Service {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Service{
		store:        s,
		client:       client,
		CheckTimeout: 10 * time.Second,
	}
}

// CreateResult reports a successful creation. ChainTarget is non-empty when
// the new redirect's target itself redirects onward; the caller should
// consider pointing at ChainTarget directly.
type CreateResult struct {
	Redirect    store.Redirect
	ChainTarget string
}

// Create registers a redirect. Loops fail with REDIRECT_LOOP, duplicate
// sources with ErrDuplicate; chains are allowed but flagged.
func (s *Service) Create(ctx context.Context, r store.Redirect) (CreateResult, error) {
	created, chainTarget, err := s.store.CreateRedirect(ctx, r)
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Redirect: created, ChainTarget: chainTarget}, nil
}

// Get returns the redirect registered for a source URL.
func (s *Service) Get(ctx context.Context, site, sourceURL string) (store.Redirect, bool, error) {
	return s.store.GetRedirectBySource(ctx, site, sourceURL)
}

// List returns a site's redirects, optionally filtered by status.
func (s *Service) List(ctx context.Context, site, status string) ([]store.Redirect, error) {
	return s.store.ListRedirects(ctx, site, status)
}

// Remove retires a redirect once the move it served is confirmed done. The
// row keeps its history; only the lifecycle status changes.
func (s *Service) Remove(ctx context.Context, id string) (store.Redirect, error) {
	return s.store.RemoveRedirect(ctx, id)
}

// SweepResult summarizes one verification pass.
type SweepResult struct {
	Checked int
	Healthy int
	Broken  int
	Chains  int
	Loops   int
}

// maxChainWalk caps the hop count so a malformed redirect graph cannot spin
// the sweep.
const maxChainWalk = 10

// VerifySweep probes every active redirect for a site, re-walks the redirect
// graph for chains and loops, and records the outcome on each row. A redirect
// is healthy when the source answers with its configured status code pointing
// at its target; probe errors and timeouts mark it broken. Pending and
// removed redirects are not swept. The sweep is idempotent; re-running it
// refreshes the verification columns.
func (s *Service) VerifySweep(ctx context.Context, site string) (SweepResult, error) {
	active, err := s.store.ListRedirects(ctx, site, store.RedirectActive)
	if err != nil {
		return SweepResult{}, err
	}

	bySource := make(map[string]string, len(active))
	for _, r := range active {
		bySource[r.SourceURL] = r.TargetURL
	}

	var result SweepResult
	for _, r := range active {
		result.Checked++

		depth, final, loop := walkChain(bySource, r)
		if loop {
			result.Loops++
		} else if depth > 0 {
			result.Chains++
		}

		v := store.RedirectVerification{
			ChainDepth:       depth,
			FinalDestination: final,
			CheckedAt:        time.Now().UTC(),
		}
		if s.probe(ctx, r) {
			v.Status = store.VerificationHealthy
			result.Healthy++
		} else {
			v.Status = store.VerificationBroken
			result.Broken++
		}
		if err := s.store.UpdateRedirectVerification(ctx, r.ID, v); err != nil {
			return result, err
		}
	}
	return result, nil
}

// walkChain follows the active redirect graph from r's target. depth counts
// the extra hops beyond r itself; final is the last URL reached; loop reports
// that the walk came back to a URL it had already passed through.
func walkChain(bySource map[string]string, r store.Redirect) (depth int, final string, loop bool) {
	final = r.TargetURL
	seen := map[string]bool{r.SourceURL: true, r.TargetURL: true}
	for depth < maxChainWalk {
		next, ok := bySource[final]
		if !ok {
			return depth, final, false
		}
		if seen[next] {
			return depth + 1, next, true
		}
		seen[next] = true
		final = next
		depth++
	}
	return depth, final, true
}

// probe checks one redirect against the live site.
func (s *Service) probe(ctx context.Context, r store.Redirect) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, r.SourceURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != r.StatusCode {
		return false
	}
	location, err := resp.Location()
	if err != nil {
		return false
	}
	return location.String() == r.TargetURL
}
