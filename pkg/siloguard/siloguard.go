// Package siloguard is the keyword-cannibalization engine facade: detection
// over classified pages and search data, fix planning, preflight validation
// for new content, and conflict resolution against the keyword registry and
// redirect graph.
package siloguard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/config"
	"github.com/siloworks/siloguard/pkg/siloguard/detect"
	"github.com/siloworks/siloguard/pkg/siloguard/fixplan"
	"github.com/siloworks/siloguard/pkg/siloguard/metrics"
	"github.com/siloworks/siloguard/pkg/siloguard/preflight"
	"github.com/siloworks/siloguard/pkg/siloguard/redirects"
	"github.com/siloworks/siloguard/pkg/siloguard/registry"
	"github.com/siloworks/siloguard/pkg/siloguard/resolution"
	"github.com/siloworks/siloguard/pkg/siloguard/score"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
)

// Siloguard wires the engine's components over one store.
type Siloguard struct {
	store      store.Store
	cfg        *config.Components
	classifier *classify.Classifier
	registry   *registry.Registry
	preflight  *preflight.Pipeline
	redirects  *redirects.Service
	resolution *resolution.Service
	scorer     *score.Scorer
	fixes      *fixplan.Builder
	metrics    *metrics.Metrics
}

// Options configures a Siloguard instance. Store is required; a nil Config
// uses the tuned defaults; Metrics may be nil to disable monitoring.
type Options struct {
	Store      store.Store
	Config     *config.Components
	HTTPClient redirects.Doer
	Semantic   preflight.SemanticMatcher
	Metrics    *metrics.Metrics
}

// New creates a Siloguard instance with the given dependencies.
func New(opts Options) (*Siloguard, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("siloguard: Options.Store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = (&config.Loader{}).Load()
		if err != nil {
			return nil, err
		}
	}

	reg := registry.New(opts.Store)
	redir := redirects.New(opts.Store, opts.HTTPClient)
	redir.CheckTimeout = cfg.RedirectTimeout

	return &Siloguard{
		store:      opts.Store,
		cfg:        cfg,
		classifier: classify.New(),
		registry:   reg,
		preflight:  preflight.New(reg, opts.Store, cfg.Preflight, opts.Semantic),
		redirects:  redir,
		resolution: resolution.New(opts.Store),
		scorer:     score.NewScorer(score.DefaultWeights()),
		fixes:      fixplan.New(),
		metrics:    opts.Metrics,
	}, nil
}

// Close shuts the instance down.
func (s *Siloguard) Close() error {
	return s.store.Close()
}

// Registry exposes the keyword registry.
func (s *Siloguard) Registry() *registry.Registry { return s.registry }

// Redirects exposes the redirect service.
func (s *Siloguard) Redirects() *redirects.Service { return s.redirects }

func (s *Siloguard) site() string { return s.cfg.Site.Name }

// Bootstrap seeds the keyword registry from the existing site.
func (s *Siloguard) Bootstrap(ctx context.Context, candidates []registry.Candidate) (registry.BootstrapResult, error) {
	return s.registry.Bootstrap(ctx, s.site(), candidates)
}

// AddSafePair marks two pages as intentionally similar; detection skips the
// pair from then on.
func (s *Siloguard) AddSafePair(ctx context.Context, pageA, pageB int64, reason string) error {
	return s.store.AddSafePair(ctx, store.SafePair{
		Site: s.site(), PageA: pageA, PageB: pageB, Reason: reason,
	})
}

// DetectionInput is one run's raw material: the site's pages and an optional
// batch of per-query search rows.
type DetectionInput struct {
	Pages      []classify.PageInput
	SearchRows []detect.SearchRow
}

// DetectionResult reports one detection run.
type DetectionResult struct {
	StaticIssues int
	SearchIssues int
	Issues       []detect.Issue
	Conflicts    []store.Conflict
}

// conflictMetadata is the per-type detail persisted alongside a conflict.
type conflictMetadata struct {
	SharedSlug      string  `json:"shared_slug,omitempty"`
	LegacyURL       string  `json:"legacy_url,omitempty"`
	CleanURL        string  `json:"clean_url,omitempty"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`
	ServiceKeyword  string  `json:"service_keyword,omitempty"`
	TitleTemplate   string  `json:"title_template,omitempty"`
	QueryIntent     string  `json:"query_intent,omitempty"`
	GSCValidated    bool    `json:"gsc_validated,omitempty"`
}

// RunDetection classifies the pages, runs both detectors, reconciles their
// findings, and persists the result as open conflicts with priorities and a
// recommended winner per conflict. Detection itself is read-only; only the
// final save writes.
func (s *Siloguard) RunDetection(ctx context.Context, in DetectionInput) (DetectionResult, error) {
	classifications := s.classifier.ClassifyAll(in.Pages)

	pairs, err := s.store.ListSafePairs(ctx, s.site())
	if err != nil {
		return DetectionResult{}, err
	}
	raw := make([][2]int64, len(pairs))
	for i, p := range pairs {
		raw[i] = [2]int64{p.PageA, p.PageB}
	}
	safe := detect.NewSafePairs(raw)

	static := detect.RunStatic(classifications, safe, s.cfg.Static)
	search := detect.RunSearch(classifications, in.SearchRows, s.cfg.Site.Brand, s.cfg.Site.HomepageTitle, s.cfg.Search)
	issues := detect.Merge(static, search)

	conflicts := make([]store.Conflict, 0, len(issues))
	for _, r := range s.scorer.Rank(issues) {
		conflict, err := s.toConflict(r)
		if err != nil {
			return DetectionResult{}, err
		}
		conflicts = append(conflicts, conflict)
	}
	if err := s.store.SaveConflicts(ctx, conflicts); err != nil {
		return DetectionResult{}, err
	}

	s.metrics.RecordDetectionRun("static", typeNames(static))
	s.metrics.RecordDetectionRun("search", typeNames(search))
	if open, err := s.store.ListConflicts(ctx, s.site(), store.ConflictOpen); err == nil {
		s.metrics.SetOpenConflicts(len(open))
	}

	return DetectionResult{
		StaticIssues: len(static),
		SearchIssues: len(search),
		Issues:       issues,
		Conflicts:    conflicts,
	}, nil
}

func (s *Siloguard) toConflict(r score.Ranked) (store.Conflict, error) {
	issue := r.Issue
	meta, err := json.Marshal(conflictMetadata{
		SharedSlug:      issue.SharedSlug,
		LegacyURL:       issue.LegacyURL,
		CleanURL:        issue.CleanURL,
		SimilarityScore: issue.SimilarityScore,
		ServiceKeyword:  issue.ServiceKeyword,
		TitleTemplate:   issue.TitleTemplate,
		QueryIntent:     string(issue.QueryIntent),
		GSCValidated:    issue.GSCValidated,
	})
	if err != nil {
		return store.Conflict{}, err
	}

	var pages []store.ConflictPage
	for _, ps := range score.RecommendWinner(issue) {
		role := "loser"
		if ps.Recommended {
			role = "winner"
		}
		pages = append(pages, store.ConflictPage{
			PageID:      ps.Page.PageID,
			PageURL:     ps.Page.URL,
			Role:        role,
			Clicks:      ps.Clicks,
			Impressions: ps.Impressions,
		})
	}

	return store.Conflict{
		ID:           uuid.NewString(),
		Site:         s.site(),
		Type:         string(issue.Type),
		Severity:     string(issue.Severity),
		Badge:        string(issue.Badge),
		Bucket:       string(issue.Bucket),
		Action:       string(issue.Action),
		Query:        issue.Query,
		Status:       store.ConflictOpen,
		Priority:     r.Priority,
		MetadataJSON: string(meta),
		Pages:        pages,
	}, nil
}

func typeNames(issues []detect.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = string(issue.Type)
	}
	return out
}

// ConflictFilter narrows a conflict listing. An empty Status means open
// conflicts; MinImpressions compares against the conflict's combined page
// impressions.
type ConflictFilter struct {
	Status         string
	Severity       string
	MinImpressions int64
}

// ListConflicts returns the site's conflicts matching the filter, highest
// priority first.
func (s *Siloguard) ListConflicts(ctx context.Context, f ConflictFilter) ([]store.Conflict, error) {
	status := f.Status
	if status == "" {
		status = store.ConflictOpen
	}
	conflicts, err := s.store.ListConflicts(ctx, s.site(), status)
	if err != nil {
		return nil, err
	}
	out := conflicts[:0]
	for _, c := range conflicts {
		if f.Severity != "" && c.Severity != f.Severity {
			continue
		}
		if f.MinImpressions > 0 && totalImpressions(c) < f.MinImpressions {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// SeveritySummary counts the site's open conflicts per severity.
func (s *Siloguard) SeveritySummary(ctx context.Context) (map[string]int, error) {
	conflicts, err := s.store.ListConflicts(ctx, s.site(), store.ConflictOpen)
	if err != nil {
		return nil, err
	}
	summary := make(map[string]int)
	for _, c := range conflicts {
		summary[c.Severity]++
	}
	return summary, nil
}

func totalImpressions(c store.Conflict) int64 {
	var total int64
	for _, p := range c.Pages {
		total += p.Impressions
	}
	return total
}

// ProposeFixes builds remediation plans for detected issues, highest
// priority first. The plans are proposals only; nothing is written.
func (s *Siloguard) ProposeFixes(issues []detect.Issue) ([]fixplan.Plan, error) {
	return s.fixes.BuildAll(issues)
}

// Preflight validates a content proposal against the live site and the
// keyword registry.
func (s *Siloguard) Preflight(ctx context.Context, proposal preflight.Proposal, pages []preflight.ExistingPage) (preflight.Result, error) {
	result, err := s.preflight.Run(ctx, s.site(), proposal, pages)
	if err != nil {
		return preflight.Result{}, err
	}
	s.metrics.RecordPreflight(string(result.Status))
	return result, nil
}

// Resolve closes a conflict with the given action.
func (s *Siloguard) Resolve(ctx context.Context, req resolution.Request) (resolution.Outcome, error) {
	outcome, err := s.resolution.Resolve(ctx, req)
	if err != nil {
		return resolution.Outcome{}, err
	}
	s.metrics.RecordResolution(req.Action)
	return outcome, nil
}

// Dismiss closes a conflict without remediation.
func (s *Siloguard) Dismiss(ctx context.Context, conflictID, notes, resolvedBy string) (resolution.Outcome, error) {
	outcome, err := s.resolution.Dismiss(ctx, conflictID, notes, resolvedBy)
	if err != nil {
		return resolution.Outcome{}, err
	}
	s.metrics.RecordResolution(resolution.ActionDismiss)
	return outcome, nil
}

// EnqueueFix schedules an approved fix on the lifecycle queue.
func (s *Siloguard) EnqueueFix(ctx context.Context, conflictID, action string) (store.QueueItem, error) {
	conflict, ok, err := s.store.GetConflict(ctx, conflictID)
	if err != nil {
		return store.QueueItem{}, err
	}
	if !ok {
		return store.QueueItem{}, fmt.Errorf("conflict %s not found", conflictID)
	}
	return s.resolution.Enqueue(ctx, conflict, action)
}

// ExecuteFix runs one queued fix synchronously.
func (s *Siloguard) ExecuteFix(ctx context.Context, itemID, resolvedBy string) (store.QueueItem, error) {
	item, err := s.resolution.Execute(ctx, itemID, resolvedBy)
	if err != nil {
		return store.QueueItem{}, err
	}
	s.metrics.RecordResolution(item.Action)
	return item, nil
}

// VerifyRedirects probes every active redirect and records outcomes.
func (s *Siloguard) VerifyRedirects(ctx context.Context) (redirects.SweepResult, error) {
	result, err := s.redirects.VerifySweep(ctx, s.site())
	if err != nil {
		return redirects.SweepResult{}, err
	}
	for i := 0; i < result.Healthy; i++ {
		s.metrics.RecordRedirectCheck("healthy")
	}
	for i := 0; i < result.Broken; i++ {
		s.metrics.RecordRedirectCheck("broken")
	}
	return result, nil
}
