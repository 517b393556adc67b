// Package preflight validates proposed content before generation. Ten checks
// run in a fixed sequence with no short-circuit so the caller always sees
// the full diagnostic picture; any BLOCK means content must not proceed.
package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/siloworks/siloguard/pkg/siloguard/registry"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
	"github.com/siloworks/siloguard/pkg/siloguard/textsim"
)

// Status is a check or pipeline verdict.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusWarn    Status = "WARN"
	StatusBlock   Status = "BLOCK"
	StatusSkipped Status = "SKIPPED"
)

// Check names, in run order.
const (
	CheckKeywordRegistry = "keyword_registry"
	CheckTitleOverlap    = "title_keyword_overlap"
	CheckIntentSkeleton  = "intent_skeleton"
	CheckUniqueModifier  = "unique_modifier"
	CheckSlugSimilarity  = "slug_similarity"
	CheckH1Cross         = "h1_cross_check"
	CheckSiloBoundary    = "silo_boundary"
	CheckURLDepth        = "url_depth"
	CheckCanonicalTag    = "canonical_tag"
	CheckSemanticCluster = "semantic_cluster"
)

// Proposal is the content a caller wants to create.
type Proposal struct {
	Title    string
	Slug     string
	H1       string
	Keyword  string
	SiloID   string
	PageType string // hub or spoke
}

// ExistingPage is one already-published page the proposal is checked
// against.
type ExistingPage struct {
	ID           int64
	Title        string
	H1           string
	Slug         string
	CanonicalURL string
	SiloID       string
}

// CheckResult is one check's outcome with enough detail for a human to act
// on a failure.
type CheckResult struct {
	Name   string
	Status Status
	Detail string
	Match  map[string]any
}

// Result is the full pipeline outcome.
type Result struct {
	Status        Status
	BlockingCheck string
	Checks        []CheckResult
	Warnings      []CheckResult
}

// Config holds the pipeline thresholds.
type Config struct {
	TitleOverlapBlock float64
	TitleOverlapWarn  float64
	SkeletonBlock     float64
	SkeletonWarn      float64
	SlugBlock         float64
	SlugWarn          float64
	CrossCheckBlock   float64
	CanonicalBlock    float64
	HubDepth          int
	SpokeDepth        int
	WarnDepth         int
}

// DefaultConfig returns the tuned thresholds.
func DefaultConfig() Config {
	return Config{
		TitleOverlapBlock: 0.85,
		TitleOverlapWarn:  0.70,
		SkeletonBlock:     0.90,
		SkeletonWarn:      0.75,
		SlugBlock:         0.85,
		SlugWarn:          0.70,
		CrossCheckBlock:   0.80,
		CanonicalBlock:    0.85,
		HubDepth:          1,
		SpokeDepth:        2,
		WarnDepth:         3,
	}
}

// SemanticMatcher is the optional embeddings-backed cluster check. Without
// one the tenth check reports SKIPPED.
type SemanticMatcher interface {
	SimilarCluster(ctx context.Context, title string) (matched bool, detail string, err error)
}

// Pipeline runs the preflight checks.
type Pipeline struct {
	registry *registry.Registry
	store    store.Store
	tok      *textsim.Tokenizer
	cfg      Config
	semantic SemanticMatcher
}

// New creates a pipeline. The store is used only for the validation log;
// semantic may be nil.
func New(reg *registry.Registry, st store.Store, cfg Config, semantic SemanticMatcher) *Pipeline {
	return &Pipeline{
		registry: reg,
		store:    st,
		tok:      textsim.NewTokenizer(),
		cfg:      cfg,
		semantic: semantic,
	}
}

// Run executes all ten checks against the proposal. The outcome is logged
// best-effort; a logging failure never fails the validation.
func (p *Pipeline) Run(ctx context.Context, site string, proposal Proposal, pages []ExistingPage) (Result, error) {
	assignments, err := p.registryAssignments(ctx, site)
	if err != nil {
		return Result{}, err
	}

	checks := []CheckResult{
		p.checkKeywordRegistry(proposal, assignments),
		p.checkTitleOverlap(proposal, pages),
		p.checkIntentSkeleton(proposal, pages),
		p.checkUniqueModifier(proposal, pages),
		p.checkSlugSimilarity(proposal, pages),
		p.checkH1Cross(proposal, pages),
		p.checkSiloBoundary(proposal, assignments, pages),
		p.checkURLDepth(proposal),
		p.checkCanonicalTag(proposal, pages),
		p.checkSemanticCluster(ctx, proposal),
	}

	result := Result{Status: StatusPass, Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case StatusBlock:
			if result.Status != StatusBlock {
				result.Status = StatusBlock
				result.BlockingCheck = c.Name
			}
		case StatusWarn:
			result.Warnings = append(result.Warnings, c)
			if result.Status == StatusPass {
				result.Status = StatusWarn
			}
		}
	}

	p.logValidation(ctx, site, proposal, result)
	return result, nil
}

func (p *Pipeline) registryAssignments(ctx context.Context, site string) ([]store.Assignment, error) {
	if p.registry == nil {
		return nil, nil
	}
	return p.registry.List(ctx, site)
}

func pass(name string) CheckResult {
	return CheckResult{Name: name, Status: StatusPass}
}

func skipped(name, detail string) CheckResult {
	return CheckResult{Name: name, Status: StatusSkipped, Detail: detail}
}

// Check 1: exact keyword match blocks, substring containment warns.
func (p *Pipeline) checkKeywordRegistry(proposal Proposal, assignments []store.Assignment) CheckResult {
	proposed := registry.NormalizeKeyword(proposal.Keyword)
	if proposed == "" {
		return pass(CheckKeywordRegistry)
	}

	for _, a := range assignments {
		if a.Keyword == proposed {
			return CheckResult{
				Name:   CheckKeywordRegistry,
				Status: StatusBlock,
				Detail: fmt.Sprintf("exact keyword %q already assigned to %s", proposed, a.PageURL),
				Match:  map[string]any{"existing_keyword": a.Keyword, "page_id": a.PageID},
			}
		}
	}
	for _, a := range assignments {
		if strings.Contains(a.Keyword, proposed) || strings.Contains(proposed, a.Keyword) {
			return CheckResult{
				Name:   CheckKeywordRegistry,
				Status: StatusWarn,
				Detail: fmt.Sprintf("substring overlap: %q vs %q (page %s)", proposed, a.Keyword, a.PageURL),
				Match:  map[string]any{"existing_keyword": a.Keyword, "page_id": a.PageID},
			}
		}
	}
	return pass(CheckKeywordRegistry)
}

// Check 2: proposed title tokens vs every existing title.
func (p *Pipeline) checkTitleOverlap(proposal Proposal, pages []ExistingPage) CheckResult {
	proposed := p.tok.Tokenize(proposal.Title)
	if len(proposed) == 0 {
		return pass(CheckTitleOverlap)
	}
	for _, page := range pages {
		overlap := textsim.KeywordOverlap(proposed, p.tok.Tokenize(page.Title))
		if overlap >= p.cfg.TitleOverlapBlock {
			return overlapResult(CheckTitleOverlap, StatusBlock, overlap, page.Title)
		}
		if overlap >= p.cfg.TitleOverlapWarn {
			return overlapResult(CheckTitleOverlap, StatusWarn, overlap, page.Title)
		}
	}
	return pass(CheckTitleOverlap)
}

// Check 3: intent skeletons vs every existing title.
func (p *Pipeline) checkIntentSkeleton(proposal Proposal, pages []ExistingPage) CheckResult {
	proposed := p.tok.IntentSkeleton(proposal.Title)
	if len(proposed) == 0 {
		return pass(CheckIntentSkeleton)
	}
	for _, page := range pages {
		overlap := textsim.KeywordOverlap(proposed, p.tok.IntentSkeleton(page.Title))
		if overlap >= p.cfg.SkeletonBlock {
			return overlapResult(CheckIntentSkeleton, StatusBlock, overlap, page.Title)
		}
		if overlap >= p.cfg.SkeletonWarn {
			return overlapResult(CheckIntentSkeleton, StatusWarn, overlap, page.Title)
		}
	}
	return pass(CheckIntentSkeleton)
}

// Check 4: within a silo, the proposed title must contribute at least one
// keyword its siblings do not already cover.
func (p *Pipeline) checkUniqueModifier(proposal Proposal, pages []ExistingPage) CheckResult {
	if proposal.SiloID == "" {
		return pass(CheckUniqueModifier)
	}

	siblingTokens := make(map[string]struct{})
	siblings := 0
	for _, page := range pages {
		if page.SiloID != proposal.SiloID {
			continue
		}
		siblings++
		for _, tok := range p.tok.Tokenize(page.Title) {
			siblingTokens[tok] = struct{}{}
		}
	}
	if siblings == 0 {
		return pass(CheckUniqueModifier)
	}

	for _, tok := range p.tok.Tokenize(proposal.Title) {
		if _, ok := siblingTokens[tok]; !ok {
			return pass(CheckUniqueModifier)
		}
	}
	return CheckResult{
		Name:   CheckUniqueModifier,
		Status: StatusBlock,
		Detail: fmt.Sprintf("no unique modifiers vs %d existing silo titles", siblings),
		Match:  map[string]any{"silo_titles_count": siblings},
	}
}

// Check 5: edit-distance similarity against every existing slug.
func (p *Pipeline) checkSlugSimilarity(proposal Proposal, pages []ExistingPage) CheckResult {
	if proposal.Slug == "" {
		return pass(CheckSlugSimilarity)
	}
	for _, page := range pages {
		if page.Slug == "" {
			continue
		}
		sim := textsim.LevenshteinSimilarity(proposal.Slug, page.Slug)
		if sim >= p.cfg.SlugBlock {
			return similarityResult(CheckSlugSimilarity, StatusBlock, sim, page.Slug)
		}
		if sim >= p.cfg.SlugWarn {
			return similarityResult(CheckSlugSimilarity, StatusWarn, sim, page.Slug)
		}
	}
	return pass(CheckSlugSimilarity)
}

// Check 6: both proposed texts against both existing texts. Catches a new
// H1 colliding with an old title and vice versa.
func (p *Pipeline) checkH1Cross(proposal Proposal, pages []ExistingPage) CheckResult {
	var proposed []string
	for _, t := range []string{proposal.Title, proposal.H1} {
		if t != "" {
			proposed = append(proposed, t)
		}
	}
	var existing []string
	for _, page := range pages {
		if page.Title != "" {
			existing = append(existing, page.Title)
		}
		if page.H1 != "" {
			existing = append(existing, page.H1)
		}
	}

	for _, prop := range proposed {
		propTokens := p.tok.Tokenize(prop)
		for _, ex := range existing {
			overlap := textsim.KeywordOverlap(propTokens, p.tok.Tokenize(ex))
			if overlap >= p.cfg.CrossCheckBlock {
				return CheckResult{
					Name:   CheckH1Cross,
					Status: StatusBlock,
					Detail: fmt.Sprintf("%.0f%% overlap: %q vs %q", overlap*100, prop, ex),
					Match:  map[string]any{"proposed": prop, "existing": ex, "overlap": overlap},
				}
			}
		}
	}
	return pass(CheckH1Cross)
}

// Check 7: a keyword registered to a page in another silo stays there.
func (p *Pipeline) checkSiloBoundary(proposal Proposal, assignments []store.Assignment, pages []ExistingPage) CheckResult {
	if proposal.SiloID == "" {
		return pass(CheckSiloBoundary)
	}
	proposed := registry.NormalizeKeyword(proposal.Keyword)
	if proposed == "" {
		return pass(CheckSiloBoundary)
	}

	siloByPage := make(map[int64]string, len(pages))
	for _, page := range pages {
		siloByPage[page.ID] = page.SiloID
	}
	for _, a := range assignments {
		if a.Keyword != proposed {
			continue
		}
		ownerSilo, known := siloByPage[a.PageID]
		if known && ownerSilo != "" && ownerSilo != proposal.SiloID {
			return CheckResult{
				Name:   CheckSiloBoundary,
				Status: StatusBlock,
				Detail: fmt.Sprintf("keyword %q belongs to silo %s, not %s", proposed, ownerSilo, proposal.SiloID),
				Match:  map[string]any{"wrong_silo_id": ownerSilo, "assigned_silo_id": proposal.SiloID},
			}
		}
	}
	return pass(CheckSiloBoundary)
}

// Check 8: hubs live at depth 1, spokes at 2. Deep URLs only warn; depth is
// a structure smell, not a conflict.
func (p *Pipeline) checkURLDepth(proposal Proposal) CheckResult {
	if proposal.Slug == "" {
		return pass(CheckURLDepth)
	}
	depth := strings.Count(strings.Trim(proposal.Slug, "/"), "/") + 1
	expected := p.cfg.SpokeDepth
	if proposal.PageType == "hub" {
		expected = p.cfg.HubDepth
	}
	if depth > expected && depth >= p.cfg.WarnDepth {
		return CheckResult{
			Name:   CheckURLDepth,
			Status: StatusWarn,
			Detail: fmt.Sprintf("url depth %d exceeds expected %d for %s page", depth, expected, proposal.PageType),
			Match:  map[string]any{"depth": depth, "expected": expected},
		}
	}
	return pass(CheckURLDepth)
}

// Check 9: no existing page may already canonicalize to a slug this similar.
func (p *Pipeline) checkCanonicalTag(proposal Proposal, pages []ExistingPage) CheckResult {
	if proposal.Slug == "" {
		return pass(CheckCanonicalTag)
	}
	for _, page := range pages {
		if page.CanonicalURL == "" {
			continue
		}
		segments := strings.Split(strings.Trim(page.CanonicalURL, "/"), "/")
		canonicalSlug := segments[len(segments)-1]
		sim := textsim.LevenshteinSimilarity(proposal.Slug, canonicalSlug)
		if sim >= p.cfg.CanonicalBlock {
			return CheckResult{
				Name:   CheckCanonicalTag,
				Status: StatusBlock,
				Detail: fmt.Sprintf("existing page canonicalizes to %q (%.0f%% similar)", page.CanonicalURL, sim*100),
				Match:  map[string]any{"canonical_url": page.CanonicalURL, "similarity": sim},
			}
		}
	}
	return pass(CheckCanonicalTag)
}

// Check 10: embeddings-backed cluster match, skipped without a provider. A
// provider failure also skips; external outages never block publishing.
func (p *Pipeline) checkSemanticCluster(ctx context.Context, proposal Proposal) CheckResult {
	if p.semantic == nil {
		return skipped(CheckSemanticCluster, "no embeddings provider configured")
	}
	matched, detail, err := p.semantic.SimilarCluster(ctx, proposal.Title)
	if err != nil {
		return skipped(CheckSemanticCluster, fmt.Sprintf("provider error: %v", err))
	}
	if matched {
		return CheckResult{Name: CheckSemanticCluster, Status: StatusBlock, Detail: detail}
	}
	return pass(CheckSemanticCluster)
}

// logValidation appends the run to the validation log. Best-effort only.
func (p *Pipeline) logValidation(ctx context.Context, site string, proposal Proposal, result Result) {
	if p.store == nil {
		return
	}
	detail, err := json.Marshal(result.Checks)
	if err != nil {
		return
	}
	_ = p.store.AppendValidation(ctx, store.ValidationRecord{
		Site:       site,
		Title:      proposal.Title,
		Slug:       proposal.Slug,
		Result:     string(result.Status),
		DetailJSON: string(detail),
	})
}

func overlapResult(name string, status Status, overlap float64, title string) CheckResult {
	return CheckResult{
		Name:   name,
		Status: status,
		Detail: fmt.Sprintf("%.0f%% overlap with %q", overlap*100, title),
		Match:  map[string]any{"existing_title": title, "overlap": overlap},
	}
}

func similarityResult(name string, status Status, sim float64, slug string) CheckResult {
	return CheckResult{
		Name:   name,
		Status: status,
		Detail: fmt.Sprintf("%.0f%% slug similarity with %q", sim*100, slug),
		Match:  map[string]any{"existing_slug": slug, "similarity": sim},
	}
}
