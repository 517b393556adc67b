// Package fixplan turns detected issues into concrete remediation plans:
// ordered steps per issue, a CSV export for the redirect import tools, and a
// human-readable action plan.
package fixplan

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/detect"
	"github.com/siloworks/siloguard/pkg/siloguard/internalerr"
	"github.com/siloworks/siloguard/pkg/siloguard/score"
)

// StepKind names what a single remediation step changes.
type StepKind string

const (
	StepRedirect301    StepKind = "redirect_301"
	StepSlugChange     StepKind = "slug_change"
	StepTitleRewrite   StepKind = "title_rewrite"
	StepContentRewrite StepKind = "content_rewrite"
	StepDeoptimize     StepKind = "deoptimize"
	StepInternalLinks  StepKind = "internal_links"
	StepReview         StepKind = "review"
)

// Step is one concrete action inside a plan. TargetURL is set only for
// redirect and link steps.
type Step struct {
	Kind        StepKind
	PageURL     string
	TargetURL   string
	Instruction string
}

// Confidence grades how safe a plan is to execute without a human.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Plan is the full remediation for one detected issue.
type Plan struct {
	ID             string
	ConflictType   detect.ConflictType
	Action         detect.ActionCode
	Severity       detect.Severity
	Confidence     Confidence
	Priority       int
	Query          string
	WinnerURL      string
	RequiresReview bool
	Steps          []Step
	Pages          []score.PageScore
}

// Builder constructs remediation plans
type Builder struct {
	entropy *ulid.MonotonicEntropy
	scorer  *score.Scorer
}

// New creates a plan builder with default priority weights.
func New() *Builder {
	return &Builder{
		entropy: ulid.Monotonic(rand.Reader, 0),
		scorer:  score.NewScorer(score.DefaultWeights()),
	}
}

// BuildAll plans every issue, highest priority first. Building stops at the
// first issue whose action the engine does not handle.
func (b *Builder) BuildAll(issues []detect.Issue) ([]Plan, error) {
	ranked := b.scorer.Rank(issues)
	plans := make([]Plan, 0, len(ranked))
	for _, r := range ranked {
		plan, err := b.Build(r.Issue)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Build plans a single issue. The action switch is exhaustive: an action
// without a handler is a taxonomy bug, not something to skip silently.
func (b *Builder) Build(issue detect.Issue) (Plan, error) {
	scores := score.RecommendWinner(issue)
	plan := Plan{
		ID:           ulid.MustNew(ulid.Now(), b.entropy).String(),
		ConflictType: issue.Type,
		Action:       issue.Action,
		Severity:     issue.Severity,
		Confidence:   confidenceFor(issue),
		Priority:     b.scorer.Priority(issue),
		Query:        issue.Query,
		Pages:        scores,
	}
	if winner, ok := score.Winner(scores); ok {
		plan.WinnerURL = winner.Page.URL
	}

	switch issue.Action {
	case detect.ActionRedirectToCanonical:
		plan.Steps = redirectLosers(scores)

	case detect.ActionReviewAndRedirect:
		plan.RequiresReview = true
		plan.Steps = append([]Step{{
			Kind:        StepReview,
			PageURL:     plan.WinnerURL,
			Instruction: "No clear canonical. Confirm the winner before the redirects below go live.",
		}}, redirectLosers(scores)...)

	case detect.ActionRewriteLocalEvidence:
		for _, ps := range scores {
			plan.Steps = append(plan.Steps, Step{
				Kind:        StepContentRewrite,
				PageURL:     ps.Page.URL,
				Instruction: fmt.Sprintf("Replace the boilerplate template with local evidence for %q: projects, reviews, landmarks, area-specific pricing.", ps.Page.GeoNode),
			})
		}

	case detect.ActionStrengthenCorrectPage:
		plan.Steps = strengthenSteps(scores, issue.Query)

	case detect.ActionRedirectOrDifferentiate:
		plan.RequiresReview = true
		plan.Steps = []Step{{
			Kind:        StepReview,
			PageURL:     plan.WinnerURL,
			Instruction: "Decide: merge the duplicates into the winner via 301, or keep both and differentiate their content and titles.",
		}}
		plan.Steps = append(plan.Steps, redirectLosers(scores)...)

	case detect.ActionHomepageDeoptimize:
		plan.Steps = deoptimizeSteps(scores, issue.Query)

	case detect.ActionSlugPivot:
		plan.RequiresReview = true
		plan.Steps = slugPivotSteps(scores)

	default:
		return Plan{}, internalerr.New(internalerr.CodeUnhandledType,
			fmt.Sprintf("no fix handler for action %q (conflict type %s)", issue.Action, issue.Type),
			internalerr.ErrInvalidInput).WithDetail("conflict_type", string(issue.Type))
	}

	return plan, nil
}

// confidenceFor grades the proposal. Legacy cleanups and search-confirmed
// conflicts redirect to an obvious canonical; structural clashes and
// near-duplicates involve a judgment call; everything else needs a human
// to decide the shape of the fix.
func confidenceFor(issue detect.Issue) Confidence {
	switch issue.Type {
	case detect.LegacyCleanup, detect.GSCConfirmed, detect.GSCHomepageHoarding, detect.GSCHomepageSplit:
		return ConfidenceHigh
	case detect.TaxonomyClash, detect.NearDuplicateContent, detect.GSCBlogVsCategory:
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// redirectLosers emits a 301 step for every page except the recommended
// winner.
func redirectLosers(scores []score.PageScore) []Step {
	winner, ok := score.Winner(scores)
	if !ok || len(scores) < 2 {
		return nil
	}
	steps := make([]Step, 0, len(scores)-1)
	for _, ps := range scores {
		if ps.Recommended {
			continue
		}
		steps = append(steps, Step{
			Kind:        StepRedirect301,
			PageURL:     ps.Page.URL,
			TargetURL:   winner.Page.URL,
			Instruction: "301 redirect to the canonical page.",
		})
	}
	return steps
}

// strengthenSteps boosts the winner instead of redirecting: the wrong page is
// ranking, so authority has to move, not URLs.
func strengthenSteps(scores []score.PageScore, query string) []Step {
	winner, ok := score.Winner(scores)
	if !ok {
		return nil
	}
	steps := []Step{{
		Kind:        StepContentRewrite,
		PageURL:     winner.Page.URL,
		Instruction: fmt.Sprintf("Expand the page to fully answer %q: specs, comparisons, FAQ.", query),
	}}
	for _, ps := range scores {
		if ps.Recommended {
			continue
		}
		steps = append(steps, Step{
			Kind:        StepInternalLinks,
			PageURL:     ps.Page.URL,
			TargetURL:   winner.Page.URL,
			Instruction: fmt.Sprintf("Link to the canonical page with %q anchor text; narrow this page's title away from the query.", query),
		})
	}
	return steps
}

// deoptimizeSteps strips the query from the homepage and strengthens the
// dedicated page. The homepage is never redirected.
func deoptimizeSteps(scores []score.PageScore, query string) []Step {
	var steps []Step
	for _, ps := range scores {
		if ps.Page.Type == classify.TypeHomepage {
			steps = append(steps, Step{
				Kind:        StepDeoptimize,
				PageURL:     ps.Page.URL,
				Instruction: fmt.Sprintf("Remove %q from the homepage title, H1, meta description, and first paragraph. Reposition the homepage around the brand.", query),
			})
			continue
		}
		if ps.Recommended {
			steps = append(steps, Step{
				Kind:        StepContentRewrite,
				PageURL:     ps.Page.URL,
				Instruction: fmt.Sprintf("Strengthen this page as the sole target for %q: expand content, add internal links from the homepage.", query),
			})
		}
	}
	return steps
}

// slugPivotSteps keeps both pages: the loser gets a new slug (follow-up 301
// from the old one) and differentiated content. The new slug needs a human.
func slugPivotSteps(scores []score.PageScore) []Step {
	winner, ok := score.Winner(scores)
	if !ok || len(scores) < 2 {
		return nil
	}
	var steps []Step
	for _, ps := range scores {
		if ps.Recommended {
			continue
		}
		steps = append(steps, Step{
			Kind:        StepSlugChange,
			PageURL:     ps.Page.URL,
			Instruction: "Choose a slug that names this page's distinct angle, then 301 the old slug to the new one.",
		})
		steps = append(steps, Step{
			Kind:        StepContentRewrite,
			PageURL:     ps.Page.URL,
			Instruction: fmt.Sprintf("Differentiate the content from %s so the pages target different intents.", winner.Page.URL),
		})
	}
	return steps
}

// Markdown renders the plans as a reviewable action document, highest
// priority first.
func Markdown(plans []Plan) string {
	var sb strings.Builder
	sb.WriteString("# Cannibalization Action Plan\n")
	for i, plan := range plans {
		sb.WriteString(fmt.Sprintf("\n## %d. %s (priority %d, %s, confidence %s)\n", i+1, plan.ConflictType, plan.Priority, plan.Severity, plan.Confidence))
		if plan.Query != "" {
			sb.WriteString(fmt.Sprintf("Query: `%s`\n", plan.Query))
		}
		if plan.WinnerURL != "" {
			sb.WriteString(fmt.Sprintf("Recommended winner: %s\n", plan.WinnerURL))
		}
		if plan.RequiresReview {
			sb.WriteString("**Needs review before execution.**\n")
		}
		for _, step := range plan.Steps {
			if step.TargetURL != "" {
				sb.WriteString(fmt.Sprintf("- [%s] %s -> %s: %s\n", step.Kind, step.PageURL, step.TargetURL, step.Instruction))
				continue
			}
			sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", step.Kind, step.PageURL, step.Instruction))
		}
	}
	return sb.String()
}
