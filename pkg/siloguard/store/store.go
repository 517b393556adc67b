package store

import (
	"context"
	"time"
)

// Store is the main interface for persisting keyword assignments, detected
// conflicts, redirects, the fix queue, and the preflight validation log.
// Methods that change more than one row run in a single transaction; partial
// writes never become visible.
type Store interface {
	Close() error

	// Keyword registry
	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	GetAssignment(ctx context.Context, site, keyword string) (Assignment, bool, error)
	GetAssignmentByPage(ctx context.Context, site string, pageID int64) (Assignment, bool, error)
	ListAssignments(ctx context.Context, site string) ([]Assignment, error)
	ReassignKeyword(ctx context.Context, site, keyword string, toPageID int64, toPageURL, reason string) (Assignment, error)
	ListAssignmentEvents(ctx context.Context, site, keyword string) ([]AssignmentEvent, error)

	// Conflicts
	SaveConflicts(ctx context.Context, conflicts []Conflict) error
	GetConflict(ctx context.Context, id string) (Conflict, bool, error)
	ListConflicts(ctx context.Context, site, status string) ([]Conflict, error)
	ResolveConflict(ctx context.Context, res Resolution, newStatus string) (Conflict, error)

	// ApplyResolution closes a conflict together with every write the chosen
	// action requires (redirect creation, keyword reassignment) in a single
	// transaction. If any part fails, nothing is persisted.
	ApplyResolution(ctx context.Context, req ResolutionApply) (ResolutionApplied, error)

	// Safe pairs
	AddSafePair(ctx context.Context, p SafePair) error
	ListSafePairs(ctx context.Context, site string) ([]SafePair, error)

	// Redirects. CreateRedirect rejects duplicates and two-step loops; when
	// the target is itself a redirect source, chainTarget carries the final
	// destination as a suggestion.
	CreateRedirect(ctx context.Context, r Redirect) (created Redirect, chainTarget string, err error)
	GetRedirectBySource(ctx context.Context, site, sourceURL string) (Redirect, bool, error)
	ListRedirects(ctx context.Context, site, status string) ([]Redirect, error)
	UpdateRedirectVerification(ctx context.Context, id string, v RedirectVerification) error
	RemoveRedirect(ctx context.Context, id string) (Redirect, error)

	// Fix queue
	EnqueueItem(ctx context.Context, item QueueItem) (QueueItem, error)
	GetQueueItem(ctx context.Context, id string) (QueueItem, bool, error)
	ListQueue(ctx context.Context, site, status string) ([]QueueItem, error)
	UpdateQueueStatus(ctx context.Context, id, status string) (QueueItem, error)
	CompleteQueueItem(ctx context.Context, id string, log []string) (QueueItem, error)

	// Validation log
	AppendValidation(ctx context.Context, v ValidationRecord) error
	ListValidations(ctx context.Context, site string, limit int) ([]ValidationRecord, error)
}

// Assignment statuses.
const (
	AssignmentActive     = "active"
	AssignmentReassigned = "reassigned"
)

// Conflict statuses.
const (
	ConflictOpen      = "open"
	ConflictResolved  = "resolved"
	ConflictDismissed = "dismissed"
)

// Redirect lifecycle statuses.
const (
	RedirectPendingReview = "pending_review"
	RedirectActive        = "active"
	RedirectRemoved       = "removed"
)

// Redirect verification outcomes, kept apart from the lifecycle status.
const (
	VerificationHealthy = "healthy"
	VerificationBroken  = "broken"
)

// Queue statuses.
const (
	QueuePending    = "pending"
	QueueInProgress = "in_progress"
	QueueCompleted  = "completed"
	QueueFailed     = "failed"
)

// Assignment is one page's exclusive claim on a keyword within a site. At
// most one active assignment exists per (site, keyword).
type Assignment struct {
	ID        string
	Site      string
	Keyword   string
	PageID    int64
	PageURL   string
	Status    string
	Source    string // bootstrap, manual, reassign
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssignmentEvent is one append-only history record of a keyword changing
// hands.
type AssignmentEvent struct {
	ID         string
	Site       string
	Keyword    string
	FromPageID int64
	ToPageID   int64
	Reason     string
	At         time.Time
}

// Conflict is one persisted detection finding.
type Conflict struct {
	ID           string
	Site         string
	Type         string
	Severity     string
	Badge        string
	Bucket       string
	Action       string
	Query        string
	Status       string
	Priority     int
	MetadataJSON string
	Pages        []ConflictPage
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// ConflictPage is one page involved in a conflict.
type ConflictPage struct {
	PageID      int64
	PageURL     string
	Role        string // winner, loser
	Clicks      int64
	Impressions int64
}

// Resolution records how a conflict was closed.
type Resolution struct {
	ID         string
	ConflictID string
	Action     string
	Notes      string
	ResolvedBy string
	At         time.Time
}

// SafePair marks two pages as intentionally similar; detections skip them.
type SafePair struct {
	Site      string
	PageA     int64
	PageB     int64
	Reason    string
	CreatedAt time.Time
}

// Redirect is one 301 mapping. A site has at most one redirect per source
// URL. Status tracks the lifecycle (pending_review, active, removed);
// verification fields record what the last sweep observed and never touch
// the lifecycle.
type Redirect struct {
	ID                 string
	Site               string
	SourceURL          string
	TargetURL          string
	StatusCode         int
	Status             string
	ConflictID         string
	IsVerified         bool
	VerificationStatus string
	ChainDepth         int
	FinalDestination   string
	CreatedAt          time.Time
	LastCheckedAt      *time.Time
}

// RedirectVerification is one sweep outcome for a redirect: liveness plus the
// chain shape observed at check time.
type RedirectVerification struct {
	Status           string // VerificationHealthy or VerificationBroken
	ChainDepth       int
	FinalDestination string
	CheckedAt        time.Time
}

// KeywordReassign describes the registry hand-off a resolution performs.
type KeywordReassign struct {
	Site      string
	Keyword   string
	ToPageID  int64
	ToPageURL string
	Reason    string
}

// ResolutionApply bundles every write a resolution makes. Redirect and
// Reassign are optional; NewStatus is the conflict's closing status.
type ResolutionApply struct {
	Resolution Resolution
	NewStatus  string
	Redirect   *Redirect
	Reassign   *KeywordReassign
}

// ResolutionApplied reports what a resolution persisted.
type ResolutionApplied struct {
	Conflict    Conflict
	Redirect    *Redirect
	ChainTarget string
	Assignment  *Assignment
}

// QueueItem is one scheduled fix awaiting execution. PrimaryURL is the page
// that keeps the keyword; SecondaryURL is the page being redirected or
// rewritten.
type QueueItem struct {
	ID           string
	Site         string
	ConflictID   string
	Action       string
	Status       string
	Priority     int
	Keyword      string
	PrimaryURL   string
	SecondaryURL string
	StepLog      []string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// ValidationRecord is one append-only preflight outcome.
type ValidationRecord struct {
	ID         string
	Site       string
	Title      string
	Slug       string
	Result     string
	DetailJSON string
	At         time.Time
}
