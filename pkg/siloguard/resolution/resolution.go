// Package resolution closes conflicts. A resolve call is one unit of work:
// redirect creation, keyword reassignment, and the conflict status
// transition commit together or not at all. Queue execution runs the same
// unit for an approved fix item and keeps a step log.
package resolution

import (
	"context"
	"fmt"

	"github.com/siloworks/siloguard/pkg/siloguard/internalerr"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
)

// Resolution action types.
const (
	ActionRedirect      = "redirect"
	ActionMergeRedirect = "merge_redirect"
	ActionDifferentiate = "differentiate"
	ActionCanonical     = "canonical"
	ActionDismiss       = "dismiss"
)

func validAction(action string) bool {
	switch action {
	case ActionRedirect, ActionMergeRedirect, ActionDifferentiate, ActionCanonical, ActionDismiss:
		return true
	}
	return false
}

func createsRedirect(action string) bool {
	return action == ActionRedirect || action == ActionMergeRedirect
}

// Service resolves conflicts against the store. Keyword reassignment goes
// through the store so it lands in the same transaction as the rest of the
// resolution.
type Service struct {
	store store.Store
}

// New creates a resolution service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Request describes one resolution. WinnerURL and LoserURL default to the
// conflict's recorded winner and loser pages when empty.
type Request struct {
	ConflictID      string
	Action          string
	WinnerURL       string
	LoserURL        string
	WinnerPageID    int64
	Keyword         string
	ReassignKeyword bool
	Notes           string
	ResolvedBy      string
}

// Outcome reports what a resolution did.
type Outcome struct {
	Conflict          store.Conflict
	Redirect          *store.Redirect
	ChainTarget       string
	KeywordReassigned bool
}

// Resolve closes a conflict. Unknown actions fail with INVALID_ACTION and a
// non-open conflict with ALREADY_RESOLVED. All writes go through one store
// transaction, so a failure at any point, including a resolver racing this
// one, leaves no redirect and no reassignment behind.
func (s *Service) Resolve(ctx context.Context, req Request) (Outcome, error) {
	if !validAction(req.Action) {
		return Outcome{}, internalerr.New(internalerr.CodeInvalidAction,
			fmt.Sprintf("unknown resolution action %q", req.Action), internalerr.ErrInvalidInput).
			WithDetail("action", req.Action)
	}

	conflict, ok, err := s.store.GetConflict(ctx, req.ConflictID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, fmt.Errorf("conflict %s: %w", req.ConflictID, internalerr.ErrNotFound)
	}
	if conflict.Status != store.ConflictOpen {
		return Outcome{}, internalerr.New(internalerr.CodeAlreadyResolved,
			fmt.Sprintf("conflict %s is already %s", conflict.ID, conflict.Status), internalerr.ErrDuplicate).
			WithDetail("status", conflict.Status)
	}

	winnerURL, loserURL, winnerPageID := req.WinnerURL, req.LoserURL, req.WinnerPageID
	for _, p := range conflict.Pages {
		switch p.Role {
		case "winner":
			if winnerURL == "" {
				winnerURL = p.PageURL
			}
			if winnerPageID == 0 {
				winnerPageID = p.PageID
			}
		case "loser":
			if loserURL == "" {
				loserURL = p.PageURL
			}
		}
	}

	apply := store.ResolutionApply{
		Resolution: store.Resolution{
			ConflictID: conflict.ID,
			Action:     req.Action,
			Notes:      req.Notes,
			ResolvedBy: req.ResolvedBy,
		},
		NewStatus: store.ConflictResolved,
	}
	if req.Action == ActionDismiss {
		apply.NewStatus = store.ConflictDismissed
	}

	if createsRedirect(req.Action) {
		if winnerURL == "" || loserURL == "" {
			return Outcome{}, fmt.Errorf("action %s needs winner and loser URLs: %w",
				req.Action, internalerr.ErrInvalidInput)
		}
		apply.Redirect = &store.Redirect{
			Site:       conflict.Site,
			SourceURL:  loserURL,
			TargetURL:  winnerURL,
			Status:     store.RedirectActive,
			ConflictID: conflict.ID,
		}
	}

	if req.ReassignKeyword {
		keyword := req.Keyword
		if keyword == "" {
			keyword = conflict.Query
		}
		if keyword == "" {
			return Outcome{}, fmt.Errorf("reassign requested but no keyword known: %w", internalerr.ErrInvalidInput)
		}
		apply.Reassign = &store.KeywordReassign{
			Site:      conflict.Site,
			Keyword:   keyword,
			ToPageID:  winnerPageID,
			ToPageURL: winnerURL,
			Reason:    fmt.Sprintf("conflict %s resolved via %s", conflict.ID, req.Action),
		}
	}

	applied, err := s.store.ApplyResolution(ctx, apply)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Conflict:          applied.Conflict,
		Redirect:          applied.Redirect,
		ChainTarget:       applied.ChainTarget,
		KeywordReassigned: applied.Assignment != nil,
	}, nil
}

// Dismiss closes a conflict without any remediation.
func (s *Service) Dismiss(ctx context.Context, conflictID, notes, resolvedBy string) (Outcome, error) {
	return s.Resolve(ctx, Request{
		ConflictID: conflictID,
		Action:     ActionDismiss,
		Notes:      notes,
		ResolvedBy: resolvedBy,
	})
}

// Enqueue schedules an approved fix for later execution, carrying the
// conflict's winner and loser so execution needs no re-derivation.
func (s *Service) Enqueue(ctx context.Context, conflict store.Conflict, action string) (store.QueueItem, error) {
	if !validAction(action) {
		return store.QueueItem{}, internalerr.New(internalerr.CodeInvalidAction,
			fmt.Sprintf("unknown resolution action %q", action), internalerr.ErrInvalidInput).
			WithDetail("action", action)
	}

	var primary, secondary string
	for _, p := range conflict.Pages {
		switch p.Role {
		case "winner":
			if primary == "" {
				primary = p.PageURL
			}
		case "loser":
			if secondary == "" {
				secondary = p.PageURL
			}
		}
	}
	return s.store.EnqueueItem(ctx, store.QueueItem{
		Site:         conflict.Site,
		ConflictID:   conflict.ID,
		Action:       action,
		Priority:     conflict.Priority,
		Keyword:      conflict.Query,
		PrimaryURL:   primary,
		SecondaryURL: secondary,
	})
}

// Execute runs one queue item synchronously: the full resolve unit plus a
// step log. A completed item fails with ALREADY_COMPLETED; a failed run
// leaves the item in failed status for retry.
func (s *Service) Execute(ctx context.Context, itemID, resolvedBy string) (store.QueueItem, error) {
	item, ok, err := s.store.GetQueueItem(ctx, itemID)
	if err != nil {
		return store.QueueItem{}, err
	}
	if !ok {
		return store.QueueItem{}, fmt.Errorf("queue item %s: %w", itemID, internalerr.ErrNotFound)
	}
	if item.Status == store.QueueCompleted {
		return store.QueueItem{}, internalerr.New(internalerr.CodeAlreadyCompleted,
			fmt.Sprintf("queue item %s is already completed", itemID), internalerr.ErrDuplicate)
	}

	if _, err := s.store.UpdateQueueStatus(ctx, itemID, store.QueueInProgress); err != nil {
		return store.QueueItem{}, err
	}

	outcome, err := s.Resolve(ctx, Request{
		ConflictID:      item.ConflictID,
		Action:          item.Action,
		WinnerURL:       item.PrimaryURL,
		LoserURL:        item.SecondaryURL,
		Keyword:         item.Keyword,
		ReassignKeyword: createsRedirect(item.Action) && item.Keyword != "",
		Notes:           fmt.Sprintf("executed from queue item %s", item.ID),
		ResolvedBy:      resolvedBy,
	})
	if err != nil {
		if _, uerr := s.store.UpdateQueueStatus(ctx, itemID, store.QueueFailed); uerr != nil {
			return store.QueueItem{}, uerr
		}
		return store.QueueItem{}, err
	}

	log := []string{fmt.Sprintf("started %s for conflict %s", item.Action, item.ConflictID)}
	if outcome.Redirect != nil {
		log = append(log, fmt.Sprintf("created 301 %s -> %s", outcome.Redirect.SourceURL, outcome.Redirect.TargetURL))
	}
	if outcome.ChainTarget != "" {
		log = append(log, fmt.Sprintf("chain warning: target already redirects to %s", outcome.ChainTarget))
	}
	if outcome.KeywordReassigned {
		log = append(log, fmt.Sprintf("reassigned keyword %q to %s", item.Keyword, outcome.Redirect.TargetURL))
	}
	log = append(log, fmt.Sprintf("conflict %s marked %s", item.ConflictID, outcome.Conflict.Status))

	return s.store.CompleteQueueItem(ctx, itemID, log)
}
