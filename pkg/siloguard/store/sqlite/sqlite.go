package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/siloworks/siloguard/pkg/siloguard/internalerr"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db      *sql.DB
	entropy *ulid.MonotonicEntropy
}

// Open opens a SQLite database with WAL mode enabled and the schema
// initialized.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// A single writer connection sidesteps SQLITE_BUSY under concurrent
	// mutations.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS assignments (
	id TEXT PRIMARY KEY,
	site TEXT NOT NULL,
	keyword TEXT NOT NULL,
	page_id INTEGER NOT NULL,
	page_url TEXT NOT NULL,
	status TEXT NOT NULL,
	source TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active
	ON assignments(site, keyword) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS assignment_events (
	id TEXT PRIMARY KEY,
	site TEXT NOT NULL,
	keyword TEXT NOT NULL,
	from_page_id INTEGER,
	to_page_id INTEGER NOT NULL,
	reason TEXT,
	at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conflicts (
	id TEXT PRIMARY KEY,
	site TEXT NOT NULL,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	badge TEXT,
	bucket TEXT,
	action TEXT,
	query TEXT,
	status TEXT NOT NULL,
	priority INTEGER DEFAULT 0,
	metadata TEXT,
	created_at TEXT NOT NULL,
	resolved_at TEXT
);

CREATE TABLE IF NOT EXISTS conflict_pages (
	conflict_id TEXT NOT NULL,
	page_id INTEGER NOT NULL,
	page_url TEXT NOT NULL,
	role TEXT,
	clicks INTEGER DEFAULT 0,
	impressions INTEGER DEFAULT 0,
	UNIQUE(conflict_id, page_id),
	FOREIGN KEY(conflict_id) REFERENCES conflicts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS resolutions (
	id TEXT PRIMARY KEY,
	conflict_id TEXT NOT NULL,
	action TEXT NOT NULL,
	notes TEXT,
	resolved_by TEXT,
	at TEXT NOT NULL,
	FOREIGN KEY(conflict_id) REFERENCES conflicts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS safe_pairs (
	site TEXT NOT NULL,
	page_a INTEGER NOT NULL,
	page_b INTEGER NOT NULL,
	reason TEXT,
	created_at TEXT NOT NULL,
	PRIMARY KEY(site, page_a, page_b)
);

CREATE TABLE IF NOT EXISTS redirects (
	id TEXT PRIMARY KEY,
	site TEXT NOT NULL,
	source_url TEXT NOT NULL,
	target_url TEXT NOT NULL,
	status_code INTEGER DEFAULT 301,
	status TEXT NOT NULL,
	conflict_id TEXT,
	is_verified INTEGER NOT NULL DEFAULT 0,
	verification_status TEXT NOT NULL DEFAULT '',
	chain_depth INTEGER NOT NULL DEFAULT 0,
	final_destination TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	last_checked_at TEXT,
	UNIQUE(site, source_url)
);

CREATE TABLE IF NOT EXISTS queue_items (
	id TEXT PRIMARY KEY,
	site TEXT NOT NULL,
	conflict_id TEXT,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	keyword TEXT,
	primary_url TEXT,
	secondary_url TEXT,
	step_log TEXT,
	created_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS validations (
	id TEXT PRIMARY KEY,
	site TEXT NOT NULL,
	title TEXT,
	slug TEXT,
	result TEXT NOT NULL,
	detail TEXT,
	at TEXT NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// CreateAssignment inserts a new assignment. A second active assignment for
// the same (site, keyword) fails with ErrDuplicate.
func (s *sqliteStore) CreateAssignment(ctx context.Context, a store.Assignment) (store.Assignment, error) {
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

	_, err := s.db.ExecContext(ctx, `
INSERT INTO assignments (id, site, keyword, page_id, page_url, status, source, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, a.ID, a.Site, a.Keyword, a.PageID, a.PageURL, a.Status, a.Source,
		a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return store.Assignment{}, fmt.Errorf("assignment %s/%s: %w", a.Site, a.Keyword, internalerr.ErrDuplicate)
		}
		return store.Assignment{}, err
	}
	return a, nil
}

// GetAssignment returns the active assignment for (site, keyword).
func (s *sqliteStore) GetAssignment(ctx context.Context, site, keyword string) (store.Assignment, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, site, keyword, page_id, page_url, status, source, created_at, updated_at
FROM assignments
WHERE site = ? AND keyword = ? AND status = ?;
`, site, keyword, store.AssignmentActive)
	return scanAssignment(row)
}

// GetAssignmentByPage returns the active assignment owned by a page.
func (s *sqliteStore) GetAssignmentByPage(ctx context.Context, site string, pageID int64) (store.Assignment, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, site, keyword, page_id, page_url, status, source, created_at, updated_at
FROM assignments
WHERE site = ? AND page_id = ? AND status = ?;
`, site, pageID, store.AssignmentActive)
	return scanAssignment(row)
}

// ListAssignments returns every active assignment for a site.
func (s *sqliteStore) ListAssignments(ctx context.Context, site string) ([]store.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, site, keyword, page_id, page_url, status, source, created_at, updated_at
FROM assignments
WHERE site = ? AND status = ?
ORDER BY keyword;
`, site, store.AssignmentActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Assignment
	for rows.Next() {
		a, _, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReassignKeyword moves a keyword to a new page in one transaction: the old
// assignment is marked reassigned, a new active one is created, and exactly
// one history event is written. A missing active assignment is not an error;
// the keyword is simply claimed fresh.
func (s *sqliteStore) ReassignKeyword(ctx context.Context, site, keyword string, toPageID int64, toPageURL, reason string) (store.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Assignment{}, err
	}
	defer tx.Rollback()

	next, err := s.reassignTx(ctx, tx, site, keyword, toPageID, toPageURL, reason)
	if err != nil {
		return store.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Assignment{}, err
	}
	return next, nil
}

func (s *sqliteStore) reassignTx(ctx context.Context, tx *sql.Tx, site, keyword string, toPageID int64, toPageURL, reason string) (store.Assignment, error) {
	var fromPageID int64
	var oldID string
	err := tx.QueryRowContext(ctx, `
SELECT id, page_id FROM assignments
WHERE site = ? AND keyword = ? AND status = ?;
`, site, keyword, store.AssignmentActive).Scan(&oldID, &fromPageID)
	if err != nil && err != sql.ErrNoRows {
		return store.Assignment{}, err
	}

	now := time.Now().UTC()
	if oldID != "" {
		if _, err := tx.ExecContext(ctx, `
UPDATE assignments SET status = ?, updated_at = ? WHERE id = ?;
`, store.AssignmentReassigned, now.Format(time.RFC3339), oldID); err != nil {
			return store.Assignment{}, err
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
	if _, err := tx.ExecContext(ctx, `
INSERT INTO assignments (id, site, keyword, page_id, page_url, status, source, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, next.ID, next.Site, next.Keyword, next.PageID, next.PageURL, next.Status, next.Source,
		now.Format(time.RFC3339), now.Format(time.RFC3339)); err != nil {
		return store.Assignment{}, err
	}

	eventID := ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO assignment_events (id, site, keyword, from_page_id, to_page_id, reason, at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, eventID, site, keyword, fromPageID, toPageID, reason, now.Format(time.RFC3339)); err != nil {
		return store.Assignment{}, err
	}
	return next, nil
}

// ListAssignmentEvents returns the history for a keyword, oldest first.
func (s *sqliteStore) ListAssignmentEvents(ctx context.Context, site, keyword string) ([]store.AssignmentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, site, keyword, from_page_id, to_page_id, reason, at
FROM assignment_events
WHERE site = ? AND keyword = ?
ORDER BY id;
`, site, keyword)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AssignmentEvent
	for rows.Next() {
		var e store.AssignmentEvent
		var at string
		if err := rows.Scan(&e.ID, &e.Site, &e.Keyword, &e.FromPageID, &e.ToPageID, &e.Reason, &at); err != nil {
			return nil, err
		}
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveConflicts upserts a batch of conflicts with their pages in one
// transaction.
func (s *sqliteStore) SaveConflicts(ctx context.Context, conflicts []store.Conflict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

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

		if _, err := tx.ExecContext(ctx, `
INSERT INTO conflicts (id, site, type, severity, badge, bucket, action, query, status, priority, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	severity=excluded.severity,
	badge=excluded.badge,
	bucket=excluded.bucket,
	action=excluded.action,
	priority=excluded.priority,
	metadata=excluded.metadata;
`, c.ID, c.Site, c.Type, c.Severity, c.Badge, c.Bucket, c.Action, c.Query,
			c.Status, c.Priority, c.MetadataJSON, c.CreatedAt.Format(time.RFC3339)); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM conflict_pages WHERE conflict_id = ?;`, c.ID); err != nil {
			return err
		}
		for _, p := range c.Pages {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO conflict_pages (conflict_id, page_id, page_url, role, clicks, impressions)
VALUES (?, ?, ?, ?, ?, ?);
`, c.ID, p.PageID, p.PageURL, p.Role, p.Clicks, p.Impressions); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetConflict retrieves a conflict with its pages.
func (s *sqliteStore) GetConflict(ctx context.Context, id string) (store.Conflict, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, site, type, severity, badge, bucket, action, query, status, priority, metadata, created_at, resolved_at
FROM conflicts
WHERE id = ?;
`, id)

	c, ok, err := scanConflict(row)
	if err != nil || !ok {
		return store.Conflict{}, ok, err
	}
	c.Pages, err = s.loadConflictPages(ctx, c.ID)
	if err != nil {
		return store.Conflict{}, false, err
	}
	return c, true, nil
}

// ListConflicts returns a site's conflicts, highest priority first. Empty
// status means all statuses.
func (s *sqliteStore) ListConflicts(ctx context.Context, site, status string) ([]store.Conflict, error) {
	query := `
SELECT id, site, type, severity, badge, bucket, action, query, status, priority, metadata, created_at, resolved_at
FROM conflicts
WHERE site = ?`
	args := []interface{}{site}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY priority DESC, id;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Conflict
	for rows.Next() {
		c, _, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Pages, err = s.loadConflictPages(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ResolveConflict closes a conflict and records the resolution in one
// transaction. Resolving a conflict that is not open fails with
// ALREADY_RESOLVED.
func (s *sqliteStore) ResolveConflict(ctx context.Context, res store.Resolution, newStatus string) (store.Conflict, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Conflict{}, err
	}
	defer tx.Rollback()

	if err := checkConflictOpenTx(ctx, tx, res.ConflictID); err != nil {
		return store.Conflict{}, err
	}
	if err := closeConflictTx(ctx, tx, res, newStatus); err != nil {
		return store.Conflict{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Conflict{}, err
	}
	conflict, _, err := s.GetConflict(ctx, res.ConflictID)
	return conflict, err
}

func checkConflictOpenTx(ctx context.Context, tx *sql.Tx, id string) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT status FROM conflicts WHERE id = ?;`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("conflict %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if current != store.ConflictOpen {
		return internalerr.New(internalerr.CodeAlreadyResolved,
			fmt.Sprintf("conflict %s is %s", id, current), internalerr.ErrDuplicate)
	}
	return nil
}

func closeConflictTx(ctx context.Context, tx *sql.Tx, res store.Resolution, newStatus string) error {
	now := time.Now().UTC()
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.At.IsZero() {
		res.At = now
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE conflicts SET status = ?, resolved_at = ? WHERE id = ?;
`, newStatus, now.Format(time.RFC3339), res.ConflictID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO resolutions (id, conflict_id, action, notes, resolved_by, at)
VALUES (?, ?, ?, ?, ?, ?);
`, res.ID, res.ConflictID, res.Action, res.Notes, res.ResolvedBy, res.At.Format(time.RFC3339)); err != nil {
		return err
	}
	return nil
}

// ApplyResolution performs every write a resolution needs inside a single
// transaction: the open check, the optional redirect insert, the optional
// keyword reassignment, and the conflict close. Any failure rolls back the
// whole batch.
func (s *sqliteStore) ApplyResolution(ctx context.Context, req store.ResolutionApply) (store.ResolutionApplied, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.ResolutionApplied{}, err
	}
	defer tx.Rollback()

	if err := checkConflictOpenTx(ctx, tx, req.Resolution.ConflictID); err != nil {
		return store.ResolutionApplied{}, err
	}

	var applied store.ResolutionApplied
	if req.Redirect != nil {
		created, chainTarget, err := s.createRedirectTx(ctx, tx, *req.Redirect)
		if err != nil {
			return store.ResolutionApplied{}, err
		}
		applied.Redirect = &created
		applied.ChainTarget = chainTarget
	}
	if req.Reassign != nil {
		r := req.Reassign
		a, err := s.reassignTx(ctx, tx, r.Site, r.Keyword, r.ToPageID, r.ToPageURL, r.Reason)
		if err != nil {
			return store.ResolutionApplied{}, err
		}
		applied.Assignment = &a
	}
	if err := closeConflictTx(ctx, tx, req.Resolution, req.NewStatus); err != nil {
		return store.ResolutionApplied{}, err
	}

	if err := tx.Commit(); err != nil {
		return store.ResolutionApplied{}, err
	}
	applied.Conflict, _, err = s.GetConflict(ctx, req.Resolution.ConflictID)
	return applied, err
}

// AddSafePair records an approved page pair. Pairs are stored ordered so
// (a,b) and (b,a) are the same row.
func (s *sqliteStore) AddSafePair(ctx context.Context, p store.SafePair) error {
	a, b := p.PageA, p.PageB
	if a > b {
		a, b = b, a
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO safe_pairs (site, page_a, page_b, reason, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(site, page_a, page_b) DO UPDATE SET reason=excluded.reason;
`, p.Site, a, b, p.Reason, created.Format(time.RFC3339))
	return err
}

// ListSafePairs returns every approved pair for a site.
func (s *sqliteStore) ListSafePairs(ctx context.Context, site string) ([]store.SafePair, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT site, page_a, page_b, reason, created_at
FROM safe_pairs
WHERE site = ?;
`, site)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.SafePair
	for rows.Next() {
		var p store.SafePair
		var created string
		if err := rows.Scan(&p.Site, &p.PageA, &p.PageB, &p.Reason, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateRedirect inserts a redirect after loop and duplicate checks. A
// redirect whose target already redirects back to the source would 301 in a
// circle; that fails with REDIRECT_LOOP. When the target is itself a
// redirect source the insert succeeds and chainTarget suggests the final
// destination.
func (s *sqliteStore) CreateRedirect(ctx context.Context, r store.Redirect) (store.Redirect, string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Redirect{}, "", err
	}
	defer tx.Rollback()

	created, chainTarget, err := s.createRedirectTx(ctx, tx, r)
	if err != nil {
		return store.Redirect{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return store.Redirect{}, "", err
	}
	return created, chainTarget, nil
}

func (s *sqliteStore) createRedirectTx(ctx context.Context, tx *sql.Tx, r store.Redirect) (store.Redirect, string, error) {
	var reverse int
	if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM redirects WHERE site = ? AND source_url = ? AND target_url = ?;
`, r.Site, r.TargetURL, r.SourceURL).Scan(&reverse); err != nil {
		return store.Redirect{}, "", err
	}
	if reverse > 0 || r.SourceURL == r.TargetURL {
		return store.Redirect{}, "", internalerr.New(internalerr.CodeRedirectLoop,
			fmt.Sprintf("%s -> %s would create a redirect loop", r.SourceURL, r.TargetURL),
			internalerr.ErrInvalidInput)
	}

	var chainTarget string
	err := tx.QueryRowContext(ctx, `
SELECT target_url FROM redirects WHERE site = ? AND source_url = ?;
`, r.Site, r.TargetURL).Scan(&chainTarget)
	if err != nil && err != sql.ErrNoRows {
		return store.Redirect{}, "", err
	}

	r.ChainDepth = 0
	r.FinalDestination = r.TargetURL
	if chainTarget != "" {
		r.ChainDepth = 1
		r.FinalDestination = chainTarget
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

	_, err = tx.ExecContext(ctx, `
INSERT INTO redirects (id, site, source_url, target_url, status_code, status, conflict_id, is_verified, verification_status, chain_depth, final_destination, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?);
`, r.ID, r.Site, r.SourceURL, r.TargetURL, r.StatusCode, r.Status, r.ConflictID,
		r.ChainDepth, r.FinalDestination, r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return store.Redirect{}, "", fmt.Errorf("redirect from %s: %w", r.SourceURL, internalerr.ErrDuplicate)
		}
		return store.Redirect{}, "", err
	}
	return r, chainTarget, nil
}

// GetRedirectBySource returns the redirect registered for a source URL.
func (s *sqliteStore) GetRedirectBySource(ctx context.Context, site, sourceURL string) (store.Redirect, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, site, source_url, target_url, status_code, status, conflict_id, is_verified, verification_status, chain_depth, final_destination, created_at, last_checked_at
FROM redirects
WHERE site = ? AND source_url = ?;
`, site, sourceURL)
	return scanRedirect(row)
}

// ListRedirects returns a site's redirects. Empty status means all statuses.
func (s *sqliteStore) ListRedirects(ctx context.Context, site, status string) ([]store.Redirect, error) {
	query := `
SELECT id, site, source_url, target_url, status_code, status, conflict_id, is_verified, verification_status, chain_depth, final_destination, created_at, last_checked_at
FROM redirects
WHERE site = ?`
	args := []interface{}{site}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY source_url;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Redirect
	for rows.Next() {
		r, _, err := scanRedirect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRedirectVerification records a sweep outcome. The lifecycle status
// is untouched; only the verification columns change.
func (s *sqliteStore) UpdateRedirectVerification(ctx context.Context, id string, v store.RedirectVerification) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE redirects
SET is_verified = 1, verification_status = ?, chain_depth = ?, final_destination = ?, last_checked_at = ?
WHERE id = ?;
`, v.Status, v.ChainDepth, v.FinalDestination, v.CheckedAt.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("redirect %s: %w", id, internalerr.ErrNotFound)
	}
	return nil
}

// RemoveRedirect retires a redirect. The row stays for history; only the
// lifecycle status changes.
func (s *sqliteStore) RemoveRedirect(ctx context.Context, id string) (store.Redirect, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE redirects SET status = ? WHERE id = ?;`, store.RedirectRemoved, id)
	if err != nil {
		return store.Redirect{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Redirect{}, err
	}
	if n == 0 {
		return store.Redirect{}, fmt.Errorf("redirect %s: %w", id, internalerr.ErrNotFound)
	}

	row := s.db.QueryRowContext(ctx, `
SELECT id, site, source_url, target_url, status_code, status, conflict_id, is_verified, verification_status, chain_depth, final_destination, created_at, last_checked_at
FROM redirects
WHERE id = ?;
`, id)
	r, _, err := scanRedirect(row)
	return r, err
}

// EnqueueItem adds a fix to the queue.
func (s *sqliteStore) EnqueueItem(ctx context.Context, item store.QueueItem) (store.QueueItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = store.QueuePending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	logJSON, err := json.Marshal(item.StepLog)
	if err != nil {
		return store.QueueItem{}, err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO queue_items (id, site, conflict_id, action, status, priority, keyword, primary_url, secondary_url, step_log, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, item.ID, item.Site, item.ConflictID, item.Action, item.Status, item.Priority,
		item.Keyword, item.PrimaryURL, item.SecondaryURL, string(logJSON), item.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return store.QueueItem{}, err
	}
	return item, nil
}

// GetQueueItem retrieves one queue item.
func (s *sqliteStore) GetQueueItem(ctx context.Context, id string) (store.QueueItem, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, site, conflict_id, action, status, priority, keyword, primary_url, secondary_url, step_log, created_at, completed_at
FROM queue_items
WHERE id = ?;
`, id)
	return scanQueueItem(row)
}

// ListQueue returns a site's queue items, highest priority first, then
// oldest. Empty status means all statuses.
func (s *sqliteStore) ListQueue(ctx context.Context, site, status string) ([]store.QueueItem, error) {
	query := `
SELECT id, site, conflict_id, action, status, priority, keyword, primary_url, secondary_url, step_log, created_at, completed_at
FROM queue_items
WHERE site = ?`
	args := []interface{}{site}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY priority DESC, created_at, id;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.QueueItem
	for rows.Next() {
		item, _, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateQueueStatus moves an item between non-terminal statuses.
func (s *sqliteStore) UpdateQueueStatus(ctx context.Context, id, status string) (store.QueueItem, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE queue_items SET status = ? WHERE id = ?;`, status, id)
	if err != nil {
		return store.QueueItem{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.QueueItem{}, err
	}
	if n == 0 {
		return store.QueueItem{}, fmt.Errorf("queue item %s: %w", id, internalerr.ErrNotFound)
	}
	item, _, err := s.GetQueueItem(ctx, id)
	return item, err
}

// CompleteQueueItem finishes an item and stores its execution log in one
// transaction. Completing a completed item fails with ALREADY_COMPLETED.
func (s *sqliteStore) CompleteQueueItem(ctx context.Context, id string, log []string) (store.QueueItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.QueueItem{}, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM queue_items WHERE id = ?;`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return store.QueueItem{}, fmt.Errorf("queue item %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.QueueItem{}, err
	}
	if current == store.QueueCompleted {
		return store.QueueItem{}, internalerr.New(internalerr.CodeAlreadyCompleted,
			fmt.Sprintf("queue item %s is already completed", id), internalerr.ErrDuplicate)
	}

	logJSON, err := json.Marshal(log)
	if err != nil {
		return store.QueueItem{}, err
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
UPDATE queue_items SET status = ?, step_log = ?, completed_at = ? WHERE id = ?;
`, store.QueueCompleted, string(logJSON), now.Format(time.RFC3339), id); err != nil {
		return store.QueueItem{}, err
	}

	if err := tx.Commit(); err != nil {
		return store.QueueItem{}, err
	}
	item, _, err := s.GetQueueItem(ctx, id)
	return item, err
}

// AppendValidation writes one preflight outcome. The log is append-only.
func (s *sqliteStore) AppendValidation(ctx context.Context, v store.ValidationRecord) error {
	if v.ID == "" {
		v.ID = ulid.MustNew(ulid.Now(), s.entropy).String()
	}
	if v.At.IsZero() {
		v.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO validations (id, site, title, slug, result, detail, at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, v.ID, v.Site, v.Title, v.Slug, v.Result, v.DetailJSON, v.At.Format(time.RFC3339))
	return err
}

// ListValidations returns the latest validation records, newest first.
func (s *sqliteStore) ListValidations(ctx context.Context, site string, limit int) ([]store.ValidationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, site, title, slug, result, detail, at
FROM validations
WHERE site = ?
ORDER BY id DESC
LIMIT ?;
`, site, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ValidationRecord
	for rows.Next() {
		var v store.ValidationRecord
		var at string
		if err := rows.Scan(&v.ID, &v.Site, &v.Title, &v.Slug, &v.Result, &v.DetailJSON, &at); err != nil {
			return nil, err
		}
		v.At = parseTime(at)
		out = append(out, v)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanAssignment(row scannable) (store.Assignment, bool, error) {
	var a store.Assignment
	var created, updated string
	err := row.Scan(&a.ID, &a.Site, &a.Keyword, &a.PageID, &a.PageURL, &a.Status, &a.Source, &created, &updated)
	if err == sql.ErrNoRows {
		return store.Assignment{}, false, nil
	}
	if err != nil {
		return store.Assignment{}, false, err
	}
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, true, nil
}

func scanConflict(row scannable) (store.Conflict, bool, error) {
	var c store.Conflict
	var created string
	var resolved sql.NullString
	err := row.Scan(&c.ID, &c.Site, &c.Type, &c.Severity, &c.Badge, &c.Bucket, &c.Action,
		&c.Query, &c.Status, &c.Priority, &c.MetadataJSON, &created, &resolved)
	if err == sql.ErrNoRows {
		return store.Conflict{}, false, nil
	}
	if err != nil {
		return store.Conflict{}, false, err
	}
	c.CreatedAt = parseTime(created)
	if resolved.Valid {
		t := parseTime(resolved.String)
		c.ResolvedAt = &t
	}
	return c, true, nil
}

func scanRedirect(row scannable) (store.Redirect, bool, error) {
	var r store.Redirect
	var created string
	var checked sql.NullString
	err := row.Scan(&r.ID, &r.Site, &r.SourceURL, &r.TargetURL, &r.StatusCode, &r.Status,
		&r.ConflictID, &r.IsVerified, &r.VerificationStatus, &r.ChainDepth, &r.FinalDestination,
		&created, &checked)
	if err == sql.ErrNoRows {
		return store.Redirect{}, false, nil
	}
	if err != nil {
		return store.Redirect{}, false, err
	}
	r.CreatedAt = parseTime(created)
	if checked.Valid {
		t := parseTime(checked.String)
		r.LastCheckedAt = &t
	}
	return r, true, nil
}

func scanQueueItem(row scannable) (store.QueueItem, bool, error) {
	var item store.QueueItem
	var logJSON, created string
	var completed sql.NullString
	err := row.Scan(&item.ID, &item.Site, &item.ConflictID, &item.Action, &item.Status, &item.Priority,
		&item.Keyword, &item.PrimaryURL, &item.SecondaryURL, &logJSON, &created, &completed)
	if err == sql.ErrNoRows {
		return store.QueueItem{}, false, nil
	}
	if err != nil {
		return store.QueueItem{}, false, err
	}
	if logJSON != "" {
		if err := json.Unmarshal([]byte(logJSON), &item.StepLog); err != nil {
			return store.QueueItem{}, false, err
		}
	}
	item.CreatedAt = parseTime(created)
	if completed.Valid {
		t := parseTime(completed.String)
		item.CompletedAt = &t
	}
	return item, true, nil
}

func (s *sqliteStore) loadConflictPages(ctx context.Context, conflictID string) ([]store.ConflictPage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT page_id, page_url, role, clicks, impressions
FROM conflict_pages
WHERE conflict_id = ?
ORDER BY page_id;
`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ConflictPage
	for rows.Next() {
		var p store.ConflictPage
		if err := rows.Scan(&p.PageID, &p.PageURL, &p.Role, &p.Clicks, &p.Impressions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
