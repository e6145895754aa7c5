package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ smartcrawl.SessionService = (*SessionService)(nil)

const sessionColumns = `id, name, seeds, policy, status, reason,
	discovered, completed, failed, blocked, skipped, retried, stop_requested,
	created_at, started_at, finished_at, updated_at`

// SessionService implements smartcrawl.SessionService using SQLite.
type SessionService struct {
	db *DB
}

// NewSessionService creates a new SessionService.
func NewSessionService(db *DB) *SessionService {
	return &SessionService{db: db}
}

// CreateSession creates a new session with a generated ID.
func (s *SessionService) CreateSession(ctx context.Context, session *smartcrawl.Session) error {
	if session.Status == "" {
		session.Status = smartcrawl.StatusPending
	}
	if !session.Status.Valid() {
		return smartcrawl.Errorf(smartcrawl.EINVALID, "invalid session status %q", session.Status)
	}

	seeds, err := marshalStrings(session.Seeds)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(session.Policy)
	if err != nil {
		return err
	}

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	c := session.Counters
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.Name, seeds, string(policy), string(session.Status), session.Reason,
		c.Discovered, c.Completed, c.Failed, c.Blocked, c.Skipped, c.Retried, boolToInt(session.StopRequested),
		formatTime(session.CreatedAt), formatOptionalTime(session.StartedAt), formatOptionalTime(session.FinishedAt),
		formatTime(session.UpdatedAt))
	if isUniqueViolation(err) {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "session %s already exists", session.ID)
	}
	return err
}

// FindSessionByID retrieves a session by ID.
func (s *SessionService) FindSessionByID(ctx context.Context, id string) (*smartcrawl.Session, error) {
	return findSessionByID(ctx, s.db.QueryRowContext, id)
}

type queryRowFunc func(ctx context.Context, query string, args ...any) *sql.Row

func findSessionByID(ctx context.Context, queryRow queryRowFunc, id string) (*smartcrawl.Session, error) {
	session, err := scanSession(queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, smartcrawl.Errorf(smartcrawl.ENOTFOUND, "session not found")
	}
	return session, err
}

// FindSessions retrieves sessions matching the filter, newest first.
func (s *SessionService) FindSessions(ctx context.Context, filter smartcrawl.SessionFilter) ([]*smartcrawl.Session, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + sessionColumns + " FROM sessions WHERE 1=1")

	if filter.ID != nil {
		query.WriteString(" AND id = ?")
		args = append(args, *filter.ID)
	}
	if filter.Status != nil {
		query.WriteString(" AND status = ?")
		args = append(args, string(*filter.Status))
	}

	query.WriteString(" ORDER BY created_at DESC, id")
	appendPagination(&query, &args, filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*smartcrawl.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// UpdateSession applies upd in a single transaction. Status changes must be
// allowed by the session state machine.
func (s *SessionService) UpdateSession(ctx context.Context, id string, upd smartcrawl.SessionUpdate) (*smartcrawl.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	session, err := findSessionByID(ctx, tx.QueryRowContext, id)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil && *upd.Status != session.Status {
		if !session.Status.CanTransition(*upd.Status) {
			return nil, smartcrawl.Errorf(smartcrawl.ECONFLICT, "session cannot move from %s to %s", session.Status, *upd.Status)
		}
		session.Status = *upd.Status
	}
	if upd.Reason != nil {
		session.Reason = *upd.Reason
	}
	if upd.StartedAt != nil {
		t := upd.StartedAt.UTC()
		session.StartedAt = &t
	}
	if upd.FinishedAt != nil {
		t := upd.FinishedAt.UTC()
		session.FinishedAt = &t
	}
	if upd.Counters != nil {
		session.Counters = *upd.Counters
	}
	session.UpdatedAt = time.Now().UTC()

	c := session.Counters
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, reason = ?, discovered = ?, completed = ?, failed = ?, blocked = ?,
			skipped = ?, retried = ?, started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`, string(session.Status), session.Reason, c.Discovered, c.Completed, c.Failed, c.Blocked,
		c.Skipped, c.Retried, formatOptionalTime(session.StartedAt), formatOptionalTime(session.FinishedAt),
		formatTime(session.UpdatedAt), id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

// IncrementCounters atomically adds delta to the stored counters.
func (s *SessionService) IncrementCounters(ctx context.Context, id string, delta smartcrawl.Counters) error {
	if delta.IsZero() {
		return nil
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET discovered = discovered + ?, completed = completed + ?, failed = failed + ?,
			blocked = blocked + ?, skipped = skipped + ?, retried = retried + ?, updated_at = ?
		WHERE id = ?
	`, delta.Discovered, delta.Completed, delta.Failed, delta.Blocked, delta.Skipped, delta.Retried,
		formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(result, "session not found")
}

// RequestStop flags the session for stopping.
func (s *SessionService) RequestStop(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET stop_requested = 1, updated_at = ? WHERE id = ?
	`, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(result, "session not found")
}

func requireRow(result sql.Result, msg string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return smartcrawl.Errorf(smartcrawl.ENOTFOUND, "%s", msg)
	}
	return nil
}

func scanSession(row rowScanner) (*smartcrawl.Session, error) {
	var session smartcrawl.Session
	var seeds, policy, status string
	var stopRequested int
	var createdAt, startedAt, finishedAt, updatedAt string
	c := &session.Counters

	if err := row.Scan(&session.ID, &session.Name, &seeds, &policy, &status, &session.Reason,
		&c.Discovered, &c.Completed, &c.Failed, &c.Blocked, &c.Skipped, &c.Retried, &stopRequested,
		&createdAt, &startedAt, &finishedAt, &updatedAt); err != nil {
		return nil, err
	}
	session.Status = smartcrawl.Status(status)
	session.StopRequested = stopRequested != 0

	var err error
	if session.Seeds, err = unmarshalStrings(seeds, "seeds"); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(policy), &session.Policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if session.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if session.StartedAt, err = parseOptionalRFC3339(startedAt, "started_at"); err != nil {
		return nil, err
	}
	if session.FinishedAt, err = parseOptionalRFC3339(finishedAt, "finished_at"); err != nil {
		return nil, err
	}
	if session.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &session, nil
}
