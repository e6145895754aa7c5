package smartcrawl

import (
	"context"
	"time"
)

// Status is the lifecycle state of a crawl session.
type Status string

// Session statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// CanTransition reports whether a session may move from s to next.
// Terminal states are final; a restart creates a new session.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusStopped
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// Counters aggregates per-URL results for a session.
// Values never decrease while the session is running.
type Counters struct {
	Discovered int64 `json:"discovered"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Blocked    int64 `json:"blocked"`
	Skipped    int64 `json:"skipped"`
	Retried    int64 `json:"retried"`
}

// Add returns the element-wise sum of c and d.
func (c Counters) Add(d Counters) Counters {
	return Counters{
		Discovered: c.Discovered + d.Discovered,
		Completed:  c.Completed + d.Completed,
		Failed:     c.Failed + d.Failed,
		Blocked:    c.Blocked + d.Blocked,
		Skipped:    c.Skipped + d.Skipped,
		Retried:    c.Retried + d.Retried,
	}
}

// IsZero reports whether all counters are zero.
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// Session is a single crawl run over a seed set under a policy.
type Session struct {
	ID            string
	Name          string
	Seeds         []string
	Policy        Policy
	Status        Status
	Reason        string
	Counters      Counters
	StopRequested bool
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	UpdatedAt     time.Time
}

// SessionFilter represents a filter for FindSessions.
type SessionFilter struct {
	ID     *string
	Status *Status

	Limit int
}

// SessionUpdate represents fields that can be updated on a session.
type SessionUpdate struct {
	Status     *Status
	Reason     *string
	StartedAt  *time.Time
	FinishedAt *time.Time
	Counters   *Counters
}

// SessionService manages persisted crawl sessions.
type SessionService interface {
	// CreateSession creates a new session. ID and timestamps are assigned if empty.
	CreateSession(ctx context.Context, session *Session) error

	// FindSessionByID retrieves a session by ID.
	// Returns ENOTFOUND if the session does not exist.
	FindSessionByID(ctx context.Context, id string) (*Session, error)

	// FindSessions retrieves sessions matching the filter, newest first.
	FindSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)

	// UpdateSession applies upd to the session. A status change that is not
	// permitted by Status.CanTransition returns ECONFLICT.
	UpdateSession(ctx context.Context, id string, upd SessionUpdate) (*Session, error)

	// IncrementCounters atomically adds delta to the session counters.
	IncrementCounters(ctx context.Context, id string, delta Counters) error

	// RequestStop flags the session for stopping. The owning controller
	// observes the flag on its next poll.
	RequestStop(ctx context.Context, id string) error
}
