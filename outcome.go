package smartcrawl

import (
	"strings"
	"time"
)

// OutcomeStatus is the result of a single fetch attempt.
type OutcomeStatus string

// Outcome statuses.
const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeBlocked   OutcomeStatus = "blocked"
)

// FetchOutcome records one fetch attempt of a frontier entry. A retried
// entry produces a new outcome rather than changing an earlier one.
type FetchOutcome struct {
	ID        string
	SessionID string
	EntryID   string
	URL       string
	Attempt   int
	Status    OutcomeStatus

	// Terminal is false for an attempt that was requeued for retry.
	Terminal bool

	StatusCode     int
	Duration       time.Duration
	ProxyID        string
	Classification Classification
	Error          string
	CreatedAt      time.Time
}

// Classification is the closed set of fetch attempt classifications:
// Success, Retryable and Permanent.
type Classification interface {
	classification()
	String() string
}

// RetryKind names a transient failure.
type RetryKind string

// Retryable kinds.
const (
	RetryTimeout     RetryKind = "timeout"
	RetryServerError RetryKind = "server_error"
	RetryConnection  RetryKind = "connection"
	RetryRateLimited RetryKind = "rate_limited"
)

// PermanentKind names a failure that is not retried.
type PermanentKind string

// Permanent kinds.
const (
	PermanentClientError    PermanentKind = "client_error"
	PermanentBlocked        PermanentKind = "blocked"
	PermanentInvalidRequest PermanentKind = "invalid_request"
	PermanentRobots         PermanentKind = "robots"
)

// Success classifies a completed fetch.
type Success struct{}

// Retryable classifies a transient failure.
type Retryable struct {
	Kind RetryKind
}

// Permanent classifies a failure that must not be retried.
type Permanent struct {
	Kind PermanentKind
}

func (Success) classification()   {}
func (Retryable) classification() {}
func (Permanent) classification() {}

func (Success) String() string     { return "success" }
func (c Retryable) String() string { return "retryable:" + string(c.Kind) }
func (c Permanent) String() string { return "permanent:" + string(c.Kind) }

// ParseClassification parses the String form of a classification.
func ParseClassification(s string) (Classification, error) {
	if s == "success" {
		return Success{}, nil
	}
	prefix, kind, ok := strings.Cut(s, ":")
	if !ok {
		return nil, Errorf(EINVALID, "invalid classification %q", s)
	}
	switch prefix {
	case "retryable":
		switch k := RetryKind(kind); k {
		case RetryTimeout, RetryServerError, RetryConnection, RetryRateLimited:
			return Retryable{Kind: k}, nil
		}
	case "permanent":
		switch k := PermanentKind(kind); k {
		case PermanentClientError, PermanentBlocked, PermanentInvalidRequest, PermanentRobots:
			return Permanent{Kind: k}, nil
		}
	}
	return nil, Errorf(EINVALID, "invalid classification %q", s)
}

// OutcomeStatusOf maps a terminal classification to an outcome status.
func OutcomeStatusOf(c Classification) OutcomeStatus {
	switch c := c.(type) {
	case Success:
		return OutcomeCompleted
	case Permanent:
		if c.Kind == PermanentBlocked || c.Kind == PermanentRobots {
			return OutcomeBlocked
		}
		return OutcomeFailed
	default:
		return OutcomeFailed
	}
}

// ProxyFault reports whether c should count against the proxy that served
// the attempt. Transient failures and block pages do; ordinary client
// errors and robots rejections do not.
func ProxyFault(c Classification) bool {
	switch c := c.(type) {
	case Retryable:
		return true
	case Permanent:
		return c.Kind == PermanentBlocked
	default:
		return false
	}
}

// RateLimited reports whether c is a 429 or equivalent rate-limit signal.
func RateLimited(c Classification) bool {
	r, ok := c.(Retryable)
	return ok && r.Kind == RetryRateLimited
}
