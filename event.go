package smartcrawl

import (
	"context"
	"time"
)

// EventType identifies a session event.
type EventType string

// Session event types.
const (
	EventSessionStarted  EventType = "session.started"
	EventSessionFinished EventType = "session.finished"
	EventURLFinished     EventType = "url.finished"
)

// SessionEvent is published as a session makes progress.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Counters  Counters  `json:"counters"`

	// Outcome is set for url.finished events.
	Outcome *EventOutcome `json:"outcome,omitempty"`

	At time.Time `json:"at"`
}

// EventOutcome summarizes a terminal fetch outcome for subscribers.
type EventOutcome struct {
	URL            string        `json:"url"`
	Status         OutcomeStatus `json:"status"`
	StatusCode     int           `json:"status_code,omitempty"`
	Classification string        `json:"classification"`
	ProxyID        string        `json:"proxy_id,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// EventPublisher delivers session events to subscribers. Publishing is
// best effort; a failed publish never fails a session.
type EventPublisher interface {
	Publish(ctx context.Context, event SessionEvent) error
}
