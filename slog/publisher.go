package slog

import (
	"context"
	"log/slog"

	"github.com/fwojciec/smartcrawl"
)

// Ensure LoggingPublisher implements smartcrawl.EventPublisher.
var _ smartcrawl.EventPublisher = (*LoggingPublisher)(nil)

// LoggingPublisher logs session events and forwards them to an optional
// downstream publisher. Session events are logged at info level and URL
// events at debug level.
type LoggingPublisher struct {
	next   smartcrawl.EventPublisher
	logger *slog.Logger
}

// NewLoggingPublisher creates a new LoggingPublisher. next may be nil.
func NewLoggingPublisher(next smartcrawl.EventPublisher, logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{next: next, logger: logger}
}

// Publish logs event and forwards it.
func (p *LoggingPublisher) Publish(ctx context.Context, event smartcrawl.SessionEvent) error {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("status", string(event.Status)),
		slog.Int64("discovered", event.Counters.Discovered),
		slog.Int64("completed", event.Counters.Completed),
		slog.Int64("failed", event.Counters.Failed),
		slog.Int64("blocked", event.Counters.Blocked),
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if o := event.Outcome; o != nil {
		level = slog.LevelDebug
		attrs = append(attrs,
			slog.String("url", o.URL),
			slog.String("outcome", string(o.Status)),
			slog.String("classification", o.Classification),
		)
		if o.StatusCode != 0 {
			attrs = append(attrs, slog.Int("code", o.StatusCode))
		}
	}
	p.logger.LogAttrs(ctx, level, string(event.Type), attrs...)

	if p.next == nil {
		return nil
	}
	if err := p.next.Publish(ctx, event); err != nil {
		p.logger.Warn("publish event", "type", string(event.Type), "session", event.SessionID, "err", err)
		return err
	}
	return nil
}
