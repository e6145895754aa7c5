package smartcrawl

import (
	"context"
	"time"
)

// AttemptMetrics describes one fetch attempt for metrics collection.
type AttemptMetrics struct {
	SessionID      string
	Host           string
	ProxyID        string
	Tier           Tier
	Classification Classification
	StatusCode     int
	Duration       time.Duration
}

// MetricsRecorder collects crawl measurements.
type MetricsRecorder interface {
	// RecordAttempt records a completed fetch attempt.
	RecordAttempt(ctx context.Context, m AttemptMetrics)

	// RecordBackpressure records a dispatch paused because no proxy was available.
	RecordBackpressure(ctx context.Context, sessionID string, wait time.Duration)

	// RecordSession records a session reaching a terminal status.
	RecordSession(ctx context.Context, status Status, counters Counters)
}
