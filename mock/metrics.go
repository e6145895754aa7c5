package mock

import (
	"context"
	"time"

	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.MetricsRecorder = (*MetricsRecorder)(nil)

// MetricsRecorder is a mock implementation of smartcrawl.MetricsRecorder.
type MetricsRecorder struct {
	RecordAttemptFn      func(ctx context.Context, m smartcrawl.AttemptMetrics)
	RecordBackpressureFn func(ctx context.Context, sessionID string, wait time.Duration)
	RecordSessionFn      func(ctx context.Context, status smartcrawl.Status, counters smartcrawl.Counters)
}

func (r *MetricsRecorder) RecordAttempt(ctx context.Context, m smartcrawl.AttemptMetrics) {
	r.RecordAttemptFn(ctx, m)
}

func (r *MetricsRecorder) RecordBackpressure(ctx context.Context, sessionID string, wait time.Duration) {
	r.RecordBackpressureFn(ctx, sessionID, wait)
}

func (r *MetricsRecorder) RecordSession(ctx context.Context, status smartcrawl.Status, counters smartcrawl.Counters) {
	r.RecordSessionFn(ctx, status, counters)
}
