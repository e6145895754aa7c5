// Package otel records crawl metrics with OpenTelemetry.
package otel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/smartcrawl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ensure MetricsRecorder implements smartcrawl.MetricsRecorder.
var _ smartcrawl.MetricsRecorder = (*MetricsRecorder)(nil)

// MetricsRecorder translates crawl measurements into OpenTelemetry
// instruments.
type MetricsRecorder struct {
	attempts     metric.Int64Counter
	duration     metric.Float64Histogram
	backpressure metric.Int64Counter
	backoff      metric.Float64Histogram
	sessions     metric.Int64Counter
	urls         metric.Int64Counter
}

// NewMetricsRecorder creates the instruments on meter.
func NewMetricsRecorder(meter metric.Meter) (*MetricsRecorder, error) {
	var r MetricsRecorder
	var err error
	if r.attempts, err = meter.Int64Counter("smartcrawl.fetch.attempts",
		metric.WithDescription("Fetch attempts by classification"),
		metric.WithUnit("{attempts}")); err != nil {
		return nil, fmt.Errorf("fetch attempts counter: %w", err)
	}
	if r.duration, err = meter.Float64Histogram("smartcrawl.fetch.duration",
		metric.WithDescription("Fetch attempt response time"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("fetch duration histogram: %w", err)
	}
	if r.backpressure, err = meter.Int64Counter("smartcrawl.dispatch.backpressure",
		metric.WithDescription("Dispatches paused because no proxy was available"),
		metric.WithUnit("{pauses}")); err != nil {
		return nil, fmt.Errorf("backpressure counter: %w", err)
	}
	if r.backoff, err = meter.Float64Histogram("smartcrawl.dispatch.backpressure.wait",
		metric.WithDescription("Time dispatch waited for a proxy"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("backpressure wait histogram: %w", err)
	}
	if r.sessions, err = meter.Int64Counter("smartcrawl.sessions.finished",
		metric.WithDescription("Sessions reaching a terminal status"),
		metric.WithUnit("{sessions}")); err != nil {
		return nil, fmt.Errorf("sessions counter: %w", err)
	}
	if r.urls, err = meter.Int64Counter("smartcrawl.session.urls",
		metric.WithDescription("URLs of finished sessions by counter"),
		metric.WithUnit("{urls}")); err != nil {
		return nil, fmt.Errorf("session urls counter: %w", err)
	}
	return &r, nil
}

// RecordAttempt records a completed fetch attempt.
func (r *MetricsRecorder) RecordAttempt(ctx context.Context, m smartcrawl.AttemptMetrics) {
	class := "unknown"
	if m.Classification != nil {
		class = m.Classification.String()
	}
	outcome, _, _ := strings.Cut(class, ":")
	attrs := metric.WithAttributes(
		attribute.String("host", m.Host),
		attribute.String("outcome", outcome),
		attribute.String("classification", class),
		attribute.String("status_class", statusClass(m.StatusCode)),
		attribute.Bool("proxied", m.ProxyID != ""),
		attribute.String("proxy.tier", string(m.Tier)),
	)
	r.attempts.Add(ctx, 1, attrs)
	r.duration.Record(ctx, m.Duration.Seconds(), attrs)
}

// RecordBackpressure records a dispatch paused because no proxy was available.
func (r *MetricsRecorder) RecordBackpressure(ctx context.Context, sessionID string, wait time.Duration) {
	attrs := metric.WithAttributes(attribute.String("session", sessionID))
	r.backpressure.Add(ctx, 1, attrs)
	r.backoff.Record(ctx, wait.Seconds(), attrs)
}

// RecordSession records a session reaching a terminal status.
func (r *MetricsRecorder) RecordSession(ctx context.Context, status smartcrawl.Status, counters smartcrawl.Counters) {
	st := attribute.String("status", string(status))
	r.sessions.Add(ctx, 1, metric.WithAttributes(st))
	for name, n := range map[string]int64{
		"discovered": counters.Discovered,
		"completed":  counters.Completed,
		"failed":     counters.Failed,
		"blocked":    counters.Blocked,
		"skipped":    counters.Skipped,
		"retried":    counters.Retried,
	} {
		if n > 0 {
			r.urls.Add(ctx, n, metric.WithAttributes(st, attribute.String("counter", name)))
		}
	}
}

// statusClass buckets an HTTP status as "2xx", "4xx" and so on. Attempts
// without a response are "none".
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "none"
	}
	return strconv.Itoa(code/100) + "xx"
}
