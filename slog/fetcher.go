// Package slog provides log/slog decorators for smartcrawl services.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/smartcrawl"
)

// Ensure LoggingFetcher implements smartcrawl.Fetcher.
var _ smartcrawl.Fetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps a Fetcher with debug logging.
type LoggingFetcher struct {
	next   smartcrawl.Fetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next smartcrawl.Fetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch delegates to the wrapped fetcher and logs the attempt.
func (f *LoggingFetcher) Fetch(ctx context.Context, req smartcrawl.FetchRequest) (resp *smartcrawl.FetchResponse, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"url", req.URL,
			"duration", time.Since(begin),
		}
		if req.Proxy != nil {
			attrs = append(attrs, "proxy", req.Proxy.ID)
		}
		if resp != nil {
			attrs = append(attrs, "status", resp.StatusCode, "bytes", len(resp.Body))
			if resp.FinalURL != req.URL {
				attrs = append(attrs, "final_url", resp.FinalURL)
			}
		}
		if err != nil {
			f.logger.Warn("fetch", append(attrs, "err", err)...)
			return
		}
		f.logger.Debug("fetch", attrs...)
	}(time.Now())
	return f.next.Fetch(ctx, req)
}
