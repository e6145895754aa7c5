package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/smartcrawl"
)

// Ensure LoggingSitemapService implements smartcrawl.SitemapService.
var _ smartcrawl.SitemapService = (*LoggingSitemapService)(nil)

// LoggingSitemapService wraps a SitemapService with logging.
type LoggingSitemapService struct {
	next   smartcrawl.SitemapService
	logger *slog.Logger
}

// NewLoggingSitemapService creates a new LoggingSitemapService.
func NewLoggingSitemapService(next smartcrawl.SitemapService, logger *slog.Logger) *LoggingSitemapService {
	return &LoggingSitemapService{next: next, logger: logger}
}

// DiscoverURLs delegates to the wrapped service and logs the operation.
func (s *LoggingSitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *smartcrawl.URLFilter) (urls []string, err error) {
	defer logDiscovery(s.logger, "sitemap discovery", baseURL, &urls, &err)(time.Now())
	return s.next.DiscoverURLs(ctx, baseURL, filter)
}

// Ensure LoggingFeedService implements smartcrawl.FeedService.
var _ smartcrawl.FeedService = (*LoggingFeedService)(nil)

// LoggingFeedService wraps a FeedService with logging.
type LoggingFeedService struct {
	next   smartcrawl.FeedService
	logger *slog.Logger
}

// NewLoggingFeedService creates a new LoggingFeedService.
func NewLoggingFeedService(next smartcrawl.FeedService, logger *slog.Logger) *LoggingFeedService {
	return &LoggingFeedService{next: next, logger: logger}
}

// DiscoverURLs delegates to the wrapped service and logs the operation.
func (s *LoggingFeedService) DiscoverURLs(ctx context.Context, baseURL string, filter *smartcrawl.URLFilter) (urls []string, err error) {
	defer logDiscovery(s.logger, "feed discovery", baseURL, &urls, &err)(time.Now())
	return s.next.DiscoverURLs(ctx, baseURL, filter)
}

func logDiscovery(logger *slog.Logger, msg, baseURL string, urls *[]string, err *error) func(time.Time) {
	return func(begin time.Time) {
		logger.Info(msg,
			"url", baseURL,
			"count", len(*urls),
			"duration", time.Since(begin),
			"err", *err,
		)
	}
}
