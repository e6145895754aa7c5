package slog

import (
	"context"
	"log/slog"

	"github.com/fwojciec/smartcrawl"
)

// Ensure LoggingRobotsChecker implements smartcrawl.RobotsChecker.
var _ smartcrawl.RobotsChecker = (*LoggingRobotsChecker)(nil)

// LoggingRobotsChecker wraps a RobotsChecker and logs disallowed URLs.
type LoggingRobotsChecker struct {
	next   smartcrawl.RobotsChecker
	logger *slog.Logger
}

// NewLoggingRobotsChecker creates a new LoggingRobotsChecker.
func NewLoggingRobotsChecker(next smartcrawl.RobotsChecker, logger *slog.Logger) *LoggingRobotsChecker {
	return &LoggingRobotsChecker{next: next, logger: logger}
}

// Allowed delegates to the wrapped checker.
func (c *LoggingRobotsChecker) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	ok := c.next.Allowed(ctx, rawURL, userAgent)
	if !ok {
		c.logger.Info("disallowed by robots.txt", "url", rawURL, "user_agent", userAgent)
	}
	return ok
}
