package mock

import (
	"context"

	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.RobotsChecker = (*RobotsChecker)(nil)

// RobotsChecker is a mock implementation of smartcrawl.RobotsChecker.
type RobotsChecker struct {
	AllowedFn func(ctx context.Context, rawURL, userAgent string) bool
}

func (r *RobotsChecker) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	return r.AllowedFn(ctx, rawURL, userAgent)
}
