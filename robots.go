package smartcrawl

import "context"

// RobotsChecker answers robots.txt questions for a user agent.
type RobotsChecker interface {
	// Allowed reports whether userAgent may fetch rawURL.
	Allowed(ctx context.Context, rawURL, userAgent string) bool
}
