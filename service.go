package smartcrawl

import "context"

// SessionStatus is the externally visible state of a session.
type SessionStatus struct {
	Status   Status
	Reason   string
	Counters Counters

	// Pending is the number of entries still awaiting a terminal outcome.
	Pending int
}

// ProxyStats pairs a proxy with its performance and tier.
type ProxyStats struct {
	Proxy       *Proxy
	Performance ProxyPerformance
	Tier        Tier
}

// CrawlService is the inbound surface of the crawl engine.
type CrawlService interface {
	// CreateSession persists a pending session and returns it.
	CreateSession(ctx context.Context, name string, policy Policy, seeds []string) (*Session, error)

	// StartSession seeds the frontier and starts crawling in the background.
	// A session whose policy or seeds are invalid moves to failed.
	StartSession(ctx context.Context, id string) error

	// StopSession stops dispatching new fetches. In-flight fetches finish.
	StopSession(ctx context.Context, id string) error

	// SessionStatus returns the status and counters of a session.
	SessionStatus(ctx context.Context, id string) (*SessionStatus, error)

	// ListProxies returns all proxies with their current tier.
	ListProxies(ctx context.Context) ([]*ProxyStats, error)

	// AddProxies registers proxies with the shared health tracker.
	AddProxies(ctx context.Context, proxies []*Proxy) error

	// ResumeSessions restarts every session left running by a previous process.
	ResumeSessions(ctx context.Context) (int, error)
}
