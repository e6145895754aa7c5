package smartcrawl

import (
	"context"
	"fmt"
	"time"
)

// Tier is the derived reliability class of a proxy.
type Tier string

// Reliability tiers.
const (
	TierUntested   Tier = "untested"
	TierExcellent  Tier = "excellent"
	TierGood       Tier = "good"
	TierFair       Tier = "fair"
	TierPoor       Tier = "poor"
	TierUnreliable Tier = "unreliable"
)

// MinTieredRequests is the number of recorded requests before a proxy leaves
// the untested tier.
const MinTieredRequests = 10

// tierThresholds are evaluated in order; the first match wins.
var tierThresholds = []struct {
	tier           Tier
	minSuccessRate float64
	maxConsecutive int
}{
	{TierExcellent, 95, 1},
	{TierGood, 85, 3},
	{TierFair, 70, 5},
	{TierPoor, 50, 10},
}

// Proxy is a configured outbound proxy. It is read-only to the crawler.
type Proxy struct {
	ID        string
	Endpoint  string
	Source    string
	Protocols []string
	Country   string
	CreatedAt time.Time
}

// ProxyOutcome is a single observation fed into a proxy's performance record.
type ProxyOutcome struct {
	Success  bool
	Duration time.Duration
	At       time.Time
}

// ProxyPerformance is the aggregate performance of a proxy over its full
// outcome history.
type ProxyPerformance struct {
	ProxyID             string
	TotalRequests       int64
	FailedRequests      int64
	ConsecutiveFailures int64
	TotalResponseTime   time.Duration
	AverageResponseTime time.Duration
	SuccessRate         float64
	LastSuccessAt       *time.Time
	LastFailureAt       *time.Time
}

// Record folds o into p. This is the only way performance changes.
func (p *ProxyPerformance) Record(o ProxyOutcome) {
	at := o.At
	p.TotalRequests++
	p.TotalResponseTime += o.Duration
	if o.Success {
		p.ConsecutiveFailures = 0
		p.LastSuccessAt = &at
	} else {
		p.FailedRequests++
		p.ConsecutiveFailures++
		p.LastFailureAt = &at
	}
	p.AverageResponseTime = p.TotalResponseTime / time.Duration(p.TotalRequests)
	p.SuccessRate = float64(p.TotalRequests-p.FailedRequests) / float64(p.TotalRequests) * 100
}

// Tier derives the reliability tier.
func (p *ProxyPerformance) Tier() Tier {
	if p.TotalRequests < MinTieredRequests {
		return TierUntested
	}
	for _, t := range tierThresholds {
		if p.SuccessRate >= t.minSuccessRate && p.ConsecutiveFailures <= int64(t.maxConsecutive) {
			return t.tier
		}
	}
	return TierUnreliable
}

// TierRank orders tiers for selection; lower is preferred. Untested proxies
// rank between fair and poor.
func TierRank(t Tier) int {
	switch t {
	case TierExcellent:
		return 0
	case TierGood:
		return 1
	case TierFair:
		return 2
	case TierUntested:
		return 3
	case TierPoor:
		return 4
	default:
		return 5
	}
}

// ProxyFilter represents a filter for FindProxies.
type ProxyFilter struct {
	ID       *string
	Endpoint *string
}

// ProxyService manages proxies and their performance records.
type ProxyService interface {
	// CreateProxy registers a proxy. Returns ECONFLICT if the endpoint is
	// already registered.
	CreateProxy(ctx context.Context, proxy *Proxy) error

	// FindProxyByID retrieves a proxy by ID.
	// Returns ENOTFOUND if the proxy does not exist.
	FindProxyByID(ctx context.Context, id string) (*Proxy, error)

	// FindProxies retrieves proxies matching the filter ordered by ID.
	FindProxies(ctx context.Context, filter ProxyFilter) ([]*Proxy, error)

	// FindPerformance returns the performance record of a proxy. A proxy
	// with no recorded outcomes has a zero record.
	FindPerformance(ctx context.Context, proxyID string) (*ProxyPerformance, error)

	// RecordProxyOutcome atomically folds o into the stored performance
	// record and returns the updated record.
	RecordProxyOutcome(ctx context.Context, proxyID string, o ProxyOutcome) (*ProxyPerformance, error)
}

// NoProxyAvailableError signals that every proxy is cooling down. It is
// backpressure, not a failure.
type NoProxyAvailableError struct {
	RetryAfter time.Duration
}

func (e *NoProxyAvailableError) Error() string {
	return fmt.Sprintf("no proxy available, retry after %s", e.RetryAfter)
}
