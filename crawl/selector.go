package crawl

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/fwojciec/smartcrawl"
)

// Selector defaults.
const (
	DefaultBreakerThreshold = 3
	DefaultBaseCooldown     = 5 * time.Second
	DefaultMaxCooldown      = 10 * time.Minute
	DefaultExploreEvery     = 5
)

// SelectOptions narrows a single selection.
type SelectOptions struct {
	// Exclude lists proxies that already failed for the target. The list is
	// ignored when it would leave no eligible proxy.
	Exclude []string
}

// Observation is the result of an attempt routed through a proxy.
type Observation struct {
	Success     bool
	RateLimited bool
	Performance smartcrawl.ProxyPerformance
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerProbing
)

type breaker struct {
	state     breakerState
	openUntil time.Time
	reopens   int
}

// Selector chooses proxies from a Tracker. Proxies whose consecutive
// failures exceed Threshold, or that were rate limited, are held out for a
// cool-down, then admitted for a single probe. A failed probe reopens the
// breaker for twice as long again.
type Selector struct {
	Threshold    int
	BaseCooldown time.Duration
	MaxCooldown  time.Duration

	// ExploreEvery makes every n-th selection pick an untested proxy in
	// round-robin order. Zero disables exploration.
	ExploreEvery int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	tracker *Tracker

	mu         sync.Mutex
	breakers   map[string]*breaker
	selections int
	explore    int
}

// NewSelector returns a selector with default settings.
func NewSelector(tracker *Tracker) *Selector {
	return &Selector{
		Threshold:    DefaultBreakerThreshold,
		BaseCooldown: DefaultBaseCooldown,
		MaxCooldown:  DefaultMaxCooldown,
		ExploreEvery: DefaultExploreEvery,
		Now:          time.Now,
		tracker:      tracker,
		breakers:     make(map[string]*breaker),
	}
}

type candidateProxy struct {
	proxy *smartcrawl.Proxy
	perf  smartcrawl.ProxyPerformance
	tier  smartcrawl.Tier
}

// Select returns the proxy for the next attempt. It returns
// *smartcrawl.NoProxyAvailableError when every proxy is cooling down.
func (s *Selector) Select(opts SelectOptions) (*smartcrawl.Proxy, error) {
	proxies := s.tracker.Proxies()
	if len(proxies) == 0 {
		return nil, smartcrawl.Errorf(smartcrawl.ENOTFOUND, "no proxies configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var eligible, probes []candidateProxy
	var retryAfter time.Duration
	for _, p := range proxies {
		perf, _ := s.tracker.Performance(p.ID)
		c := candidateProxy{proxy: p, perf: perf, tier: perf.Tier()}
		b, ok := s.breakers[p.ID]
		if !ok {
			b = &breaker{}
			s.breakers[p.ID] = b
		}
		if b.state == breakerClosed && perf.ConsecutiveFailures > int64(s.Threshold) {
			s.openLocked(b, perf.ConsecutiveFailures)
		}
		switch {
		case b.state == breakerClosed:
			eligible = append(eligible, c)
		case b.state == breakerOpen && !now.Before(b.openUntil):
			probes = append(probes, c)
		case b.state == breakerOpen:
			if wait := b.openUntil.Sub(now); retryAfter == 0 || wait < retryAfter {
				retryAfter = wait
			}
		}
	}

	fp, fe := excludeProxies(probes, opts.Exclude), excludeProxies(eligible, opts.Exclude)
	if len(fp)+len(fe) > 0 {
		probes, eligible = fp, fe
	}
	if len(probes) > 0 {
		p := probes[0]
		s.breakers[p.proxy.ID].state = breakerProbing
		return p.proxy, nil
	}
	if len(eligible) == 0 {
		if retryAfter == 0 {
			retryAfter = s.BaseCooldown
		}
		return nil, &smartcrawl.NoProxyAvailableError{RetryAfter: retryAfter}
	}

	s.selections++
	if s.ExploreEvery > 0 && s.selections%s.ExploreEvery == 0 {
		var untested []candidateProxy
		for _, c := range eligible {
			if c.tier == smartcrawl.TierUntested {
				untested = append(untested, c)
			}
		}
		if len(untested) > 0 {
			p := untested[s.explore%len(untested)]
			s.explore++
			return p.proxy, nil
		}
	}

	best := slices.MinFunc(eligible, func(a, b candidateProxy) int {
		return cmp.Or(
			cmp.Compare(smartcrawl.TierRank(a.tier), smartcrawl.TierRank(b.tier)),
			cmp.Compare(a.perf.AverageResponseTime, b.perf.AverageResponseTime),
			cmp.Compare(a.perf.ConsecutiveFailures, b.perf.ConsecutiveFailures),
			cmp.Compare(a.proxy.ID, b.proxy.ID),
		)
	})
	return best.proxy, nil
}

func excludeProxies(cs []candidateProxy, exclude []string) []candidateProxy {
	if len(exclude) == 0 {
		return cs
	}
	var out []candidateProxy
	for _, c := range cs {
		if !slices.Contains(exclude, c.proxy.ID) {
			out = append(out, c)
		}
	}
	return out
}

// Observe updates the breaker of a proxy after an attempt.
func (s *Selector) Observe(proxyID string, o Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[proxyID]
	if !ok {
		b = &breaker{}
		s.breakers[proxyID] = b
	}
	switch b.state {
	case breakerProbing:
		if o.Success {
			*b = breaker{}
			return
		}
		b.reopens++
		s.openLocked(b, o.Performance.ConsecutiveFailures)
	case breakerClosed:
		if !o.Success && (o.RateLimited || o.Performance.ConsecutiveFailures > int64(s.Threshold)) {
			b.reopens = 0
			s.openLocked(b, o.Performance.ConsecutiveFailures)
		}
	}
}

// Abandon returns a proxy admitted for a probe to the open state when the
// probe attempt ended without an outcome.
func (s *Selector) Abandon(proxyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[proxyID]; ok && b.state == breakerProbing {
		b.state = breakerOpen
	}
}

func (s *Selector) openLocked(b *breaker, consecutive int64) {
	b.state = breakerOpen
	b.openUntil = s.Now().Add(s.cooldown(consecutive, b.reopens))
}

// cooldown is BaseCooldown scaled by the consecutive failures and doubled
// for every failed probe, capped at MaxCooldown.
func (s *Selector) cooldown(consecutive int64, reopens int) time.Duration {
	d := s.BaseCooldown * time.Duration(max(consecutive, 1))
	for range reopens {
		d *= 2
		if s.MaxCooldown > 0 && d >= s.MaxCooldown {
			return s.MaxCooldown
		}
	}
	if s.MaxCooldown > 0 && d > s.MaxCooldown {
		return s.MaxCooldown
	}
	return d
}

// Open reports whether the proxy is currently held out of normal selection.
func (s *Selector) Open(proxyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[proxyID]
	return ok && b.state != breakerClosed
}
