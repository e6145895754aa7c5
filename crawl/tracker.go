package crawl

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fwojciec/smartcrawl"
)

// Tracker is the process-wide proxy health model shared by all sessions.
// Updates are serialized per proxy and written through to the
// ProxyService. A nil ProxyService keeps performance in memory only.
type Tracker struct {
	store smartcrawl.ProxyService

	mu      sync.RWMutex
	proxies map[string]*smartcrawl.Proxy
	perf    map[string]smartcrawl.ProxyPerformance
	locks   map[string]*sync.Mutex
}

// NewTracker creates an empty tracker.
func NewTracker(store smartcrawl.ProxyService) *Tracker {
	return &Tracker{
		store:   store,
		proxies: make(map[string]*smartcrawl.Proxy),
		perf:    make(map[string]smartcrawl.ProxyPerformance),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Load reads every stored proxy and its performance record.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	proxies, err := t.store.FindProxies(ctx, smartcrawl.ProxyFilter{})
	if err != nil {
		return fmt.Errorf("find proxies: %w", err)
	}
	for _, p := range proxies {
		perf, err := t.store.FindPerformance(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("find performance of proxy %s: %w", p.ID, err)
		}
		t.mu.Lock()
		t.proxies[p.ID] = p
		t.perf[p.ID] = *perf
		t.mu.Unlock()
	}
	return nil
}

// Add registers proxies. Proxies whose endpoint is already registered are
// ignored.
func (t *Tracker) Add(ctx context.Context, proxies []*smartcrawl.Proxy) error {
	for _, p := range proxies {
		if p.Endpoint == "" {
			return smartcrawl.Errorf(smartcrawl.EINVALID, "proxy endpoint required")
		}
		if t.store != nil {
			if err := t.store.CreateProxy(ctx, p); err != nil {
				if smartcrawl.ErrorCode(err) == smartcrawl.ECONFLICT {
					continue
				}
				return fmt.Errorf("create proxy: %w", err)
			}
		} else if p.ID == "" {
			p.ID = p.Endpoint
		}
		t.mu.Lock()
		if _, ok := t.proxies[p.ID]; !ok {
			t.proxies[p.ID] = p
			t.perf[p.ID] = smartcrawl.ProxyPerformance{ProxyID: p.ID}
		}
		t.mu.Unlock()
	}
	return nil
}

// Record folds an outcome into the proxy's performance and returns the
// updated record.
func (t *Tracker) Record(ctx context.Context, proxyID string, o smartcrawl.ProxyOutcome) (smartcrawl.ProxyPerformance, error) {
	lock := t.lockFor(proxyID)
	lock.Lock()
	defer lock.Unlock()

	var perf smartcrawl.ProxyPerformance
	if t.store != nil {
		p, err := t.store.RecordProxyOutcome(ctx, proxyID, o)
		if err != nil {
			return perf, fmt.Errorf("record proxy outcome: %w", err)
		}
		perf = *p
	} else {
		t.mu.RLock()
		perf = t.perf[proxyID]
		t.mu.RUnlock()
		perf.ProxyID = proxyID
		perf.Record(o)
	}

	t.mu.Lock()
	t.perf[proxyID] = perf
	t.mu.Unlock()
	return perf, nil
}

func (t *Tracker) lockFor(proxyID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[proxyID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[proxyID] = l
	}
	return l
}

// Performance returns the cached performance of a proxy.
func (t *Tracker) Performance(proxyID string) (smartcrawl.ProxyPerformance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.perf[proxyID]
	return p, ok
}

// Tier returns the reliability tier of a proxy.
func (t *Tracker) Tier(proxyID string) smartcrawl.Tier {
	p, _ := t.Performance(proxyID)
	return p.Tier()
}

// Proxies returns the registered proxies ordered by ID.
func (t *Tracker) Proxies() []*smartcrawl.Proxy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*smartcrawl.Proxy, 0, len(t.proxies))
	for _, p := range t.proxies {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *smartcrawl.Proxy) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of registered proxies.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.proxies)
}

// Snapshot returns every proxy with its performance and tier.
func (t *Tracker) Snapshot() []*smartcrawl.ProxyStats {
	proxies := t.Proxies()
	out := make([]*smartcrawl.ProxyStats, len(proxies))
	for i, p := range proxies {
		perf, _ := t.Performance(p.ID)
		out[i] = &smartcrawl.ProxyStats{Proxy: p, Performance: perf, Tier: perf.Tier()}
	}
	return out
}
