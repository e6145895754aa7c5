package crawl

import (
	"context"
	"sync"

	"github.com/fwojciec/smartcrawl"
	"golang.org/x/time/rate"
)

var _ smartcrawl.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter enforces Policy.RequestsPerSecond for one session. Each
// host:port gets its own bucket with a burst of one, so the first request to
// a host goes out at once and later ones are spaced 1/rps apart. Hosts never
// share a budget. A non-positive rate disables limiting. The pool waits on
// it after the dispatch delay and before selecting a proxy.
type DomainLimiter struct {
	rps float64

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewDomainLimiter returns a limiter for Policy.RequestsPerSecond.
func NewDomainLimiter(rps float64) *DomainLimiter {
	return &DomainLimiter{
		rps:     rps,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to domain is allowed or ctx is done.
func (d *DomainLimiter) Wait(ctx context.Context, domain string) error {
	if d.rps <= 0 {
		return ctx.Err()
	}
	return d.bucket(domain).Wait(ctx)
}

func (d *DomainLimiter) bucket(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buckets[domain]
	if !ok {
		b = rate.NewLimiter(rate.Limit(d.rps), 1)
		d.buckets[domain] = b
	}
	return b
}
