package crawl

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/fwojciec/smartcrawl"
	"golang.org/x/sync/errgroup"
)

// Attempt is the result of dispatching one frontier entry.
type Attempt struct {
	// Entry is the dispatched entry. Attempts includes this attempt.
	Entry *smartcrawl.FrontierEntry

	// Proxy is nil when the attempt was made directly or never fetched.
	Proxy *smartcrawl.Proxy

	Response       *smartcrawl.FetchResponse
	Err            error
	Classification smartcrawl.Classification
	Duration       time.Duration
	At             time.Time
}

// OutcomeHandler consumes attempts. A returned error stops the pool.
type OutcomeHandler func(ctx context.Context, a *Attempt) error

// Pool drains a Frontier with a bounded number of concurrent workers.
type Pool struct {
	SessionID string
	Policy    smartcrawl.Policy
	Frontier  *Frontier
	Fetcher   smartcrawl.Fetcher
	Handler   OutcomeHandler

	// Selector routes attempts through proxies when Policy.UseProxies is set.
	Selector *Selector
	Tracker  *Tracker

	// Optional collaborators.
	Robots  smartcrawl.RobotsChecker
	Limiter smartcrawl.DomainLimiter
	Metrics smartcrawl.MetricsRecorder

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Run starts Policy.Concurrency workers and blocks until the frontier has
// no pending or in-flight entries, stop is closed, or a handler fails.
// Closing stop prevents further dispatch; attempts already in flight finish
// and are handled.
func (p *Pool) Run(ctx context.Context, stop <-chan struct{}) error {
	if p.Now == nil {
		p.Now = time.Now
	}
	g, gctx := errgroup.WithContext(ctx)
	for range max(p.Policy.Concurrency, 1) {
		g.Go(func() error {
			return p.work(gctx, stop)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pool) work(ctx context.Context, stop <-chan struct{}) error {
	rested := false
	for {
		if halted(ctx, stop) {
			return nil
		}
		if !rested {
			if !sleep(ctx, stop, p.delay()) {
				return nil
			}
			rested = true
		}

		changed := p.Frontier.Changed()
		batch, err := p.Frontier.NextBatch(ctx, 1)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			if p.Frontier.Done() {
				return nil
			}
			p.idle(ctx, stop, changed)
			continue
		}

		rested = false
		if err := p.dispatch(ctx, stop, batch[0]); err != nil {
			return err
		}
	}
}

// idle blocks until the frontier changes, a requeued entry becomes ready,
// or the pool is halted.
func (p *Pool) idle(ctx context.Context, stop <-chan struct{}, changed <-chan struct{}) {
	var ready <-chan time.Time
	if at, ok := p.Frontier.NextReadyAt(); ok {
		t := time.NewTimer(max(at.Sub(p.Now()), 0))
		defer t.Stop()
		ready = t.C
	}
	select {
	case <-ctx.Done():
	case <-stop:
	case <-changed:
	case <-ready:
	}
}

// delay samples Policy.Delay ± Policy.Jitter uniformly.
func (p *Pool) delay() time.Duration {
	d, j := p.Policy.Delay, p.Policy.Jitter
	if j <= 0 {
		return d
	}
	return d - j + time.Duration(rand.Int64N(int64(2*j)+1))
}

func (p *Pool) dispatch(ctx context.Context, stop <-chan struct{}, entry *smartcrawl.FrontierEntry) error {
	entry.Attempts++

	if p.Policy.RespectRobots && p.Robots != nil && !p.Robots.Allowed(ctx, entry.URL, p.Policy.UserAgent) {
		return p.Handler(ctx, &Attempt{
			Entry:          entry,
			Classification: smartcrawl.Permanent{Kind: smartcrawl.PermanentRobots},
			At:             p.Now(),
		})
	}

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx, hostOf(entry.URL)); err != nil {
			return p.release(ctx, entry)
		}
	}

	var proxy *smartcrawl.Proxy
	if p.Policy.UseProxies && p.Selector != nil {
		var ok bool
		var err error
		if proxy, ok, err = p.acquire(ctx, stop, entry); err != nil {
			return err
		} else if !ok {
			return p.release(ctx, entry)
		}
	}

	fctx, cancel := context.WithTimeout(ctx, p.Policy.RequestTimeout)
	begin := p.Now()
	resp, err := p.Fetcher.Fetch(fctx, smartcrawl.FetchRequest{
		URL:       entry.URL,
		Proxy:     proxy,
		UserAgent: p.Policy.UserAgent,
		Timeout:   p.Policy.RequestTimeout,
	})
	cancel()
	if ctx.Err() != nil {
		if proxy != nil {
			p.Selector.Abandon(proxy.ID)
		}
		return p.release(ctx, entry)
	}

	a := &Attempt{
		Entry:          entry,
		Proxy:          proxy,
		Response:       resp,
		Err:            err,
		Classification: Classify(resp, err, p.Policy.BlockSignatures),
		Duration:       p.Now().Sub(begin),
		At:             p.Now(),
	}
	if resp != nil && resp.Duration > 0 {
		a.Duration = resp.Duration
	}

	var tier smartcrawl.Tier
	if proxy != nil {
		perf, err := p.Tracker.Record(ctx, proxy.ID, smartcrawl.ProxyOutcome{
			Success:  !smartcrawl.ProxyFault(a.Classification),
			Duration: a.Duration,
			At:       a.At,
		})
		if err != nil {
			p.Selector.Abandon(proxy.ID)
			return err
		}
		p.Selector.Observe(proxy.ID, Observation{
			Success:     !smartcrawl.ProxyFault(a.Classification),
			RateLimited: smartcrawl.RateLimited(a.Classification),
			Performance: perf,
		})
		tier = perf.Tier()
	}

	if p.Metrics != nil {
		m := smartcrawl.AttemptMetrics{
			SessionID:      p.SessionID,
			Host:           hostOf(entry.URL),
			Tier:           tier,
			Classification: a.Classification,
			Duration:       a.Duration,
		}
		if proxy != nil {
			m.ProxyID = proxy.ID
		}
		if resp != nil {
			m.StatusCode = resp.StatusCode
		}
		p.Metrics.RecordAttempt(ctx, m)
	}

	return p.Handler(ctx, a)
}

// acquire selects a proxy for entry, pausing while none is available. It
// returns false when the pool is halted while waiting.
func (p *Pool) acquire(ctx context.Context, stop <-chan struct{}, entry *smartcrawl.FrontierEntry) (*smartcrawl.Proxy, bool, error) {
	for {
		proxy, err := p.Selector.Select(SelectOptions{Exclude: entry.ExcludedProxies})
		var noProxy *smartcrawl.NoProxyAvailableError
		switch {
		case err == nil:
			return proxy, true, nil
		case errors.As(err, &noProxy):
			if p.Metrics != nil {
				p.Metrics.RecordBackpressure(ctx, p.SessionID, noProxy.RetryAfter)
			}
			if !sleep(ctx, stop, noProxy.RetryAfter) {
				return nil, false, nil
			}
		default:
			return nil, false, err
		}
	}
}

// release returns an unfetched entry to the frontier.
func (p *Pool) release(ctx context.Context, entry *smartcrawl.FrontierEntry) error {
	return p.Frontier.Release(context.WithoutCancel(ctx), entry)
}

func halted(ctx context.Context, stop <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// sleep waits for d and reports false if the pool was halted first.
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return !halted(ctx, stop)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
