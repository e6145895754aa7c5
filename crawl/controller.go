package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/google/uuid"
)

// DefaultStopPollInterval is how often a running session checks storage for
// a stop requested by another process.
const DefaultStopPollInterval = time.Second

// Services are the collaborators shared by every session of a process.
type Services struct {
	Sessions  smartcrawl.SessionService
	Frontier  smartcrawl.FrontierService
	Fetcher   smartcrawl.Fetcher
	Extractor smartcrawl.LinkExtractor

	// Tracker and Selector form the process-wide proxy model.
	Tracker  *Tracker
	Selector *Selector

	// Optional collaborators.
	Robots   smartcrawl.RobotsChecker
	Sitemaps smartcrawl.SitemapService
	Feeds    smartcrawl.FeedService
	Events   smartcrawl.EventPublisher
	Metrics  smartcrawl.MetricsRecorder
	Logger   *slog.Logger

	// RetryDelays is the backoff applied to requeued entries.
	// Defaults to DefaultRetryDelays.
	RetryDelays []time.Duration

	// StopPollInterval defaults to DefaultStopPollInterval.
	StopPollInterval time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (s *Services) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Services) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// counters is the in-memory aggregate of a running session.
type counters struct {
	discovered, completed, failed, blocked, skipped, retried atomic.Int64
}

func (c *counters) add(d smartcrawl.Counters) {
	c.discovered.Add(d.Discovered)
	c.completed.Add(d.Completed)
	c.failed.Add(d.Failed)
	c.blocked.Add(d.Blocked)
	c.skipped.Add(d.Skipped)
	c.retried.Add(d.Retried)
}

func (c *counters) load() smartcrawl.Counters {
	return smartcrawl.Counters{
		Discovered: c.discovered.Load(),
		Completed:  c.completed.Load(),
		Failed:     c.failed.Load(),
		Blocked:    c.blocked.Load(),
		Skipped:    c.skipped.Load(),
		Retried:    c.retried.Load(),
	}
}

// Controller owns the state machine of one session. It seeds the
// frontier, drives a Pool over it and turns attempts into outcomes,
// retries, discoveries and counter updates.
type Controller struct {
	id       string
	policy   smartcrawl.Policy
	svc      Services
	logger   *slog.Logger
	frontier *Frontier
	counters counters

	// view is held exclusively by Status and shared by outcome handlers so
	// that counters and frontier size are observed together.
	view sync.RWMutex

	mu      sync.Mutex
	session smartcrawl.Session

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewController creates a controller for a stored session.
func NewController(session *smartcrawl.Session, svc Services) *Controller {
	if svc.RetryDelays == nil {
		svc.RetryDelays = DefaultRetryDelays()
	}
	if svc.StopPollInterval <= 0 {
		svc.StopPollInterval = DefaultStopPollInterval
	}
	return &Controller{
		id:      session.ID,
		policy:  session.Policy,
		svc:     svc,
		logger:  svc.logger().With("session", session.ID),
		session: *session,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the session ID.
func (c *Controller) ID() string {
	return c.id
}

// Start validates the policy, seeds the frontier and moves the session from
// pending to running. A policy error or an empty seed set moves the session
// to failed and is returned as EINVALID.
func (c *Controller) Start(ctx context.Context) error {
	session := c.snapshot()
	if session.Status != smartcrawl.StatusPending {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "session %s is %s, not pending", c.id, session.Status)
	}

	policy := c.policy
	if err := policy.Validate(); err != nil {
		return c.reject(ctx, err)
	}
	if policy.UseProxies && (c.svc.Tracker == nil || c.svc.Tracker.Len() == 0) {
		return c.reject(ctx, smartcrawl.Errorf(smartcrawl.EINVALID, "policy requires proxies but none are configured"))
	}

	frontier, err := NewFrontier(&session, c.svc.Frontier)
	if err != nil {
		return c.reject(ctx, err)
	}
	frontier.Now = c.svc.now
	c.mu.Lock()
	c.frontier = frontier
	c.mu.Unlock()

	res, err := frontier.Seed(ctx, session.Seeds)
	if err != nil {
		return c.abort(ctx, err)
	}
	if len(res.Accepted) == 0 {
		return c.reject(ctx, smartcrawl.Errorf(smartcrawl.EINVALID, "no valid seed URLs"))
	}
	delta := res.Counters()

	if policy.Strategy == smartcrawl.StrategyDeep && policy.MaxDepth >= 1 {
		d, err := c.seedDiscovered(ctx, session.Seeds)
		if err != nil {
			return c.abort(ctx, err)
		}
		delta = delta.Add(d)
	}

	c.counters.add(delta)
	if err := c.svc.Sessions.IncrementCounters(ctx, c.id, delta); err != nil {
		return c.abort(ctx, err)
	}

	running := smartcrawl.StatusRunning
	now := c.svc.now()
	s, err := c.svc.Sessions.UpdateSession(ctx, c.id, smartcrawl.SessionUpdate{Status: &running, StartedAt: &now})
	if err != nil {
		return c.abort(ctx, err)
	}
	c.setSession(s)
	c.logger.Info("session started", "seeds", len(res.Accepted), "rejected", res.Rejected, "filtered", res.Filtered)
	c.publish(ctx, smartcrawl.EventSessionStarted, nil)
	return nil
}

// seedDiscovered adds URLs from sitemaps and feeds of every seed origin at
// depth 1. Discovery failures are logged and ignored.
func (c *Controller) seedDiscovered(ctx context.Context, seeds []string) (smartcrawl.Counters, error) {
	var delta smartcrawl.Counters
	policy := c.policy
	filter, _ := policy.URLFilter()

	for _, origin := range origins(seeds) {
		if policy.UseSitemap && c.svc.Sitemaps != nil {
			urls, err := c.svc.Sitemaps.DiscoverURLs(ctx, origin, filter)
			if err != nil {
				c.logger.Warn("sitemap discovery failed", "origin", origin, "err", err)
			} else {
				res, err := c.frontier.SeedFrom(ctx, smartcrawl.SourceSitemap, urls)
				if err != nil {
					return delta, err
				}
				delta = delta.Add(res.Counters())
			}
		}
		if policy.UseFeeds && c.svc.Feeds != nil {
			urls, err := c.svc.Feeds.DiscoverURLs(ctx, origin, filter)
			if err != nil {
				c.logger.Warn("feed discovery failed", "origin", origin, "err", err)
			} else {
				res, err := c.frontier.SeedFrom(ctx, smartcrawl.SourceFeed, urls)
				if err != nil {
					return delta, err
				}
				delta = delta.Add(res.Counters())
			}
		}
	}
	return delta, nil
}

// Resume rebuilds a running session from storage so Run can continue it.
func (c *Controller) Resume(ctx context.Context) error {
	session := c.snapshot()
	if session.Status != smartcrawl.StatusRunning {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "session %s is %s, not running", c.id, session.Status)
	}
	frontier, err := NewFrontier(&session, c.svc.Frontier)
	if err != nil {
		return err
	}
	frontier.Now = c.svc.now
	c.mu.Lock()
	c.frontier = frontier
	c.mu.Unlock()

	restored, err := frontier.Restore(ctx)
	if err != nil {
		return c.abort(ctx, err)
	}
	// Skips and retries are not derivable from entries; outcomes are
	// appended before counters so the stored values are lower bounds.
	restored.Skipped = session.Counters.Skipped
	restored.Retried = session.Counters.Retried
	c.counters.add(restored)

	s, err := c.svc.Sessions.UpdateSession(ctx, c.id, smartcrawl.SessionUpdate{Counters: &restored})
	if err != nil {
		return c.abort(ctx, err)
	}
	c.setSession(s)
	c.logger.Info("session resumed", "pending", frontier.Pending())
	return nil
}

// Run drives the session until the frontier drains, the session is
// stopped or an unrecoverable error occurs, then records the terminal
// status. If ctx is canceled first the session is left running so it can
// be resumed.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	if c.frontier == nil {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "session %s was not started", c.id)
	}
	if s := c.snapshot(); s.Status != smartcrawl.StatusRunning {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "session %s is %s, not running", c.id, s.Status)
	}

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go c.pollStop(pollCtx)

	pool := &Pool{
		SessionID: c.id,
		Policy:    c.policy,
		Frontier:  c.frontier,
		Fetcher:   c.svc.Fetcher,
		Handler:   c.handle,
		Selector:  c.svc.Selector,
		Tracker:   c.svc.Tracker,
		Robots:    c.svc.Robots,
		Metrics:   c.svc.Metrics,
		Now:       c.svc.now,
	}
	if rps := c.policy.RequestsPerSecond; rps > 0 {
		pool.Limiter = NewDomainLimiter(rps)
	}

	err := pool.Run(ctx, c.stop)
	switch {
	case err != nil && ctx.Err() != nil:
		c.logger.Info("session interrupted", "pending", c.frontier.Pending())
		return ctx.Err()
	case err != nil:
		return c.finish(context.WithoutCancel(ctx), smartcrawl.StatusFailed, smartcrawl.ErrorMessage(storageError(err)), err)
	case c.stopped():
		return c.finish(ctx, smartcrawl.StatusStopped, "stopped by operator", nil)
	default:
		return c.finish(ctx, smartcrawl.StatusCompleted, "", nil)
	}
}

// handle turns one attempt into an outcome record and frontier update.
func (c *Controller) handle(ctx context.Context, a *Attempt) error {
	c.view.RLock()
	defer c.view.RUnlock()

	policy := c.policy
	entry := a.Entry
	outcome := &smartcrawl.FetchOutcome{
		ID:             uuid.New().String(),
		SessionID:      c.id,
		EntryID:        entry.ID,
		URL:            entry.URL,
		Attempt:        entry.Attempts,
		Duration:       a.Duration,
		Classification: a.Classification,
		CreatedAt:      a.At,
	}
	if a.Proxy != nil {
		outcome.ProxyID = a.Proxy.ID
	}
	if a.Response != nil {
		outcome.StatusCode = a.Response.StatusCode
	}
	if a.Err != nil {
		outcome.Error = a.Err.Error()
	}

	if _, ok := a.Classification.(smartcrawl.Retryable); ok && entry.Attempts <= policy.MaxRetries {
		outcome.Status = smartcrawl.OutcomeFailed
		if err := c.svc.Frontier.CreateOutcome(ctx, outcome); err != nil {
			return fmt.Errorf("create outcome: %w", err)
		}
		readyAt := c.svc.now().Add(RetryDelay(c.svc.RetryDelays, entry.Attempts))
		if err := c.frontier.Requeue(ctx, entry, readyAt, outcome.ProxyID); err != nil {
			return err
		}
		delta := smartcrawl.Counters{Retried: 1}
		c.counters.add(delta)
		c.logger.Debug("retry scheduled", "url", entry.URL, "attempt", entry.Attempts, "classification", a.Classification.String())
		return c.svc.Sessions.IncrementCounters(ctx, c.id, delta)
	}

	outcome.Status = smartcrawl.OutcomeStatusOf(a.Classification)
	outcome.Terminal = true
	if err := c.svc.Frontier.CreateOutcome(ctx, outcome); err != nil {
		return fmt.Errorf("create outcome: %w", err)
	}

	var delta smartcrawl.Counters
	state := smartcrawl.EntryFailed
	switch outcome.Status {
	case smartcrawl.OutcomeCompleted:
		state = smartcrawl.EntryCompleted
		delta.Completed = 1
		d, err := c.expand(ctx, entry, a.Response)
		if err != nil {
			return err
		}
		delta = delta.Add(d)
	case smartcrawl.OutcomeBlocked:
		state = smartcrawl.EntryBlocked
		delta.Blocked = 1
	default:
		delta.Failed = 1
	}

	if err := c.frontier.MarkTerminal(ctx, entry, state); err != nil {
		return err
	}
	c.counters.add(delta)
	if err := c.svc.Sessions.IncrementCounters(ctx, c.id, delta); err != nil {
		return err
	}
	c.publish(ctx, smartcrawl.EventURLFinished, outcome)
	return nil
}

// expand registers redirects and feeds links and pagination continuations
// of a completed page back into the frontier.
func (c *Controller) expand(ctx context.Context, entry *smartcrawl.FrontierEntry, resp *smartcrawl.FetchResponse) (smartcrawl.Counters, error) {
	var delta smartcrawl.Counters
	if resp == nil {
		return delta, nil
	}
	policy := c.policy

	base := entry.URL
	if resp.FinalURL != "" {
		known, err := c.frontier.Alias(ctx, entry, resp.FinalURL)
		if err != nil {
			return delta, err
		}
		if known {
			return delta, nil
		}
		base = resp.FinalURL
	}

	deep := policy.Strategy == smartcrawl.StrategyDeep && entry.Depth < policy.MaxDepth
	if (!deep && !policy.Pagination.Enabled) || c.svc.Extractor == nil {
		return delta, nil
	}
	links, err := c.svc.Extractor.ExtractLinks(resp.Body, base)
	if err != nil {
		c.logger.Warn("link extraction failed", "url", entry.URL, "err", err)
		return delta, nil
	}

	if deep && len(links.Links) > 0 {
		res, err := c.frontier.Discover(ctx, entry, links.Links)
		if err != nil {
			return delta, err
		}
		delta = delta.Add(res.Counters())
	}
	if policy.Pagination.Enabled && links.NextPage != "" {
		res, err := c.frontier.DiscoverPage(ctx, entry, links.NextPage)
		if err != nil {
			return delta, err
		}
		delta = delta.Add(res.Counters())
	}
	return delta, nil
}

// Stop prevents further dispatch. In-flight attempts finish and are recorded.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Controller) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// pollStop stops the controller when a stop request is found in storage.
func (c *Controller) pollStop(ctx context.Context) {
	t := time.NewTicker(c.svc.StopPollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-t.C:
			s, err := c.svc.Sessions.FindSessionByID(ctx, c.id)
			if err != nil {
				c.logger.Warn("stop poll failed", "err", err)
				continue
			}
			if s.StopRequested {
				c.logger.Info("stop requested")
				c.Stop()
				return
			}
		}
	}
}

// Done returns a channel that is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until Run returns or ctx is canceled.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a consistent snapshot of the session state.
func (c *Controller) Status() smartcrawl.SessionStatus {
	c.view.Lock()
	defer c.view.Unlock()

	c.mu.Lock()
	st := smartcrawl.SessionStatus{
		Status:   c.session.Status,
		Reason:   c.session.Reason,
		Counters: c.session.Counters,
	}
	frontier := c.frontier
	c.mu.Unlock()

	if frontier != nil {
		if st.Status == smartcrawl.StatusRunning {
			st.Counters = c.counters.load()
		}
		st.Pending = frontier.Pending() + frontier.InFlight()
	}
	return st
}

func (c *Controller) snapshot() smartcrawl.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) setSession(s *smartcrawl.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = *s
}

// reject fails a pending session because of a policy error.
func (c *Controller) reject(ctx context.Context, cause error) error {
	failed := smartcrawl.StatusFailed
	reason := smartcrawl.ErrorMessage(cause)
	now := c.svc.now()
	s, err := c.svc.Sessions.UpdateSession(ctx, c.id, smartcrawl.SessionUpdate{Status: &failed, Reason: &reason, FinishedAt: &now})
	if err != nil {
		return fmt.Errorf("fail session: %w", err)
	}
	c.setSession(s)
	c.logger.Warn("session rejected", "reason", reason)
	c.publish(ctx, smartcrawl.EventSessionFinished, nil)
	return cause
}

// abort fails a session because of a storage error.
func (c *Controller) abort(ctx context.Context, cause error) error {
	err := storageError(cause)
	failed := smartcrawl.StatusFailed
	reason := smartcrawl.ErrorMessage(err)
	now := c.svc.now()
	if s, uerr := c.svc.Sessions.UpdateSession(context.WithoutCancel(ctx), c.id, smartcrawl.SessionUpdate{Status: &failed, Reason: &reason, FinishedAt: &now}); uerr != nil {
		c.logger.Error("failed to record session failure", "err", uerr)
	} else {
		c.setSession(s)
	}
	return err
}

func (c *Controller) finish(ctx context.Context, status smartcrawl.Status, reason string, cause error) error {
	counters := c.counters.load()
	now := c.svc.now()
	s, err := c.svc.Sessions.UpdateSession(ctx, c.id, smartcrawl.SessionUpdate{
		Status:     &status,
		Reason:     &reason,
		FinishedAt: &now,
		Counters:   &counters,
	})
	if err != nil {
		c.logger.Error("failed to record session status", "status", status, "err", err)
		return errors.Join(cause, err)
	}
	c.setSession(s)

	c.logger.Info("session finished", "status", status, "reason", reason,
		"discovered", counters.Discovered, "completed", counters.Completed,
		"failed", counters.Failed, "blocked", counters.Blocked, "skipped", counters.Skipped)
	if c.svc.Metrics != nil {
		c.svc.Metrics.RecordSession(ctx, status, counters)
	}
	c.publish(ctx, smartcrawl.EventSessionFinished, nil)
	if cause != nil {
		return storageError(cause)
	}
	return nil
}

func (c *Controller) publish(ctx context.Context, typ smartcrawl.EventType, o *smartcrawl.FetchOutcome) {
	if c.svc.Events == nil {
		return
	}
	c.mu.Lock()
	ev := smartcrawl.SessionEvent{
		Type:      typ,
		SessionID: c.id,
		Status:    c.session.Status,
		Reason:    c.session.Reason,
		Counters:  c.session.Counters,
		At:        c.svc.now(),
	}
	c.mu.Unlock()
	if c.frontier != nil && ev.Status == smartcrawl.StatusRunning {
		ev.Counters = c.counters.load()
	}
	if o != nil {
		ev.Outcome = &smartcrawl.EventOutcome{
			URL:            o.URL,
			Status:         o.Status,
			StatusCode:     o.StatusCode,
			Classification: o.Classification.String(),
			ProxyID:        o.ProxyID,
			Duration:       o.Duration,
		}
	}
	if err := c.svc.Events.Publish(ctx, ev); err != nil {
		c.logger.Warn("publish event failed", "type", typ, "err", err)
	}
}

// storageError reports errors that are not application errors as ESTORAGE.
func storageError(err error) error {
	if err == nil || smartcrawl.ErrorCode(err) != smartcrawl.EINTERNAL {
		return err
	}
	return smartcrawl.Errorf(smartcrawl.ESTORAGE, "storage error: %v", err)
}

// origins returns the distinct scheme://host roots of the seeds.
func origins(seeds []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range seeds {
		u, err := parseHTTPURL(s)
		if err != nil {
			continue
		}
		o := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
