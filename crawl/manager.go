package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fwojciec/smartcrawl"
)

// Compile-time interface verification.
var _ smartcrawl.CrawlService = (*Manager)(nil)

// Manager runs sessions in the background, one Controller per active
// session, all sharing the process-wide proxy Tracker and Selector.
type Manager struct {
	svc Services

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*Controller
}

// NewManager creates a manager. A nil Tracker or Selector in svc is
// replaced with one backed by no storage.
func NewManager(svc Services) *Manager {
	if svc.Tracker == nil {
		svc.Tracker = NewTracker(nil)
	}
	if svc.Selector == nil {
		svc.Selector = NewSelector(svc.Tracker)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]*Controller),
	}
}

// Open loads stored proxies into the tracker.
func (m *Manager) Open(ctx context.Context) error {
	return m.svc.Tracker.Load(ctx)
}

// Close interrupts every running session and waits for them to return.
// Interrupted sessions stay running in storage and can be resumed.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

// CreateSession stores a pending session. The policy is validated when the
// session is started.
func (m *Manager) CreateSession(ctx context.Context, name string, policy smartcrawl.Policy, seeds []string) (*smartcrawl.Session, error) {
	s := &smartcrawl.Session{
		Name:   name,
		Seeds:  seeds,
		Policy: policy,
		Status: smartcrawl.StatusPending,
	}
	if err := m.svc.Sessions.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// StartSession starts a pending session in the background.
func (m *Manager) StartSession(ctx context.Context, id string) error {
	s, err := m.svc.Sessions.FindSessionByID(ctx, id)
	if err != nil {
		return err
	}
	c := NewController(s, m.svc)
	if !m.reserve(c) {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "session %s is already active", id)
	}
	if err := c.Start(ctx); err != nil {
		m.release(id)
		return err
	}
	m.run(c)
	return nil
}

// ResumeSessions continues every running session that is not active in this
// process. It returns the number of resumed sessions.
func (m *Manager) ResumeSessions(ctx context.Context) (int, error) {
	running := smartcrawl.StatusRunning
	sessions, err := m.svc.Sessions.FindSessions(ctx, smartcrawl.SessionFilter{Status: &running})
	if err != nil {
		return 0, fmt.Errorf("find running sessions: %w", err)
	}
	n := 0
	for _, s := range sessions {
		c := NewController(s, m.svc)
		if !m.reserve(c) {
			continue
		}
		if err := c.Resume(ctx); err != nil {
			m.release(s.ID)
			return n, fmt.Errorf("resume session %s: %w", s.ID, err)
		}
		if s.StopRequested {
			c.Stop()
		}
		m.run(c)
		n++
	}
	return n, nil
}

// reserve registers c as the active controller of its session unless one
// is already registered.
func (m *Manager) reserve(c *Controller) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[c.ID()]; ok {
		return false
	}
	m.active[c.ID()] = c
	return true
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

func (m *Manager) run(c *Controller) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(c.ID())
		if err := c.Run(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.svc.logger().Error("session run failed", "session", c.ID(), "err", err)
		}
	}()
}

func (m *Manager) controller(id string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

// StopSession stops a running session. Stopping an already stopped session
// is a no-op. Sessions running in another process are stopped through a
// persisted stop request.
func (m *Manager) StopSession(ctx context.Context, id string) error {
	s, err := m.svc.Sessions.FindSessionByID(ctx, id)
	if err != nil {
		return err
	}
	switch s.Status {
	case smartcrawl.StatusStopped:
		return nil
	case smartcrawl.StatusRunning:
	default:
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "session %s is %s, not running", id, s.Status)
	}
	if err := m.svc.Sessions.RequestStop(ctx, id); err != nil {
		return err
	}
	if c := m.controller(id); c != nil {
		c.Stop()
	}
	return nil
}

// Wait blocks until the session is no longer active in this process.
func (m *Manager) Wait(ctx context.Context, id string) error {
	c := m.controller(id)
	if c == nil {
		return nil
	}
	return c.Wait(ctx)
}

// SessionStatus returns live state for active sessions and stored state
// otherwise.
func (m *Manager) SessionStatus(ctx context.Context, id string) (*smartcrawl.SessionStatus, error) {
	if c := m.controller(id); c != nil {
		st := c.Status()
		return &st, nil
	}
	s, err := m.svc.Sessions.FindSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := m.svc.Frontier.CountEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	return &smartcrawl.SessionStatus{
		Status:   s.Status,
		Reason:   s.Reason,
		Counters: s.Counters,
		Pending:  counts[smartcrawl.EntryPending] + counts[smartcrawl.EntryDispatched],
	}, nil
}

// ListProxies returns every proxy with its performance and tier.
func (m *Manager) ListProxies(ctx context.Context) ([]*smartcrawl.ProxyStats, error) {
	return m.svc.Tracker.Snapshot(), nil
}

// AddProxies registers proxies with the shared tracker.
func (m *Manager) AddProxies(ctx context.Context, proxies []*smartcrawl.Proxy) error {
	return m.svc.Tracker.Add(ctx, proxies)
}
