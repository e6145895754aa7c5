package crawl_test

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fwojciec/smartcrawl"
)

var (
	_ smartcrawl.SessionService  = (*memStore)(nil)
	_ smartcrawl.FrontierService = (*memStore)(nil)
)

// memStore keeps sessions, frontier entries and outcomes in memory.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*smartcrawl.Session
	entries  map[string]*smartcrawl.FrontierEntry
	keys     map[string]string
	outcomes []*smartcrawl.FetchOutcome

	// failUpdates makes UpdateEntry fail once it is set.
	failUpdates error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*smartcrawl.Session),
		entries:  make(map[string]*smartcrawl.FrontierEntry),
		keys:     make(map[string]string),
	}
}

func (s *memStore) CreateSession(_ context.Context, session *smartcrawl.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = fmt.Sprintf("session-%d", len(s.sessions)+1)
	}
	if session.Status == "" {
		session.Status = smartcrawl.StatusPending
	}
	c := *session
	s.sessions[session.ID] = &c
	return nil
}

func (s *memStore) FindSessionByID(_ context.Context, id string) (*smartcrawl.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, smartcrawl.Errorf(smartcrawl.ENOTFOUND, "Session not found.")
	}
	c := *session
	return &c, nil
}

func (s *memStore) FindSessions(_ context.Context, filter smartcrawl.SessionFilter) ([]*smartcrawl.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*smartcrawl.Session
	for _, session := range s.sessions {
		if filter.Status != nil && session.Status != *filter.Status {
			continue
		}
		c := *session
		out = append(out, &c)
	}
	return out, nil
}

func (s *memStore) UpdateSession(_ context.Context, id string, upd smartcrawl.SessionUpdate) (*smartcrawl.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, smartcrawl.Errorf(smartcrawl.ENOTFOUND, "Session not found.")
	}
	if upd.Status != nil && *upd.Status != session.Status {
		if !session.Status.CanTransition(*upd.Status) {
			return nil, smartcrawl.Errorf(smartcrawl.ECONFLICT, "invalid transition")
		}
		session.Status = *upd.Status
	}
	if upd.Reason != nil {
		session.Reason = *upd.Reason
	}
	if upd.StartedAt != nil {
		session.StartedAt = upd.StartedAt
	}
	if upd.FinishedAt != nil {
		session.FinishedAt = upd.FinishedAt
	}
	if upd.Counters != nil {
		session.Counters = *upd.Counters
	}
	c := *session
	return &c, nil
}

func (s *memStore) IncrementCounters(_ context.Context, id string, delta smartcrawl.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return smartcrawl.Errorf(smartcrawl.ENOTFOUND, "Session not found.")
	}
	session.Counters = session.Counters.Add(delta)
	return nil
}

func (s *memStore) RequestStop(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return smartcrawl.Errorf(smartcrawl.ENOTFOUND, "Session not found.")
	}
	session.StopRequested = true
	return nil
}

func (s *memStore) session(id string) smartcrawl.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sessions[id]
}

func (s *memStore) CreateEntry(_ context.Context, entry *smartcrawl.FrontierEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entry.SessionID + "\x00" + entry.DedupKey
	if _, ok := s.keys[k]; ok {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "Frontier entry already exists.")
	}
	c := *entry
	c.ExcludedProxies = slices.Clone(entry.ExcludedProxies)
	s.entries[entry.ID] = &c
	s.keys[k] = entry.ID
	return nil
}

func (s *memStore) UpdateEntry(_ context.Context, id string, upd smartcrawl.EntryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates != nil {
		return s.failUpdates
	}
	e, ok := s.entries[id]
	if !ok {
		return smartcrawl.Errorf(smartcrawl.ENOTFOUND, "Frontier entry not found.")
	}
	if upd.State != nil {
		e.State = *upd.State
	}
	if upd.Attempts != nil {
		e.Attempts = *upd.Attempts
	}
	if upd.ExcludedProxies != nil {
		e.ExcludedProxies = slices.Clone(upd.ExcludedProxies)
	}
	if upd.ReadyAt != nil {
		e.ReadyAt = *upd.ReadyAt
	}
	e.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) FindEntries(_ context.Context, filter smartcrawl.FrontierFilter) ([]*smartcrawl.FrontierEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*smartcrawl.FrontierEntry
	for _, e := range s.entries {
		if e.SessionID != filter.SessionID {
			continue
		}
		if filter.State != nil && e.State != *filter.State {
			continue
		}
		c := *e
		c.ExcludedProxies = slices.Clone(e.ExcludedProxies)
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *smartcrawl.FrontierEntry) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

func (s *memStore) CountEntries(_ context.Context, sessionID string) (map[smartcrawl.EntryState]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[smartcrawl.EntryState]int)
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			counts[e.State]++
		}
	}
	return counts, nil
}

func (s *memStore) CreateOutcome(_ context.Context, outcome *smartcrawl.FetchOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *outcome
	s.outcomes = append(s.outcomes, &c)
	return nil
}

func (s *memStore) FindOutcomes(_ context.Context, filter smartcrawl.OutcomeFilter) ([]*smartcrawl.FetchOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*smartcrawl.FetchOutcome
	for _, o := range s.outcomes {
		if o.SessionID != filter.SessionID {
			continue
		}
		if filter.EntryID != nil && o.EntryID != *filter.EntryID {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	return out, nil
}

// entry returns the stored entry with the given URL.
func (s *memStore) entry(sessionID, url string) *smartcrawl.FrontierEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.SessionID == sessionID && e.URL == url {
			c := *e
			return &c
		}
	}
	return nil
}

// setFailUpdates makes subsequent UpdateEntry calls fail with err.
func (s *memStore) setFailUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates = err
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
