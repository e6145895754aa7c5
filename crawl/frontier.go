package crawl

import (
	"container/heap"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/smartcrawl"
	"github.com/fwojciec/smartcrawl/bloom"
)

// DiscoverResult reports what happened to a batch of candidate URLs.
type DiscoverResult struct {
	// Accepted entries entered the frontier.
	Accepted []*smartcrawl.FrontierEntry

	// Duplicates were already known to the session.
	Duplicates int

	// Filtered candidates were rejected by domain scope or patterns.
	// They are persisted so a repeat rejection is not counted twice.
	Filtered int

	// Skipped candidates were dropped by the URL or page cap.
	Skipped int

	// Rejected candidates were not valid http(s) URLs.
	Rejected int
}

// Counters returns the session counter increments for the result.
func (r *DiscoverResult) Counters() smartcrawl.Counters {
	return smartcrawl.Counters{
		Discovered: int64(len(r.Accepted) + r.Filtered),
		Blocked:    int64(r.Filtered),
		Skipped:    int64(r.Skipped),
	}
}

// candidate is a URL proposed for insertion.
type candidate struct {
	url    string
	parent string
	depth  int
	page   int
	source smartcrawl.Source
}

// Frontier is the deduplicated, depth and domain scoped queue of a session.
// Every mutation is written through to the FrontierService so the frontier
// can be rebuilt with Restore. It is safe for concurrent use by multiple
// goroutines.
type Frontier struct {
	mu sync.Mutex

	sessionID string
	policy    smartcrawl.Policy
	scope     *Scope
	filter    *smartcrawl.URLFilter
	store     smartcrawl.FrontierService

	seen     *bloom.KeySet
	queue    *entryHeap
	retry    []*smartcrawl.FrontierEntry
	inflight map[string]*smartcrawl.FrontierEntry
	accepted int
	seq      int64
	changed  chan struct{}

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewFrontier creates an empty frontier for a session.
// Returns EINVALID if the policy patterns do not compile.
func NewFrontier(session *smartcrawl.Session, store smartcrawl.FrontierService) (*Frontier, error) {
	filter, err := session.Policy.URLFilter()
	if err != nil {
		return nil, err
	}
	n := uint(bloom.DefaultExpectedKeys)
	if m := uint(session.Policy.MaxURLs) * 4; m > n {
		n = m
	}
	q := &entryHeap{}
	heap.Init(q)
	return &Frontier{
		sessionID: session.ID,
		policy:    session.Policy,
		scope:     NewScope(session.Policy, session.Seeds),
		filter:    filter,
		store:     store,
		seen:      bloom.NewKeySet(n, bloom.DefaultFalsePositiveRate),
		queue:     q,
		inflight:  make(map[string]*smartcrawl.FrontierEntry),
		changed:   make(chan struct{}),
		Now:       time.Now,
	}, nil
}

// Seed inserts the session seeds at depth 0.
func (f *Frontier) Seed(ctx context.Context, urls []string) (*DiscoverResult, error) {
	cs := make([]candidate, len(urls))
	for i, u := range urls {
		cs[i] = candidate{url: u, source: smartcrawl.SourceSeed}
	}
	return f.add(ctx, cs)
}

// SeedFrom inserts URLs found in sitemaps or feeds at depth 1.
func (f *Frontier) SeedFrom(ctx context.Context, source smartcrawl.Source, urls []string) (*DiscoverResult, error) {
	cs := make([]candidate, len(urls))
	for i, u := range urls {
		cs[i] = candidate{url: u, depth: 1, source: source}
	}
	return f.add(ctx, cs)
}

// Discover inserts links found on parent at parent depth + 1. The caller
// decides whether parent is shallow enough to be expanded.
func (f *Frontier) Discover(ctx context.Context, parent *smartcrawl.FrontierEntry, urls []string) (*DiscoverResult, error) {
	cs := make([]candidate, len(urls))
	for i, u := range urls {
		cs[i] = candidate{url: u, parent: parent.URL, depth: parent.Depth + 1, source: smartcrawl.SourceLink}
	}
	return f.add(ctx, cs)
}

// DiscoverPage inserts the pagination continuation of parent. The entry
// keeps the parent depth and carries the next page number. Pages beyond
// the policy's MaxPages are skipped.
func (f *Frontier) DiscoverPage(ctx context.Context, parent *smartcrawl.FrontierEntry, nextURL string) (*DiscoverResult, error) {
	page := max(parent.Page, 1) + 1
	if maxPages := f.policy.Pagination.MaxPages; maxPages > 0 && page > maxPages {
		return &DiscoverResult{Skipped: 1}, nil
	}
	return f.add(ctx, []candidate{{
		url:    nextURL,
		parent: parent.URL,
		depth:  parent.Depth,
		page:   page,
		source: smartcrawl.SourcePagination,
	}})
}

func (f *Frontier) add(ctx context.Context, cs []candidate) (*DiscoverResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := &DiscoverResult{}
	for _, c := range cs {
		u, err := parseHTTPURL(c.url)
		if err != nil {
			res.Rejected++
			continue
		}
		normalized := u.String()
		key := dedupKey(normalized, c.page, f.policy.Pagination.DeduplicatePaginated)
		if f.knownLocked(key) {
			res.Duplicates++
			continue
		}

		entry := f.newEntryLocked(c, normalized, key)
		if !f.scope.Allowed(u) || !f.filter.Match(normalized) {
			entry.State = smartcrawl.EntryFiltered
		} else if f.policy.MaxURLs > 0 && f.accepted >= f.policy.MaxURLs {
			res.Skipped++
			continue
		}

		if err := f.store.CreateEntry(ctx, entry); err != nil {
			if smartcrawl.ErrorCode(err) == smartcrawl.ECONFLICT {
				f.rememberLocked(key)
				res.Duplicates++
				continue
			}
			return res, fmt.Errorf("create frontier entry: %w", err)
		}
		f.rememberLocked(key)

		if entry.State == smartcrawl.EntryFiltered {
			res.Filtered++
			continue
		}
		f.accepted++
		heap.Push(f.queue, entry)
		res.Accepted = append(res.Accepted, cloneEntry(entry))
	}
	if len(res.Accepted) > 0 {
		f.notifyLocked()
	}
	return res, nil
}

func (f *Frontier) newEntryLocked(c candidate, normalized, key string) *smartcrawl.FrontierEntry {
	f.seq++
	now := f.Now()
	return &smartcrawl.FrontierEntry{
		ID:        entryID(f.sessionID, key),
		SessionID: f.sessionID,
		URL:       normalized,
		DedupKey:  key,
		ParentURL: c.parent,
		Depth:     c.depth,
		Source:    c.source,
		Page:      c.page,
		State:     smartcrawl.EntryPending,
		Seq:       f.seq,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (f *Frontier) knownLocked(key string) bool {
	return f.seen.Has(key)
}

func (f *Frontier) rememberLocked(key string) {
	f.seen.Add(key)
}

// NextBatch returns up to n ready entries, shallowest first and then in
// insertion order, and marks them dispatched. It never blocks.
func (f *Frontier) NextBatch(ctx context.Context, n int) ([]*smartcrawl.FrontierEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.promoteLocked()

	var batch []*smartcrawl.FrontierEntry
	for len(batch) < n && f.queue.Len() > 0 {
		entry, _ := heap.Pop(f.queue).(*smartcrawl.FrontierEntry)
		state := smartcrawl.EntryDispatched
		if err := f.store.UpdateEntry(ctx, entry.ID, smartcrawl.EntryUpdate{State: &state}); err != nil {
			heap.Push(f.queue, entry)
			return batch, fmt.Errorf("dispatch frontier entry: %w", err)
		}
		entry.State = state
		entry.UpdatedAt = f.Now()
		f.inflight[entry.ID] = entry
		batch = append(batch, cloneEntry(entry))
	}
	return batch, nil
}

// promoteLocked moves requeued entries whose ReadyAt has passed into the queue.
func (f *Frontier) promoteLocked() {
	if len(f.retry) == 0 {
		return
	}
	now := f.Now()
	waiting := f.retry[:0]
	for _, e := range f.retry {
		if e.ReadyAt.After(now) {
			waiting = append(waiting, e)
			continue
		}
		heap.Push(f.queue, e)
	}
	clear(f.retry[len(waiting):])
	f.retry = waiting
}

// MarkTerminal records the final state of a dispatched entry.
func (f *Frontier) MarkTerminal(ctx context.Context, entry *smartcrawl.FrontierEntry, state smartcrawl.EntryState) error {
	if !state.IsTerminal() {
		return smartcrawl.Errorf(smartcrawl.EINVALID, "state %q is not terminal", state)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.inflight[entry.ID]
	if !ok {
		return smartcrawl.Errorf(smartcrawl.ENOTFOUND, "entry %s is not in flight", entry.ID)
	}
	attempts := entry.Attempts
	if err := f.store.UpdateEntry(ctx, e.ID, smartcrawl.EntryUpdate{State: &state, Attempts: &attempts}); err != nil {
		return fmt.Errorf("mark frontier entry: %w", err)
	}
	delete(f.inflight, e.ID)
	e.State = state
	e.Attempts = attempts
	f.notifyLocked()
	return nil
}

// Requeue returns a dispatched entry to the frontier after a retryable
// failure. The entry becomes dispatchable at readyAt and will avoid
// excludeProxy if one is given.
func (f *Frontier) Requeue(ctx context.Context, entry *smartcrawl.FrontierEntry, readyAt time.Time, excludeProxy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.inflight[entry.ID]
	if !ok {
		return smartcrawl.Errorf(smartcrawl.ENOTFOUND, "entry %s is not in flight", entry.ID)
	}
	excluded := slices.Clone(e.ExcludedProxies)
	if excludeProxy != "" && !slices.Contains(excluded, excludeProxy) {
		excluded = append(excluded, excludeProxy)
	}
	state := smartcrawl.EntryPending
	attempts := entry.Attempts
	upd := smartcrawl.EntryUpdate{State: &state, Attempts: &attempts, ExcludedProxies: excluded, ReadyAt: &readyAt}
	if err := f.store.UpdateEntry(ctx, e.ID, upd); err != nil {
		return fmt.Errorf("requeue frontier entry: %w", err)
	}
	delete(f.inflight, e.ID)
	e.State = state
	e.Attempts = attempts
	e.ExcludedProxies = excluded
	e.ReadyAt = readyAt
	f.retry = append(f.retry, e)
	f.notifyLocked()
	return nil
}

// Release undoes the dispatch of an entry that was never fetched.
func (f *Frontier) Release(ctx context.Context, entry *smartcrawl.FrontierEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.inflight[entry.ID]
	if !ok {
		return nil
	}
	state := smartcrawl.EntryPending
	if err := f.store.UpdateEntry(ctx, e.ID, smartcrawl.EntryUpdate{State: &state}); err != nil {
		return fmt.Errorf("release frontier entry: %w", err)
	}
	delete(f.inflight, e.ID)
	e.State = state
	heap.Push(f.queue, e)
	f.notifyLocked()
	return nil
}

// Alias registers the final URL of a redirected entry. It reports whether
// the target was already known to the session, in which case the caller
// should not expand it again.
func (f *Frontier) Alias(ctx context.Context, entry *smartcrawl.FrontierEntry, finalURL string) (bool, error) {
	u, err := parseHTTPURL(finalURL)
	if err != nil {
		return false, nil
	}
	normalized := u.String()
	if normalized == entry.URL {
		return false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := dedupKey(normalized, entry.Page, f.policy.Pagination.DeduplicatePaginated)
	if f.knownLocked(key) {
		return true, nil
	}
	alias := f.newEntryLocked(candidate{
		url:    normalized,
		parent: entry.URL,
		depth:  entry.Depth,
		page:   entry.Page,
		source: smartcrawl.SourceRedirect,
	}, normalized, key)
	alias.State = smartcrawl.EntryRedirect
	if err := f.store.CreateEntry(ctx, alias); err != nil {
		if smartcrawl.ErrorCode(err) == smartcrawl.ECONFLICT {
			f.rememberLocked(key)
			return true, nil
		}
		return false, fmt.Errorf("create redirect entry: %w", err)
	}
	f.rememberLocked(key)
	return false, nil
}

// Pending returns the number of entries waiting for dispatch, including
// requeued entries that are not yet ready.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len() + len(f.retry)
}

// InFlight returns the number of dispatched entries without a terminal state.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflight)
}

// Done reports whether every entry has reached a terminal state.
func (f *Frontier) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len() == 0 && len(f.retry) == 0 && len(f.inflight) == 0
}

// Changed returns a channel that is closed on the next frontier mutation.
func (f *Frontier) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

func (f *Frontier) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// NextReadyAt returns the earliest time a requeued entry becomes ready and
// false if none is waiting.
func (f *Frontier) NextReadyAt() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var next time.Time
	for _, e := range f.retry {
		if next.IsZero() || e.ReadyAt.Before(next) {
			next = e.ReadyAt
		}
	}
	return next, !next.IsZero()
}

// Restore rebuilds the frontier from persisted entries and returns the
// session counters they imply. Entries that were dispatched when the
// previous process stopped go back to pending.
func (f *Frontier) Restore(ctx context.Context) (smartcrawl.Counters, error) {
	entries, err := f.store.FindEntries(ctx, smartcrawl.FrontierFilter{SessionID: f.sessionID})
	if err != nil {
		return smartcrawl.Counters{}, fmt.Errorf("find frontier entries: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var c smartcrawl.Counters
	now := f.Now()
	for _, e := range entries {
		f.rememberLocked(e.DedupKey)
		f.seq = max(f.seq, e.Seq)
		switch e.State {
		case smartcrawl.EntryRedirect:
			continue
		case smartcrawl.EntryFiltered:
			c.Blocked++
		case smartcrawl.EntryCompleted:
			c.Completed++
		case smartcrawl.EntryFailed:
			c.Failed++
		case smartcrawl.EntryBlocked:
			c.Blocked++
		case smartcrawl.EntryPending, smartcrawl.EntryDispatched:
			if e.State == smartcrawl.EntryDispatched {
				state := smartcrawl.EntryPending
				if err := f.store.UpdateEntry(ctx, e.ID, smartcrawl.EntryUpdate{State: &state}); err != nil {
					return c, fmt.Errorf("reset dispatched entry: %w", err)
				}
				e.State = state
			}
			if e.ReadyAt.After(now) {
				f.retry = append(f.retry, e)
			} else {
				heap.Push(f.queue, e)
			}
		}
		c.Discovered++
		if e.State != smartcrawl.EntryFiltered {
			f.accepted++
		}
	}
	f.notifyLocked()
	return c, nil
}

func entryID(sessionID, key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(sessionID+"\x00"+key))
}

func cloneEntry(e *smartcrawl.FrontierEntry) *smartcrawl.FrontierEntry {
	c := *e
	c.ExcludedProxies = slices.Clone(e.ExcludedProxies)
	return &c
}

// entryHeap implements heap.Interface ordering entries breadth first by
// depth, ties broken by insertion sequence.
type entryHeap []*smartcrawl.FrontierEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Depth != h[j].Depth {
		return h[i].Depth < h[j].Depth
	}
	return h[i].Seq < h[j].Seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	e, _ := x.(*smartcrawl.FrontierEntry)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}
