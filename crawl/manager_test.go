package crawl_test

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/fwojciec/smartcrawl/crawl"
	"github.com/fwojciec/smartcrawl/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, store *memStore, fetcher smartcrawl.Fetcher) *crawl.Manager {
	t.Helper()
	m := crawl.NewManager(testServices(store, fetcher))
	require.NoError(t, m.Open(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func singlePolicy() smartcrawl.Policy {
	p := testPolicy()
	p.Strategy = smartcrawl.StrategySingle
	return p
}

func waitSession(t *testing.T, m *crawl.Manager, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx, id))
}

func TestManager_StartSession(t *testing.T) {
	t.Parallel()

	t.Run("runs a session in the background", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]fakePage{"https://example.com/": {}})
		store := newMemStore()
		m := newTestManager(t, store, site.fetcher())
		ctx := context.Background()

		s, err := m.CreateSession(ctx, "docs", singlePolicy(), []string{"https://example.com/"})
		require.NoError(t, err)
		assert.Equal(t, smartcrawl.StatusPending, s.Status)
		assert.NotEmpty(t, s.ID)

		require.NoError(t, m.StartSession(ctx, s.ID))
		waitSession(t, m, s.ID)

		st, err := m.SessionStatus(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, smartcrawl.StatusCompleted, st.Status)
		assert.Equal(t, smartcrawl.Counters{Discovered: 1, Completed: 1}, st.Counters)
		assert.Equal(t, 0, st.Pending)
	})

	t.Run("cannot start a session twice", func(t *testing.T) {
		t.Parallel()

		entered := make(chan string, 10)
		release := make(chan struct{})
		defer close(release)
		store := newMemStore()
		m := newTestManager(t, store, blockingFetcher(entered, release))
		ctx := context.Background()
		s, err := m.CreateSession(ctx, "docs", singlePolicy(), []string{"https://example.com/"})
		require.NoError(t, err)
		require.NoError(t, m.StartSession(ctx, s.ID))
		<-entered

		err = m.StartSession(ctx, s.ID)

		assert.Equal(t, smartcrawl.ECONFLICT, smartcrawl.ErrorCode(err))
	})

	t.Run("returns policy errors", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		m := newTestManager(t, store, &mock.Fetcher{})
		ctx := context.Background()
		policy := singlePolicy()
		policy.Jitter = time.Second
		s, err := m.CreateSession(ctx, "docs", policy, []string{"https://example.com/"})
		require.NoError(t, err)

		err = m.StartSession(ctx, s.ID)

		assert.Equal(t, smartcrawl.EINVALID, smartcrawl.ErrorCode(err))
		st, err := m.SessionStatus(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, smartcrawl.StatusFailed, st.Status)
		assert.Equal(t, "jitter must not exceed delay", st.Reason)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, newMemStore(), &mock.Fetcher{})

		err := m.StartSession(context.Background(), "missing")

		assert.Equal(t, smartcrawl.ENOTFOUND, smartcrawl.ErrorCode(err))
	})
}

func TestManager_StopSession(t *testing.T) {
	t.Parallel()

	t.Run("stops a running session", func(t *testing.T) {
		t.Parallel()

		entered := make(chan string, 10)
		release := make(chan struct{})
		store := newMemStore()
		m := newTestManager(t, store, blockingFetcher(entered, release))
		ctx := context.Background()
		policy := singlePolicy()
		policy.Concurrency = 1
		s, err := m.CreateSession(ctx, "docs", policy, seedURLs(4))
		require.NoError(t, err)
		require.NoError(t, m.StartSession(ctx, s.ID))
		<-entered

		require.NoError(t, m.StopSession(ctx, s.ID))
		close(release)
		waitSession(t, m, s.ID)

		st, err := m.SessionStatus(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, smartcrawl.StatusStopped, st.Status)
		assert.Equal(t, int64(1), st.Counters.Completed)
		assert.Equal(t, 3, st.Pending)

		assert.NoError(t, m.StopSession(ctx, s.ID), "stopping twice is a no-op")
	})

	t.Run("only running sessions can be stopped", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		m := newTestManager(t, store, &mock.Fetcher{})
		s, err := m.CreateSession(context.Background(), "docs", singlePolicy(), []string{"https://example.com/"})
		require.NoError(t, err)

		err = m.StopSession(context.Background(), s.ID)

		assert.Equal(t, smartcrawl.ECONFLICT, smartcrawl.ErrorCode(err))
	})
}

func TestManager_ResumeSessions(t *testing.T) {
	t.Parallel()

	// runningSession stores a running session with seeded frontier entries,
	// as left behind by an interrupted process.
	runningSession := func(t *testing.T, store *memStore, stopRequested bool) *smartcrawl.Session {
		t.Helper()
		ctx := context.Background()
		s := &smartcrawl.Session{
			Name:          "docs",
			Seeds:         []string{"https://example.com/"},
			Policy:        singlePolicy(),
			Status:        smartcrawl.StatusRunning,
			StopRequested: stopRequested,
		}
		require.NoError(t, store.CreateSession(ctx, s))
		f, err := crawl.NewFrontier(s, store)
		require.NoError(t, err)
		_, err = f.Seed(ctx, []string{"https://example.com/", "https://example.com/next"})
		require.NoError(t, err)
		return s
	}

	t.Run("continues running sessions", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]fakePage{"https://example.com/": {}, "https://example.com/next": {}})
		store := newMemStore()
		s := runningSession(t, store, false)
		m := newTestManager(t, store, site.fetcher())

		n, err := m.ResumeSessions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		waitSession(t, m, s.ID)

		final := store.session(s.ID)
		assert.Equal(t, smartcrawl.StatusCompleted, final.Status)
		assert.Equal(t, smartcrawl.Counters{Discovered: 2, Completed: 2}, final.Counters)
	})

	t.Run("honours a pending stop request", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]fakePage{})
		store := newMemStore()
		s := runningSession(t, store, true)
		m := newTestManager(t, store, site.fetcher())

		_, err := m.ResumeSessions(context.Background())
		require.NoError(t, err)
		waitSession(t, m, s.ID)

		assert.Equal(t, smartcrawl.StatusStopped, store.session(s.ID).Status)
		assert.Equal(t, 0, site.fetchCount("https://example.com/"))
	})
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	entered := make(chan string, 10)
	store := newMemStore()
	m := crawl.NewManager(testServices(store, blockingFetcher(entered, nil)))
	ctx := context.Background()
	s, err := m.CreateSession(ctx, "docs", singlePolicy(), []string{"https://example.com/"})
	require.NoError(t, err)
	require.NoError(t, m.StartSession(ctx, s.ID))
	<-entered

	require.NoError(t, m.Close())

	session := store.session(s.ID)
	assert.Equal(t, smartcrawl.StatusRunning, session.Status, "interrupted sessions stay resumable")
	assert.Equal(t, smartcrawl.EntryPending, store.entry(s.ID, "https://example.com/").State)
}

func TestManager_Proxies(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newMemStore(), &mock.Fetcher{})
	ctx := context.Background()

	require.NoError(t, m.AddProxies(ctx, []*smartcrawl.Proxy{
		{Endpoint: "http://10.0.0.1:3128"},
		{Endpoint: "http://10.0.0.2:3128"},
		{Endpoint: "http://10.0.0.1:3128"},
	}))
	stats, err := m.ListProxies(ctx)

	require.NoError(t, err)
	require.Len(t, stats, 2)
	for _, s := range stats {
		assert.Equal(t, smartcrawl.TierUntested, s.Tier)
	}
}
