package crawl_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/fwojciec/smartcrawl/crawl"
	"github.com/fwojciec/smartcrawl/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordN(t *testing.T, tr *crawl.Tracker, id string, n int, success bool) smartcrawl.ProxyPerformance {
	t.Helper()
	var perf smartcrawl.ProxyPerformance
	for range n {
		var err error
		perf, err = tr.Record(context.Background(), id, smartcrawl.ProxyOutcome{
			Success:  success,
			Duration: 100 * time.Millisecond,
			At:       time.Now(),
		})
		require.NoError(t, err)
	}
	return perf
}

func TestTracker_Add(t *testing.T) {
	t.Parallel()

	t.Run("registers proxies in memory", func(t *testing.T) {
		t.Parallel()

		tr := crawl.NewTracker(nil)

		err := tr.Add(context.Background(), []*smartcrawl.Proxy{
			{Endpoint: "http://10.0.0.2:8080"},
			{ID: "a", Endpoint: "http://10.0.0.1:8080"},
		})

		require.NoError(t, err)
		assert.Equal(t, 2, tr.Len())
		proxies := tr.Proxies()
		assert.Equal(t, "a", proxies[0].ID)
		assert.Equal(t, "http://10.0.0.2:8080", proxies[1].ID)
		assert.Equal(t, smartcrawl.TierUntested, tr.Tier("a"))
	})

	t.Run("requires an endpoint", func(t *testing.T) {
		t.Parallel()

		err := crawl.NewTracker(nil).Add(context.Background(), []*smartcrawl.Proxy{{ID: "a"}})

		assert.Equal(t, smartcrawl.EINVALID, smartcrawl.ErrorCode(err))
	})

	t.Run("skips endpoints the store already has", func(t *testing.T) {
		t.Parallel()

		store := &mock.ProxyService{
			CreateProxyFn: func(_ context.Context, p *smartcrawl.Proxy) error {
				if p.Endpoint == "http://dup:1" {
					return smartcrawl.Errorf(smartcrawl.ECONFLICT, "Proxy already exists.")
				}
				p.ID = "new"
				return nil
			},
		}
		tr := crawl.NewTracker(store)

		err := tr.Add(context.Background(), []*smartcrawl.Proxy{
			{Endpoint: "http://dup:1"},
			{Endpoint: "http://fresh:1"},
		})

		require.NoError(t, err)
		assert.Equal(t, 1, tr.Len())
		assert.Equal(t, "new", tr.Proxies()[0].ID)
	})

	t.Run("returns store failures", func(t *testing.T) {
		t.Parallel()

		store := &mock.ProxyService{
			CreateProxyFn: func(_ context.Context, _ *smartcrawl.Proxy) error {
				return errors.New("disk full")
			},
		}

		err := crawl.NewTracker(store).Add(context.Background(), []*smartcrawl.Proxy{{Endpoint: "http://a:1"}})

		assert.ErrorContains(t, err, "disk full")
	})
}

func TestTracker_Load(t *testing.T) {
	t.Parallel()

	store := &mock.ProxyService{
		FindProxiesFn: func(_ context.Context, _ smartcrawl.ProxyFilter) ([]*smartcrawl.Proxy, error) {
			return []*smartcrawl.Proxy{{ID: "a", Endpoint: "http://a:1"}}, nil
		},
		FindPerformanceFn: func(_ context.Context, id string) (*smartcrawl.ProxyPerformance, error) {
			return &smartcrawl.ProxyPerformance{ProxyID: id, TotalRequests: 10, SuccessRate: 100}, nil
		},
	}
	tr := crawl.NewTracker(store)

	require.NoError(t, tr.Load(context.Background()))

	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, smartcrawl.TierExcellent, tr.Tier("a"))
}

func TestTracker_Record(t *testing.T) {
	t.Parallel()

	t.Run("folds outcomes into performance", func(t *testing.T) {
		t.Parallel()

		tr := crawl.NewTracker(nil)
		require.NoError(t, tr.Add(context.Background(), []*smartcrawl.Proxy{{ID: "a", Endpoint: "http://a:1"}}))

		recordN(t, tr, "a", 9, true)
		perf := recordN(t, tr, "a", 1, false)

		assert.Equal(t, int64(10), perf.TotalRequests)
		assert.Equal(t, int64(1), perf.ConsecutiveFailures)
		assert.InDelta(t, 90.0, perf.SuccessRate, 0.001)
		assert.Equal(t, smartcrawl.TierGood, tr.Tier("a"))

		stats := tr.Snapshot()
		require.Len(t, stats, 1)
		assert.Equal(t, smartcrawl.TierGood, stats[0].Tier)
		assert.Equal(t, perf, stats[0].Performance)
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		t.Parallel()

		tr := crawl.NewTracker(nil)
		require.NoError(t, tr.Add(context.Background(), []*smartcrawl.Proxy{{ID: "a", Endpoint: "http://a:1"}}))

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Go(func() {
				_, _ = tr.Record(context.Background(), "a", smartcrawl.ProxyOutcome{Success: i%2 == 0, At: time.Now()})
			})
		}
		wg.Wait()

		perf, ok := tr.Performance("a")
		require.True(t, ok)
		assert.Equal(t, int64(50), perf.TotalRequests)
		assert.Equal(t, int64(25), perf.FailedRequests)
	})

	t.Run("writes through to the store", func(t *testing.T) {
		t.Parallel()

		var recorded []smartcrawl.ProxyOutcome
		store := &mock.ProxyService{
			CreateProxyFn: func(_ context.Context, _ *smartcrawl.Proxy) error { return nil },
			RecordProxyOutcomeFn: func(_ context.Context, id string, o smartcrawl.ProxyOutcome) (*smartcrawl.ProxyPerformance, error) {
				recorded = append(recorded, o)
				return &smartcrawl.ProxyPerformance{ProxyID: id, TotalRequests: 7}, nil
			},
		}
		tr := crawl.NewTracker(store)
		require.NoError(t, tr.Add(context.Background(), []*smartcrawl.Proxy{{ID: "a", Endpoint: "http://a:1"}}))

		perf := recordN(t, tr, "a", 1, true)

		assert.Len(t, recorded, 1)
		assert.Equal(t, int64(7), perf.TotalRequests)
		cached, _ := tr.Performance("a")
		assert.Equal(t, int64(7), cached.TotalRequests)
	})
}
