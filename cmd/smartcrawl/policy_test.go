package main_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/smartcrawl"
	main "github.com/fwojciec/smartcrawl/cmd/smartcrawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	t.Run("empty document yields defaults", func(t *testing.T) {
		t.Parallel()

		p, err := main.ParsePolicy(nil)

		require.NoError(t, err)
		assert.Equal(t, smartcrawl.DefaultPolicy(), p)
	})

	t.Run("overrides keys present in the file", func(t *testing.T) {
		t.Parallel()

		p, err := main.ParsePolicy([]byte(`
strategy: single
max_urls: 500
domain_scope: whitelist
whitelist: [example.com, docs.example.org]
respect_robots: true
pagination:
  enabled: true
  max_pages: 3
delay: 1s
jitter: 250ms
request_timeout: 10s
requests_per_second: 2.5
exclude: ["/login"]
`))

		require.NoError(t, err)
		assert.Equal(t, smartcrawl.StrategySingle, p.Strategy)
		assert.Equal(t, 500, p.MaxURLs)
		assert.Equal(t, smartcrawl.ScopeWhitelist, p.DomainScope)
		assert.Equal(t, []string{"example.com", "docs.example.org"}, p.Whitelist)
		assert.True(t, p.RespectRobots)
		assert.True(t, p.Pagination.Enabled)
		assert.Equal(t, 3, p.Pagination.MaxPages)
		assert.True(t, p.Pagination.DeduplicatePaginated, "default kept")
		assert.Equal(t, time.Second, p.Delay)
		assert.Equal(t, 250*time.Millisecond, p.Jitter)
		assert.Equal(t, 10*time.Second, p.RequestTimeout)
		assert.InDelta(t, 2.5, p.RequestsPerSecond, 0.001)
		assert.Equal(t, []string{"/login"}, p.Exclude)
		assert.Equal(t, smartcrawl.DefaultMaxDepth, p.MaxDepth, "default kept")
		assert.Equal(t, smartcrawl.DefaultUserAgent, p.UserAgent, "default kept")
		require.NoError(t, p.Validate())
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		t.Parallel()

		_, err := main.ParsePolicy([]byte("max_dept: 3\n"))

		assert.Equal(t, smartcrawl.EINVALID, smartcrawl.ErrorCode(err))
	})

	t.Run("rejects malformed durations", func(t *testing.T) {
		t.Parallel()

		_, err := main.ParsePolicy([]byte("delay: soon\n"))

		assert.Equal(t, smartcrawl.EINVALID, smartcrawl.ErrorCode(err))
	})
}

func TestLoadPolicy(t *testing.T) {
	t.Parallel()

	t.Run("empty path yields defaults", func(t *testing.T) {
		t.Parallel()

		p, err := main.LoadPolicy("")

		require.NoError(t, err)
		assert.Equal(t, smartcrawl.DefaultPolicy(), p)
	})

	t.Run("reads a file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("concurrency: 16\n"), 0o644))

		p, err := main.LoadPolicy(path)

		require.NoError(t, err)
		assert.Equal(t, 16, p.Concurrency)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := main.LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))

		assert.Error(t, err)
	})
}
