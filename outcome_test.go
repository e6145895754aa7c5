package smartcrawl_test

import (
	"testing"

	"github.com/fwojciec/smartcrawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	t.Parallel()

	t.Run("parses every known classification", func(t *testing.T) {
		t.Parallel()

		for _, c := range []smartcrawl.Classification{
			smartcrawl.Success{},
			smartcrawl.Retryable{Kind: smartcrawl.RetryTimeout},
			smartcrawl.Retryable{Kind: smartcrawl.RetryRateLimited},
			smartcrawl.Permanent{Kind: smartcrawl.PermanentBlocked},
			smartcrawl.Permanent{Kind: smartcrawl.PermanentRobots},
		} {
			got, err := smartcrawl.ParseClassification(c.String())
			require.NoError(t, err)
			assert.Equal(t, c, got)
		}
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		t.Parallel()

		for _, s := range []string{"", "retryable", "retryable:bogus", "fatal:timeout"} {
			_, err := smartcrawl.ParseClassification(s)
			assert.Equal(t, smartcrawl.EINVALID, smartcrawl.ErrorCode(err), s)
		}
	})
}

func TestOutcomeStatusOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, smartcrawl.OutcomeCompleted, smartcrawl.OutcomeStatusOf(smartcrawl.Success{}))
	assert.Equal(t, smartcrawl.OutcomeBlocked, smartcrawl.OutcomeStatusOf(smartcrawl.Permanent{Kind: smartcrawl.PermanentBlocked}))
	assert.Equal(t, smartcrawl.OutcomeBlocked, smartcrawl.OutcomeStatusOf(smartcrawl.Permanent{Kind: smartcrawl.PermanentRobots}))
	assert.Equal(t, smartcrawl.OutcomeFailed, smartcrawl.OutcomeStatusOf(smartcrawl.Permanent{Kind: smartcrawl.PermanentClientError}))
	assert.Equal(t, smartcrawl.OutcomeFailed, smartcrawl.OutcomeStatusOf(smartcrawl.Retryable{Kind: smartcrawl.RetryServerError}))
}

func TestProxyFault(t *testing.T) {
	t.Parallel()

	assert.False(t, smartcrawl.ProxyFault(smartcrawl.Success{}))
	assert.True(t, smartcrawl.ProxyFault(smartcrawl.Retryable{Kind: smartcrawl.RetryConnection}))
	assert.True(t, smartcrawl.ProxyFault(smartcrawl.Permanent{Kind: smartcrawl.PermanentBlocked}))
	assert.False(t, smartcrawl.ProxyFault(smartcrawl.Permanent{Kind: smartcrawl.PermanentClientError}))
	assert.True(t, smartcrawl.RateLimited(smartcrawl.Retryable{Kind: smartcrawl.RetryRateLimited}))
	assert.False(t, smartcrawl.RateLimited(smartcrawl.Retryable{Kind: smartcrawl.RetryTimeout}))
}
