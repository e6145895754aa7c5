package smartcrawl_test

import (
	"testing"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy_IsValid(t *testing.T) {
	t.Parallel()

	p := smartcrawl.DefaultPolicy()
	require.NoError(t, p.Validate())
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name   string
		mutate func(p *smartcrawl.Policy)
	}{
		{"unknown strategy", func(p *smartcrawl.Policy) { p.Strategy = "wide" }},
		{"unknown scope", func(p *smartcrawl.Policy) { p.DomainScope = "planet" }},
		{"whitelist scope without domains", func(p *smartcrawl.Policy) { p.DomainScope = smartcrawl.ScopeWhitelist }},
		{"malformed whitelist domain", func(p *smartcrawl.Policy) {
			p.DomainScope = smartcrawl.ScopeWhitelist
			p.Whitelist = []string{"https://a.com/path"}
		}},
		{"empty whitelist label", func(p *smartcrawl.Policy) {
			p.DomainScope = smartcrawl.ScopeWhitelist
			p.Whitelist = []string{"a..com"}
		}},
		{"negative depth", func(p *smartcrawl.Policy) { p.MaxDepth = -1 }},
		{"zero concurrency", func(p *smartcrawl.Policy) { p.Concurrency = 0 }},
		{"jitter above delay", func(p *smartcrawl.Policy) {
			p.Delay = time.Second
			p.Jitter = 2 * time.Second
		}},
		{"zero timeout", func(p *smartcrawl.Policy) { p.RequestTimeout = 0 }},
		{"bad include pattern", func(p *smartcrawl.Policy) { p.Include = []string{"("} }},
		{"bad exclude pattern", func(p *smartcrawl.Policy) { p.Exclude = []string{"[a-"} }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := smartcrawl.DefaultPolicy()
			tt.mutate(&p)

			err := p.Validate()
			assert.Equal(t, smartcrawl.EINVALID, smartcrawl.ErrorCode(err))
		})
	}

	t.Run("accepts whitelist of bare domains", func(t *testing.T) {
		t.Parallel()

		p := smartcrawl.DefaultPolicy()
		p.DomainScope = smartcrawl.ScopeWhitelist
		p.Whitelist = []string{"a.com", "docs.b.org"}

		assert.NoError(t, p.Validate())
	})
}

func TestPolicy_URLFilter(t *testing.T) {
	t.Parallel()

	p := smartcrawl.DefaultPolicy()
	p.Include = []string{`/docs/`}
	p.Exclude = []string{`\.pdf$`}

	f, err := p.URLFilter()
	require.NoError(t, err)

	assert.True(t, f.Match("https://a.com/docs/intro"))
	assert.False(t, f.Match("https://a.com/blog/post"))
	assert.False(t, f.Match("https://a.com/docs/manual.pdf"))
}
