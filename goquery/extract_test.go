package goquery_test

import (
	"testing"

	"github.com/fwojciec/smartcrawl"
	"github.com/fwojciec/smartcrawl/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkExtractor_ExtractLinks(t *testing.T) {
	t.Parallel()

	t.Run("resolves links in document order", func(t *testing.T) {
		t.Parallel()

		html := `<!DOCTYPE html>
<html>
<body>
<nav>
	<a href="/docs/intro">Introduction</a>
	<a href="guide">Guide</a>
</nav>
<main>
	<a href="https://other.example.org/page">External</a>
	<a href="/docs/intro#install">Install</a>
	<map><area href="/docs/map" alt="map"></map>
</main>
</body>
</html>`

		links, err := goquery.NewLinkExtractor().ExtractLinks([]byte(html), "https://example.com/docs/")

		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://example.com/docs/intro",
			"https://example.com/docs/guide",
			"https://other.example.org/page",
			"https://example.com/docs/map",
		}, links.Links)
		assert.Empty(t, links.NextPage)
	})

	t.Run("skips non-http and self links", func(t *testing.T) {
		t.Parallel()

		html := `<body>
	<a href="javascript:void(0)">JS</a>
	<a href="mailto:team@example.com">Mail</a>
	<a href="tel:+123">Call</a>
	<a href="#top">Top</a>
	<a href="/page#section">Self</a>
	<a href="">Empty</a>
	<a>No href</a>
	<a href="/other">Other</a>
</body>`

		links, err := goquery.NewLinkExtractor().ExtractLinks([]byte(html), "https://example.com/page")

		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/other"}, links.Links)
	})

	t.Run("honours the base element", func(t *testing.T) {
		t.Parallel()

		html := `<html><head><base href="https://cdn.example.com/v2/"></head>
<body><a href="intro">Intro</a></body></html>`

		links, err := goquery.NewLinkExtractor().ExtractLinks([]byte(html), "https://example.com/")

		require.NoError(t, err)
		assert.Equal(t, []string{"https://cdn.example.com/v2/intro"}, links.Links)
	})

	t.Run("nofollow links can be skipped", func(t *testing.T) {
		t.Parallel()

		html := `<body><a href="/a" rel="nofollow noopener">A</a><a href="/b">B</a></body>`
		e := goquery.NewLinkExtractor()
		e.NoFollow = true

		links, err := e.ExtractLinks([]byte(html), "https://example.com/")

		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/b"}, links.Links)
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()

		links, err := goquery.NewLinkExtractor().ExtractLinks(nil, "https://example.com/")

		require.NoError(t, err)
		assert.Empty(t, links.Links)
		assert.Empty(t, links.NextPage)
	})

	t.Run("invalid base url", func(t *testing.T) {
		t.Parallel()

		_, err := goquery.NewLinkExtractor().ExtractLinks([]byte("<a href='/x'>x</a>"), "/relative")

		assert.Equal(t, smartcrawl.EINVALID, smartcrawl.ErrorCode(err))
	})
}
