package smartcrawl

import (
	"context"
	"regexp"
	"slices"
)

// SitemapService discovers URLs listed in a site's sitemaps.
type SitemapService interface {
	// DiscoverURLs returns page URLs from the sitemaps named in robots.txt,
	// or from /sitemap.xml and /sitemap_index.xml when robots.txt names
	// none. Index files are followed to a bounded depth. Only URLs under the
	// path of baseURL that pass filter are returned; a nil filter passes
	// everything. A site without sitemaps yields an empty list.
	DiscoverURLs(ctx context.Context, baseURL string, filter *URLFilter) ([]string, error)
}

// FeedService discovers URLs from a site's RSS and Atom feeds.
type FeedService interface {
	// DiscoverURLs finds item links from feeds advertised in the page at
	// baseURL or served at common feed paths.
	DiscoverURLs(ctx context.Context, baseURL string, filter *URLFilter) ([]string, error)
}

// URLFilter holds compiled include and exclude patterns.
// A URL passes when it matches some Include pattern (or Include is empty)
// and no Exclude pattern.
type URLFilter struct {
	Include []*regexp.Regexp
	Exclude []*regexp.Regexp
}

// Match reports whether url passes the filter. A nil filter passes every URL.
func (f *URLFilter) Match(url string) bool {
	if f == nil {
		return true
	}
	matches := func(re *regexp.Regexp) bool { return re.MatchString(url) }
	if len(f.Include) > 0 && !slices.ContainsFunc(f.Include, matches) {
		return false
	}
	return !slices.ContainsFunc(f.Exclude, matches)
}
