package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/fwojciec/smartcrawl"
	"github.com/temoto/robotstxt"
)

// DefaultMaxSitemapNesting bounds how deep sitemap indexes are followed.
const DefaultMaxSitemapNesting = 3

var _ smartcrawl.SitemapService = (*SitemapService)(nil)

// SitemapService discovers URLs from a site's XML sitemaps.
type SitemapService struct {
	client *http.Client

	// UserAgent is sent with every request when set.
	UserAgent string

	// MaxURLs stops discovery once that many URLs were collected. Zero
	// means unlimited.
	MaxURLs int

	// MaxNesting bounds sitemap index recursion.
	MaxNesting int
}

// NewSitemapService creates a new SitemapService with the given HTTP client.
// If client is nil, http.DefaultClient is used.
func NewSitemapService(client *http.Client) *SitemapService {
	if client == nil {
		client = http.DefaultClient
	}
	return &SitemapService{client: client, MaxNesting: DefaultMaxSitemapNesting}
}

// DiscoverURLs returns the page URLs listed in the sitemaps of baseURL's
// origin. Sitemaps are taken from robots.txt Sitemap directives, falling
// back to /sitemap.xml and /sitemap_index.xml.
//
// When baseURL has a non-root path only URLs below that path are returned.
// Broken sitemaps are skipped; an error is returned only when nothing could
// be read or ctx is done.
func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *smartcrawl.URLFilter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "invalid base URL %q", baseURL)
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host}

	candidates, err := s.sitemapsFromRobots(ctx, origin)
	if err != nil {
		return nil, err
	}
	fallback := len(candidates) == 0
	if fallback {
		candidates = []string{
			origin.String() + "/sitemap.xml",
			origin.String() + "/sitemap_index.xml",
		}
	}

	w := &sitemapWalk{
		svc:    s,
		prefix: pathPrefix(base.Path),
		filter: filter,
		seen:   make(map[string]bool),
		found:  make(map[string]bool),
		urls:   []string{},
	}
	for _, c := range candidates {
		w.visit(ctx, c, 0)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w.full() {
			break
		}
	}

	if len(w.urls) == 0 && w.err != nil && !(fallback && isNotFound(w.err)) {
		return nil, w.err
	}
	return w.urls, nil
}

// sitemapsFromRobots returns the Sitemap directives of the origin's
// robots.txt. A missing or unreadable robots.txt yields none.
func (s *SitemapService) sitemapsFromRobots(ctx context.Context, origin *url.URL) ([]string, error) {
	body, err := get(ctx, s.client, origin.String()+"/robots.txt", s.UserAgent)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, nil
	}
	var out []string
	for _, sm := range robots.Sitemaps {
		if sm = strings.TrimSpace(sm); sm != "" {
			out = append(out, sm)
		}
	}
	return out, nil
}

// sitemapWalk accumulates URLs across a tree of sitemaps.
type sitemapWalk struct {
	svc    *SitemapService
	prefix string
	filter *smartcrawl.URLFilter

	seen  map[string]bool
	found map[string]bool
	urls  []string

	// err is the first error encountered.
	err error
}

func (w *sitemapWalk) full() bool {
	return w.svc.MaxURLs > 0 && len(w.urls) >= w.svc.MaxURLs
}

func (w *sitemapWalk) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *sitemapWalk) visit(ctx context.Context, sitemapURL string, depth int) {
	if w.seen[sitemapURL] || w.full() || ctx.Err() != nil {
		return
	}
	w.seen[sitemapURL] = true

	doc, err := getXML(ctx, w.svc.client, sitemapURL, w.svc.UserAgent)
	if err != nil {
		w.fail(err)
		return
	}

	root := doc.Root()
	switch root.Tag {
	case "sitemapindex":
		if depth >= w.svc.MaxNesting {
			w.fail(fmt.Errorf("sitemap index %s nested too deeply", sitemapURL))
			return
		}
		for _, child := range locs(root, "sitemap") {
			w.visit(ctx, child, depth+1)
		}
	case "urlset":
		for _, u := range locs(root, "url") {
			w.add(u)
		}
	default:
		w.fail(fmt.Errorf("%s: unexpected root element <%s>", sitemapURL, root.Tag))
	}
}

func (w *sitemapWalk) add(u string) {
	if w.found[u] || w.full() {
		return
	}
	if w.prefix != "" && !underPath(u, w.prefix) {
		return
	}
	if !w.filter.Match(u) {
		return
	}
	w.found[u] = true
	w.urls = append(w.urls, u)
}

// locs returns the trimmed <loc> values of root's children named tag.
func locs(root *etree.Element, tag string) []string {
	var out []string
	for _, el := range root.SelectElements(tag) {
		loc := el.SelectElement("loc")
		if loc == nil {
			continue
		}
		if v := strings.TrimSpace(loc.Text()); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// pathPrefix returns p as a directory prefix, or "" for the root.
func pathPrefix(p string) string {
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// underPath reports whether rawURL's path lies below prefix. The prefix
// directory itself matches, so /docs matches /docs/ and /docs/intro but not
// /documentation.
func underPath(rawURL, prefix string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := u.Path
	if !strings.HasSuffix(p, "/") && p+"/" == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
