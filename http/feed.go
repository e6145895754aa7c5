package http

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/beevik/etree"
	"github.com/fwojciec/smartcrawl"
)

// commonFeedPaths are probed when a page advertises no feed.
var commonFeedPaths = []string{"/feed", "/rss.xml", "/atom.xml", "/feed.xml", "/index.xml"}

var _ smartcrawl.FeedService = (*FeedService)(nil)

// FeedService discovers item links from RSS 2.0, RSS 1.0 and Atom feeds.
type FeedService struct {
	client *http.Client

	// UserAgent is sent with every request when set.
	UserAgent string
}

// NewFeedService creates a new FeedService with the given HTTP client.
// If client is nil, http.DefaultClient is used.
func NewFeedService(client *http.Client) *FeedService {
	if client == nil {
		client = http.DefaultClient
	}
	return &FeedService{client: client}
}

// DiscoverURLs reads the feeds advertised by <link rel="alternate"> in the
// page at baseURL. When the page advertises none, common feed paths on the
// origin are tried instead. Links are returned absolute, in feed order and
// without duplicates.
func (s *FeedService) DiscoverURLs(ctx context.Context, baseURL string, filter *smartcrawl.URLFilter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "invalid base URL %q", baseURL)
	}

	feeds := s.advertisedFeeds(ctx, base)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	probing := len(feeds) == 0
	if probing {
		origin := base.Scheme + "://" + base.Host
		for _, p := range commonFeedPaths {
			feeds = append(feeds, origin+p)
		}
	}

	seen := make(map[string]bool)
	urls := []string{}
	var firstErr error
	for _, feedURL := range feeds {
		links, err := s.readFeed(ctx, feedURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if firstErr == nil && !(probing && isNotFound(err)) {
				firstErr = err
			}
			continue
		}
		for _, l := range links {
			if seen[l] || !filter.Match(l) {
				continue
			}
			seen[l] = true
			urls = append(urls, l)
		}
	}
	if len(urls) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return urls, nil
}

// advertisedFeeds returns the feed URLs linked from the page at base.
func (s *FeedService) advertisedFeeds(ctx context.Context, base *url.URL) []string {
	body, err := get(ctx, s.client, base.String(), s.UserAgent)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find(`link[rel~="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "")))
		if typ != "application/rss+xml" && typ != "application/atom+xml" {
			return
		}
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if u := resolve(base, href); u != "" {
			out = append(out, u)
		}
	})
	return out
}

// readFeed fetches and parses one feed.
func (s *FeedService) readFeed(ctx context.Context, feedURL string) ([]string, error) {
	doc, err := getXML(ctx, s.client, feedURL, s.UserAgent)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(feedURL)
	if err != nil {
		return nil, err
	}

	var raw []string
	root := doc.Root()
	switch root.Tag {
	case "rss":
		for _, item := range root.FindElements("./channel/item") {
			raw = append(raw, elementText(item.SelectElement("link")))
		}
	case "RDF":
		for _, item := range root.SelectElements("item") {
			raw = append(raw, elementText(item.SelectElement("link")))
		}
	case "feed":
		for _, entry := range root.SelectElements("entry") {
			raw = append(raw, atomLink(entry))
		}
	default:
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "%s is not a feed", feedURL)
	}

	var out []string
	for _, r := range raw {
		if u := resolve(base, r); u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

// atomLink returns the alternate link of an Atom entry. A link without a
// rel attribute is an alternate link.
func atomLink(entry *etree.Element) string {
	for _, l := range entry.SelectElements("link") {
		rel := l.SelectAttrValue("rel", "alternate")
		if rel == "alternate" {
			return l.SelectAttrValue("href", "")
		}
	}
	return ""
}

func elementText(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// resolve returns ref as an absolute http(s) URL, or "" when it is not one.
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
