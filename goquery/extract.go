// Package goquery extracts crawl links from HTML pages using goquery.
package goquery

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.LinkExtractor = (*LinkExtractor)(nil)

// LinkExtractor finds anchors and the pagination continuation of a page.
type LinkExtractor struct {
	// NoFollow, when set, skips anchors marked rel="nofollow".
	NoFollow bool
}

// NewLinkExtractor creates a new LinkExtractor.
func NewLinkExtractor() *LinkExtractor {
	return &LinkExtractor{}
}

// ExtractLinks parses body and returns its absolute http(s) links in
// document order. Fragments are stripped, duplicates and links back to the
// page itself are dropped. A <base href> in the document overrides baseURL
// for resolution.
func (e *LinkExtractor) ExtractLinks(body []byte, baseURL string) (*smartcrawl.ExtractedLinks, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "invalid base URL %q", baseURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "failed to parse HTML: %v", err)
	}

	self := stripFragment(base)
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	out := &smartcrawl.ExtractedLinks{}
	seen := make(map[string]bool)
	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		if e.NoFollow && hasRel(sel, "nofollow") {
			return
		}
		u := resolveURL(base, sel.AttrOr("href", ""))
		if u == "" || u == self || seen[u] {
			return
		}
		seen[u] = true
		out.Links = append(out.Links, u)
	})

	if next := nextPage(doc, base); next != self {
		out.NextPage = next
	}
	return out, nil
}

// resolveURL resolves href against base. It returns "" for hrefs that are
// unparseable or not http(s), such as javascript: and mailto: links.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := base.Parse(href)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return stripFragment(u)
}

func stripFragment(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// hasRel reports whether sel's rel attribute contains token.
func hasRel(sel *goquery.Selection, token string) bool {
	for _, f := range strings.Fields(sel.AttrOr("rel", "")) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}
