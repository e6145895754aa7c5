package goquery

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// frameworkNext holds the "next page" selectors of generated sites.
var frameworkNext = map[framework][]string{
	frameworkDocusaurus: {"a.pagination-nav__link--next"},
	frameworkMkDocs:     {"a.md-footer__link--next"},
	frameworkSphinx:     {".rst-footer-buttons a.float-right", ".related a[accesskey='N']"},
	frameworkVitePress:  {"a.pager-link.next"},
	frameworkVuePress:   {".page-nav .next a"},
	frameworkGitBook:    {"a[aria-label*='Next']"},
	frameworkNextra:     {"a[title*='Next']"},
	frameworkWordPress:  {".nav-links a.next", ".wp-block-query-pagination-next"},
}

// genericNext are the common pagination selectors, in preference order.
var genericNext = []string{
	"a.next",
	".pagination .next a",
	".pagination a.next",
	".pager .next a",
	"a.next-page",
	"a[aria-label='Next']",
	"a[aria-label='Next page']",
}

// nextTexts are link texts that mark a pagination continuation.
var nextTexts = map[string]bool{
	"next":        true,
	"next page":   true,
	"next »":      true,
	"next ›":      true,
	"next >":      true,
	"older posts": true,
	"»":           true,
	"›":           true,
}

var pageParam = regexp.MustCompile(`^(?i)(page|p|pg)$`)

// nextPage returns the pagination continuation of doc, or "" when none is
// found. rel="next" wins, then framework and generic selectors, then link
// text, then a page query parameter one above the current page.
func nextPage(doc *goquery.Document, base *url.URL) string {
	if u := firstLink(doc.Find(`link[rel~="next"], a[rel~="next"]`), base); u != "" {
		return u
	}
	for _, sel := range frameworkNext[detectFramework(doc)] {
		if u := firstLink(doc.Find(sel), base); u != "" {
			return u
		}
	}
	for _, sel := range genericNext {
		if u := firstLink(doc.Find(sel), base); u != "" {
			return u
		}
	}

	var byText string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.ToLower(strings.Join(strings.Fields(sel.Text()), " "))
		if !nextTexts[text] {
			return true
		}
		byText = resolveURL(base, sel.AttrOr("href", ""))
		return byText == ""
	})
	if byText != "" {
		return byText
	}

	return nextByParam(doc, base)
}

// firstLink returns the first resolvable href in sel.
func firstLink(sel *goquery.Selection, base *url.URL) string {
	var out string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = resolveURL(base, s.AttrOr("href", ""))
		return out == ""
	})
	return out
}

// nextByParam finds a link on the same path whose page parameter is one
// above the current page's. A page without the parameter is page 1.
func nextByParam(doc *goquery.Document, base *url.URL) string {
	current := 1
	for k, v := range base.Query() {
		if pageParam.MatchString(k) && len(v) > 0 {
			if n, err := strconv.Atoi(v[0]); err == nil {
				current = n
			}
		}
	}

	var out string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := resolveURL(base, sel.AttrOr("href", ""))
		if raw == "" {
			return true
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host != base.Host || u.Path != base.Path {
			return true
		}
		for k, v := range u.Query() {
			if !pageParam.MatchString(k) || len(v) == 0 {
				continue
			}
			if n, err := strconv.Atoi(v[0]); err == nil && n == current+1 {
				out = raw
				return false
			}
		}
		return true
	})
	return out
}
