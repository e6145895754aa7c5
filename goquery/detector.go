package goquery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// framework identifies the site generator that produced a page. Generated
// documentation sites mark their "next page" links in known ways.
type framework string

const (
	frameworkUnknown    framework = ""
	frameworkDocusaurus framework = "docusaurus"
	frameworkMkDocs     framework = "mkdocs"
	frameworkSphinx     framework = "sphinx"
	frameworkVitePress  framework = "vitepress"
	frameworkVuePress   framework = "vuepress"
	frameworkGitBook    framework = "gitbook"
	frameworkNextra     framework = "nextra"
	frameworkWordPress  framework = "wordpress"
)

// markers are the structural selectors unique to each framework, checked
// in order when the generator meta tag is absent.
var markers = []struct {
	framework framework
	selectors []string
}{
	{frameworkDocusaurus, []string{"#__docusaurus_skipToContent_fallback", ".theme-doc-sidebar-container"}},
	{frameworkMkDocs, []string{"[data-md-color-scheme]", "[data-md-component]", ".md-nav--primary"}},
	{frameworkSphinx, []string{".toctree-wrapper", ".wy-nav-side", ".sphinxsidebar"}},
	{frameworkVitePress, []string{"#VPContent", ".VPDoc"}},
	{frameworkVuePress, []string{".theme-default-content", ".sidebar-links"}},
	{frameworkGitBook, []string{"[data-testid='space.sidebar']"}},
	{frameworkNextra, []string{".nextra-navbar", ".nextra-sidebar"}},
	{frameworkWordPress, []string{"link[rel='https://api.w.org/']", "body.wp-site-blocks", "#wpadminbar"}},
}

// detectFramework identifies the generator of doc.
func detectFramework(doc *goquery.Document) framework {
	if f := frameworkFromGenerator(doc.Find("meta[name='generator']").AttrOr("content", "")); f != frameworkUnknown {
		return f
	}
	for _, m := range markers {
		for _, sel := range m.selectors {
			if doc.Find(sel).Length() > 0 {
				return m.framework
			}
		}
	}
	return frameworkUnknown
}

func frameworkFromGenerator(generator string) framework {
	generator = strings.ToLower(generator)
	if generator == "" {
		return frameworkUnknown
	}
	for _, f := range []framework{
		frameworkSphinx, frameworkGitBook, frameworkDocusaurus, frameworkMkDocs,
		frameworkVitePress, frameworkVuePress, frameworkNextra, frameworkWordPress,
	} {
		if strings.Contains(generator, string(f)) {
			return f
		}
	}
	return frameworkUnknown
}
