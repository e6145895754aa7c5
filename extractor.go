package smartcrawl

// ExtractedLinks holds the crawl-relevant links of a fetched page.
type ExtractedLinks struct {
	// Links are absolute http(s) URLs found on the page, in document order
	// and without duplicates.
	Links []string

	// NextPage is the pagination continuation, empty when the page has none.
	NextPage string
}

// LinkExtractor finds candidate URLs in a fetched page. The crawler does not
// interpret page content itself.
type LinkExtractor interface {
	// ExtractLinks parses body and resolves relative links against baseURL.
	ExtractLinks(body []byte, baseURL string) (*ExtractedLinks, error)
}
