package mock

import "github.com/fwojciec/smartcrawl"

var _ smartcrawl.LinkExtractor = (*LinkExtractor)(nil)

// LinkExtractor is a mock implementation of smartcrawl.LinkExtractor.
type LinkExtractor struct {
	ExtractLinksFn func(body []byte, baseURL string) (*smartcrawl.ExtractedLinks, error)
}

func (e *LinkExtractor) ExtractLinks(body []byte, baseURL string) (*smartcrawl.ExtractedLinks, error) {
	return e.ExtractLinksFn(body, baseURL)
}
