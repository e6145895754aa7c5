package mock

import (
	"context"

	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.SitemapService = (*SitemapService)(nil)

// SitemapService is a mock implementation of smartcrawl.SitemapService.
type SitemapService struct {
	DiscoverURLsFn func(ctx context.Context, baseURL string, filter *smartcrawl.URLFilter) ([]string, error)
}

func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *smartcrawl.URLFilter) ([]string, error) {
	return s.DiscoverURLsFn(ctx, baseURL, filter)
}

var _ smartcrawl.FeedService = (*FeedService)(nil)

// FeedService is a mock implementation of smartcrawl.FeedService.
type FeedService struct {
	DiscoverURLsFn func(ctx context.Context, baseURL string, filter *smartcrawl.URLFilter) ([]string, error)
}

func (s *FeedService) DiscoverURLs(ctx context.Context, baseURL string, filter *smartcrawl.URLFilter) ([]string, error) {
	return s.DiscoverURLsFn(ctx, baseURL, filter)
}
