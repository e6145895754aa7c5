package mock

import (
	"context"

	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of smartcrawl.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, req smartcrawl.FetchRequest) (*smartcrawl.FetchResponse, error)
}

func (f *Fetcher) Fetch(ctx context.Context, req smartcrawl.FetchRequest) (*smartcrawl.FetchResponse, error) {
	return f.FetchFn(ctx, req)
}

var _ smartcrawl.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter is a mock implementation of smartcrawl.DomainLimiter.
type DomainLimiter struct {
	WaitFn func(ctx context.Context, domain string) error
}

func (l *DomainLimiter) Wait(ctx context.Context, domain string) error {
	return l.WaitFn(ctx, domain)
}
