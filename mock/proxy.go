package mock

import (
	"context"

	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.ProxyService = (*ProxyService)(nil)

// ProxyService is a mock implementation of smartcrawl.ProxyService.
type ProxyService struct {
	CreateProxyFn        func(ctx context.Context, proxy *smartcrawl.Proxy) error
	FindProxyByIDFn      func(ctx context.Context, id string) (*smartcrawl.Proxy, error)
	FindProxiesFn        func(ctx context.Context, filter smartcrawl.ProxyFilter) ([]*smartcrawl.Proxy, error)
	FindPerformanceFn    func(ctx context.Context, proxyID string) (*smartcrawl.ProxyPerformance, error)
	RecordProxyOutcomeFn func(ctx context.Context, proxyID string, o smartcrawl.ProxyOutcome) (*smartcrawl.ProxyPerformance, error)
}

func (s *ProxyService) CreateProxy(ctx context.Context, proxy *smartcrawl.Proxy) error {
	return s.CreateProxyFn(ctx, proxy)
}

func (s *ProxyService) FindProxyByID(ctx context.Context, id string) (*smartcrawl.Proxy, error) {
	return s.FindProxyByIDFn(ctx, id)
}

func (s *ProxyService) FindProxies(ctx context.Context, filter smartcrawl.ProxyFilter) ([]*smartcrawl.Proxy, error) {
	return s.FindProxiesFn(ctx, filter)
}

func (s *ProxyService) FindPerformance(ctx context.Context, proxyID string) (*smartcrawl.ProxyPerformance, error) {
	return s.FindPerformanceFn(ctx, proxyID)
}

func (s *ProxyService) RecordProxyOutcome(ctx context.Context, proxyID string, o smartcrawl.ProxyOutcome) (*smartcrawl.ProxyPerformance, error) {
	return s.RecordProxyOutcomeFn(ctx, proxyID, o)
}
