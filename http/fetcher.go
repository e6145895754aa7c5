// Package http implements the outbound HTTP side of smartcrawl: page
// fetching through optional proxies and sitemap and feed discovery.
package http

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/fwojciec/smartcrawl"
)

// Fetcher defaults.
const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxBodySize  = 5 << 20
	DefaultMaxRedirects = 10
)

var _ smartcrawl.Fetcher = (*Fetcher)(nil)

// Fetcher performs GET requests with net/http. Every proxy endpoint gets its
// own client so connections are never shared between proxies.
type Fetcher struct {
	timeout      time.Duration
	maxBodySize  int64
	maxRedirects int

	mu      sync.Mutex
	direct  *http.Client
	proxied map[string]*http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the default timeout used when a request carries none.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithMaxBodySize caps the number of decoded body bytes read per response.
// Larger bodies are truncated.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		f.maxBodySize = n
	}
}

// WithMaxRedirects sets how many redirects are followed. Longer chains
// fail with EINVALID.
func WithMaxRedirects(n int) Option {
	return func(f *Fetcher) {
		f.maxRedirects = n
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:      DefaultFetchTimeout,
		maxBodySize:  DefaultMaxBodySize,
		maxRedirects: DefaultMaxRedirects,
		proxied:      make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.direct = f.newClient(nil)
	return f
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func (f *Fetcher) newClient(proxy *url.URL) *http.Client {
	t := newTransport()
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{
		Transport: t,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > f.maxRedirects {
				return smartcrawl.Errorf(smartcrawl.EINVALID, "stopped after %d redirects", f.maxRedirects)
			}
			return nil
		},
	}
}

// client returns the client for the proxy, creating it on first use.
func (f *Fetcher) client(p *smartcrawl.Proxy) (*http.Client, error) {
	if p == nil {
		return f.direct, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.proxied[p.Endpoint]; ok {
		return c, nil
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil || u.Host == "" {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "invalid proxy endpoint %q", p.Endpoint)
	}
	c := f.newClient(u)
	f.proxied[p.Endpoint] = c
	return c, nil
}

// Fetch retrieves req.URL. Any HTTP status is a response, not an error;
// errors are reserved for requests that produced no response.
func (f *Fetcher) Fetch(ctx context.Context, req smartcrawl.FetchRequest) (*smartcrawl.FetchResponse, error) {
	client, err := f.client(req.Proxy)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "invalid request url %q", req.URL)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := f.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}

	out := &smartcrawl.FetchResponse{
		StatusCode:  resp.StatusCode,
		FinalURL:    req.URL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Duration:    time.Since(start),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}
	return out, nil
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		r = fl
	case "br":
		r = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(io.LimitReader(r, f.maxBodySize))
}

// Close releases idle connections of every client.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct.CloseIdleConnections()
	for _, c := range f.proxied {
		c.CloseIdleConnections()
	}
	return nil
}
