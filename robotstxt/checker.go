// Package robotstxt implements smartcrawl.RobotsChecker on top of
// github.com/temoto/robotstxt.
package robotstxt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// Cache lifetimes.
const (
	DefaultTTL      = 30 * time.Minute
	DefaultErrorTTL = time.Minute
)

var _ smartcrawl.RobotsChecker = (*Checker)(nil)

// Checker evaluates robots.txt rules, caching them per scheme and host.
// Hosts whose robots.txt cannot be fetched are allowed.
type Checker struct {
	client *http.Client

	// TTL is how long parsed rules are reused.
	TTL time.Duration

	// ErrorTTL is how long a failed fetch is remembered before retrying.
	ErrorTTL time.Duration

	// Now returns the current time.
	Now func() time.Time

	mu     sync.RWMutex
	cache  map[string]cacheEntry
	flight singleflight.Group
}

type cacheEntry struct {
	fetched time.Time

	// rules is nil when the fetch failed.
	rules *robotstxt.RobotsData
}

// NewChecker creates a Checker. If client is nil, a client with a 10 second
// timeout is used.
func NewChecker(client *http.Client) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Checker{
		client:   client,
		TTL:      DefaultTTL,
		ErrorTTL: DefaultErrorTTL,
		Now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
}

// Allowed reports whether userAgent may fetch rawURL. Unparseable URLs are
// not allowed.
func (c *Checker) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() || target.Host == "" {
		return false
	}
	rules := c.rules(ctx, target, userAgent)
	if rules == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	if userAgent == "" {
		userAgent = "*"
	}
	return rules.TestAgent(path, userAgent)
}

// rules returns the cached rules for target's origin, fetching them when
// missing or stale. It returns nil when robots.txt is unavailable.
func (c *Checker) rules(ctx context.Context, target *url.URL, userAgent string) *robotstxt.RobotsData {
	origin := strings.ToLower(target.Scheme + "://" + target.Host)

	c.mu.RLock()
	entry, ok := c.cache[origin]
	c.mu.RUnlock()
	if ok && c.fresh(entry) {
		return entry.rules
	}

	v, _, _ := c.flight.Do(origin, func() (any, error) {
		rules, err := c.fetch(ctx, origin, userAgent)
		if err != nil && ctx.Err() != nil {
			// Cancelled lookups are not cached.
			return (*robotstxt.RobotsData)(nil), nil
		}
		c.mu.Lock()
		c.cache[origin] = cacheEntry{fetched: c.Now(), rules: rules}
		c.mu.Unlock()
		return rules, nil
	})
	return v.(*robotstxt.RobotsData)
}

func (c *Checker) fresh(e cacheEntry) bool {
	ttl := c.TTL
	if e.rules == nil {
		ttl = c.ErrorTTL
	}
	return c.Now().Sub(e.fetched) < ttl
}

func (c *Checker) fetch(ctx context.Context, origin, userAgent string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// 4xx allows everything and 5xx disallows everything.
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// Purge evicts the cached rules of an origin such as "https://example.com".
func (c *Checker) Purge(origin string) {
	c.mu.Lock()
	delete(c.cache, strings.ToLower(strings.TrimSuffix(origin, "/")))
	c.mu.Unlock()
}
