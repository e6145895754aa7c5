package smartcrawl

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Strategy determines whether discovered links are followed.
type Strategy string

// Crawl strategies.
const (
	StrategySingle Strategy = "single"
	StrategyDeep   Strategy = "deep"
)

// DomainScope restricts which hosts discovered URLs may belong to.
type DomainScope string

// Domain scope modes.
const (
	ScopeSameDomain    DomainScope = "same-domain"
	ScopeSameSubdomain DomainScope = "same-subdomain"
	ScopeWhitelist     DomainScope = "whitelist"
	ScopeAny           DomainScope = "any"
)

// Policy defaults.
const (
	DefaultMaxDepth       = 2
	DefaultMaxRetries     = 2
	DefaultConcurrency    = 4
	DefaultMaxPages       = 10
	DefaultRequestTimeout = 30 * time.Second
	DefaultUserAgent      = "smartcrawl/1.0"
)

// PaginationPolicy controls how "next page" links are followed.
type PaginationPolicy struct {
	Enabled bool `json:"enabled"`

	// MaxPages bounds the page number of a continuation chain.
	// Zero means unbounded.
	MaxPages int `json:"max_pages"`

	// DeduplicatePaginated keys continuation entries by URL alone. When false,
	// the same URL may be queued again under a different page number.
	DeduplicatePaginated bool `json:"deduplicate_paginated"`
}

// Policy is the declarative configuration of a crawl session.
type Policy struct {
	Strategy    Strategy    `json:"strategy"`
	MaxDepth    int         `json:"max_depth"`
	MaxURLs     int         `json:"max_urls"` // zero means unlimited
	DomainScope DomainScope `json:"domain_scope"`
	Whitelist   []string    `json:"whitelist,omitempty"`

	RespectRobots bool `json:"respect_robots"`
	UseSitemap    bool `json:"use_sitemap"`
	UseFeeds      bool `json:"use_feeds"`

	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	Pagination PaginationPolicy `json:"pagination"`

	Delay             time.Duration `json:"delay"`
	Jitter            time.Duration `json:"jitter"`
	Concurrency       int           `json:"concurrency"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	MaxRetries        int           `json:"max_retries"`
	RequestsPerSecond float64       `json:"requests_per_second"` // zero disables per-host limiting

	UseProxies bool   `json:"use_proxies"`
	UserAgent  string `json:"user_agent"`

	// BlockSignatures are case-insensitive substrings that mark a response
	// body as a block page.
	BlockSignatures []string `json:"block_signatures,omitempty"`
}

// DefaultPolicy returns a deep, same-domain policy with conservative limits.
func DefaultPolicy() Policy {
	return Policy{
		Strategy:    StrategyDeep,
		MaxDepth:    DefaultMaxDepth,
		DomainScope: ScopeSameDomain,
		Pagination: PaginationPolicy{
			MaxPages:             DefaultMaxPages,
			DeduplicatePaginated: true,
		},
		Concurrency:    DefaultConcurrency,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		UserAgent:      DefaultUserAgent,
		BlockSignatures: []string{
			"access denied",
			"captcha",
			"are you a robot",
		},
	}
}

// Validate returns an EINVALID error describing the first problem found.
func (p *Policy) Validate() error {
	switch p.Strategy {
	case StrategySingle, StrategyDeep:
	default:
		return Errorf(EINVALID, "unknown crawl strategy %q", p.Strategy)
	}
	switch p.DomainScope {
	case ScopeSameDomain, ScopeSameSubdomain, ScopeAny:
	case ScopeWhitelist:
		if len(p.Whitelist) == 0 {
			return Errorf(EINVALID, "whitelist scope requires at least one domain")
		}
	default:
		return Errorf(EINVALID, "unknown domain scope %q", p.DomainScope)
	}
	for _, d := range p.Whitelist {
		if !validDomain(d) {
			return Errorf(EINVALID, "malformed whitelist domain %q", d)
		}
	}
	if p.MaxDepth < 0 {
		return Errorf(EINVALID, "max depth must not be negative")
	}
	if p.MaxURLs < 0 {
		return Errorf(EINVALID, "max urls must not be negative")
	}
	if p.Pagination.MaxPages < 0 {
		return Errorf(EINVALID, "max pages must not be negative")
	}
	if p.Concurrency < 1 {
		return Errorf(EINVALID, "concurrency must be at least 1")
	}
	if p.MaxRetries < 0 {
		return Errorf(EINVALID, "max retries must not be negative")
	}
	if p.Delay < 0 || p.Jitter < 0 {
		return Errorf(EINVALID, "delay and jitter must not be negative")
	}
	if p.Jitter > p.Delay {
		return Errorf(EINVALID, "jitter must not exceed delay")
	}
	if p.RequestTimeout <= 0 {
		return Errorf(EINVALID, "request timeout must be positive")
	}
	if p.RequestsPerSecond < 0 {
		return Errorf(EINVALID, "requests per second must not be negative")
	}
	if _, err := p.URLFilter(); err != nil {
		return err
	}
	return nil
}

// URLFilter compiles the include/exclude patterns.
// Returns EINVALID if a pattern does not compile.
func (p *Policy) URLFilter() (*URLFilter, error) {
	f := &URLFilter{}
	for _, s := range p.Include {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, Errorf(EINVALID, "invalid include pattern %q: %v", s, err)
		}
		f.Include = append(f.Include, re)
	}
	for _, s := range p.Exclude {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, Errorf(EINVALID, "invalid exclude pattern %q: %v", s, err)
		}
		f.Exclude = append(f.Exclude, re)
	}
	return f, nil
}

// validDomain accepts bare host names such as "example.com".
func validDomain(d string) bool {
	if d == "" || strings.ContainsAny(d, "/:?#@ ") {
		return false
	}
	u, err := url.Parse("http://" + d)
	if err != nil || u.Hostname() != d {
		return false
	}
	for label := range strings.SplitSeq(d, ".") {
		if label == "" {
			return false
		}
	}
	return true
}
