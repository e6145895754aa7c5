package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fwojciec/smartcrawl"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads as "1.5s" in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	d.Duration = v
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// policyFile is the YAML form of smartcrawl.Policy. Keys left out of the
// file keep their default values.
type policyFile struct {
	Strategy    smartcrawl.Strategy    `yaml:"strategy"`
	MaxDepth    int                    `yaml:"max_depth"`
	MaxURLs     int                    `yaml:"max_urls"`
	DomainScope smartcrawl.DomainScope `yaml:"domain_scope"`
	Whitelist   []string               `yaml:"whitelist"`

	RespectRobots bool `yaml:"respect_robots"`
	UseSitemap    bool `yaml:"use_sitemap"`
	UseFeeds      bool `yaml:"use_feeds"`

	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	Pagination struct {
		Enabled              bool `yaml:"enabled"`
		MaxPages             int  `yaml:"max_pages"`
		DeduplicatePaginated bool `yaml:"deduplicate_paginated"`
	} `yaml:"pagination"`

	Delay             Duration `yaml:"delay"`
	Jitter            Duration `yaml:"jitter"`
	Concurrency       int      `yaml:"concurrency"`
	RequestTimeout    Duration `yaml:"request_timeout"`
	MaxRetries        int      `yaml:"max_retries"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`

	UseProxies      bool     `yaml:"use_proxies"`
	UserAgent       string   `yaml:"user_agent"`
	BlockSignatures []string `yaml:"block_signatures"`
}

func newPolicyFile(p smartcrawl.Policy) *policyFile {
	f := &policyFile{
		Strategy:          p.Strategy,
		MaxDepth:          p.MaxDepth,
		MaxURLs:           p.MaxURLs,
		DomainScope:       p.DomainScope,
		Whitelist:         p.Whitelist,
		RespectRobots:     p.RespectRobots,
		UseSitemap:        p.UseSitemap,
		UseFeeds:          p.UseFeeds,
		Include:           p.Include,
		Exclude:           p.Exclude,
		Delay:             Duration{p.Delay},
		Jitter:            Duration{p.Jitter},
		Concurrency:       p.Concurrency,
		RequestTimeout:    Duration{p.RequestTimeout},
		MaxRetries:        p.MaxRetries,
		RequestsPerSecond: p.RequestsPerSecond,
		UseProxies:        p.UseProxies,
		UserAgent:         p.UserAgent,
		BlockSignatures:   p.BlockSignatures,
	}
	f.Pagination.Enabled = p.Pagination.Enabled
	f.Pagination.MaxPages = p.Pagination.MaxPages
	f.Pagination.DeduplicatePaginated = p.Pagination.DeduplicatePaginated
	return f
}

func (f *policyFile) policy() smartcrawl.Policy {
	return smartcrawl.Policy{
		Strategy:      f.Strategy,
		MaxDepth:      f.MaxDepth,
		MaxURLs:       f.MaxURLs,
		DomainScope:   f.DomainScope,
		Whitelist:     f.Whitelist,
		RespectRobots: f.RespectRobots,
		UseSitemap:    f.UseSitemap,
		UseFeeds:      f.UseFeeds,
		Include:       f.Include,
		Exclude:       f.Exclude,
		Pagination: smartcrawl.PaginationPolicy{
			Enabled:              f.Pagination.Enabled,
			MaxPages:             f.Pagination.MaxPages,
			DeduplicatePaginated: f.Pagination.DeduplicatePaginated,
		},
		Delay:             f.Delay.Duration,
		Jitter:            f.Jitter.Duration,
		Concurrency:       f.Concurrency,
		RequestTimeout:    f.RequestTimeout.Duration,
		MaxRetries:        f.MaxRetries,
		RequestsPerSecond: f.RequestsPerSecond,
		UseProxies:        f.UseProxies,
		UserAgent:         f.UserAgent,
		BlockSignatures:   f.BlockSignatures,
	}
}

// ParsePolicy decodes a YAML policy over the default policy. Unknown keys
// are rejected.
func ParsePolicy(data []byte) (smartcrawl.Policy, error) {
	f := newPolicyFile(smartcrawl.DefaultPolicy())
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return smartcrawl.Policy{}, smartcrawl.Errorf(smartcrawl.EINVALID, "invalid policy: %s", err)
	}
	return f.policy(), nil
}

// LoadPolicy reads a YAML policy file. An empty path yields the default
// policy.
func LoadPolicy(path string) (smartcrawl.Policy, error) {
	if path == "" {
		return smartcrawl.DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return smartcrawl.Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// policy builds the session policy: defaults, then the policy file, then
// flags that were set.
func (c *CrawlCmd) policy() (smartcrawl.Policy, error) {
	p, err := LoadPolicy(c.Policy)
	if err != nil {
		return smartcrawl.Policy{}, err
	}
	if c.Strategy != nil {
		p.Strategy = smartcrawl.Strategy(*c.Strategy)
	}
	if c.MaxDepth != nil {
		p.MaxDepth = *c.MaxDepth
	}
	if c.MaxURLs != nil {
		p.MaxURLs = *c.MaxURLs
	}
	if c.Scope != nil {
		p.DomainScope = smartcrawl.DomainScope(*c.Scope)
	}
	if len(c.Whitelist) > 0 {
		p.Whitelist = c.Whitelist
	}
	if len(c.Include) > 0 {
		p.Include = c.Include
	}
	if len(c.Exclude) > 0 {
		p.Exclude = c.Exclude
	}
	if c.Concurrency != nil {
		p.Concurrency = *c.Concurrency
	}
	if c.Delay != nil {
		p.Delay = *c.Delay
	}
	if c.Jitter != nil {
		p.Jitter = *c.Jitter
	}
	if c.Timeout != nil {
		p.RequestTimeout = *c.Timeout
	}
	if c.Retries != nil {
		p.MaxRetries = *c.Retries
	}
	if c.RPS != nil {
		p.RequestsPerSecond = *c.RPS
	}
	if c.UserAgent != nil {
		p.UserAgent = *c.UserAgent
	}
	if c.RespectRobots {
		p.RespectRobots = true
	}
	if c.Sitemap {
		p.UseSitemap = true
	}
	if c.Feeds {
		p.UseFeeds = true
	}
	if c.Paginate {
		p.Pagination.Enabled = true
	}
	if c.UseProxies || len(c.Proxies) > 0 {
		p.UseProxies = true
	}
	return p, nil
}
