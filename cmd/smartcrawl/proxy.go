package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/fwojciec/smartcrawl"
)

// Run executes the proxy add command.
func (c *ProxyAddCmd) Run(deps *Dependencies) error {
	for _, e := range c.Endpoints {
		u, err := url.Parse(e)
		if err != nil || u.Scheme == "" || u.Host == "" {
			err := smartcrawl.Errorf(smartcrawl.EINVALID, "invalid proxy endpoint %q", e)
			fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
			return err
		}
	}

	if err := deps.Crawler.AddProxies(deps.Ctx, newProxies(c.Endpoints, c.Source, c.Country)); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Added %d proxy endpoint(s)\n", len(c.Endpoints))
	return nil
}

// Run executes the proxy list command.
func (c *ProxyListCmd) Run(deps *Dependencies) error {
	stats, err := deps.Crawler.ListProxies(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}

	if len(stats) == 0 {
		fmt.Fprintln(deps.Stdout, "No proxies found. Use 'smartcrawl proxy add' to register one.")
		return nil
	}

	for _, s := range stats {
		perf := s.Performance
		fmt.Fprintf(deps.Stdout, "%s  %-10s  %s  requests %d, success %.0f%%, avg %s\n",
			s.Proxy.ID, s.Tier, s.Proxy.Endpoint,
			perf.TotalRequests, perf.SuccessRate, perf.AverageResponseTime.Round(time.Millisecond))
	}
	return nil
}

func newProxies(endpoints []string, source, country string) []*smartcrawl.Proxy {
	proxies := make([]*smartcrawl.Proxy, 0, len(endpoints))
	for _, e := range endpoints {
		proxies = append(proxies, &smartcrawl.Proxy{
			Endpoint: e,
			Source:   source,
			Country:  country,
		})
	}
	return proxies
}
