package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/fwojciec/smartcrawl"
)

// stopTimeout bounds how long an interrupted command waits for in-flight
// fetches to finish.
const stopTimeout = 30 * time.Second

// Run executes the crawl command.
func (c *CrawlCmd) Run(deps *Dependencies) error {
	ctx := deps.Ctx

	policy, err := c.policy()
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}

	if len(c.Proxies) > 0 {
		if err := deps.Crawler.AddProxies(ctx, newProxies(c.Proxies, "cli", "")); err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
			return err
		}
	}

	name := c.Name
	if name == "" {
		name = sessionName(c.URLs)
	}
	s, err := deps.Crawler.CreateSession(ctx, name, policy, c.URLs)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Session %s (%s)\n", s.ID, s.Name)

	if err := deps.Crawler.StartSession(ctx, s.ID); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}

	return waitSessions(deps, []string{s.ID})
}

// waitSessions blocks until every session finishes. When the command is
// interrupted the sessions are stopped and waited for again.
func waitSessions(deps *Dependencies, ids []string) error {
	for _, id := range ids {
		if err := deps.Crawler.Wait(deps.Ctx, id); err != nil {
			break
		}
	}

	if deps.Ctx.Err() != nil {
		fmt.Fprintln(deps.Stderr, "Interrupted, stopping...")
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		for _, id := range ids {
			if err := deps.Crawler.StopSession(ctx, id); err != nil && smartcrawl.ErrorCode(err) != smartcrawl.ECONFLICT {
				fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
			}
		}
		for _, id := range ids {
			_ = deps.Crawler.Wait(ctx, id)
		}
	}

	ctx := context.WithoutCancel(deps.Ctx)
	var failed error
	for _, id := range ids {
		st, err := deps.Crawler.SessionStatus(ctx, id)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
			return err
		}
		printStatus(deps.Stdout, id, st)
		if st.Status == smartcrawl.StatusFailed && failed == nil {
			failed = fmt.Errorf("session %s failed: %s", id, st.Reason)
		}
	}
	return failed
}

func printStatus(w io.Writer, id string, st *smartcrawl.SessionStatus) {
	fmt.Fprintf(w, "%s  %s", id, st.Status)
	if st.Reason != "" {
		fmt.Fprintf(w, " (%s)", st.Reason)
	}
	fmt.Fprintln(w)
	c := st.Counters
	fmt.Fprintf(w, "  discovered %d, completed %d, failed %d, blocked %d, skipped %d, retried %d, pending %d\n",
		c.Discovered, c.Completed, c.Failed, c.Blocked, c.Skipped, c.Retried, st.Pending)
}

// sessionName derives a default name from the first seed's host.
func sessionName(seeds []string) string {
	if len(seeds) == 0 {
		return "crawl"
	}
	u, err := url.Parse(seeds[0])
	if err != nil || u.Host == "" {
		return "crawl"
	}
	return u.Host
}
