package main

import (
	"fmt"

	"github.com/fwojciec/smartcrawl"
)

// Run executes the resume command.
func (c *ResumeCmd) Run(deps *Dependencies) error {
	running := smartcrawl.StatusRunning
	sessions, err := deps.Sessions.FindSessions(deps.Ctx, smartcrawl.SessionFilter{Status: &running})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}

	n, err := deps.Crawler.ResumeSessions(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}
	if n == 0 {
		fmt.Fprintln(deps.Stdout, "No running sessions to resume.")
		return nil
	}
	fmt.Fprintf(deps.Stdout, "Resumed %d session(s)\n", n)

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return waitSessions(deps, ids)
}

// Run executes the status command.
func (c *StatusCmd) Run(deps *Dependencies) error {
	st, err := deps.Crawler.SessionStatus(deps.Ctx, c.ID)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}
	printStatus(deps.Stdout, c.ID, st)
	return nil
}

// Run executes the sessions command.
func (c *SessionsCmd) Run(deps *Dependencies) error {
	filter := smartcrawl.SessionFilter{Limit: c.Limit}
	if c.Status != "" {
		status := smartcrawl.Status(c.Status)
		if !status.Valid() {
			err := smartcrawl.Errorf(smartcrawl.EINVALID, "unknown session status %q", c.Status)
			fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
			return err
		}
		filter.Status = &status
	}

	sessions, err := deps.Sessions.FindSessions(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintln(deps.Stdout, "No sessions found. Use 'smartcrawl crawl' to start one.")
		return nil
	}

	for _, s := range sessions {
		fmt.Fprintf(deps.Stdout, "%s  %-9s  %s  %s  completed %d/%d\n",
			s.ID, s.Status, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Name,
			s.Counters.Completed, s.Counters.Discovered)
	}
	return nil
}

// Run executes the stop command.
func (c *StopCmd) Run(deps *Dependencies) error {
	if err := deps.Crawler.StopSession(deps.Ctx, c.ID); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", smartcrawl.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Stop requested for session %s\n", c.ID)
	return nil
}
