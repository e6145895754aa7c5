package crawl

import "time"

// DefaultRetryDelays returns the backoff delays for requeued entries: 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// RetryDelay returns the backoff before the next attempt of an entry that
// has made attempts fetches so far. Attempts beyond the list reuse its last
// delay. An empty list retries immediately.
func RetryDelay(delays []time.Duration, attempts int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	i := min(max(attempts-1, 0), len(delays)-1)
	return delays[i]
}
