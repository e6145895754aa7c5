package smartcrawl

import (
	"context"
	"time"
)

// FetchRequest describes a single fetch attempt.
type FetchRequest struct {
	URL string

	// Proxy routes the request. Nil fetches directly.
	Proxy *Proxy

	UserAgent string
	Timeout   time.Duration
}

// FetchResponse is the raw result of a fetch attempt.
type FetchResponse struct {
	StatusCode int

	// FinalURL is the URL after redirects.
	FinalURL string

	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Fetcher performs network fetches.
type Fetcher interface {
	// Fetch retrieves req.URL. A non-2xx response is not an error; errors
	// are reserved for transport failures and timeouts.
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// DomainLimiter provides per-domain rate limiting.
type DomainLimiter interface {
	// Wait blocks until the rate limit allows a request to the domain.
	// Returns an error if the context is canceled.
	Wait(ctx context.Context, domain string) error
}
