package crawl

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/fwojciec/smartcrawl"
)

// Classify maps the result of a fetch attempt onto a classification.
// Transport errors and timeouts are retryable, as are 5xx and 429
// responses. 401, 403 and 451 responses and bodies containing one of the
// block signatures are permanent blocks. Other 4xx responses are permanent
// client errors.
func Classify(resp *smartcrawl.FetchResponse, err error, blockSignatures []string) smartcrawl.Classification {
	if err != nil {
		return classifyError(err)
	}

	code := resp.StatusCode
	switch {
	case code == http.StatusTooManyRequests:
		return smartcrawl.Retryable{Kind: smartcrawl.RetryRateLimited}
	case code == http.StatusRequestTimeout:
		return smartcrawl.Retryable{Kind: smartcrawl.RetryTimeout}
	case code >= 500:
		return smartcrawl.Retryable{Kind: smartcrawl.RetryServerError}
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusUnavailableForLegalReasons:
		return smartcrawl.Permanent{Kind: smartcrawl.PermanentBlocked}
	case code >= 400:
		return smartcrawl.Permanent{Kind: smartcrawl.PermanentClientError}
	}

	if containsSignature(resp.Body, blockSignatures) {
		return smartcrawl.Permanent{Kind: smartcrawl.PermanentBlocked}
	}
	return smartcrawl.Success{}
}

func classifyError(err error) smartcrawl.Classification {
	if smartcrawl.ErrorCode(err) == smartcrawl.EINVALID {
		return smartcrawl.Permanent{Kind: smartcrawl.PermanentInvalidRequest}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return smartcrawl.Retryable{Kind: smartcrawl.RetryTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return smartcrawl.Retryable{Kind: smartcrawl.RetryTimeout}
	}
	return smartcrawl.Retryable{Kind: smartcrawl.RetryConnection}
}

func containsSignature(body []byte, signatures []string) bool {
	if len(signatures) == 0 || len(body) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, sig := range signatures {
		if sig != "" && bytes.Contains(lower, bytes.ToLower([]byte(sig))) {
			return true
		}
	}
	return false
}
