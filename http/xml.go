package http

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/beevik/etree"
)

// maxDocumentSize caps robots.txt, sitemap and feed downloads.
const maxDocumentSize = 10 << 20

// StatusError is returned when a discovery document responds with a status
// other than 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// get fetches rawURL and returns its body, transparently gunzipping
// compressed payloads such as sitemap.xml.gz.
func get(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if len(body) > 1 && body[0] == 0x1f && body[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", rawURL, err)
		}
		defer zr.Close()
		return io.ReadAll(io.LimitReader(zr, maxDocumentSize))
	}
	return body, nil
}

// getXML fetches rawURL and parses it into an XML document with a root.
func getXML(ctx context.Context, client *http.Client, rawURL, userAgent string) (*etree.Document, error) {
	body, err := get(ctx, client, rawURL, userAgent)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parsing %s: empty document", rawURL)
	}
	return doc, nil
}
