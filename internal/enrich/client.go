package enrich

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client is the outbound half of enrichment: a pooled transport behind a
// concurrency gate, with a hard cap on how much of a body it will read.
type Client struct {
	http      *http.Client
	userAgent string
	slots     chan struct{}
	maxBody   int64
}

// NewClient builds a fetch client. maxConcurrent bounds in-flight requests
// across all callers; maxBody bounds bytes read per response.
func NewClient(userAgent string, maxConcurrent int, maxBody int64) *Client {
	transport := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   20 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		slots:     make(chan struct{}, maxConcurrent),
		maxBody:   maxBody,
	}
}

// Fetch GETs rawURL and returns at most maxBody bytes of an HTML or
// plain-text response. Bad statuses, other content types and oversized
// bodies are errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.slots }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, rawURL)
	}
	if ct := resp.Header.Get("Content-Type"); !textual(ct) {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}

	// Read one byte past the cap so an exactly-at-cap body still passes.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("body exceeds %d bytes", c.maxBody)
	}
	return body, nil
}

// textual reports whether a Content-Type header names something worth
// feeding to the text extractor.
func textual(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, ok := range []string{"text/html", "application/xhtml+xml", "text/plain"} {
		if strings.Contains(ct, ok) {
			return true
		}
	}
	return false
}
