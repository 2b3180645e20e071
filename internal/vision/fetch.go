package vision

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"
)

// DefaultMaxImageBytes caps downloaded images at the largest payload the
// vision vendors accept.
const DefaultMaxImageBytes = 8 << 20

// HTTPFetcher downloads images over HTTP.
type HTTPFetcher struct {
	client   *resty.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	return f.client.Close()
}

// Fetch downloads url and returns its body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download image: status %d: %s", resp.StatusCode(), resp.String())
	}
	body := resp.Bytes()
	if len(body) == 0 {
		return nil, fmt.Errorf("download image: empty body")
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("download image: %d bytes exceeds limit of %d", len(body), f.maxBytes)
	}
	return body, nil
}
