package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher retrieves raw feed bytes with a bounded per-request timeout.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	altUserAgent string
}

func NewFetcher(timeout time.Duration, userAgent, altUserAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
		userAgent:    userAgent,
		altUserAgent: altUserAgent,
	}
}

// Fetch fetches the url. HTTP 403 and 429 are retried once with the
// alternate user agent; some hosts block generic bot agents.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, status, err := f.fetch(ctx, url, f.userAgent)
	if err == nil {
		return data, nil
	}

	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		data, _, retryErr := f.fetch(ctx, url, f.altUserAgent)
		if retryErr == nil {
			return data, nil
		}
	}

	return nil, err
}

func (f *Fetcher) fetch(ctx context.Context, url, userAgent string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Err: fmt.Errorf("read response body: %w", err)}
	}

	if len(data) == 0 {
		return nil, 0, &FetchError{URL: url, Err: fmt.Errorf("empty response body")}
	}

	return data, resp.StatusCode, nil
}
