package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/veranemoloko/image-fetcher/internal/metrics"
)

// Fetcher reads the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads resources with a plain HTTP GET.
type HTTPFetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

// NewHTTPFetcher creates an HTTPFetcher. timeout bounds the whole request,
// maxBytes caps the accepted body size.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch performs a GET on url and returns the full response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	limited := &io.LimitedReader{R: resp.Body, N: f.maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("response exceeds limit of %d bytes", f.maxBytes)
	}

	metrics.FetchedBytes.Add(float64(len(data)))
	f.logger.Debug("resource fetched",
		"url", url,
		"bytes", len(data),
		"content_type", resp.Header.Get("Content-Type"),
	)
	return data, nil
}
