package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher retrieves the raw bytes behind a model reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// HTTPFetcher resolves references against BaseURL and downloads them.
type HTTPFetcher struct {
	BaseURL *url.URL
	Client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the server at baseURL.
func NewHTTPFetcher(baseURL string) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return &HTTPFetcher{
		BaseURL: u,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Resolve returns the absolute URL for ref. A relative ref is a plain
// path: characters such as '#', '?' and '%' in file names are escaped.
func (f *HTTPFetcher) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("empty model reference")
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return u.String(), nil
	}
	return f.BaseURL.ResolveReference(&url.URL{Path: ref}).String(), nil
}

// Fetch downloads ref. Any non-2xx response is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	target, err := f.Resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", target, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return data, nil
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}
