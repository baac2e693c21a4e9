package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPIconFetcher looks up /favicon.ico on the page's host
type HTTPIconFetcher struct {
	HTTPClient *http.Client
	UserAgent  string
	// Timeout bounds each lookup. Zero means 5 seconds.
	Timeout time.Duration
}

// FetchIcon returns the favicon URL when the host serves one
func (f *HTTPIconFetcher) FetchIcon(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid page url %q", pageURL)
	}
	if !isHTTPURL(pageURL) {
		return "", fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
	iconURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/favicon.ico"}).String()

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if ct != "" && !strings.HasPrefix(ct, "image/") && !strings.Contains(ct, "icon") {
		return "", errors.New("unsupported content type: " + ct)
	}
	return iconURL, nil
}
