// ABOUTME: HTTP fetcher for feed documents with timeout, redirect, SSRF, and size limits.
// ABOUTME: Every request is bound to a context so a stalled provider cannot block a run.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
	MaxRedirects    = 10
	UserAgent       = "nexifeed/1.0 (RSS reader)"
)

// ErrPrivateAddress is returned when a URL resolves to a private network.
var ErrPrivateAddress = errors.New("access to private IP ranges is not allowed")

// StatusError reports a non-200 response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Result contains the response from an HTTP fetch operation.
type Result struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// Fetcher retrieves feed documents over HTTP.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher whose requests give up after timeout.
func New(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", MaxRedirects)
				}
				return checkHost(req.URL)
			},
		},
	}
}

// isPrivateIP checks if an IP address is in a private range (excluding loopback for tests).
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

func checkHost(u *url.URL) error {
	if ips, err := net.LookupIP(u.Hostname()); err == nil {
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return ErrPrivateAddress
			}
		}
	}
	return nil
}

// Fetch retrieves urlStr, following redirects, and returns the body.
// Non-200 responses, bodies over MaxResponseSize, and hosts in private
// ranges are errors. Cancellation of ctx aborts the request.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL: unsupported scheme %q", parsedURL.Scheme)
	}
	if err := checkHost(parsedURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response too large (exceeds %d bytes)", MaxResponseSize)
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
