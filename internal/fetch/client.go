// Package fetch provides the shared HTTP client used by source adapters.
// It owns the status-code classification that feeds the retry policy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"bindery/internal/source"
)

// Options configures the client.
type Options struct {
	// UserAgent is sent on every request.
	UserAgent string

	// Timeout bounds individual requests. Default: 30s.
	Timeout time.Duration

	// MaxBodyBytes caps response bodies. Default: 8 MiB.
	MaxBodyBytes int64
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:    "bindery/0.1 (+https://github.com/bindery)",
		Timeout:      30 * time.Second,
		MaxBodyBytes: 8 << 20,
	}
}

// Client wraps net/http with classified errors. It performs exactly one
// request per Get call; retries and pacing live in the engine.
type Client struct {
	http *http.Client
	opts Options
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultOptions().MaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultOptions().UserAgent
	}
	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
	}
}

// Get fetches rawURL and returns the body. Failures come back as
// *source.Error with the kind table applied:
//
//	malformed URL        -> KindMalformed
//	network-level error  -> KindTransport
//	429                  -> KindRateLimited
//	401/403              -> KindAuth
//	404/410              -> KindNotFound
//	5xx and other codes  -> KindTransport
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, source.NewError(source.KindMalformed, "get", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, source.NewError(source.KindMalformed, "get", rawURL, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, source.NewError(source.KindTransport, "get", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if kind, terminal := classifyStatus(resp.StatusCode); terminal {
		return nil, source.NewError(kind, "get", rawURL, fmt.Errorf("http status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
	if err != nil {
		return nil, source.NewError(source.KindTransport, "get", rawURL, err)
	}
	return body, nil
}

// classifyStatus maps an HTTP status to a failure kind. The second return
// is false for success codes.
func classifyStatus(code int) (source.Kind, bool) {
	switch {
	case code >= 200 && code < 300:
		return source.KindUnknown, false
	case code == http.StatusTooManyRequests:
		return source.KindRateLimited, true
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return source.KindAuth, true
	case code == http.StatusNotFound || code == http.StatusGone:
		return source.KindNotFound, true
	default:
		return source.KindTransport, true
	}
}
