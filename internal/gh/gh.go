// Package gh holds the thin slice of the remote API this system consumes:
// the quota oracle the budget guard asks before spending more requests.
// Retry and backoff are deliberately absent; callers own that policy.
package gh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Oracle answers whether the remote API quota has dropped below a safety
// threshold. Implementations must be cheap enough to consult once per
// repository per sweep.
type Oracle interface {
	OffQuota(ctx context.Context, threshold int) (bool, error)
}

// Client is a minimal GitHub REST client implementing Oracle against the
// /rate_limit endpoint. That endpoint does not itself consume quota, but
// the client still rate-limits its own calls to stay polite.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-default API host (tests, GHE).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = base }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a GitHub API client. An empty token means anonymous
// access, which is enough for quota checks but gets a much smaller quota.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		base:    "https://api.github.com",
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rateLimitResponse mirrors the slice of GET /rate_limit we read.
type rateLimitResponse struct {
	Resources struct {
		Core struct {
			Remaining int `json:"remaining"`
		} `json:"core"`
	} `json:"resources"`
}

// Remaining returns the remaining core API quota.
func (c *Client) Remaining(ctx context.Context) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/rate_limit", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate_limit request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate_limit returned %s", resp.Status)
	}

	var body rateLimitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode rate_limit response: %w", err)
	}
	return body.Resources.Core.Remaining, nil
}

// OffQuota reports whether remaining quota is below threshold.
func (c *Client) OffQuota(ctx context.Context, threshold int) (bool, error) {
	remaining, err := c.Remaining(ctx)
	if err != nil {
		return false, err
	}
	return remaining < threshold, nil
}
