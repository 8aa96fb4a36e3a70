// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

// Package ghclient provides a rate-limit-aware HTTP client for the GitHub
// REST API. It retries transient failures with exponential backoff and
// waits out primary rate limits using the reset headers GitHub returns.
//
// Callers must only issue blindly-retryable (read) calls through the
// default retry budget; mutating calls are retried solely on transient
// network and 5xx failures, never on 4xx responses.
package ghclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/castle-bravo-project/ignition-sub002/internal/shared"
)

const (
	// DefaultMaxRetries is the retry budget shared by rate-limit waits
	// and transient-failure backoff.
	DefaultMaxRetries = 3

	// backoffBase is the initial backoff for transient failures; it
	// doubles on each attempt.
	backoffBase = time.Second

	// minRateLimitWait is the minimum time to wait when rate limited,
	// even if the reset epoch is in the past.
	minRateLimitWait = time.Second

	// lowQuotaThreshold triggers a warning log when the remaining
	// request quota drops below it.
	lowQuotaThreshold = 100
)

// Rate-limit headers consumed from GitHub responses.
const (
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	headerRateUsed      = "X-RateLimit-Used"
)

// Rate describes the rate-limit state reported by the last response.
type Rate struct {
	Limit     int
	Remaining int
	Used      int
	Reset     time.Time
}

// Client issues authenticated requests against the GitHub REST API.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxRetries int

	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// New creates a Client with the default retry budget.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  shared.UserAgent,
		maxRetries: DefaultMaxRetries,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues one API call with the given bearer token, retrying rate
// limits and transient failures up to the client's retry budget. On
// success the response body is decoded into out unless out is nil or the
// response is 204 No Content.
func (c *Client) Do(ctx context.Context, method, url, token string, body, out any) error {
	log := clog.FromContext(ctx)

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.doOnce(ctx, method, url, token, payload)
		if err != nil {
			// Network-class failure: retry with exponential backoff.
			lastErr = &TransientError{URL: url, Err: err}
			if attempt == c.maxRetries {
				break
			}
			wait := backoffBase << attempt
			log.Warnf("request to %s failed (%v), retrying in %s", url, err, wait)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		rate := parseRate(resp.Header)
		if rate.Remaining > 0 && rate.Remaining < lowQuotaThreshold {
			log.Warnf("github rate limit quota low: %d of %d remaining", rate.Remaining, rate.Limit)
		}

		switch {
		case isRateLimited(resp, rate):
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &RateLimitError{ResetAt: rate.Reset, Remaining: rate.Remaining}
			if attempt == c.maxRetries {
				break
			}
			wait := time.Until(rate.Reset)
			if wait < minRateLimitWait {
				wait = minRateLimitWait
			}
			log.Warnf("github rate limited, waiting %s until reset", wait.Round(time.Second))
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue

		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, URL: url}
			if attempt == c.maxRetries {
				break
			}
			wait := backoffBase << attempt
			log.Warnf("github returned %d for %s, retrying in %s", resp.StatusCode, url, wait)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue

		case resp.StatusCode >= 400:
			// Client errors are never retried.
			defer resp.Body.Close()
			return newAPIError(resp, url)

		case resp.StatusCode == http.StatusNoContent:
			resp.Body.Close()
			return nil

		default:
			defer resp.Body.Close()
			if out == nil {
				io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response from %s: %w", url, err)
			}
			return nil
		}
		break
	}

	return lastErr
}

// doOnce issues a single HTTP request with the standard GitHub headers.
func (c *Client) doOnce(ctx context.Context, method, url, token string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", shared.APIVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// isRateLimited reports whether the response indicates a primary rate
// limit: HTTP 429, or HTTP 403 with an exhausted quota.
func isRateLimited(resp *http.Response, rate Rate) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get(headerRateRemaining) == "0"
}

// parseRate extracts rate-limit state from response headers.
func parseRate(h http.Header) Rate {
	r := Rate{Remaining: -1}
	if v := h.Get(headerRateLimit); v != "" {
		r.Limit, _ = strconv.Atoi(v)
	}
	if v := h.Get(headerRateRemaining); v != "" {
		r.Remaining, _ = strconv.Atoi(v)
	}
	if v := h.Get(headerRateUsed); v != "" {
		r.Used, _ = strconv.Atoi(v)
	}
	if v := h.Get(headerRateReset); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.Reset = time.Unix(epoch, 0)
		}
	}
	return r
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
