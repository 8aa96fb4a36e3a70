// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package ghclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RateLimitError is returned once the retry budget is exhausted while
// the API reports a rate limit. ResetAt is when the quota replenishes.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// APIError is a non-retryable (4xx) or budget-exhausted (5xx) API response.
type APIError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github api returned %d for %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("github api returned %d for %s", e.StatusCode, e.URL)
}

// TransientError wraps a network-class failure that persisted through
// the retry budget.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// newAPIError builds an APIError, pulling the message field from the
// response body when present.
func newAPIError(resp *http.Response, url string) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, URL: url}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}
	var ghMsg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &ghMsg); err == nil {
		apiErr.Message = ghMsg.Message
	}
	return apiErr
}
