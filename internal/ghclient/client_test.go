// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// recordingSleeper captures waits instead of sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestClient(t *testing.T) (*Client, *recordingSleeper) {
	t.Helper()
	sleeper := &recordingSleeper{}
	c := New()
	c.sleep = sleeper.sleep
	return c, sleeper
}

func TestDoDecodesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if got := r.Header.Get("X-GitHub-Api-Version"); got == "" {
			t.Error("missing X-GitHub-Api-Version header")
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Errorf("Accept = %q", got)
		}
		fmt.Fprint(w, `{"login":"acme"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)

	var out struct {
		Login string `json:"login"`
	}
	if err := c.Do(context.Background(), http.MethodGet, srv.URL, "token-1", nil, &out); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if out.Login != "acme" {
		t.Errorf("decoded login = %q, want acme", out.Login)
	}
}

func TestDoNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)

	var out map[string]any
	if err := c.Do(context.Background(), http.MethodDelete, srv.URL, "t", nil, &out); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if out != nil {
		t.Errorf("out = %v, want untouched nil", out)
	}
}

func TestDoRateLimitWaitsUntilReset(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).Unix()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set(headerRateRemaining, "0")
			w.Header().Set(headerRateReset, fmt.Sprintf("%d", reset))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c, sleeper := newTestClient(t)

	if err := c.Do(context.Background(), http.MethodGet, srv.URL, "t", nil, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("server saw %d calls, want 2", got)
	}
	if len(sleeper.waits) != 1 {
		t.Fatalf("recorded %d waits, want 1", len(sleeper.waits))
	}
	// Must wait at least until the reset epoch (allow scheduling slack).
	if sleeper.waits[0] < 25*time.Second {
		t.Errorf("waited %s, want close to 30s", sleeper.waits[0])
	}
}

func TestDoForbiddenWithZeroQuotaIsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerRateRemaining, "0")
		w.Header().Set(headerRateReset, fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix()))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	c.maxRetries = 1

	err := c.Do(context.Background(), http.MethodGet, srv.URL, "t", nil, nil)

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("Do() error = %v, want *RateLimitError", err)
	}
	if rlErr.ResetAt.Before(time.Now()) {
		t.Errorf("ResetAt = %s, want in the future", rlErr.ResetAt)
	}
}

func TestDoRateLimitExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set(headerRateRemaining, "0")
		w.Header().Set(headerRateReset, fmt.Sprintf("%d", time.Now().Unix()))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, sleeper := newTestClient(t)

	err := c.Do(context.Background(), http.MethodGet, srv.URL, "t", nil, nil)

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("Do() error = %v, want *RateLimitError", err)
	}
	if got := calls.Load(); got != int32(DefaultMaxRetries)+1 {
		t.Errorf("server saw %d calls, want %d", got, DefaultMaxRetries+1)
	}
	// Past reset epochs still wait the minimum.
	for i, w := range sleeper.waits {
		if w < minRateLimitWait {
			t.Errorf("wait %d = %s, want >= %s", i, w, minRateLimitWait)
		}
	}
}

func TestDoRetries5xxWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c, sleeper := newTestClient(t)

	if err := c.Do(context.Background(), http.MethodGet, srv.URL, "t", nil, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if diff := cmp.Diff(want, sleeper.waits); diff != "" {
		t.Errorf("backoff waits mismatch (-want +got):\n%s", diff)
	}
}

func TestDoDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"validation failed"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)

	err := c.Do(context.Background(), http.MethodPost, srv.URL, "t", map[string]string{"a": "b"}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Do() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if apiErr.Message != "validation failed" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (4xx never retried)", got)
	}
}

func TestDoNetworkErrorSurfacesAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c, sleeper := newTestClient(t)

	err := c.Do(context.Background(), http.MethodGet, srv.URL, "t", nil, nil)

	var trErr *TransientError
	if !errors.As(err, &trErr) {
		t.Fatalf("Do() error = %v, want *TransientError", err)
	}
	if len(sleeper.waits) != DefaultMaxRetries {
		t.Errorf("recorded %d waits, want %d", len(sleeper.waits), DefaultMaxRetries)
	}
}

func TestParseRate(t *testing.T) {
	h := http.Header{}
	h.Set(headerRateLimit, "5000")
	h.Set(headerRateRemaining, "4821")
	h.Set(headerRateUsed, "179")
	h.Set(headerRateReset, "1700000000")

	got := parseRate(h)
	if got.Limit != 5000 || got.Remaining != 4821 || got.Used != 179 {
		t.Errorf("parseRate() = %+v", got)
	}
	if got.Reset.Unix() != 1700000000 {
		t.Errorf("Reset = %v", got.Reset)
	}
}
