// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

// Package configwait gates the HTTP surface on startup initialization.
// The server binds immediately and serves 503 on gated paths while
// state recovery (installation replay) runs in the background.
package configwait

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
)

// Environment variable names for wait configuration.
const (
	EnvMaxRetries    = "INIT_MAX_RETRIES"
	EnvRetryInterval = "INIT_RETRY_INTERVAL"
)

// Default wait configuration.
const (
	DefaultMaxRetries    = 30
	DefaultRetryInterval = 2 * time.Second
)

// Config configures the startup wait behavior.
type Config struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// NewConfigFromEnv creates a Config from environment variables, using
// defaults where unset.
func NewConfigFromEnv() Config {
	cfg := Config{
		MaxRetries:    DefaultMaxRetries,
		RetryInterval: DefaultRetryInterval,
	}

	if v := os.Getenv(EnvMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvRetryInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RetryInterval = d
		}
	}
	return cfg
}

// LoadFunc attempts startup initialization and returns nil on success.
type LoadFunc func(ctx context.Context) error

// Wait retries load until it succeeds, the retry budget is exhausted,
// or the context is cancelled. The last error is returned on failure.
func Wait(ctx context.Context, cfg Config, load LoadFunc) error {
	log := clog.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if err := load(ctx); err != nil {
			lastErr = err
			log.Warnf("initialization attempt %d/%d failed: %v", attempt, cfg.MaxRetries, err)

			if attempt < cfg.MaxRetries {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(cfg.RetryInterval):
				}
			}
			continue
		}
		if attempt > 1 {
			log.Infof("initialization succeeded after %d attempts", attempt)
		}
		return nil
	}
	return lastErr
}

// ReadyGate wraps an http.Handler and serves 503 on all paths except
// the allowlist until the service is marked ready.
type ReadyGate struct {
	inner        http.Handler
	allowedPaths []string
	ready        atomic.Bool
}

// NewReadyGate creates a ReadyGate. allowedPaths are path prefixes that
// pass through before readiness (e.g. "/healthz", "/metrics").
func NewReadyGate(inner http.Handler, allowedPaths []string) *ReadyGate {
	return &ReadyGate{inner: inner, allowedPaths: allowedPaths}
}

// SetReady marks the service ready to handle all requests.
func (rg *ReadyGate) SetReady() { rg.ready.Store(true) }

// IsReady reports whether the service is ready.
func (rg *ReadyGate) IsReady() bool { return rg.ready.Load() }

// ServeHTTP implements http.Handler.
func (rg *ReadyGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rg.ready.Load() || rg.isAllowedPath(r.URL.Path) {
		rg.inner.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "5")
	w.WriteHeader(http.StatusServiceUnavailable)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error":   "service_unavailable",
		"message": "service not ready, recovering installation state",
	}); err != nil {
		clog.FromContext(r.Context()).Errorf("failed to write unavailable response: %v", err)
	}
}

func (rg *ReadyGate) isAllowedPath(path string) bool {
	for _, allowed := range rg.allowedPaths {
		if strings.HasPrefix(path, allowed) {
			return true
		}
	}
	return false
}
