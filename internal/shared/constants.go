// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

// Package shared provides common helpers and defaults shared across internal packages.
package shared

import "time"

// Server configuration defaults.
const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = 8080

	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// Cache configuration defaults.
const (
	// DefaultCacheSize is the default size for LRU caches.
	DefaultCacheSize = 200
)

// GitHub API defaults.
const (
	// DefaultAPIBaseURL is the base URL for the GitHub REST API.
	DefaultAPIBaseURL = "https://api.github.com"

	// APIVersion is the pinned GitHub REST API version sent on every request.
	APIVersion = "2022-11-28"

	// UserAgent identifies this service to the GitHub API.
	UserAgent = "ignition-app/1.0"
)
