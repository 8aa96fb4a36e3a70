// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

// Package configstore loads GitHub App credential material from
// configurable backends. Credentials are loaded once at startup and are
// immutable for the life of the process.
package configstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/castle-bravo-project/ignition-sub002/internal/shared"
)

// Environment variable names for credential and store configuration.
const (
	EnvGitHubAppID          = "GITHUB_APP_ID"
	EnvGitHubPrivateKey     = "GITHUB_APP_PRIVATE_KEY"
	EnvGitHubPrivateKeyPath = "GITHUB_APP_PRIVATE_KEY_PATH"
	EnvGitHubWebhookSecret  = "GITHUB_WEBHOOK_SECRET"

	EnvStorageMode = "STORAGE_MODE"
	EnvStorageDir  = "STORAGE_DIR"
)

// Storage mode constants.
const (
	StorageModeEnv   = "env"
	StorageModeFiles = "files"
)

// AppCredentials is the credential material required to act as the
// GitHub App.
type AppCredentials struct {
	AppID         int64
	PrivateKey    []byte
	WebhookSecret []byte
}

// Store loads app credentials from a backend.
type Store interface {
	Load(ctx context.Context) (*AppCredentials, error)
}

// NewFromEnv creates a Store based on STORAGE_MODE:
//   - "env" (default): credentials from environment variables
//   - "files": credentials from individual files under STORAGE_DIR
//     (app-id, private-key.pem, webhook-secret)
func NewFromEnv() (Store, error) {
	mode := shared.GetEnvDefault(EnvStorageMode, StorageModeEnv)

	switch mode {
	case StorageModeEnv:
		return &EnvStore{}, nil
	case StorageModeFiles:
		dir := shared.GetEnvDefault(EnvStorageDir, "./.credentials")
		return NewLocalFileStore(dir), nil
	default:
		return nil, fmt.Errorf("unknown %s: %s (expected '%s' or '%s')",
			EnvStorageMode, mode, StorageModeEnv, StorageModeFiles)
	}
}

// EnvStore loads credentials from environment variables. The private
// key may be supplied inline or as a file path.
type EnvStore struct{}

// Load reads and validates the credential environment variables.
func (s *EnvStore) Load(ctx context.Context) (*AppCredentials, error) {
	appID, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(EnvGitHubAppID)), 10, 64)
	if err != nil || appID == 0 {
		return nil, fmt.Errorf("%s must be set to a numeric app id", EnvGitHubAppID)
	}

	key := []byte(os.Getenv(EnvGitHubPrivateKey))
	if len(key) == 0 {
		path := os.Getenv(EnvGitHubPrivateKeyPath)
		if path == "" {
			return nil, fmt.Errorf("%s or %s must be set", EnvGitHubPrivateKey, EnvGitHubPrivateKeyPath)
		}
		key, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read private key from %s: %w", path, err)
		}
	}

	secret := os.Getenv(EnvGitHubWebhookSecret)
	if secret == "" {
		return nil, fmt.Errorf("%s must be set", EnvGitHubWebhookSecret)
	}

	return &AppCredentials{
		AppID:         appID,
		PrivateKey:    key,
		WebhookSecret: []byte(secret),
	}, nil
}
