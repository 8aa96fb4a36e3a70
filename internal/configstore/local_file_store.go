// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package configstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File names inside the credential directory.
const (
	fileAppID         = "app-id"
	filePrivateKey    = "private-key.pem"
	fileWebhookSecret = "webhook-secret"
)

// LocalFileStore loads credentials from individual files in a
// directory, matching the layout installer tooling writes.
type LocalFileStore struct {
	Dir string
}

// NewLocalFileStore creates a LocalFileStore reading from dir.
func NewLocalFileStore(dir string) *LocalFileStore {
	return &LocalFileStore{Dir: dir}
}

// Load reads app-id, private-key.pem and webhook-secret from the
// directory. Any missing file is a configuration error.
func (s *LocalFileStore) Load(ctx context.Context) (*AppCredentials, error) {
	appIDRaw, err := readTrimmedFile(filepath.Join(s.Dir, fileAppID))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileAppID, err)
	}
	appID, err := strconv.ParseInt(appIDRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileAppID, err)
	}

	key, err := os.ReadFile(filepath.Join(s.Dir, filePrivateKey))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePrivateKey, err)
	}

	secret, err := readTrimmedFile(filepath.Join(s.Dir, fileWebhookSecret))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileWebhookSecret, err)
	}

	return &AppCredentials{
		AppID:         appID,
		PrivateKey:    key,
		WebhookSecret: []byte(secret),
	}, nil
}

func readTrimmedFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
