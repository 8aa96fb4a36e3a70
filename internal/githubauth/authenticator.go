// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

// Package githubauth implements GitHub App authentication: short-lived
// signed assertions, per-installation access tokens with a bounded cache,
// and webhook signature verification.
package githubauth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/golang-jwt/jwt/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/castle-bravo-project/ignition-sub002/internal/ghclient"
	"github.com/castle-bravo-project/ignition-sub002/internal/shared"
)

const (
	// assertionClockDrift backdates the issued-at claim to tolerate
	// clock skew between this service and GitHub.
	assertionClockDrift = time.Minute

	// assertionTTL keeps assertions under GitHub's 10 minute maximum.
	assertionTTL = 9 * time.Minute

	// tokenExpiryBuffer is the remaining validity below which a cached
	// installation token is considered stale and refreshed.
	tokenExpiryBuffer = 5 * time.Minute
)

// Config holds the GitHub App credential material. All fields are
// required and immutable after construction.
type Config struct {
	AppID         int64
	PrivateKeyPEM []byte
	WebhookSecret []byte

	// APIBaseURL overrides the GitHub API base URL (for tests and
	// GitHub Enterprise Server). Defaults to api.github.com.
	APIBaseURL string
}

// InstallationToken is a short-lived credential scoped to one
// installation. Cache entries are replaced, never mutated.
type InstallationToken struct {
	Token               string            `json:"token"`
	ExpiresAt           time.Time         `json:"expires_at"`
	Permissions         map[string]string `json:"permissions"`
	RepositorySelection string            `json:"repository_selection"`
	Repositories        []string          `json:"-"`
}

// AuthenticationError indicates the token endpoint rejected an
// assertion. It is surfaced immediately and never retried.
type AuthenticationError struct {
	InstallationID int64
	Err            error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("token exchange rejected for installation %d: %v", e.InstallationID, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Authenticator mints app assertions, exchanges them for installation
// tokens, and verifies inbound webhook signatures.
type Authenticator struct {
	appID      int64
	privateKey *rsa.PrivateKey
	secret     []byte
	baseURL    string
	client     *ghclient.Client

	tokens  *lru.Cache[int64, *InstallationToken]
	refresh singleflight.Group

	// now is overridable in tests.
	now func() time.Time
}

// New validates the credential material and constructs an Authenticator.
// Missing or unparseable material is a fatal configuration error.
func New(cfg Config, client *ghclient.Client) (*Authenticator, error) {
	if cfg.AppID == 0 {
		return nil, errors.New("github app id is required")
	}
	if len(cfg.WebhookSecret) == 0 {
		return nil, errors.New("webhook secret is required")
	}
	if client == nil {
		return nil, errors.New("api client is required")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}

	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = shared.DefaultAPIBaseURL
	}

	tokens, err := lru.New[int64, *InstallationToken](shared.DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		appID:      cfg.AppID,
		privateKey: key,
		secret:     cfg.WebhookSecret,
		baseURL:    baseURL,
		client:     client,
		tokens:     tokens,
		now:        time.Now,
	}, nil
}

// MintAssertion generates a fresh signed app assertion. Assertions are
// never reused across token exchanges.
func (a *Authenticator) MintAssertion() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    fmt.Sprintf("%d", a.appID),
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionClockDrift)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign app assertion: %w", err)
	}
	return signed, nil
}

// Token returns an installation token, serving from cache while the
// remaining validity exceeds the expiry buffer. Concurrent refreshes for
// the same installation are coalesced into a single exchange.
func (a *Authenticator) Token(ctx context.Context, installationID int64, forceRefresh bool) (*InstallationToken, error) {
	if !forceRefresh {
		if tok, ok := a.tokens.Get(installationID); ok {
			if tok.ExpiresAt.Sub(a.now()) > tokenExpiryBuffer {
				return tok, nil
			}
		}
	}

	v, err, _ := a.refresh.Do(fmt.Sprintf("%d", installationID), func() (any, error) {
		return a.exchange(ctx, installationID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*InstallationToken), nil
}

// exchange mints a fresh assertion and trades it for an installation
// token, replacing the cache entry on success.
func (a *Authenticator) exchange(ctx context.Context, installationID int64) (*InstallationToken, error) {
	assertion, err := a.MintAssertion()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, installationID)

	var resp struct {
		Token               string            `json:"token"`
		ExpiresAt           time.Time         `json:"expires_at"`
		Permissions         map[string]string `json:"permissions"`
		RepositorySelection string            `json:"repository_selection"`
		Repositories        []struct {
			FullName string `json:"full_name"`
		} `json:"repositories"`
	}

	if err := a.client.Do(ctx, http.MethodPost, url, assertion, nil, &resp); err != nil {
		var apiErr *ghclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return nil, &AuthenticationError{InstallationID: installationID, Err: err}
		}
		return nil, err
	}

	tok := &InstallationToken{
		Token:               resp.Token,
		ExpiresAt:           resp.ExpiresAt,
		Permissions:         resp.Permissions,
		RepositorySelection: resp.RepositorySelection,
	}
	for _, r := range resp.Repositories {
		tok.Repositories = append(tok.Repositories, r.FullName)
	}

	a.tokens.Add(installationID, tok)
	clog.FromContext(ctx).Debugf("refreshed installation token for %d, expires %s",
		installationID, tok.ExpiresAt.Format(time.RFC3339))

	return tok, nil
}

// InvalidateTokens purges the installation token cache.
func (a *Authenticator) InvalidateTokens() {
	a.tokens.Purge()
}

// APIBaseURL returns the configured GitHub API base URL.
func (a *Authenticator) APIBaseURL() string {
	return a.baseURL
}
