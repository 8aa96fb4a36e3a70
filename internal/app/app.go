// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

// Package app is the service facade. It owns the authenticator, the
// tenant registry and the event router, orchestrates startup recovery,
// and exposes the HTTP and query surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/castle-bravo-project/ignition-sub002/internal/ghclient"
	"github.com/castle-bravo-project/ignition-sub002/internal/githubauth"
	"github.com/castle-bravo-project/ignition-sub002/internal/router"
	"github.com/castle-bravo-project/ignition-sub002/internal/tenant"
)

// Facade state errors.
var (
	ErrNotInitialized   = errors.New("service is not initialized")
	ErrWebhooksDisabled = errors.New("webhook processing is disabled")
)

// Config provides configuration for the App.
type Config struct {
	// Credentials is the GitHub App credential material.
	Credentials githubauth.Config

	// WebhooksEnabled gates inbound webhook processing.
	WebhooksEnabled bool

	// PlanDefaults overrides the built-in plan table. Nil uses defaults.
	PlanDefaults tenant.PlanDefaults

	// Metrics registers router collectors when non-nil.
	Metrics prometheus.Registerer
}

// App wires the core components together. All shared state lives here
// and is constructed once at startup; there are no package globals.
type App struct {
	client   *ghclient.Client
	auth     *githubauth.Authenticator
	registry *tenant.Registry
	router   *router.Router

	webhooksEnabled bool
	initialized     atomic.Bool
}

// New constructs the App and its components. Missing credential
// material fails here, before any network traffic.
func New(cfg Config, opts ...ghclient.Option) (*App, error) {
	client := ghclient.New(opts...)

	auth, err := githubauth.New(cfg.Credentials, client)
	if err != nil {
		return nil, fmt.Errorf("configure authenticator: %w", err)
	}

	a := &App{
		client:          client,
		auth:            auth,
		webhooksEnabled: cfg.WebhooksEnabled,
	}
	a.registry = tenant.NewRegistry(a, cfg.PlanDefaults)

	var routerOpts []router.Option
	if cfg.Metrics != nil {
		routerOpts = append(routerOpts, router.WithMetrics(cfg.Metrics))
	}
	a.router = router.New(auth, a.registry, a, routerOpts...)

	return a, nil
}

// Initialize validates the credentials and rebuilds tenant state by
// replaying the provider's installation list as synthetic "created"
// events. There is no persisted snapshot; this runs on every start.
func (a *App) Initialize(ctx context.Context) error {
	log := clog.FromContext(ctx)

	// Credential check: a mint failure means unusable key material.
	assertion, err := a.auth.MintAssertion()
	if err != nil {
		return fmt.Errorf("credential check failed: %w", err)
	}

	installs, err := a.listInstallations(ctx, assertion)
	if err != nil {
		return fmt.Errorf("list installations: %w", err)
	}

	var replayed int
	for _, install := range installs {
		ev := &github.InstallationEvent{
			Action:       github.Ptr("created"),
			Installation: install,
		}
		if err := a.registry.HandleInstallation(ctx, ev); err != nil {
			log.Errorf("replay installation %d: %v", install.GetID(), err)
			continue
		}
		replayed++
	}

	a.initialized.Store(true)
	log.Infof("initialized: recovered %d of %d installations", replayed, len(installs))
	return nil
}

// listInstallations pages through the app's installation list using the
// app assertion.
func (a *App) listInstallations(ctx context.Context, assertion string) ([]*github.Installation, error) {
	const perPage = 100

	var all []*github.Installation
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/app/installations?per_page=%d&page=%d", a.auth.APIBaseURL(), perPage, page)

		var batch []*github.Installation
		if err := a.client.Do(ctx, http.MethodGet, url, assertion, nil, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			return all, nil
		}
	}
}

// ListInstallationRepositories implements tenant.RepositoryLister using
// an installation-scoped token.
func (a *App) ListInstallationRepositories(ctx context.Context, installationID int64) ([]tenant.Repository, error) {
	tok, err := a.auth.Token(ctx, installationID, false)
	if err != nil {
		return nil, err
	}

	const perPage = 100

	var repos []tenant.Repository
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/installation/repositories?per_page=%d&page=%d", a.auth.APIBaseURL(), perPage, page)

		var resp struct {
			TotalCount   int                  `json:"total_count"`
			Repositories []*github.Repository `json:"repositories"`
		}
		if err := a.client.Do(ctx, http.MethodGet, url, tok.Token, nil, &resp); err != nil {
			return nil, err
		}

		for _, gr := range resp.Repositories {
			repos = append(repos, tenant.Repository{
				ID:       gr.GetID(),
				Name:     gr.GetName(),
				FullName: gr.GetFullName(),
				Private:  gr.GetPrivate(),
			})
		}
		if len(resp.Repositories) < perPage {
			return repos, nil
		}
	}
}

// HandleWebhook passes one delivery to the event router, gated on the
// facade being initialized and webhooks being enabled.
func (a *App) HandleWebhook(ctx context.Context, eventType, deliveryID string, payload []byte, signature string) (*router.ProcessedEvent, error) {
	if !a.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if !a.webhooksEnabled {
		return nil, ErrWebhooksDisabled
	}
	return a.router.ProcessDelivery(ctx, eventType, deliveryID, payload, signature)
}

// EventHistory returns recorded webhook outcomes, most recent first.
func (a *App) EventHistory(installationID int64, limit int) []router.ProcessedEvent {
	return a.router.EventHistory(installationID, limit)
}

// Stats returns aggregate webhook processing statistics.
func (a *App) Stats() router.Stats {
	return a.router.Stats()
}

// Registry exposes the tenant registry for read/update operations.
func (a *App) Registry() *tenant.Registry {
	return a.registry
}

// Shutdown clears cached credentials and marks the facade
// uninitialized. It does not stop the process.
func (a *App) Shutdown() {
	a.auth.InvalidateTokens()
	a.initialized.Store(false)
}

// ScheduleProjectSync implements router.ProjectSyncScheduler: the fetch
// runs on its own goroutine so webhook handling never blocks on it.
func (a *App) ScheduleProjectSync(repoFullName string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := a.syncProjectData(ctx, repoFullName); err != nil {
			clog.FromContext(ctx).Warnf("project re-sync for %s failed: %v", repoFullName, err)
		}
	}()
}
