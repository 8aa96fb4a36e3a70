// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/castle-bravo-project/ignition-sub002/internal/app"
	"github.com/castle-bravo-project/ignition-sub002/internal/configstore"
	"github.com/castle-bravo-project/ignition-sub002/internal/configwait"
	"github.com/castle-bravo-project/ignition-sub002/internal/githubauth"
	"github.com/castle-bravo-project/ignition-sub002/internal/shared"
	"github.com/castle-bravo-project/ignition-sub002/internal/tenant"
)

const (
	envWebhooksEnabled  = "WEBHOOKS_ENABLED"
	envPlanDefaultsPath = "PLAN_DEFAULTS_PATH"
	envAPIBaseURL       = "GITHUB_API_URL"
)

func main() {
	godotenv.Load() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = clog.WithLogger(ctx, clog.New(shared.NewSlogHandler()))
	log := clog.FromContext(ctx)

	port := shared.DefaultPort
	if p := os.Getenv("PORT"); p != "" {
		fmt.Sscanf(p, "%d", &port) //nolint:errcheck
	}

	store, err := configstore.NewFromEnv()
	if err != nil {
		log.Errorf("failed to create config store: %v", err)
		os.Exit(1)
	}

	creds, err := store.Load(ctx)
	if err != nil {
		log.Errorf("failed to load app credentials: %v", err)
		os.Exit(1)
	}

	var planDefaults tenant.PlanDefaults
	if path := os.Getenv(envPlanDefaultsPath); path != "" {
		planDefaults, err = tenant.LoadPlanDefaults(path)
		if err != nil {
			log.Errorf("failed to load plan defaults: %v", err)
			os.Exit(1)
		}
	}

	webhooksEnabled := true
	if v := strings.ToLower(os.Getenv(envWebhooksEnabled)); v == "false" || v == "0" || v == "no" {
		webhooksEnabled = false
	}

	service, err := app.New(app.Config{
		Credentials: githubauth.Config{
			AppID:         creds.AppID,
			PrivateKeyPEM: creds.PrivateKey,
			WebhookSecret: creds.WebhookSecret,
			APIBaseURL:    os.Getenv(envAPIBaseURL),
		},
		WebhooksEnabled: webhooksEnabled,
		PlanDefaults:    planDefaults,
		Metrics:         prometheus.DefaultRegisterer,
	})
	if err != nil {
		log.Errorf("failed to create service: %v", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", service.Handler())

	gate := configwait.NewReadyGate(mux, []string{"/healthz", "/metrics"})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		ReadHeaderTimeout: shared.DefaultReadHeaderTimeout,
		Handler:           gate,
	}

	log.Infof("starting HTTP server on port %d (recovering installation state...)", port)

	// Start server (returns 503 on gated paths until ready)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()

	// Recover tenant state in the background with retries.
	go func() {
		waitCfg := configwait.NewConfigFromEnv()

		if err := configwait.Wait(ctx, waitCfg, service.Initialize); err != nil {
			log.Errorf("failed to initialize after retries: %v", err)
			os.Exit(1)
		}
		gate.SetReady()
		log.Infof("installation state recovered, service is ready")

		reloader := configwait.NewReloader(ctx, service.Initialize)
		reloader.Start()
		log.Infof("reloader started (send SIGHUP to re-replay installation state)")
	}()

	<-ctx.Done()
	log.Infof("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown error: %v", err)
		os.Exit(1)
	}
	service.Shutdown()
}
