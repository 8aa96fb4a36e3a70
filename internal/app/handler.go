// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/castle-bravo-project/ignition-sub002/internal/router"
	"github.com/castle-bravo-project/ignition-sub002/internal/tenant"
)

// Webhook header keys.
const (
	HeaderDelivery     = "X-GitHub-Delivery"
	HeaderEvent        = "X-GitHub-Event"
	HeaderSignature256 = "X-Hub-Signature-256"
)

// Handler returns the facade's HTTP surface.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Post("/webhook", a.handleWebhook)
	r.Get("/healthz", a.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/overview", a.handleOverview)
		r.Get("/tenants/{id}", a.handleTenant)
		r.Get("/tenants/{id}/events", a.handleTenantEvents)
		r.Get("/events", a.handleEvents)
		r.Get("/stats", a.handleStats)
		r.Get("/repos/{owner}/{repo}/project", a.handleGetProjectData)
		r.Put("/repos/{owner}/{repo}/project", a.handlePutProjectData)
	})

	return r
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok")) //nolint:errcheck
}

// handleWebhook reads the raw delivery and passes it through the facade
// gate to the event router.
func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	eventType := r.Header.Get(HeaderEvent)
	if eventType == "" {
		writeError(w, http.StatusBadRequest, "missing event type header")
		return
	}

	pe, err := a.HandleWebhook(r.Context(), eventType,
		r.Header.Get(HeaderDelivery), body, r.Header.Get(HeaderSignature256))
	switch {
	case errors.Is(err, router.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, ErrWebhooksDisabled):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		clog.FromContext(r.Context()).Errorf("webhook handling error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, pe)
	}
}

func (a *App) handleOverview(w http.ResponseWriter, r *http.Request) {
	fleet, err := a.AllInstallationsOverview()
	if err != nil {
		writeFacadeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fleet)
}

func (a *App) handleTenant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid installation id")
		return
	}

	ov, err := a.OrganizationOverview(id)
	if err != nil {
		writeFacadeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (a *App) handleTenantEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid installation id")
		return
	}
	writeJSON(w, http.StatusOK, a.EventHistory(id, queryLimit(r)))
}

func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.EventHistory(0, queryLimit(r)))
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Stats())
}

func (a *App) handleGetProjectData(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")

	data, err := a.ProjectData(r.Context(), repo)
	if err != nil {
		writeFacadeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func (a *App) handlePutProjectData(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")

	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be valid JSON")
		return
	}
	defer r.Body.Close()

	if err := a.UpdateProjectData(r.Context(), repo, body); err != nil {
		writeFacadeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryLimit parses the optional ?limit query parameter.
func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// writeFacadeError maps facade error types onto HTTP statuses.
func writeFacadeError(w http.ResponseWriter, err error) {
	var notFound *tenant.NotFoundError
	switch {
	case errors.Is(err, ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
