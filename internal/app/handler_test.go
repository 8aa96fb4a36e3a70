// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-github/v75/github"
)

func initializedHandler(t *testing.T) (*githubStub, http.Handler) {
	t.Helper()
	g := newGitHubStub(t)
	g.addInstallation(555, "acme", "Organization", enterpriseStubRepos())

	a := newTestApp(t, g, true)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return g, a.Handler()
}

func TestHandlerHealthz(t *testing.T) {
	_, h := initializedHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d", rec.Code)
	}
}

func TestHandlerWebhook(t *testing.T) {
	_, h := initializedHandler(t)

	payload, err := json.Marshal(&github.PushEvent{
		Installation: &github.Installation{ID: github.Ptr(int64(555))},
		Repo:         &github.PushEventRepository{FullName: github.Ptr("acme/repo-0")},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		event      string
		signature  string
		wantStatus int
	}{
		{"valid delivery", "push", sign(payload), http.StatusOK},
		{"invalid signature", "push", "sha256=bogus", http.StatusUnauthorized},
		{"missing event header", "", sign(payload), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
			if tt.event != "" {
				req.Header.Set(HeaderEvent, tt.event)
			}
			req.Header.Set(HeaderDelivery, "d-1")
			req.Header.Set(HeaderSignature256, tt.signature)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestHandlerWebhookGates(t *testing.T) {
	g := newGitHubStub(t)
	a := newTestApp(t, g, true)
	h := a.Handler()

	payload := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set(HeaderEvent, "push")
	req.Header.Set(HeaderSignature256, sign(payload))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("uninitialized webhook = %d, want 503", rec.Code)
	}

	// Disabled webhooks on an initialized facade report forbidden.
	disabled := newTestApp(t, g, false)
	if err := disabled.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set(HeaderEvent, "push")
	req.Header.Set(HeaderSignature256, sign(payload))
	disabled.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("disabled webhook = %d, want 403", rec.Code)
	}
}

func TestHandlerOverviewRoutes(t *testing.T) {
	_, h := initializedHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/overview", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/overview = %d", rec.Code)
	}
	var fleet FleetOverview
	if err := json.NewDecoder(rec.Body).Decode(&fleet); err != nil {
		t.Fatal(err)
	}
	if fleet.TenantCount != 1 {
		t.Errorf("TenantCount = %d", fleet.TenantCount)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants/555", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/tenants/555 = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants/999", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/tenants/999 = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("GET /api/tenants/abc = %d, want 400", rec.Code)
	}
}

func TestHandlerEventsAndStats(t *testing.T) {
	_, h := initializedHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/events = %d", rec.Code)
	}
	var events []json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("limit=1 returned %d events", len(events))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/stats = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "total_events") {
		t.Errorf("stats body = %s", rec.Body)
	}
}

func TestHandlerProjectData(t *testing.T) {
	g, h := initializedHandler(t)
	g.projectFiles["/repos/acme/repo-0/contents/.ignition/project.json"] = `{"name":"repo-0"}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/repos/acme/repo-0/project", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET project = %d (body %s)", rec.Code, rec.Body)
	}
	if rec.Body.String() != `{"name":"repo-0"}` {
		t.Errorf("body = %s", rec.Body)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/repos/acme/repo-0/project",
		strings.NewReader(`{"name":"repo-0","version":2}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("PUT project = %d (body %s)", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/repos/acme/repo-0/project",
		strings.NewReader(`{not json`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT invalid JSON = %d, want 400", rec.Code)
	}
}
