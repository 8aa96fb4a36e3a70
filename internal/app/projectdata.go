// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/castle-bravo-project/ignition-sub002/internal/ghclient"
	"github.com/castle-bravo-project/ignition-sub002/internal/router"
)

// contentsFile is the subset of the contents API response consumed here.
type contentsFile struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

// projectDataURL builds the contents API URL for a repository's project
// document.
func (a *App) projectDataURL(repoFullName string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", a.auth.APIBaseURL(), repoFullName, router.ProjectMarkerPath)
}

// ProjectData reads the repository's project document through the
// provider's file-content API. The document is treated as opaque JSON.
func (a *App) ProjectData(ctx context.Context, repoFullName string) (json.RawMessage, error) {
	if !a.initialized.Load() {
		return nil, ErrNotInitialized
	}

	t, ok := a.registry.TenantByRepository(repoFullName)
	if !ok {
		return nil, fmt.Errorf("repository %s is not registered with any installation", repoFullName)
	}

	tok, err := a.auth.Token(ctx, t.InstallationID, false)
	if err != nil {
		return nil, err
	}

	var file contentsFile
	if err := a.client.Do(ctx, http.MethodGet, a.projectDataURL(repoFullName), tok.Token, nil, &file); err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(file.Content)
	if err != nil {
		return nil, fmt.Errorf("decode project data for %s: %w", repoFullName, err)
	}
	return json.RawMessage(raw), nil
}

// UpdateProjectData writes the repository's project document through the
// provider's file-content API and refreshes the registry's copy.
func (a *App) UpdateProjectData(ctx context.Context, repoFullName string, data json.RawMessage) error {
	if !a.initialized.Load() {
		return ErrNotInitialized
	}

	t, ok := a.registry.TenantByRepository(repoFullName)
	if !ok {
		return fmt.Errorf("repository %s is not registered with any installation", repoFullName)
	}

	tok, err := a.auth.Token(ctx, t.InstallationID, false)
	if err != nil {
		return err
	}

	url := a.projectDataURL(repoFullName)

	// The contents API requires the current blob SHA when the file
	// already exists.
	var sha string
	var existing contentsFile
	err = a.client.Do(ctx, http.MethodGet, url, tok.Token, nil, &existing)
	switch {
	case err == nil:
		sha = existing.SHA
	case isNotFound(err):
		// First write for this repository.
	default:
		return err
	}

	body := map[string]string{
		"message": "chore: update ignition project data",
		"content": base64.StdEncoding.EncodeToString(data),
	}
	if sha != "" {
		body["sha"] = sha
	}

	if err := a.client.Do(ctx, http.MethodPut, url, tok.Token, body, nil); err != nil {
		return err
	}

	return a.registry.SetProjectData(t.InstallationID, repoFullName, data)
}

// syncProjectData refreshes the registry's copy of a repository's
// project document from the provider.
func (a *App) syncProjectData(ctx context.Context, repoFullName string) error {
	data, err := a.ProjectData(ctx, repoFullName)
	if err != nil {
		return err
	}

	t, ok := a.registry.TenantByRepository(repoFullName)
	if !ok {
		return fmt.Errorf("repository %s is no longer registered", repoFullName)
	}
	return a.registry.SetProjectData(t.InstallationID, repoFullName, data)
}

func isNotFound(err error) bool {
	var apiErr *ghclient.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
