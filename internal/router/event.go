// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

// Package router verifies, decodes and dispatches inbound webhook
// deliveries to type-specific processors, recording every outcome in a
// bounded history.
package router

import (
	"fmt"
	"time"

	"github.com/google/go-github/v75/github"
)

// Webhook event types accepted from the provider.
const (
	EventInstallation     = "installation"
	EventInstallationRepo = "installation_repositories"
	EventPush             = "push"
	EventPullRequest      = "pull_request"
	EventIssues           = "issues"
	EventSecurityAdvisory = "security_advisory"
	EventCodeScanning     = "code_scanning_alert"
	EventSecretScanning   = "secret_scanning_alert"
)

// Event is one decoded webhook delivery routed to a processor.
type Event struct {
	Type           string
	Action         string
	DeliveryID     string
	InstallationID int64
	RepoFullName   string

	// Payload is the typed go-github event struct.
	Payload any
}

// decodeEvent parses the raw payload into a typed event and extracts the
// fields common to all event types.
func decodeEvent(eventType, deliveryID string, payload []byte) (*Event, error) {
	typed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}

	ev := &Event{Type: eventType, DeliveryID: deliveryID, Payload: typed}

	switch p := typed.(type) {
	case *github.InstallationEvent:
		ev.Action = p.GetAction()
		ev.InstallationID = p.GetInstallation().GetID()
	case *github.InstallationRepositoriesEvent:
		ev.Action = p.GetAction()
		ev.InstallationID = p.GetInstallation().GetID()
	case *github.PushEvent:
		ev.InstallationID = p.GetInstallation().GetID()
		ev.RepoFullName = p.GetRepo().GetFullName()
	case *github.PullRequestEvent:
		ev.Action = p.GetAction()
		ev.InstallationID = p.GetInstallation().GetID()
		ev.RepoFullName = p.GetRepo().GetFullName()
	case *github.IssuesEvent:
		ev.Action = p.GetAction()
		ev.InstallationID = p.GetInstallation().GetID()
		ev.RepoFullName = p.GetRepo().GetFullName()
	case *github.SecurityAdvisoryEvent:
		ev.Action = p.GetAction()
		ev.InstallationID = p.GetInstallation().GetID()
		ev.RepoFullName = p.GetRepository().GetFullName()
	case *github.CodeScanningAlertEvent:
		ev.Action = p.GetAction()
		ev.InstallationID = p.GetInstallation().GetID()
		ev.RepoFullName = p.GetRepo().GetFullName()
	case *github.SecretScanningAlertEvent:
		ev.Action = p.GetAction()
		ev.InstallationID = p.GetInstallation().GetID()
		ev.RepoFullName = p.GetRepo().GetFullName()
	}

	return ev, nil
}

// ProcessedEvent is the immutable record of one webhook handling attempt.
type ProcessedEvent struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Action         string         `json:"action,omitempty"`
	InstallationID int64          `json:"installation_id"`
	Repository     string         `json:"repository,omitempty"`
	ProcessedAt    time.Time      `json:"processed_at"`
	Success        bool           `json:"success"`
	Error          string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
