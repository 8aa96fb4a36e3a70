// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"

	"github.com/castle-bravo-project/ignition-sub002/internal/tenant"
)

// ProjectMarkerPath is the per-repository project document. Pushes that
// touch it (or anything under its directory) schedule a re-sync.
const ProjectMarkerPath = ".ignition/project.json"

// ProjectSyncScheduler schedules an asynchronous project-data re-sync
// for a repository. Implementations must not block; the router calls
// this inside its critical path.
type ProjectSyncScheduler interface {
	ScheduleProjectSync(repoFullName string)
}

// installationProcessor applies installation lifecycle events to the
// tenant registry.
type installationProcessor struct {
	registry *tenant.Registry
}

func (p *installationProcessor) Process(ctx context.Context, ev *Event) (map[string]any, error) {
	payload, ok := ev.Payload.(*github.InstallationEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", ev.Payload)
	}

	if err := p.registry.HandleInstallation(ctx, payload); err != nil {
		return nil, err
	}
	return map[string]any{
		"account": payload.GetInstallation().GetAccount().GetLogin(),
	}, nil
}

// repositoriesProcessor applies repository add/remove events.
type repositoriesProcessor struct {
	registry *tenant.Registry
}

func (p *repositoriesProcessor) Process(ctx context.Context, ev *Event) (map[string]any, error) {
	payload, ok := ev.Payload.(*github.InstallationRepositoriesEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", ev.Payload)
	}

	if err := p.registry.HandleRepositoryChanges(ctx, payload); err != nil {
		return nil, err
	}
	return map[string]any{
		"added":   len(payload.RepositoriesAdded),
		"removed": len(payload.RepositoriesRemoved),
	}, nil
}

// pushProcessor inspects changed file paths for the project marker and
// schedules a re-sync. It never fetches file contents synchronously.
type pushProcessor struct {
	registry *tenant.Registry
	sync     ProjectSyncScheduler
}

func (p *pushProcessor) Process(ctx context.Context, ev *Event) (map[string]any, error) {
	payload, ok := ev.Payload.(*github.PushEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", ev.Payload)
	}

	t, ok := p.registry.TenantByRepository(ev.RepoFullName)
	if !ok {
		// Pushes to repositories we do not track are expected.
		return map[string]any{"skipped": "repository not registered"}, nil
	}
	p.registry.RecordActivity(t.InstallationID)

	meta := map[string]any{
		"ref":     payload.GetRef(),
		"commits": len(payload.Commits),
	}

	if !p.registry.HasFeatureAccess(t.InstallationID, tenant.FeatureComplianceBasic) {
		meta["skipped"] = "compliance tracking disabled"
		return meta, nil
	}

	if touchesProjectMarker(payload.Commits) {
		meta["project_sync"] = true
		if p.sync != nil {
			p.sync.ScheduleProjectSync(ev.RepoFullName)
			clog.FromContext(ctx).Infof("scheduled project re-sync for %s", ev.RepoFullName)
		}
	}
	return meta, nil
}

// touchesProjectMarker reports whether any commit changed the project
// document or a file under its directory.
func touchesProjectMarker(commits []*github.HeadCommit) bool {
	dir := ProjectMarkerPath[:strings.IndexByte(ProjectMarkerPath, '/')+1]
	touched := func(paths []string) bool {
		for _, p := range paths {
			if p == ProjectMarkerPath || strings.HasPrefix(p, dir) {
				return true
			}
		}
		return false
	}
	for _, c := range commits {
		if touched(c.Added) || touched(c.Modified) || touched(c.Removed) {
			return true
		}
	}
	return false
}

// pullRequestProcessor records pull-request activity for tenants with
// PR analysis enabled.
type pullRequestProcessor struct {
	registry *tenant.Registry
}

func (p *pullRequestProcessor) Process(ctx context.Context, ev *Event) (map[string]any, error) {
	payload, ok := ev.Payload.(*github.PullRequestEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", ev.Payload)
	}

	t, ok := p.registry.TenantByRepository(ev.RepoFullName)
	if !ok {
		return map[string]any{"skipped": "repository not registered"}, nil
	}
	p.registry.RecordActivity(t.InstallationID)

	meta := map[string]any{"number": payload.GetNumber()}
	if !p.registry.HasFeatureAccess(t.InstallationID, tenant.FeaturePRAnalysis) {
		meta["skipped"] = "pr analysis not enabled"
	}
	return meta, nil
}

// issuesProcessor records issue activity.
type issuesProcessor struct {
	registry *tenant.Registry
}

func (p *issuesProcessor) Process(ctx context.Context, ev *Event) (map[string]any, error) {
	payload, ok := ev.Payload.(*github.IssuesEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", ev.Payload)
	}

	t, ok := p.registry.TenantByRepository(ev.RepoFullName)
	if !ok {
		return map[string]any{"skipped": "repository not registered"}, nil
	}
	p.registry.RecordActivity(t.InstallationID)

	return map[string]any{"issue": payload.GetIssue().GetNumber()}, nil
}

// securityProcessor handles security_advisory, code_scanning_alert and
// secret_scanning_alert events for tenants entitled to security alerts.
type securityProcessor struct {
	registry *tenant.Registry
}

func (p *securityProcessor) Process(ctx context.Context, ev *Event) (map[string]any, error) {
	t, ok := p.registry.TenantByRepository(ev.RepoFullName)
	if !ok {
		return map[string]any{"skipped": "repository not registered"}, nil
	}
	p.registry.RecordActivity(t.InstallationID)

	meta := map[string]any{"alert_type": ev.Type}

	switch payload := ev.Payload.(type) {
	case *github.SecurityAdvisoryEvent:
		meta["severity"] = payload.GetSecurityAdvisory().GetSeverity()
	case *github.CodeScanningAlertEvent:
		meta["alert"] = payload.GetAlert().GetNumber()
		meta["severity"] = payload.GetAlert().GetRule().GetSeverity()
	case *github.SecretScanningAlertEvent:
		meta["alert"] = payload.GetAlert().GetNumber()
	default:
		return nil, fmt.Errorf("unexpected payload type %T", ev.Payload)
	}

	if !p.registry.HasFeatureAccess(t.InstallationID, tenant.FeatureSecurityAlerts) {
		meta["skipped"] = "security alerts not enabled"
		return meta, nil
	}

	clog.FromContext(ctx).Warnf("security alert for %s (%s)", ev.RepoFullName, ev.Type)
	return meta, nil
}
