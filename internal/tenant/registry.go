// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// RepositoryLister fetches the repositories authorized for an
// installation. Implemented by the facade using an installation token.
type RepositoryLister interface {
	ListInstallationRepositories(ctx context.Context, installationID int64) ([]Repository, error)
}

// Registry owns the installation → tenant mapping and the repository
// full-name → installation index. All mutation goes through its methods;
// accessors return deep copies.
type Registry struct {
	mu        sync.RWMutex
	tenants   map[int64]*Tenant
	archived  map[int64]*Tenant
	repoIndex map[string]int64

	repos    RepositoryLister
	defaults PlanDefaults

	// now is overridable in tests.
	now func() time.Time
}

// NewRegistry creates an empty registry. defaults may be nil, in which
// case the built-in plan table is used.
func NewRegistry(repos RepositoryLister, defaults PlanDefaults) *Registry {
	if defaults == nil {
		defaults = DefaultPlans()
	}
	return &Registry{
		tenants:   make(map[int64]*Tenant),
		archived:  make(map[int64]*Tenant),
		repoIndex: make(map[string]int64),
		repos:     repos,
		defaults:  defaults,
		now:       time.Now,
	}
}

// HandleInstallation applies an installation lifecycle event. Creation
// is idempotent by installation id; replaying a known installation
// refreshes its repository list.
func (r *Registry) HandleInstallation(ctx context.Context, ev *github.InstallationEvent) error {
	install := ev.GetInstallation()
	if install == nil {
		return fmt.Errorf("installation event without installation")
	}
	id := install.GetID()

	switch ev.GetAction() {
	case "created":
		return r.createTenant(ctx, install)
	case "deleted":
		return r.archiveTenant(ctx, id)
	case "suspend":
		return r.setSubscriptionStatus(id, StatusSuspended)
	case "unsuspend":
		return r.setSubscriptionStatus(id, StatusActive)
	default:
		return fmt.Errorf("unsupported installation action %q", ev.GetAction())
	}
}

// createTenant fetches the installation's repositories, classifies the
// subscription plan, and registers the tenant and its repository index.
func (r *Registry) createTenant(ctx context.Context, install *github.Installation) error {
	id := install.GetID()
	login := install.GetAccount().GetLogin()
	accountType := install.GetAccount().GetType()

	repos, err := r.repos.ListInstallationRepositories(ctx, id)
	if err != nil {
		return fmt.Errorf("list repositories for installation %d: %w", id, err)
	}

	plan := classifyPlan(accountType, len(repos))
	spec := r.defaults[plan]
	now := r.now()

	t := &Tenant{
		InstallationID: id,
		AccountLogin:   login,
		AccountType:    accountType,
		Settings: Settings{
			ComplianceLevel:      "standard",
			AuditEnabled:         true,
			NotificationsEnabled: true,
			SecurityPolicy:       plan == PlanEnterprise,
			Features:             make(map[string]bool, len(spec.Features)),
		},
		Repositories: repos,
		Subscription: Subscription{
			Plan:     plan,
			Status:   StatusActive,
			Features: append([]string(nil), spec.Features...),
			Limits:   spec.Limits,
		},
		Usage: Usage{
			RepositoryCount: len(repos),
			LastActivity:    now,
		},
		Projects:  make(map[string]json.RawMessage, len(repos)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, f := range spec.Features {
		t.Settings.Features[f] = true
	}
	for _, repo := range repos {
		t.Projects[repo.FullName] = json.RawMessage("{}")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Replay of an existing installation refreshes state in place.
	if old, ok := r.tenants[id]; ok {
		for _, repo := range old.Repositories {
			delete(r.repoIndex, repo.FullName)
		}
		t.CreatedAt = old.CreatedAt
	}

	r.tenants[id] = t
	for _, repo := range repos {
		r.repoIndex[repo.FullName] = id
	}

	clog.FromContext(ctx).Infof("registered tenant %s (installation %d, plan %s, %d repos)",
		login, id, plan, len(repos))
	return nil
}

// archiveTenant removes the tenant's index entries and moves the record
// to the archive with a deletion timestamp. Data is retained, not
// discarded.
func (r *Registry) archiveTenant(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return &NotFoundError{InstallationID: id}
	}

	for _, repo := range t.Repositories {
		delete(r.repoIndex, repo.FullName)
	}
	delete(r.tenants, id)

	at := r.now()
	t.DeletedAt = &at
	t.UpdatedAt = at
	r.archived[id] = t

	clog.FromContext(ctx).Infof("archived tenant %s (installation %d)", t.AccountLogin, id)
	return nil
}

func (r *Registry) setSubscriptionStatus(id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return &NotFoundError{InstallationID: id}
	}
	t.Subscription.Status = status
	t.UpdatedAt = r.now()
	return nil
}

// HandleRepositoryChanges applies an installation_repositories event.
// Additions are idempotent by repository id; removals drop both the
// index entry and the repository's project scaffold.
func (r *Registry) HandleRepositoryChanges(ctx context.Context, ev *github.InstallationRepositoriesEvent) error {
	id := ev.GetInstallation().GetID()

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return &NotFoundError{InstallationID: id}
	}

	switch ev.GetAction() {
	case "added":
		for _, gr := range ev.RepositoriesAdded {
			repo := Repository{
				ID:       gr.GetID(),
				Name:     gr.GetName(),
				FullName: gr.GetFullName(),
				Private:  gr.GetPrivate(),
			}
			if t.hasRepository(repo.ID) {
				continue
			}
			t.Repositories = append(t.Repositories, repo)
			t.Projects[repo.FullName] = json.RawMessage("{}")
			r.repoIndex[repo.FullName] = id
		}
	case "removed":
		for _, gr := range ev.RepositoriesRemoved {
			t.removeRepository(gr.GetID())
			delete(t.Projects, gr.GetFullName())
			delete(r.repoIndex, gr.GetFullName())
		}
	default:
		return fmt.Errorf("unsupported repository action %q", ev.GetAction())
	}

	t.Usage.RepositoryCount = len(t.Repositories)
	t.UpdatedAt = r.now()

	clog.FromContext(ctx).Infof("tenant %s now has %d repositories", t.AccountLogin, len(t.Repositories))
	return nil
}

func (t *Tenant) hasRepository(id int64) bool {
	for _, repo := range t.Repositories {
		if repo.ID == id {
			return true
		}
	}
	return false
}

func (t *Tenant) removeRepository(id int64) {
	for i, repo := range t.Repositories {
		if repo.ID == id {
			t.Repositories = append(t.Repositories[:i], t.Repositories[i+1:]...)
			return
		}
	}
}

// Tenant returns a copy of the tenant for the given installation id.
func (r *Registry) Tenant(id int64) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return nil, &NotFoundError{InstallationID: id}
	}
	return t.clone(), nil
}

// TenantByRepository resolves the owning tenant for a repository full
// name. A miss is an expected caller case, not an error.
func (r *Registry) TenantByRepository(fullName string) (*Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.repoIndex[fullName]
	if !ok {
		return nil, false
	}
	t, ok := r.tenants[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// List returns copies of all active tenants.
func (r *Registry) List() []*Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t.clone())
	}
	return out
}

// SettingsPatch is a shallow-merge update for tenant settings. Nil
// fields are left unchanged.
type SettingsPatch struct {
	ComplianceLevel      *string
	AuditEnabled         *bool
	NotificationsEnabled *bool
	SecurityPolicy       *bool
	Features             map[string]bool
}

// UpdateSettings shallow-merges the patch into the tenant's settings.
func (r *Registry) UpdateSettings(id int64, patch SettingsPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return &NotFoundError{InstallationID: id}
	}

	if patch.ComplianceLevel != nil {
		t.Settings.ComplianceLevel = *patch.ComplianceLevel
	}
	if patch.AuditEnabled != nil {
		t.Settings.AuditEnabled = *patch.AuditEnabled
	}
	if patch.NotificationsEnabled != nil {
		t.Settings.NotificationsEnabled = *patch.NotificationsEnabled
	}
	if patch.SecurityPolicy != nil {
		t.Settings.SecurityPolicy = *patch.SecurityPolicy
	}
	for k, v := range patch.Features {
		t.Settings.Features[k] = v
	}

	t.UpdatedAt = r.now()
	return nil
}

// UsagePatch is a shallow-merge update for usage counters. Nil fields
// are left unchanged.
type UsagePatch struct {
	RepositoryCount *int
	UserCount       *int
	StorageBytes    *int64
	APICalls        *int64
	LastActivity    *time.Time
}

// UpdateUsage shallow-merges the patch into the tenant's usage counters.
func (r *Registry) UpdateUsage(id int64, patch UsagePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return &NotFoundError{InstallationID: id}
	}

	if patch.RepositoryCount != nil {
		t.Usage.RepositoryCount = *patch.RepositoryCount
	}
	if patch.UserCount != nil {
		t.Usage.UserCount = *patch.UserCount
	}
	if patch.StorageBytes != nil {
		t.Usage.StorageBytes = *patch.StorageBytes
	}
	if patch.APICalls != nil {
		t.Usage.APICalls = *patch.APICalls
	}
	if patch.LastActivity != nil {
		t.Usage.LastActivity = *patch.LastActivity
	}

	t.UpdatedAt = r.now()
	return nil
}

// RecordActivity bumps the API call counter and last-activity timestamp.
func (r *Registry) RecordActivity(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tenants[id]; ok {
		t.Usage.APICalls++
		t.Usage.LastActivity = r.now()
		t.UpdatedAt = t.Usage.LastActivity
	}
}

// SetProjectData replaces the stored project document for one of the
// tenant's repositories. The document is treated as opaque.
func (r *Registry) SetProjectData(id int64, repoFullName string, data json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return &NotFoundError{InstallationID: id}
	}
	if _, ok := t.Projects[repoFullName]; !ok {
		return fmt.Errorf("repository %s is not tracked by installation %d", repoFullName, id)
	}
	t.Projects[repoFullName] = append(json.RawMessage(nil), data...)
	t.UpdatedAt = r.now()
	return nil
}

// HasFeatureAccess reports whether a tenant may use a feature. Both the
// subscription entitlement and the settings toggle must be present;
// either alone is insufficient.
func (r *Registry) HasFeatureAccess(id int64, feature string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return false
	}

	entitled := false
	for _, f := range t.Subscription.Features {
		if f == feature {
			entitled = true
			break
		}
	}
	return entitled && t.Settings.Features[feature]
}
