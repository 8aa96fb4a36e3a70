// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package app

import (
	"github.com/castle-bravo-project/ignition-sub002/internal/tenant"
)

// Overview is the read-only summary for one tenant, combining registry
// state with derived compliance and security scores.
type Overview struct {
	InstallationID  int64        `json:"installation_id"`
	Account         string       `json:"account"`
	AccountType     string       `json:"account_type"`
	Plan            string       `json:"plan"`
	Status          string       `json:"status"`
	RepositoryCount int          `json:"repository_count"`
	ComplianceScore float64      `json:"compliance_score"`
	SecurityScore   float64      `json:"security_score"`
	Usage           tenant.Usage `json:"usage"`
}

// FleetOverview aggregates all active installations.
type FleetOverview struct {
	TenantCount       int        `json:"tenant_count"`
	TotalRepositories int        `json:"total_repositories"`
	AverageCompliance float64    `json:"average_compliance"`
	AverageSecurity   float64    `json:"average_security"`
	Tenants           []Overview `json:"tenants"`
}

// OrganizationOverview returns the summary for one installation.
func (a *App) OrganizationOverview(installationID int64) (*Overview, error) {
	if !a.initialized.Load() {
		return nil, ErrNotInitialized
	}

	t, err := a.registry.Tenant(installationID)
	if err != nil {
		return nil, err
	}
	ov := overviewFor(t)
	return &ov, nil
}

// AllInstallationsOverview returns summaries for every active tenant
// plus fleet-level aggregates.
func (a *App) AllInstallationsOverview() (*FleetOverview, error) {
	if !a.initialized.Load() {
		return nil, ErrNotInitialized
	}

	tenants := a.registry.List()
	fleet := &FleetOverview{Tenants: make([]Overview, 0, len(tenants))}
	for _, t := range tenants {
		ov := overviewFor(t)
		fleet.Tenants = append(fleet.Tenants, ov)
		fleet.TenantCount++
		fleet.TotalRepositories += ov.RepositoryCount
		fleet.AverageCompliance += ov.ComplianceScore
		fleet.AverageSecurity += ov.SecurityScore
	}
	if fleet.TenantCount > 0 {
		fleet.AverageCompliance /= float64(fleet.TenantCount)
		fleet.AverageSecurity /= float64(fleet.TenantCount)
	}
	return fleet, nil
}

func overviewFor(t *tenant.Tenant) Overview {
	return Overview{
		InstallationID:  t.InstallationID,
		Account:         t.AccountLogin,
		AccountType:     t.AccountType,
		Plan:            t.Subscription.Plan,
		Status:          t.Subscription.Status,
		RepositoryCount: len(t.Repositories),
		ComplianceScore: complianceScore(t),
		SecurityScore:   securityScore(t),
		Usage:           t.Usage,
	}
}

// complianceScore is a 0-100 heuristic over the tenant's configuration.
func complianceScore(t *tenant.Tenant) float64 {
	score := 0.0
	if t.Settings.AuditEnabled {
		score += 25
	}
	if t.Settings.Features[tenant.FeatureComplianceBasic] {
		score += 25
	}
	if t.Settings.NotificationsEnabled {
		score += 20
	}
	switch t.Settings.ComplianceLevel {
	case "strict":
		score += 30
	case "standard":
		score += 20
	default:
		score += 10
	}
	return score
}

// securityScore is a 0-100 heuristic over policy enforcement, alert
// entitlement and repository visibility.
func securityScore(t *tenant.Tenant) float64 {
	score := 0.0
	if t.Settings.SecurityPolicy {
		score += 40
	}
	if t.Settings.Features[tenant.FeatureSecurityAlerts] {
		score += 40
	}
	if len(t.Repositories) > 0 {
		private := 0
		for _, r := range t.Repositories {
			if r.Private {
				private++
			}
		}
		score += 20 * float64(private) / float64(len(t.Repositories))
	}
	return score
}
