// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

// Package tenant owns per-installation state: the mapping from GitHub
// App installations to tenant records and the repository-name index.
package tenant

import (
	"encoding/json"
	"fmt"
	"time"
)

// Subscription plans, classified from organization type and repository count.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Subscription statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Feature toggles known to the service. Plans grant entitlements from
// this set; tenant settings enable or disable them individually.
const (
	FeatureComplianceBasic = "compliance_basic"
	FeatureAuditTrail      = "audit_trail"
	FeaturePRAnalysis      = "pr_analysis"
	FeatureSecurityAlerts  = "security_alerts"
	FeatureCustomPolicies  = "custom_policies"
)

// Repository is one repository authorized for an installation.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

// Settings are tenant-level configuration toggles.
type Settings struct {
	ComplianceLevel      string          `json:"compliance_level"`
	AuditEnabled         bool            `json:"audit_enabled"`
	NotificationsEnabled bool            `json:"notifications_enabled"`
	SecurityPolicy       bool            `json:"security_policy"`
	Features             map[string]bool `json:"features"`
}

// Limits are the quantitative caps attached to a subscription plan.
type Limits struct {
	MaxRepositories int `json:"max_repositories"`
	MaxUsers        int `json:"max_users"`
	StorageGB       int `json:"storage_gb"`
	APICallsPerHour int `json:"api_calls_per_hour"`
}

// Subscription describes a tenant's plan, status and entitlements.
type Subscription struct {
	Plan     string   `json:"plan"`
	Status   string   `json:"status"`
	Features []string `json:"features"`
	Limits   Limits   `json:"limits"`
}

// Usage tracks per-tenant activity counters.
type Usage struct {
	RepositoryCount int       `json:"repository_count"`
	UserCount       int       `json:"user_count"`
	StorageBytes    int64     `json:"storage_bytes"`
	APICalls        int64     `json:"api_calls"`
	LastActivity    time.Time `json:"last_activity"`
}

// Tenant is the in-memory record for one installation. It is owned by
// the Registry and mutated only through registry methods.
type Tenant struct {
	InstallationID int64                      `json:"installation_id"`
	AccountLogin   string                     `json:"account_login"`
	AccountType    string                     `json:"account_type"`
	Settings       Settings                   `json:"settings"`
	Repositories   []Repository               `json:"repositories"`
	Subscription   Subscription               `json:"subscription"`
	Usage          Usage                      `json:"usage"`
	Projects       map[string]json.RawMessage `json:"projects"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
	DeletedAt      *time.Time                 `json:"deleted_at,omitempty"`
}

// clone returns a deep copy so registry accessors never hand out
// internally shared state.
func (t *Tenant) clone() *Tenant {
	c := *t
	c.Repositories = append([]Repository(nil), t.Repositories...)
	c.Subscription.Features = append([]string(nil), t.Subscription.Features...)
	c.Settings.Features = make(map[string]bool, len(t.Settings.Features))
	for k, v := range t.Settings.Features {
		c.Settings.Features[k] = v
	}
	c.Projects = make(map[string]json.RawMessage, len(t.Projects))
	for k, v := range t.Projects {
		c.Projects[k] = append(json.RawMessage(nil), v...)
	}
	if t.DeletedAt != nil {
		at := *t.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

// NotFoundError indicates an unknown installation id was requested.
type NotFoundError struct {
	InstallationID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no tenant for installation %d", e.InstallationID)
}
