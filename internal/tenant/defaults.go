// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package tenant

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// PlanSpec is the entitlement set and limits assigned to new tenants on
// a given plan.
type PlanSpec struct {
	Features []string `json:"features"`
	Limits   Limits   `json:"limits"`
}

// PlanDefaults maps plan name to its default entitlements.
type PlanDefaults map[string]PlanSpec

// DefaultPlans returns the built-in plan table.
func DefaultPlans() PlanDefaults {
	return PlanDefaults{
		PlanFree: {
			Features: []string{FeatureComplianceBasic},
			Limits:   Limits{MaxRepositories: 3, MaxUsers: 5, StorageGB: 1, APICallsPerHour: 500},
		},
		PlanPro: {
			Features: []string{FeatureComplianceBasic, FeatureAuditTrail, FeaturePRAnalysis},
			Limits:   Limits{MaxRepositories: 25, MaxUsers: 50, StorageGB: 20, APICallsPerHour: 5000},
		},
		PlanEnterprise: {
			Features: []string{
				FeatureComplianceBasic, FeatureAuditTrail, FeaturePRAnalysis,
				FeatureSecurityAlerts, FeatureCustomPolicies,
			},
			Limits: Limits{MaxRepositories: 500, MaxUsers: 1000, StorageGB: 500, APICallsPerHour: 50000},
		},
	}
}

// LoadPlanDefaults reads a plan table from a YAML file. Unknown fields
// are rejected. Every built-in plan must remain defined.
func LoadPlanDefaults(path string) (PlanDefaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var defaults PlanDefaults
	if err := yaml.UnmarshalStrict(raw, &defaults); err != nil {
		return nil, fmt.Errorf("parse plan defaults %s: %w", path, err)
	}

	for _, plan := range []string{PlanFree, PlanPro, PlanEnterprise} {
		if _, ok := defaults[plan]; !ok {
			return nil, fmt.Errorf("plan defaults %s: missing plan %q", path, plan)
		}
	}
	return defaults, nil
}

// classifyPlan assigns a subscription plan from the account type and
// authorized repository count.
func classifyPlan(accountType string, repoCount int) string {
	switch {
	case repoCount >= 10 && accountType == "Organization":
		return PlanEnterprise
	case repoCount >= 5:
		return PlanPro
	default:
		return PlanFree
	}
}
