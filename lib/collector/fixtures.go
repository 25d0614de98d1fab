// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"

	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// driftControlID is the control IAMFixture fails when drifting.
const driftControlID = "CC6.1"

// IAMFixture simulates a cloud IAM inventory: two admin users, both
// with TOTP enrolled, under an enforced MFA policy.
type IAMFixture struct {
	SimulateDrift bool
}

func (f IAMFixture) Collect(_ context.Context, request Request) (compliance.Snapshot, error) {
	if f.SimulateDrift && request.ControlID == driftControlID {
		return fixtureSnapshot(compliance.SourceCloudIAM, request, map[string]any{
			"privileged_users": []any{
				privilegedUser("admin1", false),
				privilegedUser("admin2", false),
			},
			"mfa_required_for_privileged_users": false,
			"admin_access_restricted":           true,
			"total_admin_users":                 2,
			"admin_users_without_mfa":           2,
			"policy_enforcement": map[string]any{
				"mfa_required_policy":      "disabled",
				"admin_restriction_policy": "enforced",
			},
		}), nil
	}
	return fixtureSnapshot(compliance.SourceCloudIAM, request, map[string]any{
		"privileged_users": []any{
			privilegedUser("admin1", true),
			privilegedUser("admin2", true),
		},
		"mfa_required_for_privileged_users": true,
		"admin_access_restricted":           true,
		"total_admin_users":                 2,
		"admin_users_without_mfa":           0,
		"policy_enforcement": map[string]any{
			"mfa_required_policy":      "enforced",
			"admin_restriction_policy": "enforced",
		},
	}), nil
}

func privilegedUser(name string, mfa bool) map[string]any {
	devices := []any{}
	if mfa {
		devices = []any{"totp"}
	}
	return map[string]any{
		"username":    name,
		"roles":       []any{"admin"},
		"mfa_enabled": mfa,
		"mfa_devices": devices,
	}
}

// CICDFixture simulates log shipping from CI/CD, the production app,
// and infrastructure into CloudWatch Logs with 90-day retention.
type CICDFixture struct{}

func (CICDFixture) Collect(_ context.Context, request Request) (compliance.Snapshot, error) {
	logSource := func(name string) map[string]any {
		return map[string]any{"source": name, "shipped": true, "retention_days": 90}
	}
	return fixtureSnapshot(compliance.SourceCICD, request, map[string]any{
		"centralized_logging_enabled": true,
		"log_retention_days":          90,
		"log_aggregation_system":      "cloudwatch_logs",
		"log_sources": []any{
			logSource("github_actions"),
			logSource("production_app"),
			logSource("infrastructure"),
		},
		"retention_policy": map[string]any{
			"minimum_days": 90,
			"enforced":     true,
		},
	}), nil
}

// GitHubFixture simulates a repository with protected main and master
// branches requiring two approvals and admin enforcement.
type GitHubFixture struct{}

func (GitHubFixture) Collect(_ context.Context, request Request) (compliance.Snapshot, error) {
	protection := func() map[string]any {
		return map[string]any{
			"enabled":                         true,
			"required_approving_review_count": 2,
			"dismiss_stale_reviews":           true,
			"require_code_owner_reviews":      true,
			"enforce_admins":                  true,
		}
	}
	pull := func(number int) map[string]any {
		return map[string]any{"number": number, "merged": true, "approvals": 2, "base_branch": "main"}
	}
	return fixtureSnapshot(compliance.SourceGitHub, request, map[string]any{
		"branch_protection": map[string]any{
			"main":   protection(),
			"master": protection(),
		},
		"pr_reviews_required":                  true,
		"production_deploy_approvals_required": true,
		"recent_prs":                           []any{pull(123), pull(124)},
	}), nil
}

func fixtureSnapshot(source string, request Request, raw map[string]any) compliance.Snapshot {
	return compliance.Snapshot{
		CollectedAt:  request.At,
		SourceSystem: source,
		RawSnapshot:  payload.MustFromValue(raw),
	}
}
