// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"fmt"

	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// missingAdminCount is assumed when the IAM snapshot does not report
// how many admin users lack MFA.
const missingAdminCount = 999

// minimumProtectedApprovals is the approval count on the protected
// default branch that counts as requiring PR reviews.
const minimumProtectedApprovals = 2

const (
	accessRemediation = "1. Enable MFA enforcement policy for all privileged roles.\n" +
		"2. Review and restrict admin role assignments to minimum necessary users.\n" +
		"3. Verify all admin users have MFA devices enrolled."

	changeRemediation = "1. Enable branch protection rules for main/master branch.\n" +
		"2. Require at least 2 PR approvals before merge.\n" +
		"3. Enforce admin approval requirements for production deployments.\n" +
		"4. Verify CI/CD pipeline blocks deployments without approvals."
)

// BuiltinRules returns the rules for CC6.1, CC7.2, and CC8.1.
func BuiltinRules() []Rule {
	return []Rule{
		NewRule("CC6.1", evaluateLogicalAccess),
		NewRule("CC7.2", evaluateLogging),
		NewRule("CC8.1", evaluateChangeManagement),
	}
}

// evaluateLogicalAccess checks privileged-user MFA and admin access
// restriction from the cloud_iam snapshot.
func evaluateLogicalAccess(control compliance.Control, snapshots map[string]compliance.Snapshot) compliance.Verdict {
	expected := control.ExpectedState
	observed := snapshotPayload(snapshots, compliance.SourceCloudIAM)

	actualMFA := observed.Bool("mfa_required_for_privileged_users", false)
	actualRestricted := observed.Bool("admin_access_restricted", false)
	withoutMFA := observed.Int("admin_users_without_mfa", missingAdminCount)

	var issues []string
	if expected.Bool("mfa_required_for_privileged_users", false) && !actualMFA {
		issues = append(issues, "MFA not required for privileged users")
	}
	if expected.Bool("admin_access_restricted", false) && !actualRestricted {
		issues = append(issues, "Admin access not properly restricted")
	}
	if withoutMFA > 0 {
		issues = append(issues, fmt.Sprintf("%d admin user(s) without MFA", withoutMFA))
	}

	actual := map[string]any{
		"mfa_required_for_privileged_users": actualMFA,
		"admin_access_restricted":           actualRestricted,
	}
	if len(issues) > 0 {
		actual["admin_users_without_mfa"] = withoutMFA
	}
	return conclude(control, issues, accessRemediation, actual)
}

// evaluateLogging checks centralized logging and retention from the
// cicd snapshot.
func evaluateLogging(control compliance.Control, snapshots map[string]compliance.Snapshot) compliance.Verdict {
	expected := control.ExpectedState
	observed := snapshotPayload(snapshots, compliance.SourceCICD)

	minimumRetention := expected.Int("log_retention_days_minimum", 0)
	actualEnabled := observed.Bool("centralized_logging_enabled", false)
	actualRetention := observed.Int("log_retention_days", 0)

	var issues []string
	if expected.Bool("centralized_logging_enabled", false) && !actualEnabled {
		issues = append(issues, "Centralized logging not enabled")
	}
	if actualRetention < minimumRetention {
		issues = append(issues, fmt.Sprintf("Log retention %d days is below minimum %d days", actualRetention, minimumRetention))
	}

	remediation := "1. Enable centralized log shipping from all production systems.\n" +
		fmt.Sprintf("2. Configure log retention policy to retain logs for at least %d days.\n", minimumRetention) +
		"3. Verify log aggregation system is receiving logs from all critical sources."
	return conclude(control, issues, remediation, map[string]any{
		"centralized_logging_enabled": actualEnabled,
		"log_retention_days":          actualRetention,
	})
}

// evaluateChangeManagement checks PR review and deploy approval gates
// across the github and cicd snapshots.
func evaluateChangeManagement(control compliance.Control, snapshots map[string]compliance.Snapshot) compliance.Verdict {
	expected := control.ExpectedState
	github := snapshotPayload(snapshots, compliance.SourceGitHub)
	cicd := snapshotPayload(snapshots, compliance.SourceCICD)

	protection := defaultBranchProtection(github.Map("branch_protection"))

	actualReviews := github.Bool("pr_reviews_required", false) ||
		protection.Int("required_approving_review_count", 0) >= minimumProtectedApprovals
	actualApprovals := github.Bool("production_deploy_approvals_required", false) ||
		cicd.Bool("production_deploy_approvals_required", false) ||
		protection.Bool("enforce_admins", false)

	var issues []string
	if expected.Bool("pr_reviews_required", false) && !actualReviews {
		issues = append(issues, "PR reviews not required for production branches")
	}
	if expected.Bool("production_deploy_approvals_required", false) && !actualApprovals {
		issues = append(issues, "Production deploy approvals not enforced")
	}

	actual := map[string]any{
		"pr_reviews_required":                  actualReviews,
		"production_deploy_approvals_required": actualApprovals,
	}
	if len(issues) > 0 {
		actual["branch_protection"] = map[string]any(protection.Clone())
	}
	return conclude(control, issues, changeRemediation, actual)
}

// defaultBranchProtection returns the protection settings of main,
// falling back to master when main is absent, empty, or disabled.
func defaultBranchProtection(branches payload.Payload) payload.Payload {
	for _, name := range []string{"main", "master"} {
		settings := branches.Map(name)
		if len(settings) > 0 && settings.Bool("enabled", true) {
			return settings
		}
	}
	return payload.Payload{}
}
