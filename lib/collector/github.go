// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/ccengine/lib/github"
	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// GitHubAPI is the subset of *github.Client the collector reads.
type GitHubAPI interface {
	GetBranchProtection(ctx context.Context, owner, repo, branch string) (*github.BranchProtection, error)
	GetEnvironment(ctx context.Context, owner, repo, name string) (*github.Environment, error)
	ListPullRequests(ctx context.Context, owner, repo string, options github.PullRequestListOptions) ([]github.PullRequest, error)
	ListReviews(ctx context.Context, owner, repo string, number int) ([]github.Review, error)
}

// Defaults for GitHubCollector.
const (
	DefaultEnvironment = "production"
	DefaultRecentPulls = 10
)

// DefaultBranches are the branches whose protection is reported when
// none are configured.
var DefaultBranches = []string{"main", "master"}

// GitHubCollector reads branch protection, deployment environment
// protection, and recent merged pull requests from the GitHub API.
//
// A control definition may override the repository and branches per
// evidence source:
//
//	evidence_sources:
//	  - system: github
//	    repository: acme/payments
//	    branches: [main]
//	    environment: prod
type GitHubCollector struct {
	Client GitHubAPI

	// Repository is "owner/name".
	Repository  string
	Branches    []string
	Environment string
	RecentPulls int

	Logger *slog.Logger
}

type githubTarget struct {
	owner, repo string
	branches    []string
	environment string
}

func (c *GitHubCollector) target(options payload.Payload) (githubTarget, error) {
	repository := options.String("repository", c.Repository)
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return githubTarget{}, fmt.Errorf("repository must be \"owner/name\", got %q", repository)
	}

	branches := c.Branches
	if list := options.List("branches"); len(list) > 0 {
		branches = nil
		for _, element := range list {
			name, isString := element.(string)
			if !isString || name == "" {
				return githubTarget{}, fmt.Errorf("branches must be a list of names")
			}
			branches = append(branches, name)
		}
	}
	if len(branches) == 0 {
		branches = DefaultBranches
	}

	environment := c.Environment
	if environment == "" {
		environment = DefaultEnvironment
	}
	return githubTarget{
		owner:       owner,
		repo:        repo,
		branches:    branches,
		environment: options.String("environment", environment),
	}, nil
}

func (c *GitHubCollector) Collect(ctx context.Context, request Request) (compliance.Snapshot, error) {
	fail := func(err error) (compliance.Snapshot, error) {
		return compliance.Snapshot{}, &FetchError{Source: compliance.SourceGitHub, ControlID: request.ControlID, Err: err}
	}

	target, err := c.target(request.Options)
	if err != nil {
		return fail(err)
	}

	branchProtection := make(map[string]any, len(target.branches))
	unprotected := []any{}
	for _, branch := range target.branches {
		protection, err := c.Client.GetBranchProtection(ctx, target.owner, target.repo, branch)
		if github.IsNotFound(err) {
			unprotected = append(unprotected, branch)
			continue
		}
		if err != nil {
			return fail(fmt.Errorf("branch protection for %s: %w", branch, err))
		}
		branchProtection[branch] = protectionSettings(protection)
	}

	deployApprovals := false
	environment, err := c.Client.GetEnvironment(ctx, target.owner, target.repo, target.environment)
	switch {
	case github.IsNotFound(err):
		c.logger().Info("deployment environment not found",
			"repository", target.owner+"/"+target.repo,
			"environment", target.environment,
		)
	case err != nil:
		return fail(fmt.Errorf("environment %s: %w", target.environment, err))
	default:
		deployApprovals = environment.RequiresReviewers()
	}

	recent, err := c.recentPulls(ctx, target)
	if err != nil {
		return fail(err)
	}

	raw, err := payload.FromValue(map[string]any{
		"repository":                           target.owner + "/" + target.repo,
		"branch_protection":                    branchProtection,
		"unprotected_branches":                 unprotected,
		"production_deploy_approvals_required": deployApprovals,
		"deployment_environment":               target.environment,
		"recent_prs":                           recent,
	})
	if err != nil {
		return fail(err)
	}
	return compliance.Snapshot{
		CollectedAt:  request.At,
		SourceSystem: compliance.SourceGitHub,
		RawSnapshot:  raw,
	}, nil
}

func protectionSettings(protection *github.BranchProtection) map[string]any {
	settings := map[string]any{
		"enabled":                         true,
		"required_approving_review_count": 0,
		"dismiss_stale_reviews":           false,
		"require_code_owner_reviews":      false,
		"enforce_admins":                  false,
	}
	if reviews := protection.RequiredPullRequestReviews; reviews != nil {
		settings["required_approving_review_count"] = reviews.RequiredApprovingReviewCount
		settings["dismiss_stale_reviews"] = reviews.DismissStaleReviews
		settings["require_code_owner_reviews"] = reviews.RequireCodeOwnerReviews
	}
	if protection.EnforceAdmins != nil {
		settings["enforce_admins"] = protection.EnforceAdmins.Enabled
	}
	return settings
}

// recentPulls reports the most recently closed pull requests into the
// first configured branch with their distinct approval counts.
func (c *GitHubCollector) recentPulls(ctx context.Context, target githubTarget) ([]any, error) {
	count := c.RecentPulls
	if count <= 0 {
		count = DefaultRecentPulls
	}
	pulls, err := c.Client.ListPullRequests(ctx, target.owner, target.repo, github.PullRequestListOptions{
		State:   "closed",
		Base:    target.branches[0],
		PerPage: count,
	})
	if err != nil {
		return nil, fmt.Errorf("pull requests: %w", err)
	}

	recent := make([]any, 0, len(pulls))
	for _, pull := range pulls {
		if !pull.Merged() {
			continue
		}
		reviews, err := c.Client.ListReviews(ctx, target.owner, target.repo, pull.Number)
		if err != nil {
			return nil, fmt.Errorf("reviews for #%d: %w", pull.Number, err)
		}
		recent = append(recent, map[string]any{
			"number":      pull.Number,
			"merged":      true,
			"approvals":   github.ApprovalCount(reviews),
			"base_branch": pull.Base.Ref,
		})
	}
	return recent, nil
}

func (c *GitHubCollector) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
