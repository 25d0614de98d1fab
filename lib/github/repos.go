// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// BranchProtection is the subset of a branch protection rule the
// collector reports.
type BranchProtection struct {
	RequiredPullRequestReviews *RequiredReviews `json:"required_pull_request_reviews"`
	EnforceAdmins              *EnabledSetting  `json:"enforce_admins"`
	RequiredLinearHistory      *EnabledSetting  `json:"required_linear_history"`
	AllowForcePushes           *EnabledSetting  `json:"allow_force_pushes"`
}

// RequiredReviews is the pull request review requirement of a
// protection rule.
type RequiredReviews struct {
	DismissStaleReviews          bool `json:"dismiss_stale_reviews"`
	RequireCodeOwnerReviews      bool `json:"require_code_owner_reviews"`
	RequiredApprovingReviewCount int  `json:"required_approving_review_count"`
}

// EnabledSetting is GitHub's {"enabled": bool} wrapper.
type EnabledSetting struct {
	Enabled bool `json:"enabled"`
}

// GetBranchProtection returns the protection rule of a branch. An
// unprotected branch is a 404 APIError (see IsNotFound).
func (client *Client) GetBranchProtection(ctx context.Context, owner, repo, branch string) (*BranchProtection, error) {
	var protection BranchProtection
	path := fmt.Sprintf("/repos/%s/%s/branches/%s/protection",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	if err := client.get(ctx, path, &protection); err != nil {
		return nil, err
	}
	return &protection, nil
}

// Environment is a deployment environment with its protection rules.
type Environment struct {
	Name            string           `json:"name"`
	ProtectionRules []ProtectionRule `json:"protection_rules"`
}

// ProtectionRule is one environment protection rule. Type is
// "required_reviewers", "wait_timer", or "branch_policy".
type ProtectionRule struct {
	Type      string     `json:"type"`
	WaitTimer int        `json:"wait_timer,omitempty"`
	Reviewers []Reviewer `json:"reviewers,omitempty"`
}

// Reviewer is a user or team allowed to approve a deployment.
type Reviewer struct {
	Type string `json:"type"`
}

// RequiresReviewers reports whether deployments to the environment
// need an approving reviewer.
func (environment *Environment) RequiresReviewers() bool {
	for _, rule := range environment.ProtectionRules {
		if rule.Type == "required_reviewers" && len(rule.Reviewers) > 0 {
			return true
		}
	}
	return false
}

// GetEnvironment returns a deployment environment. A missing
// environment is a 404 APIError.
func (client *Client) GetEnvironment(ctx context.Context, owner, repo, name string) (*Environment, error) {
	var environment Environment
	path := fmt.Sprintf("/repos/%s/%s/environments/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(name))
	if err := client.get(ctx, path, &environment); err != nil {
		return nil, err
	}
	return &environment, nil
}

// PullRequest is the subset of a pull request the collector reports.
type PullRequest struct {
	Number   int        `json:"number"`
	State    string     `json:"state"`
	MergedAt *time.Time `json:"merged_at"`
	Base     struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

// Merged reports whether the pull request was merged.
func (pull *PullRequest) Merged() bool { return pull.MergedAt != nil }

// PullRequestListOptions filters ListPullRequests.
type PullRequestListOptions struct {
	State   string // "open", "closed", or "all"; default "closed"
	Base    string
	PerPage int // default 10, max 100
}

// ListPullRequests returns one page of pull requests, most recently
// updated first.
func (client *Client) ListPullRequests(ctx context.Context, owner, repo string, options PullRequestListOptions) ([]PullRequest, error) {
	query := url.Values{}
	state := options.State
	if state == "" {
		state = "closed"
	}
	query.Set("state", state)
	query.Set("sort", "updated")
	query.Set("direction", "desc")
	if options.Base != "" {
		query.Set("base", options.Base)
	}
	perPage := options.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	query.Set("per_page", fmt.Sprint(perPage))

	var pulls []PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls?%s", url.PathEscape(owner), url.PathEscape(repo), query.Encode())
	if err := client.get(ctx, path, &pulls); err != nil {
		return nil, err
	}
	return pulls, nil
}

// Review is one pull request review.
type Review struct {
	State string `json:"state"`
	User  struct {
		Login string `json:"login"`
	} `json:"user"`
}

// ListReviews returns the first page (up to 100) of reviews on a pull
// request.
func (client *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]Review, error) {
	var reviews []Review
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews?per_page=100", url.PathEscape(owner), url.PathEscape(repo), number)
	if err := client.get(ctx, path, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// ApprovalCount counts distinct reviewers whose latest review approved.
func ApprovalCount(reviews []Review) int {
	latest := make(map[string]string)
	for _, review := range reviews {
		switch review.State {
		case "APPROVED", "CHANGES_REQUESTED", "DISMISSED":
			latest[review.User.Login] = review.State
		}
	}
	count := 0
	for _, state := range latest {
		if state == "APPROVED" {
			count++
		}
	}
	return count
}
