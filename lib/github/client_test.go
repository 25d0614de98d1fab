// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/ccengine/lib/clock"
	"github.com/bureau-foundation/ccengine/lib/testutil"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, server
}

func TestNewClient_RequiresHTTPS(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://api.github.com", Token: "x"})
	if err == nil || !strings.Contains(err.Error(), "HTTPS") {
		t.Fatalf("expected HTTPS error, got %v", err)
	}
}

func TestNewClient_RequiresToken(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestClient_Headers(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-GitHub-Api-Version"); got != apiVersion {
			t.Errorf("X-GitHub-Api-Version = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Errorf("Accept = %q", got)
		}
		fmt.Fprint(w, `{"name": "production", "protection_rules": []}`)
	}))

	if _, err := client.GetEnvironment(context.Background(), "acme", "web", "production"); err != nil {
		t.Fatalf("GetEnvironment: %v", err)
	}
}

func TestGetBranchProtection(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/web/branches/main/protection" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{
			"required_pull_request_reviews": {
				"dismiss_stale_reviews": true,
				"require_code_owner_reviews": false,
				"required_approving_review_count": 2
			},
			"enforce_admins": {"enabled": true}
		}`)
	}))

	protection, err := client.GetBranchProtection(context.Background(), "acme", "web", "main")
	if err != nil {
		t.Fatalf("GetBranchProtection: %v", err)
	}
	if protection.RequiredPullRequestReviews == nil || protection.RequiredPullRequestReviews.RequiredApprovingReviewCount != 2 {
		t.Errorf("required reviews = %+v", protection.RequiredPullRequestReviews)
	}
	if protection.EnforceAdmins == nil || !protection.EnforceAdmins.Enabled {
		t.Errorf("enforce_admins = %+v", protection.EnforceAdmins)
	}

	_, err = client.GetBranchProtection(context.Background(), "acme", "web", "develop")
	if !IsNotFound(err) {
		t.Fatalf("unprotected branch: expected not found, got %v", err)
	}
}

func TestGetEnvironment_RequiresReviewers(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"name": "production",
			"protection_rules": [
				{"type": "wait_timer", "wait_timer": 30},
				{"type": "required_reviewers", "reviewers": [{"type": "Team"}]}
			]
		}`)
	}))

	environment, err := client.GetEnvironment(context.Background(), "acme", "web", "production")
	if err != nil {
		t.Fatalf("GetEnvironment: %v", err)
	}
	if !environment.RequiresReviewers() {
		t.Error("RequiresReviewers = false, want true")
	}
}

func TestListPullRequests_Query(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != "closed" || query.Get("base") != "main" || query.Get("per_page") != "5" {
			t.Errorf("query = %v", query)
		}
		fmt.Fprint(w, `[
			{"number": 123, "state": "closed", "merged_at": "2026-01-02T03:04:05Z", "base": {"ref": "main"}},
			{"number": 124, "state": "closed", "merged_at": null, "base": {"ref": "main"}}
		]`)
	}))

	pulls, err := client.ListPullRequests(context.Background(), "acme", "web", PullRequestListOptions{Base: "main", PerPage: 5})
	if err != nil {
		t.Fatalf("ListPullRequests: %v", err)
	}
	if len(pulls) != 2 {
		t.Fatalf("got %d pulls, want 2", len(pulls))
	}
	if !pulls[0].Merged() || pulls[1].Merged() {
		t.Errorf("merged = %v, %v", pulls[0].Merged(), pulls[1].Merged())
	}
	if pulls[0].Base.Ref != "main" {
		t.Errorf("base = %q", pulls[0].Base.Ref)
	}
}

func TestApprovalCount(t *testing.T) {
	review := func(login, state string) Review {
		var r Review
		r.User.Login = login
		r.State = state
		return r
	}
	reviews := []Review{
		review("alice", "APPROVED"),
		review("alice", "APPROVED"),
		review("bob", "CHANGES_REQUESTED"),
		review("bob", "APPROVED"),
		review("carol", "APPROVED"),
		review("carol", "CHANGES_REQUESTED"),
		review("dave", "COMMENTED"),
	}
	if got := ApprovalCount(reviews); got != 2 {
		t.Errorf("ApprovalCount = %d, want 2", got)
	}
}

func TestClient_APIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials", "documentation_url": "https://docs.github.com/rest"}`)
	}))

	_, err := client.ListReviews(context.Background(), "acme", "web", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Bad credentials") {
		t.Errorf("error = %v", err)
	}
	if IsNotFound(err) || IsRateLimited(err) {
		t.Errorf("401 misclassified: %v", err)
	}
}

func TestClient_RateLimitBackoff(t *testing.T) {
	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var requests atomic.Int32

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"message": "You have exceeded a secondary rate limit"}`)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      fakeClock,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := client.ListReviews(context.Background(), "acme", "web", 7)
		done <- err
	}()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(31 * time.Second)

	if err := testutil.RequireReceive(t, done, 5*time.Second, "ListReviews to return"); err != nil {
		t.Fatalf("ListReviews after backoff: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestClient_RateLimitPersistent(t *testing.T) {
	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, Token: "t", HTTPClient: server.Client(), Clock: fakeClock})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := client.GetEnvironment(context.Background(), "acme", "web", "production")
		done <- err
	}()
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(2 * time.Second)

	err = testutil.RequireReceive(t, done, 5*time.Second, "GetEnvironment to return")
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}
