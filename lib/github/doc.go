// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package github is a read-only GitHub REST API client covering the
// endpoints the change-management evidence collector reads: branch
// protection, deployment environments, pull requests, and pull request
// reviews.
//
// The client authenticates with a personal access or fine-grained
// token, pins the REST API version, refuses non-HTTPS base URLs, and
// retries once after a rate-limit response, waiting on the injected
// clock for the duration GitHub asks for (Retry-After or
// X-RateLimit-Reset). Non-2xx responses become *APIError values.
package github
