// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector gathers evidence snapshots from source systems.
//
// A Collector answers one question: what does this source system look
// like right now for this control? The Registry maps source system
// identifiers ("github", "cloud_iam", "cicd") to collectors. Lookups
// of undeclared sources fail softly: callers record an error-flagged
// snapshot (see ErrorSnapshot) and the run continues.
//
// The IAM and CI/CD collectors are deterministic fixtures that
// simulate a well-configured environment. IAMFixture.SimulateDrift
// flips CC6.1 into a failing state for demonstrating drift alerts.
// GitHubCollector reads live repository settings through lib/github
// and produces the same snapshot shape as GitHubFixture.
package collector
