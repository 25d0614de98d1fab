// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkrun orchestrates compliance check runs.
//
// A run refreshes the control registry, then for each control in
// registry order collects every declared evidence source, evaluates
// the snapshots, and writes the evidence, the evaluation, and (for a
// high severity PASS to FAIL transition) an alert in one audit store
// transaction. The Runner returns a compliance.RunSummary counting
// what was written.
//
// Collection failures never stop a run: an unknown source or a failing
// collector is recorded as an error-flagged snapshot and evaluated like
// any other. A store failure stops the run and the summary covers the
// controls committed before it.
//
// Runs are serialized. Cancellation is honored between controls; a
// control that has started is finished so that its evaluation is
// always written.
//
// Scheduler drives a Runner from a cron schedule.
package checkrun
