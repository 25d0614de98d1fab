// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compliance defines the engine's record types: controls,
// evidence snapshots, evaluations, alerts, and the per-run summary.
//
// Controls are the only mutable records (upserted by registry
// refresh). Evidence and evaluations are append-only historical facts;
// an evaluation's Severity is copied from its control at evaluation
// time and may later diverge from the control's current severity.
// Alerts are immutable apart from their acknowledgement fields.
//
// JSON tags match the field names exposed to the query layer and used
// by the CLI's --json output.
package compliance
