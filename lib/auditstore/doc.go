// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditstore persists the compliance audit trail in SQLite.
//
// Five tables hold the engine's state:
//
//   - controls: the registry, upserted by identifier on every refresh.
//   - evidence: one immutable row per (control, source, collected_at).
//   - evaluations: one immutable row per (control, evaluated_at).
//   - alerts: regressions; only the acknowledgement columns change.
//   - runs: a ledger of check runs and their summaries.
//
// Uniqueness is enforced by UNIQUE constraints and surfaces as
// [ErrDuplicate]. Immutability is enforced by triggers that abort any
// UPDATE or DELETE on evidence and evaluations, and any alert update
// that touches more than the acknowledgement columns; violations
// surface as [ErrImmutable].
//
// Timestamps are stored as Unix nanoseconds. Structured payloads are
// stored as deterministic CBOR. Evidence snapshots are additionally
// compressed (zstd by default) and carry a BLAKE3 digest of their
// uncompressed CBOR encoding, verified on every read.
//
// The check-run orchestrator writes each control's evidence,
// evaluation, and alert through [Store.WriteControl], a single
// IMMEDIATE transaction. The read of the control's prior evaluation
// happens inside the same transaction, so the drift decision and the
// write it guards are atomic with respect to any other writer.
package auditstore
