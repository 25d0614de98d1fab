// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the engine's CBOR encoding configuration.
//
// Structured payloads persisted in the audit store (control expected
// state, evidence snapshots, evaluation details, run summaries) are
// stored as CBOR. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The same logical payload always produces
// the same bytes, which is what makes evidence digests stable across
// processes and releases.
//
// JSON remains the format for everything a person reads: CLI --json
// output and control definition files.
package codec
