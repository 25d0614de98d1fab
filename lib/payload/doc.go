// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload implements the schemaless structured values carried
// by controls (expected state), evidence (raw snapshots), and
// evaluations (details).
//
// A [Payload] is a string-keyed map whose values are restricted to the
// JSON data model: nil, bool, int64, float64, string, []any, and
// map[string]any. Decoders disagree about the Go types they produce
// for the same document (yaml.v3 yields int, CBOR yields uint64,
// encoding/json yields float64), so every value entering the engine
// goes through [Normalize] first. Evaluators then read fields through
// the typed accessors, each of which takes an explicit default and
// never panics on a missing key or an unexpected type.
package payload
