// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for ccengine packages.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that tests driving goroutines
// through a fake clock do not need direct time.After calls. It is the
// only place in the test suite where a real wall-clock timeout is
// used.
//
// [WriteFiles] lays out a directory of named files, typically control
// definitions or a configuration file, under t.TempDir().
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no ccengine-internal dependencies.
package testutil
