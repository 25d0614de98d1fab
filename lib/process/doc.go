// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds binary entrypoint helpers: reporting a fatal
// error before the structured logger exists, and mapping errors to
// exit codes.
package process
