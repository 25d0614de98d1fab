// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the compliance engine's YAML configuration.
//
// Configuration comes from a single file named by the CCENGINE_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no search path and no per-field environment
// override, so the file on disk is the whole configuration.
//
// The file may carry development, staging, and production sections
// that override base values when [Config].Environment matches.
// Production forces durable SQLite writes and never simulates drift.
//
// Path fields expand ${VAR} and ${VAR:-default}; ${CCENGINE_ROOT}
// refers to paths.root. Secrets never live in the file: the GitHub
// token is read from the environment variable named by
// collectors.github.token_env.
package config
