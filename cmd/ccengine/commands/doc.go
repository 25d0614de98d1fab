// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the ccengine command tree. Every command
// that touches the audit store reads the configuration file named by
// --config or CCENGINE_CONFIG.
package commands
