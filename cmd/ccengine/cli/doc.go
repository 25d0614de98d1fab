// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the ccengine binary: a tree
// of [Command] values with pflag flag sets, generated help, and
// edit-distance suggestions for mistyped commands and flags.
//
// Output helpers write either tab-aligned text or indented JSON
// ([WriteJSON]); [NewCommandLogger] builds the slog logger commands
// report progress through.
package cli
