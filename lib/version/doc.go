// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the ccengine binary.
//
// Values are injected at build time with -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/ccengine/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When GitCommit is not injected, the VCS revision recorded by the Go
// toolchain is used instead.
package version
