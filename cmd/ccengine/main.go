// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command ccengine is the continuous compliance engine: it loads
// control definitions, collects evidence, evaluates controls, and
// records every outcome in an append-only audit store.
package main

import (
	"os"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/commands"
	"github.com/bureau-foundation/ccengine/lib/process"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}
