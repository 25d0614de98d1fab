// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"
	"os"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
)

// stdout receives command output. Tests replace it.
var stdout io.Writer = os.Stdout

// Root returns the ccengine command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "ccengine",
		Description: `ccengine continuously checks compliance controls against live evidence.

Each run loads the control definitions, collects evidence from every
declared source system, evaluates each control, and appends evidence,
evaluations, and drift alerts to the audit store.`,
		Subcommands: []*cli.Command{
			runCommand(),
			serveCommand(),
			validateCommand(),
			controlsCommand(),
			evaluationsCommand(),
			evidenceCommand(),
			alertsCommand(),
			runsCommand(),
			metricsCommand(),
			versionCommand(),
		},
	}
}
