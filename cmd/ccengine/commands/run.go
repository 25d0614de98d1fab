// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/config"
	"github.com/bureau-foundation/ccengine/lib/process"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

func runCommand() *cli.Command {
	var (
		options       commonOptions
		at            string
		failOnFailure bool
		simulateDrift bool
	)
	return &cli.Command{
		Name:    "run",
		Summary: "Run every control once and print the summary",
		Description: `Run every control once and print the run summary.

The control registry is refreshed from the definitions directory, then
each control's evidence is collected, evaluated, and written to the
audit store. A high severity control that fails after previously
passing raises an alert.`,
		Usage: "ccengine run [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			options.register(flagSet)
			flagSet.StringVar(&at, "at", "", "run timestamp, RFC 3339 (default now)")
			flagSet.BoolVar(&failOnFailure, "fail-on-failure", false, "exit with status 1 when any control fails")
			flagSet.BoolVar(&simulateDrift, "simulate-drift", false, "make the IAM fixture report CC6.1 as failing (rejected in production)")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Gate a CI job on compliance", Command: "ccengine run --fail-on-failure"},
			{Description: "Demonstrate a drift alert", Command: "ccengine run && ccengine run --simulate-drift"},
		},
		Run: func(args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runAt := time.Now().UTC()
			if at != "" {
				parsed, err := parseTime("at", at)
				if err != nil {
					return err
				}
				runAt = parsed
			}

			engine, err := openEngine(ctx, options)
			if err != nil {
				return err
			}
			defer engine.Close()
			if simulateDrift {
				if engine.cfg.Environment == config.Production {
					return fmt.Errorf("--simulate-drift is not allowed in the %s environment", config.Production)
				}
				engine.cfg.Collectors.SimulateDrift = true
			}

			runner, err := engine.newRunner()
			if err != nil {
				return err
			}
			summary, runErr := runner.Run(ctx, runAt)

			if options.outputJSON {
				if err := cli.WriteJSON(stdout, summary); err != nil {
					return err
				}
			} else {
				printSummary(stdout, summary)
			}
			if runErr != nil {
				return runErr
			}
			if failOnFailure && summary.ControlsFailed > 0 {
				return &process.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func printSummary(w io.Writer, summary compliance.RunSummary) {
	fmt.Fprintf(w, "Run %s\n", formatTime(summary.RunAt))
	fmt.Fprintf(w, "  controls processed:  %d (%d passed, %d failed)\n",
		summary.ControlsProcessed, summary.ControlsPassed, summary.ControlsFailed)
	fmt.Fprintf(w, "  evidence collected:  %d\n", summary.EvidenceCollected)
	fmt.Fprintf(w, "  evaluations created: %d\n", summary.EvaluationsCreated)
	fmt.Fprintf(w, "  alerts created:      %d\n", summary.AlertsCreated)

	if len(summary.FailedControls) == 0 {
		return
	}
	fmt.Fprintf(w, "\nFailed controls:\n")
	for _, failed := range summary.FailedControls {
		fmt.Fprintf(w, "  %s [%s] %s\n", failed.ControlID, failed.Severity, failed.Name)
		for _, line := range strings.Split(failed.Remediation, "\n") {
			fmt.Fprintf(w, "      %s\n", line)
		}
	}
}
