// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
)

func runsCommand() *cli.Command {
	var (
		options commonOptions
		limit   int
	)
	return &cli.Command{
		Name:    "runs",
		Summary: "List recent check runs, newest first",
		Usage:   "ccengine runs [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("runs", pflag.ContinueOnError)
			options.register(flagSet)
			flagSet.IntVar(&limit, "limit", 20, "maximum runs to show")
			return flagSet
		},
		Run: func(args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			ctx := context.Background()
			engine, err := openEngine(ctx, options)
			if err != nil {
				return err
			}
			defer engine.Close()

			runs, err := engine.store.Runs(ctx, limit)
			if err != nil {
				return err
			}
			if options.outputJSON {
				return cli.WriteJSON(stdout, runs)
			}
			table := cli.NewTable(stdout, "RUN AT", "STATE", "PROCESSED", "PASSED", "FAILED", "ALERTS", "ERROR")
			for _, run := range runs {
				errorText := run.Error
				if errorText == "" {
					errorText = "-"
				}
				table.Row(formatTime(run.RunAt), run.State,
					run.Summary.ControlsProcessed, run.Summary.ControlsPassed, run.Summary.ControlsFailed,
					run.Summary.AlertsCreated, errorText)
			}
			return table.Flush()
		},
	}
}
