// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/checkrun"
	"github.com/bureau-foundation/ccengine/lib/cron"
)

func serveCommand() *cli.Command {
	var (
		options    commonOptions
		schedule   string
		runOnStart bool
	)
	return &cli.Command{
		Name:    "serve",
		Summary: "Run checks on a schedule until interrupted",
		Description: `Run checks on the configured cron schedule until interrupted.

A failed run is logged and the next occurrence runs as usual. Runs
left marked "running" by an earlier process are reported at startup.`,
		Usage: "ccengine serve [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			options.register(flagSet)
			flagSet.StringVar(&schedule, "schedule", "", "cron expression or @hourly/@daily/@weekly (default schedule.cron)")
			flagSet.BoolVar(&runOnStart, "run-on-start", false, "start one run immediately")
			return flagSet
		},
		Run: func(args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, err := openEngine(ctx, options)
			if err != nil {
				return err
			}
			defer engine.Close()

			expression := engine.cfg.Schedule.Cron
			if schedule != "" {
				expression = schedule
			}
			parsed, err := cron.Parse(expression)
			if err != nil {
				return err
			}

			interrupted, err := engine.store.InterruptedRuns(ctx)
			if err != nil {
				return err
			}
			for _, runAt := range interrupted {
				engine.logger.Warn("run was interrupted before finishing; its committed controls are kept",
					"run_at", runAt)
			}

			runner, err := engine.newRunner()
			if err != nil {
				return err
			}
			scheduler := &checkrun.Scheduler{
				Run:            runner.Run,
				Schedule:       parsed,
				RunTimeout:     engine.cfg.Schedule.RunTimeout,
				RunImmediately: runOnStart || engine.cfg.Schedule.RunOnStart,
				Logger:         engine.logger,
			}
			engine.logger.Info("serving", "schedule", parsed.String(), "controls", engine.cfg.Paths.Controls)
			return scheduler.Start(ctx)
		},
	}
}
