// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

func metricsCommand() *cli.Command {
	var options commonOptions
	return &cli.Command{
		Name:    "metrics",
		Summary: "Show pass rate, failures by severity, and evidence freshness",
		Usage:   "ccengine metrics [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("metrics", pflag.ContinueOnError)
			options.register(flagSet)
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

			metrics, err := engine.store.Metrics(ctx)
			if err != nil {
				return err
			}
			if options.outputJSON {
				return cli.WriteJSON(stdout, metrics)
			}

			fmt.Fprintf(stdout, "controls:        %d defined, %d evaluated, %d passing\n",
				metrics.ControlsTotal, metrics.ControlsEvaluated, metrics.ControlsPassing)
			fmt.Fprintf(stdout, "pass rate:       %.1f%%\n", metrics.PassRate*100)
			fmt.Fprintf(stdout, "audit readiness: %.1f%%\n", metrics.AuditReadinessScore*100)
			fmt.Fprintf(stdout, "failing:         high=%d medium=%d low=%d\n",
				metrics.FailedBySeverity[compliance.SeverityHigh],
				metrics.FailedBySeverity[compliance.SeverityMedium],
				metrics.FailedBySeverity[compliance.SeverityLow])
			fmt.Fprintf(stdout, "active alerts:   %d\n", metrics.ActiveAlerts)
			fmt.Fprintf(stdout, "last run:        %s\n", formatTime(metrics.LastCompletedRunAt))
			sources := make([]string, 0, len(metrics.EvidenceFreshness))
			for source := range metrics.EvidenceFreshness {
				sources = append(sources, source)
			}
			slices.Sort(sources)
			for _, source := range sources {
				fmt.Fprintf(stdout, "evidence[%s]: %s\n", source, formatTime(metrics.EvidenceFreshness[source]))
			}
			return nil
		},
	}
}
