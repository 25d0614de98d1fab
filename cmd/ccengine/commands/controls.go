// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/auditstore"
	"github.com/bureau-foundation/ccengine/lib/payload"
)

func controlsCommand() *cli.Command {
	var options commonOptions
	list := func(args []string) error {
		if err := noArgs(args); err != nil {
			return err
		}
		ctx := context.Background()
		engine, err := openEngine(ctx, options)
		if err != nil {
			return err
		}
		defer engine.Close()

		statuses, err := engine.store.ControlStatuses(ctx)
		if err != nil {
			return err
		}
		if options.outputJSON {
			return cli.WriteJSON(stdout, statuses)
		}
		table := cli.NewTable(stdout, "CONTROL", "SEVERITY", "STATUS", "EVALUATED", "NAME")
		for _, status := range statuses {
			latest := string(status.LatestStatus)
			if latest == "" {
				latest = "-"
			}
			table.Row(status.ControlID, status.Severity, latest, formatTime(status.LatestEvaluatedAt), status.Name)
		}
		return table.Flush()
	}
	flags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			options.register(flagSet)
			return flagSet
		}
	}

	return &cli.Command{
		Name:    "controls",
		Summary: "List stored controls and their latest status",
		Usage:   "ccengine controls [list|show] [flags]",
		Flags:   flags("controls"),
		Run:     list,
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Summary: "List controls with latest status and evidence freshness",
				Flags:   flags("list"),
				Run:     list,
			},
			{
				Name:    "show",
				Summary: "Show one control's definition and latest status",
				Usage:   "ccengine controls show <control-id> [flags]",
				Flags:   flags("show"),
				Run: func(args []string) error {
					controlID, err := exactlyOneArg(args, "control id")
					if err != nil {
						return err
					}
					ctx := context.Background()
					engine, err := openEngine(ctx, options)
					if err != nil {
						return err
					}
					defer engine.Close()

					statuses, err := engine.store.ControlStatuses(ctx)
					if err != nil {
						return err
					}
					index := slices.IndexFunc(statuses, func(status auditstore.ControlStatus) bool {
						return status.ControlID == controlID
					})
					if index < 0 {
						return fmt.Errorf("control %s: %w", controlID, auditstore.ErrNotFound)
					}
					status := statuses[index]
					if options.outputJSON {
						return cli.WriteJSON(stdout, status)
					}

					fmt.Fprintf(stdout, "%s  %s\n", status.ControlID, status.Name)
					fmt.Fprintf(stdout, "  severity:   %s\n", status.Severity)
					fmt.Fprintf(stdout, "  frequency:  %s\n", status.CheckFrequency)
					fmt.Fprintf(stdout, "  risk:       %s\n", status.Risk)
					fmt.Fprintf(stdout, "  sources:    %s\n", strings.Join(status.SourceSystems(), ", "))
					fmt.Fprintf(stdout, "  expected:   %s\n", formatPayload(status.ExpectedState))
					if status.LatestStatus == "" {
						fmt.Fprintf(stdout, "  latest:     never evaluated\n")
					} else {
						fmt.Fprintf(stdout, "  latest:     %s at %s\n", status.LatestStatus, formatTime(status.LatestEvaluatedAt))
					}
					for _, source := range status.SourceSystems() {
						fmt.Fprintf(stdout, "  evidence[%s]: %s\n", source, formatTime(status.EvidenceFreshness[source]))
					}
					return nil
				},
			},
		},
	}
}

// formatPayload renders a payload as key=value pairs in key order.
func formatPayload(value payload.Payload) string {
	if len(value) == 0 {
		return "{}"
	}
	pairs := make([]string, 0, len(value))
	for _, key := range value.Keys() {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, value[key]))
	}
	return strings.Join(pairs, " ")
}
