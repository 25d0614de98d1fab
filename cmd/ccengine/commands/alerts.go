// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/auditstore"
)

func alertsCommand() *cli.Command {
	var (
		options commonOptions
		all     bool
		control string
		limit   int
	)
	listFlags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			options.register(flagSet)
			flagSet.BoolVar(&all, "all", false, "include acknowledged alerts")
			flagSet.StringVar(&control, "control", "", "only alerts for this control")
			flagSet.IntVar(&limit, "limit", 50, "maximum alerts to show")
			return flagSet
		}
	}
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

		alerts, err := engine.store.Alerts(ctx, auditstore.AlertFilter{
			ControlID:      control,
			Unacknowledged: !all,
			Limit:          limit,
		})
		if err != nil {
			return err
		}
		if options.outputJSON {
			return cli.WriteJSON(stdout, alerts)
		}
		table := cli.NewTable(stdout, "ID", "CREATED", "CONTROL", "SEVERITY", "ACK", "MESSAGE")
		for _, alert := range alerts {
			ack := "no"
			if alert.Acknowledged {
				ack = formatTime(alert.AcknowledgedAt)
			}
			table.Row(alert.ID, formatTime(alert.CreatedAt), alert.ControlID, alert.Severity, ack, alert.Message)
		}
		return table.Flush()
	}

	return &cli.Command{
		Name:    "alerts",
		Summary: "List and acknowledge drift alerts",
		Usage:   "ccengine alerts [list|ack] [flags]",
		Flags:   listFlags("alerts"),
		Run:     list,
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Summary: "List unacknowledged alerts (--all for every alert)",
				Flags:   listFlags("list"),
				Run:     list,
			},
			{
				Name:    "ack",
				Summary: "Acknowledge an alert",
				Usage:   "ccengine alerts ack <alert-id> [flags]",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("ack", pflag.ContinueOnError)
					options.register(flagSet)
					return flagSet
				},
				Run: func(args []string) error {
					alertID, err := exactlyOneArg(args, "alert id")
					if err != nil {
						return err
					}
					ctx := context.Background()
					engine, err := openEngine(ctx, options)
					if err != nil {
						return err
					}
					defer engine.Close()

					alert, err := engine.store.AcknowledgeAlert(ctx, alertID, time.Now().UTC())
					if err != nil {
						return err
					}
					if options.outputJSON {
						return cli.WriteJSON(stdout, alert)
					}
					fmt.Fprintf(stdout, "acknowledged %s (%s) at %s\n", alert.ID, alert.ControlID, formatTime(alert.AcknowledgedAt))
					return nil
				},
			},
		},
	}
}
