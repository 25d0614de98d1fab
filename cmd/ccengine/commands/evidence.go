// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/codec"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

func evidenceCommand() *cli.Command {
	var (
		options commonOptions
		at      string
		limit   int
	)
	return &cli.Command{
		Name:    "evidence",
		Summary: "Show collected evidence for a control",
		Description: `Show the evidence collected for a control. With --at, print every
snapshot taken by the run at that instant; otherwise list the most
recent snapshots. Each snapshot's digest is verified on read.`,
		Usage: "ccengine evidence <control-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("evidence", pflag.ContinueOnError)
			options.register(flagSet)
			flagSet.StringVar(&at, "at", "", "run timestamp (RFC 3339) to show evidence for")
			flagSet.IntVar(&limit, "limit", 10, "maximum snapshots to list without --at")
			return flagSet
		},
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

			var evidence []compliance.Evidence
			if at != "" {
				runAt, err := parseTime("at", at)
				if err != nil {
					return err
				}
				evidence, err = engine.store.EvidenceAt(ctx, controlID, runAt)
				if err != nil {
					return err
				}
			} else {
				evidence, err = engine.store.EvidenceHistory(ctx, controlID, limit)
				if err != nil {
					return err
				}
			}

			if options.outputJSON {
				return cli.WriteJSON(stdout, evidence)
			}
			if len(evidence) == 0 {
				fmt.Fprintf(stdout, "no evidence for %s\n", controlID)
				return nil
			}
			for i, item := range evidence {
				if i > 0 {
					fmt.Fprintln(stdout)
				}
				fmt.Fprintf(stdout, "%s  %s  %s\n", formatTime(item.CollectedAt), item.SourceSystem, item.ID)
				if message, failed := item.Snapshot().Error(); failed {
					fmt.Fprintf(stdout, "  collection failed: %s\n", message)
					continue
				}
				encoded, err := item.RawSnapshot.Marshal()
				if err != nil {
					return err
				}
				diagnostic, err := codec.Diagnose(encoded)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "  %s\n", diagnostic)
			}
			return nil
		},
	}
}
