// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/auditstore"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

func evaluationsCommand() *cli.Command {
	var (
		options commonOptions
		status  string
		since   string
		until   string
		limit   int
	)
	return &cli.Command{
		Name:    "evaluations",
		Summary: "Show a control's evaluation history, newest first",
		Usage:   "ccengine evaluations <control-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("evaluations", pflag.ContinueOnError)
			options.register(flagSet)
			flagSet.StringVar(&status, "status", "", "only PASS or FAIL evaluations")
			flagSet.StringVar(&since, "since", "", "only evaluations at or after this RFC 3339 time")
			flagSet.StringVar(&until, "until", "", "only evaluations before this RFC 3339 time")
			flagSet.IntVar(&limit, "limit", 20, "maximum evaluations to show")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Failures of CC6.1 this month", Command: "ccengine evaluations CC6.1 --status FAIL --since 2026-03-01T00:00:00Z"},
		},
		Run: func(args []string) error {
			controlID, err := exactlyOneArg(args, "control id")
			if err != nil {
				return err
			}
			filter := auditstore.EvaluationFilter{ControlID: controlID, Limit: limit}
			if status != "" {
				filter.Status = compliance.Status(strings.ToUpper(status))
				if !filter.Status.IsKnown() {
					return fmt.Errorf("--status: expected PASS or FAIL, got %q", status)
				}
			}
			if since != "" {
				if filter.Since, err = parseTime("since", since); err != nil {
					return err
				}
			}
			if until != "" {
				if filter.Until, err = parseTime("until", until); err != nil {
					return err
				}
			}

			ctx := context.Background()
			engine, err := openEngine(ctx, options)
			if err != nil {
				return err
			}
			defer engine.Close()

			evaluations, err := engine.store.Evaluations(ctx, filter)
			if err != nil {
				return err
			}
			if options.outputJSON {
				return cli.WriteJSON(stdout, evaluations)
			}
			table := cli.NewTable(stdout, "EVALUATED", "STATUS", "SEVERITY", "ISSUES")
			for _, evaluation := range evaluations {
				table.Row(formatTime(evaluation.EvaluatedAt), evaluation.Status, evaluation.Severity, issueSummary(evaluation))
			}
			return table.Flush()
		},
	}
}

// issueSummary joins an evaluation's recorded issues, or names its
// error for evaluations that recorded one instead.
func issueSummary(evaluation compliance.Evaluation) string {
	if message := evaluation.Details.String("error", ""); message != "" {
		return message
	}
	issues := evaluation.Details.List("issues")
	if len(issues) == 0 {
		return "-"
	}
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = fmt.Sprint(issue)
	}
	return strings.Join(parts, "; ")
}
