// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/collector"
	"github.com/bureau-foundation/ccengine/lib/controldef"
	"github.com/bureau-foundation/ccengine/lib/evaluator"
)

// validationReport is the --json output of validate.
type validationReport struct {
	Controls []validatedControl `json:"controls"`
	Warnings []string           `json:"warnings"`
}

type validatedControl struct {
	ControlID string   `json:"control_id"`
	Name      string   `json:"name"`
	Severity  string   `json:"severity"`
	Sources   []string `json:"evidence_sources"`
}

func validateCommand() *cli.Command {
	var (
		options  commonOptions
		controls string
	)
	return &cli.Command{
		Name:    "validate",
		Summary: "Check the configuration and control definitions without running",
		Description: `Load the configuration and every control definition without touching
the audit store. Definition errors are fatal; controls without an
evaluator rule or with undeclared source systems are reported as
warnings because a run records them as failing.`,
		Usage: "ccengine validate [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
			options.register(flagSet)
			flagSet.StringVar(&controls, "controls", "", "definitions directory (default paths.controls; no config needed)")
			return flagSet
		},
		Run: func(args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			dir := controls
			if dir == "" {
				cfg, err := loadConfig(options.configPath)
				if err != nil {
					return err
				}
				dir = cfg.Paths.Controls
			}

			loaded, err := controldef.Load(dir)
			if err != nil {
				return err
			}

			rules := evaluator.Default()
			sources := collector.NewRegistry(collector.Options{})
			report := validationReport{Controls: []validatedControl{}, Warnings: []string{}}
			for _, control := range loaded {
				report.Controls = append(report.Controls, validatedControl{
					ControlID: control.ControlID,
					Name:      control.Name,
					Severity:  string(control.Severity),
					Sources:   control.SourceSystems(),
				})
				if _, ok := rules.Lookup(control.ControlID); !ok {
					report.Warnings = append(report.Warnings,
						fmt.Sprintf("%s: no evaluator rule; runs will record it as an unknown control", control.ControlID))
				}
				for _, source := range control.SourceSystems() {
					if _, ok := sources.Lookup(source); !ok {
						report.Warnings = append(report.Warnings,
							fmt.Sprintf("%s: unknown source system %q", control.ControlID, source))
					}
				}
			}

			if options.outputJSON {
				return cli.WriteJSON(stdout, report)
			}
			table := cli.NewTable(stdout, "CONTROL", "SEVERITY", "SOURCES", "NAME")
			for _, control := range report.Controls {
				table.Row(control.ControlID, control.Severity, strings.Join(control.Sources, ","), control.Name)
			}
			if err := table.Flush(); err != nil {
				return err
			}
			for _, warning := range report.Warnings {
				fmt.Fprintf(stdout, "warning: %s\n", warning)
			}
			fmt.Fprintf(stdout, "%d control definitions valid in %s\n", len(report.Controls), dir)
			return nil
		},
	}
}
