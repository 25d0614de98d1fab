// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ccengine/cmd/ccengine/cli"
	"github.com/bureau-foundation/ccengine/lib/auditstore"
	"github.com/bureau-foundation/ccengine/lib/checkrun"
	"github.com/bureau-foundation/ccengine/lib/collector"
	"github.com/bureau-foundation/ccengine/lib/config"
	"github.com/bureau-foundation/ccengine/lib/controldef"
	"github.com/bureau-foundation/ccengine/lib/evaluator"
	"github.com/bureau-foundation/ccengine/lib/github"
	"github.com/bureau-foundation/ccengine/lib/sqlitepool"
)

// commonOptions are the flags shared by commands that read the
// configuration.
type commonOptions struct {
	configPath string
	outputJSON bool
}

func (o *commonOptions) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.configPath, "config", "", "config file (default $"+config.EnvVar+")")
	flagSet.BoolVar(&o.outputJSON, "json", false, "output as JSON")
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// engine is an opened configuration and audit store.
type engine struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *auditstore.Store
}

func openEngine(ctx context.Context, options commonOptions) (*engine, error) {
	cfg, err := loadConfig(options.configPath)
	if err != nil {
		return nil, err
	}
	logger := cli.NewCommandLogger(cli.ParseLevel(cfg.Log.Level), cfg.Log.Format)

	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	compression, err := auditstore.ParseCompression(cfg.Store.Compression)
	if err != nil {
		return nil, err
	}
	store, err := auditstore.Open(ctx, auditstore.Config{
		Path:        cfg.Paths.Database,
		PoolSize:    cfg.Store.PoolSize,
		BusyTimeout: cfg.Store.BusyTimeout,
		Synchronous: sqlitepool.Synchronous(strings.ToUpper(cfg.Store.Synchronous)),
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return &engine{cfg: cfg, logger: logger, store: store}, nil
}

func (e *engine) Close() error { return e.store.Close() }

// newRunner wires the configured collectors, the built-in evaluator
// rules, and the store into a Runner.
func (e *engine) newRunner() (*checkrun.Runner, error) {
	options := collector.Options{SimulateDrift: e.cfg.Collectors.SimulateDrift}

	if githubConfig := e.cfg.Collectors.GitHub; githubConfig.Enabled {
		token, err := githubConfig.Token()
		if err != nil {
			return nil, fmt.Errorf("github collector: %w", err)
		}
		client, err := github.NewClient(github.Config{
			BaseURL: githubConfig.BaseURL,
			Token:   token,
			Logger:  e.logger,
		})
		if err != nil {
			return nil, err
		}
		options.GitHub = &collector.GitHubCollector{
			Client:      client,
			Repository:  githubConfig.Repository,
			Branches:    githubConfig.Branches,
			Environment: githubConfig.Environment,
			RecentPulls: githubConfig.RecentPulls,
			Logger:      e.logger,
		}
	}

	return &checkrun.Runner{
		Controls: &controldef.Registry{
			Dir:    e.cfg.Paths.Controls,
			Store:  e.store,
			Logger: e.logger,
		},
		Collectors:         collector.NewRegistry(options),
		Evaluator:          evaluator.Default(),
		Store:              e.store,
		Logger:             e.logger,
		CollectTimeout:     e.cfg.Collectors.Timeout,
		ParallelCollection: e.cfg.Collectors.Parallel,
	}, nil
}

// parseTime accepts RFC 3339 timestamps with optional fractional
// seconds.
func parseTime(flag, value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected an RFC 3339 timestamp such as 2026-03-01T09:00:00Z, got %q", flag, value)
	}
	return parsed.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func exactlyOneArg(args []string, what string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one %s argument, got %d", what, len(args))
	}
	return args[0], nil
}

func noArgs(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	return nil
}
