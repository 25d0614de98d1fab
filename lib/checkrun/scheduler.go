// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/ccengine/lib/clock"
	"github.com/bureau-foundation/ccengine/lib/cron"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// RunFunc performs one run at runAt. (*Runner).Run satisfies it.
type RunFunc func(ctx context.Context, runAt time.Time) (compliance.RunSummary, error)

// Scheduler starts a run at every occurrence of Schedule.
type Scheduler struct {
	Run      RunFunc
	Schedule cron.Schedule

	// RunTimeout bounds each run. Zero means no bound beyond the
	// scheduler's context.
	RunTimeout time.Duration

	// RunImmediately starts one run before waiting for the first
	// occurrence.
	RunImmediately bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Start runs until ctx is cancelled, then returns nil. A failed run is
// logged and the scheduler waits for the next occurrence. Runs never
// overlap: an occurrence that passes while a run is in progress is
// skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Run == nil {
		return fmt.Errorf("checkrun: scheduler has no run function")
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("schedule", s.Schedule.String())

	if s.RunImmediately {
		s.runOnce(ctx, clk.Now(), logger)
	}

	for {
		now := clk.Now()
		next, err := s.Schedule.Next(now)
		if err != nil {
			return fmt.Errorf("checkrun: %w", err)
		}
		logger.Debug("next check run scheduled", "at", next)

		select {
		case <-ctx.Done():
			return nil
		case <-clk.After(next.Sub(now)):
		}
		s.runOnce(ctx, next, logger)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, runAt time.Time, logger *slog.Logger) {
	runCtx := ctx
	if s.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.RunTimeout)
		defer cancel()
	}
	summary, err := s.Run(runCtx, runAt)
	if err != nil {
		logger.Error("scheduled run failed", "run_at", runAt, "error", err,
			"controls_processed", summary.ControlsProcessed)
		return
	}
	logger.Info("scheduled run finished", "run_at", runAt,
		"controls_failed", summary.ControlsFailed,
		"alerts_created", summary.AlertsCreated)
}
