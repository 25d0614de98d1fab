// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/ccengine/lib/auditstore"
	"github.com/bureau-foundation/ccengine/lib/clock"
	"github.com/bureau-foundation/ccengine/lib/collector"
	"github.com/bureau-foundation/ccengine/lib/evaluator"
	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// ControlSource supplies the control registry at the start of a run.
// *controldef.Registry implements it.
type ControlSource interface {
	Refresh(ctx context.Context, at time.Time) ([]compliance.Control, error)
}

// Store is the part of *auditstore.Store a run writes to.
type Store interface {
	BeginRun(ctx context.Context, runAt, startedAt time.Time) error
	FinishRun(ctx context.Context, runAt, finishedAt time.Time, summary compliance.RunSummary, runErr error) error
	WriteControl(ctx context.Context, fn func(tx *auditstore.Tx) error) error
}

// DefaultCollectTimeout bounds a single collector call.
const DefaultCollectTimeout = 2 * time.Minute

// Runner executes check runs. The zero value is not usable: Controls,
// Collectors, Evaluator, and Store are required.
type Runner struct {
	Controls   ControlSource
	Collectors *collector.Registry
	Evaluator  *evaluator.Registry
	Store      Store

	// Clock defaults to clock.Real(). It stamps the run ledger only;
	// rows written by a run carry the run timestamp.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// CollectTimeout bounds each collector call. Zero means
	// DefaultCollectTimeout.
	CollectTimeout time.Duration

	// ParallelCollection runs a control's collectors concurrently.
	ParallelCollection bool

	mu sync.Mutex
}

// Run performs one check run at runAt and returns its summary.
//
// On error the summary covers the controls committed before the
// failure. Errors come from the registry refresh, the audit store, or
// ctx being cancelled between controls.
func (r *Runner) Run(ctx context.Context, runAt time.Time) (compliance.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runAt = runAt.UTC()
	summary := compliance.NewRunSummary(runAt)
	logger := r.logger().With("run_at", runAt)

	if err := r.Store.BeginRun(ctx, runAt, r.clock().Now()); err != nil {
		return summary, fmt.Errorf("checkrun: %w", err)
	}

	runErr := r.runControls(ctx, runAt, &summary, logger)

	// The ledger entry is closed even when ctx was cancelled.
	finishErr := r.Store.FinishRun(context.WithoutCancel(ctx), runAt, r.clock().Now(), summary, runErr)
	if finishErr != nil {
		finishErr = fmt.Errorf("checkrun: %w", finishErr)
	}

	if runErr != nil {
		logger.Error("check run failed",
			"error", runErr,
			"controls_processed", summary.ControlsProcessed,
		)
	} else {
		logger.Info("check run completed",
			"controls_processed", summary.ControlsProcessed,
			"controls_passed", summary.ControlsPassed,
			"controls_failed", summary.ControlsFailed,
			"alerts_created", summary.AlertsCreated,
		)
	}
	return summary, errors.Join(runErr, finishErr)
}

func (r *Runner) runControls(ctx context.Context, runAt time.Time, summary *compliance.RunSummary, logger *slog.Logger) error {
	controls, err := r.Controls.Refresh(ctx, runAt)
	if err != nil {
		return fmt.Errorf("checkrun: refreshing control registry: %w", err)
	}

	for index, control := range controls {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("checkrun: stopped after %d of %d controls: %w", index, len(controls), err)
		}
		outcome, err := r.checkControl(context.WithoutCancel(ctx), control, runAt)
		if err != nil {
			return fmt.Errorf("checkrun: control %s: %w", control.ControlID, err)
		}
		summary.Record(control, outcome.verdict, outcome.evidenceWritten, outcome.alertCreated)

		logger.Debug("control checked",
			"control_id", control.ControlID,
			"status", outcome.verdict.Status,
			"evidence", outcome.evidenceWritten,
			"alert", outcome.alertCreated,
		)
		if outcome.alertCreated {
			logger.Warn("control regressed",
				"control_id", control.ControlID,
				"severity", outcome.verdict.Severity,
			)
		}
	}
	return nil
}

type controlOutcome struct {
	verdict         compliance.Verdict
	evidenceWritten int
	alertCreated    bool
}

// checkControl collects, evaluates, and writes one control.
func (r *Runner) checkControl(ctx context.Context, control compliance.Control, runAt time.Time) (controlOutcome, error) {
	snapshots := r.collect(ctx, control, runAt)

	bySource := make(map[string]compliance.Snapshot, len(snapshots))
	for _, snapshot := range snapshots {
		bySource[snapshot.SourceSystem] = snapshot
	}
	verdict := r.Evaluator.Evaluate(control, bySource)

	outcome := controlOutcome{verdict: verdict}
	err := r.Store.WriteControl(ctx, func(tx *auditstore.Tx) error {
		outcome.evidenceWritten = 0
		outcome.alertCreated = false

		prior, err := tx.LatestEvaluationBefore(control.ControlID, runAt)
		if err != nil {
			return err
		}

		var firstEvidenceID string
		for _, snapshot := range snapshots {
			evidence, err := tx.InsertEvidence(control.ControlID, snapshot)
			if err != nil {
				return err
			}
			if firstEvidenceID == "" {
				firstEvidenceID = evidence.ID
			}
			outcome.evidenceWritten++
		}

		if _, err := tx.InsertEvaluation(control.ControlID, firstEvidenceID, runAt, verdict); err != nil {
			return err
		}

		if compliance.ShouldAlert(verdict.Severity, prior, verdict.Status) {
			_, err := tx.InsertAlert(compliance.Alert{
				ControlID:   control.ControlID,
				CreatedAt:   runAt,
				Severity:    verdict.Severity,
				Message:     compliance.AlertMessage(control),
				Remediation: verdict.Remediation,
			})
			if err != nil {
				return err
			}
			outcome.alertCreated = true
		}
		return nil
	})
	return outcome, err
}

// collect gathers one snapshot per declared source, in declaration
// order.
func (r *Runner) collect(ctx context.Context, control compliance.Control, runAt time.Time) []compliance.Snapshot {
	snapshots := make([]compliance.Snapshot, len(control.EvidenceSources))
	if !r.ParallelCollection {
		for i, source := range control.EvidenceSources {
			snapshots[i] = r.collectSource(ctx, control.ControlID, source, runAt)
		}
		return snapshots
	}

	var group sync.WaitGroup
	for i, source := range control.EvidenceSources {
		group.Go(func() {
			snapshots[i] = r.collectSource(ctx, control.ControlID, source, runAt)
		})
	}
	group.Wait()
	return snapshots
}

// collectSource always returns a snapshot: failures become
// error-flagged snapshots. Every snapshot is stamped with runAt and
// the declared source.
func (r *Runner) collectSource(ctx context.Context, controlID string, source compliance.EvidenceSource, runAt time.Time) compliance.Snapshot {
	logger := r.logger().With("control_id", controlID, "source", source.System)

	found, ok := r.Collectors.Lookup(source.System)
	if !ok {
		logger.Warn("unknown evidence source")
		return collector.UnknownSourceSnapshot(source.System, runAt)
	}

	timeout := r.CollectTimeout
	if timeout <= 0 {
		timeout = DefaultCollectTimeout
	}
	collectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snapshot, err := found.Collect(collectCtx, collector.Request{
		ControlID: controlID,
		At:        runAt,
		Options:   source.Options,
	})
	if err != nil {
		logger.Warn("evidence collection failed", "error", err)
		return collector.ErrorSnapshot(source.System, runAt, compliance.ErrorKindFetch, err.Error())
	}

	snapshot.CollectedAt = runAt
	snapshot.SourceSystem = source.System
	if snapshot.RawSnapshot == nil {
		snapshot.RawSnapshot = payload.Payload{}
	}
	return snapshot
}

func (r *Runner) clock() clock.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return clock.Real()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
