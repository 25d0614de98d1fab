// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// ControlStatus is a control with its latest evaluation outcome and
// the freshness of its evidence per source.
type ControlStatus struct {
	compliance.Control
	LatestStatus      compliance.Status    `json:"latest_status,omitempty"`
	LatestEvaluatedAt time.Time            `json:"latest_evaluated_at,omitzero"`
	EvidenceFreshness map[string]time.Time `json:"latest_evidence_freshness"`
}

// ControlStatuses returns every control ordered by identifier with its
// latest status and, per source system, the time of its newest
// evidence.
func (s *Store) ControlStatuses(ctx context.Context) ([]ControlStatus, error) {
	controls, err := s.Controls(ctx)
	if err != nil {
		return nil, err
	}

	type latest struct {
		status      compliance.Status
		evaluatedAt time.Time
	}
	latestByControl := make(map[string]latest)
	freshness := make(map[string]map[string]time.Time)

	err = s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			SELECT e.control_id, e.status, e.evaluated_at
			FROM evaluations e
			JOIN (SELECT control_id, max(evaluated_at) AS newest
			      FROM evaluations GROUP BY control_id) m
			  ON e.control_id = m.control_id AND e.evaluated_at = m.newest`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					latestByControl[stmt.ColumnText(0)] = latest{
						status:      compliance.Status(stmt.ColumnText(1)),
						evaluatedAt: fromNanos(stmt.ColumnInt64(2)),
					}
					return nil
				},
			})
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn, `
			SELECT control_id, source_system, max(collected_at)
			FROM evidence GROUP BY control_id, source_system`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					controlID := stmt.ColumnText(0)
					if freshness[controlID] == nil {
						freshness[controlID] = make(map[string]time.Time)
					}
					freshness[controlID][stmt.ColumnText(1)] = fromNanos(stmt.ColumnInt64(2))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("reading control statuses: %w", err)
	}

	statuses := make([]ControlStatus, len(controls))
	for i, control := range controls {
		statuses[i] = ControlStatus{Control: control, EvidenceFreshness: freshness[control.ControlID]}
		if statuses[i].EvidenceFreshness == nil {
			statuses[i].EvidenceFreshness = map[string]time.Time{}
		}
		if newest, ok := latestByControl[control.ControlID]; ok {
			statuses[i].LatestStatus = newest.status
			statuses[i].LatestEvaluatedAt = newest.evaluatedAt
		}
	}
	return statuses, nil
}

// Metrics summarizes the latest evaluation of every evaluated control.
// AuditReadinessScore currently equals PassRate.
type Metrics struct {
	ControlsTotal       int                         `json:"controls_total"`
	ControlsEvaluated   int                         `json:"controls_evaluated"`
	ControlsPassing     int                         `json:"controls_passing"`
	PassRate            float64                     `json:"pass_rate"`
	AuditReadinessScore float64                     `json:"audit_readiness_score"`
	FailedBySeverity    map[compliance.Severity]int `json:"failed_controls_by_severity"`
	ActiveAlerts        int                         `json:"active_alerts_count"`
	EvidenceFreshness   map[string]time.Time        `json:"evidence_freshness"`
	LastCompletedRunAt  time.Time                   `json:"last_completed_run_at,omitzero"`
}

// Metrics computes pass rate and failure counts over each control's
// latest evaluation. Severity is the one recorded on that evaluation.
func (s *Store) Metrics(ctx context.Context) (Metrics, error) {
	metrics := Metrics{
		FailedBySeverity: map[compliance.Severity]int{
			compliance.SeverityHigh:   0,
			compliance.SeverityMedium: 0,
			compliance.SeverityLow:    0,
		},
		EvidenceFreshness: make(map[string]time.Time),
	}

	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		steps := []struct {
			query  string
			args   []any
			result func(stmt *sqlite.Stmt) error
		}{
			{
				query: `SELECT count(*) FROM controls`,
				result: func(stmt *sqlite.Stmt) error {
					metrics.ControlsTotal = stmt.ColumnInt(0)
					return nil
				},
			},
			{
				query: `
					SELECT e.status, e.severity
					FROM evaluations e
					JOIN (SELECT control_id, max(evaluated_at) AS newest
					      FROM evaluations GROUP BY control_id) m
					  ON e.control_id = m.control_id AND e.evaluated_at = m.newest`,
				result: func(stmt *sqlite.Stmt) error {
					metrics.ControlsEvaluated++
					if compliance.Status(stmt.ColumnText(0)) == compliance.StatusPass {
						metrics.ControlsPassing++
					} else {
						metrics.FailedBySeverity[compliance.Severity(stmt.ColumnText(1))]++
					}
					return nil
				},
			},
			{
				query: `SELECT control_id, max(collected_at) FROM evidence GROUP BY control_id`,
				result: func(stmt *sqlite.Stmt) error {
					metrics.EvidenceFreshness[stmt.ColumnText(0)] = fromNanos(stmt.ColumnInt64(1))
					return nil
				},
			},
			{
				query: `SELECT count(*) FROM alerts WHERE acknowledged = 0`,
				result: func(stmt *sqlite.Stmt) error {
					metrics.ActiveAlerts = stmt.ColumnInt(0)
					return nil
				},
			},
			{
				query: `SELECT max(run_at) FROM runs WHERE state = ?`,
				args:  []any{string(compliance.RunCompleted)},
				result: func(stmt *sqlite.Stmt) error {
					metrics.LastCompletedRunAt = columnTime(stmt, 0)
					return nil
				},
			},
		}
		for _, step := range steps {
			if err := sqlitex.Execute(conn, step.query, &sqlitex.ExecOptions{Args: step.args, ResultFunc: step.result}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Metrics{}, fmt.Errorf("computing metrics: %w", err)
	}
	if metrics.ControlsEvaluated > 0 {
		metrics.PassRate = float64(metrics.ControlsPassing) / float64(metrics.ControlsEvaluated)
	}
	metrics.AuditReadinessScore = metrics.PassRate
	return metrics, nil
}
