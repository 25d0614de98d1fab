// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// DefaultLimit bounds list queries that do not set a limit.
const DefaultLimit = 50

const evaluationColumns = `id, control_id, evidence_id, evaluated_at, status, severity, remediation, details`

func scanEvaluation(stmt *sqlite.Stmt) (compliance.Evaluation, error) {
	evaluation := compliance.Evaluation{
		ID:          stmt.ColumnText(0),
		ControlID:   stmt.ColumnText(1),
		EvidenceID:  stmt.ColumnText(2),
		EvaluatedAt: fromNanos(stmt.ColumnInt64(3)),
		Status:      compliance.Status(stmt.ColumnText(4)),
		Severity:    compliance.Severity(stmt.ColumnText(5)),
		Remediation: stmt.ColumnText(6),
	}
	details, err := payload.Unmarshal(columnBlob(stmt, 7))
	if err != nil {
		return evaluation, fmt.Errorf("evaluation %s details: %w", evaluation.ID, err)
	}
	evaluation.Details = details
	return evaluation, nil
}

// latestEvaluation returns the newest evaluation of controlID, bounded
// strictly below before unless before is zero.
func latestEvaluation(conn *sqlite.Conn, controlID string, before time.Time) (*compliance.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE control_id = ?`
	args := []any{controlID}
	if !before.IsZero() {
		query += ` AND evaluated_at < ?`
		args = append(args, toNanos(before))
	}
	query += ` ORDER BY evaluated_at DESC LIMIT 1`

	var latest *compliance.Evaluation
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			evaluation, err := scanEvaluation(stmt)
			if err != nil {
				return err
			}
			latest = &evaluation
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reading latest evaluation of %s: %w", controlID, err)
	}
	return latest, nil
}

// LatestEvaluation returns the control's most recent evaluation, or
// ErrNotFound when it has never been evaluated.
func (s *Store) LatestEvaluation(ctx context.Context, controlID string) (compliance.Evaluation, error) {
	var latest *compliance.Evaluation
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		latest, err = latestEvaluation(conn, controlID, time.Time{})
		return err
	})
	if err != nil {
		return compliance.Evaluation{}, err
	}
	if latest == nil {
		return compliance.Evaluation{}, fmt.Errorf("evaluation of %s: %w", controlID, ErrNotFound)
	}
	return *latest, nil
}

// EvaluationFilter selects evaluations. Zero fields do not filter.
type EvaluationFilter struct {
	ControlID string
	Status    compliance.Status
	Since     time.Time // inclusive
	Until     time.Time // exclusive
	Limit     int
}

// Evaluations returns matching evaluations, newest first.
func (s *Store) Evaluations(ctx context.Context, filter EvaluationFilter) ([]compliance.Evaluation, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ControlID != "" {
		conditions = append(conditions, "control_id = ?")
		args = append(args, filter.ControlID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "evaluated_at >= ?")
		args = append(args, toNanos(filter.Since))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "evaluated_at < ?")
		args = append(args, toNanos(filter.Until))
	}

	query := `SELECT ` + evaluationColumns + ` FROM evaluations`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY evaluated_at DESC, control_id LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	var evaluations []compliance.Evaluation
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				evaluation, err := scanEvaluation(stmt)
				if err != nil {
					return err
				}
				evaluations = append(evaluations, evaluation)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	return evaluations, nil
}

const evidenceColumns = `id, control_id, source_system, collected_at, compression, raw_size, raw_snapshot, digest`

func scanEvidence(stmt *sqlite.Stmt) (compliance.Evidence, error) {
	evidence := compliance.Evidence{
		ID:           stmt.ColumnText(0),
		ControlID:    stmt.ColumnText(1),
		SourceSystem: stmt.ColumnText(2),
		CollectedAt:  fromNanos(stmt.ColumnInt64(3)),
	}
	algorithm := Compression(stmt.ColumnText(4))
	rawSize := stmt.ColumnInt(5)
	stmt.ColumnBytes(7, evidence.Digest[:])

	encoded, err := decompress(columnBlob(stmt, 6), algorithm, rawSize)
	if err != nil {
		return evidence, fmt.Errorf("evidence %s: %w", evidence.ID, err)
	}
	if payload.DigestBytes(encoded) != evidence.Digest {
		return evidence, fmt.Errorf("evidence %s: %w", evidence.ID, ErrDigestMismatch)
	}
	snapshot, err := payload.Unmarshal(encoded)
	if err != nil {
		return evidence, fmt.Errorf("evidence %s: %w", evidence.ID, err)
	}
	evidence.RawSnapshot = snapshot
	return evidence, nil
}

// EvidenceAt returns the evidence a run collected for controlID at the
// given timestamp, in the order it was written (source declaration
// order). This is the full context behind the evaluation at the same
// timestamp.
func (s *Store) EvidenceAt(ctx context.Context, controlID string, at time.Time) ([]compliance.Evidence, error) {
	return s.queryEvidence(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE control_id = ? AND collected_at = ? ORDER BY rowid`,
		controlID, toNanos(at))
}

// EvidenceHistory returns the control's evidence, newest first.
func (s *Store) EvidenceHistory(ctx context.Context, controlID string, limit int) ([]compliance.Evidence, error) {
	return s.queryEvidence(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE control_id = ? ORDER BY collected_at DESC, rowid LIMIT ?`,
		controlID, limitOrDefault(limit))
}

// EvidenceByID returns one evidence row, or ErrNotFound.
func (s *Store) EvidenceByID(ctx context.Context, id string) (compliance.Evidence, error) {
	rows, err := s.queryEvidence(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE id = ?`, id)
	if err != nil {
		return compliance.Evidence{}, err
	}
	if len(rows) == 0 {
		return compliance.Evidence{}, fmt.Errorf("evidence %s: %w", id, ErrNotFound)
	}
	return rows[0], nil
}

func (s *Store) queryEvidence(ctx context.Context, query string, args ...any) ([]compliance.Evidence, error) {
	var rows []compliance.Evidence
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				evidence, err := scanEvidence(stmt)
				if err != nil {
					return err
				}
				rows = append(rows, evidence)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading evidence: %w", err)
	}
	return rows, nil
}

const alertColumns = `id, control_id, created_at, severity, message, remediation, acknowledged, acknowledged_at`

func scanAlert(stmt *sqlite.Stmt) compliance.Alert {
	return compliance.Alert{
		ID:             stmt.ColumnText(0),
		ControlID:      stmt.ColumnText(1),
		CreatedAt:      fromNanos(stmt.ColumnInt64(2)),
		Severity:       compliance.Severity(stmt.ColumnText(3)),
		Message:        stmt.ColumnText(4),
		Remediation:    stmt.ColumnText(5),
		Acknowledged:   stmt.ColumnInt(6) != 0,
		AcknowledgedAt: columnTime(stmt, 7),
	}
}

// AlertFilter selects alerts. Zero fields do not filter.
type AlertFilter struct {
	ControlID      string
	Unacknowledged bool
	Limit          int
}

// Alerts returns matching alerts, newest first.
func (s *Store) Alerts(ctx context.Context, filter AlertFilter) ([]compliance.Alert, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ControlID != "" {
		conditions = append(conditions, "control_id = ?")
		args = append(args, filter.ControlID)
	}
	if filter.Unacknowledged {
		conditions = append(conditions, "acknowledged = 0")
	}
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	var alerts []compliance.Alert
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				alerts = append(alerts, scanAlert(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert acknowledged at the given time and
// returns it. Acknowledging an already acknowledged alert keeps the
// original acknowledgement time.
func (s *Store) AcknowledgeAlert(ctx context.Context, id string, at time.Time) (compliance.Alert, error) {
	var (
		alert compliance.Alert
		found bool
	)
	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE alerts SET acknowledged = 1, acknowledged_at = ? WHERE id = ? AND acknowledged = 0`,
			&sqlitex.ExecOptions{Args: []any{toNanos(at), id}})
		if err != nil {
			return classify(err)
		}
		return sqlitex.Execute(conn, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					alert = scanAlert(stmt)
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return alert, fmt.Errorf("acknowledging alert %s: %w", id, err)
	}
	if !found {
		return alert, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return alert, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
