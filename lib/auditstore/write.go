// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// Tx is one control's write group. It is valid only inside the
// function passed to WriteControl.
type Tx struct {
	conn        *sqlite.Conn
	compression Compression
}

// WriteControl runs fn in a single IMMEDIATE transaction. Everything fn
// writes commits together when fn returns nil, and nothing is written
// when it returns an error.
func (s *Store) WriteControl(ctx context.Context, fn func(tx *Tx) error) error {
	return s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		return fn(&Tx{conn: conn, compression: s.compression})
	})
}

// LatestEvaluationBefore returns the control's most recent evaluation
// with evaluated_at strictly before the given time, or nil when there
// is none.
func (tx *Tx) LatestEvaluationBefore(controlID string, before time.Time) (*compliance.Evaluation, error) {
	return latestEvaluation(tx.conn, controlID, before)
}

// InsertEvidence persists a snapshot for controlID. The snapshot's
// SourceSystem and CollectedAt form the uniqueness key together with
// the control.
func (tx *Tx) InsertEvidence(controlID string, snapshot compliance.Snapshot) (compliance.Evidence, error) {
	encoded, err := snapshot.RawSnapshot.Marshal()
	if err != nil {
		return compliance.Evidence{}, fmt.Errorf("evidence %s/%s: %w", controlID, snapshot.SourceSystem, err)
	}
	evidence := compliance.Evidence{
		ID:           uuid.NewString(),
		ControlID:    controlID,
		SourceSystem: snapshot.SourceSystem,
		CollectedAt:  snapshot.CollectedAt.UTC(),
		RawSnapshot:  snapshot.RawSnapshot,
		Digest:       payload.DigestBytes(encoded),
	}
	stored, algorithm := compress(encoded, tx.compression)

	err = sqlitex.Execute(tx.conn, `
		INSERT INTO evidence (id, control_id, source_system, collected_at,
			compression, raw_size, raw_snapshot, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				evidence.ID,
				evidence.ControlID,
				evidence.SourceSystem,
				toNanos(evidence.CollectedAt),
				string(algorithm),
				len(encoded),
				stored,
				evidence.Digest[:],
			},
		})
	if err != nil {
		return compliance.Evidence{}, fmt.Errorf("inserting evidence %s/%s: %w", controlID, snapshot.SourceSystem, classify(err))
	}
	return evidence, nil
}

// InsertEvaluation persists a verdict for controlID at evaluatedAt.
// evidenceID may be empty when the control has no evidence sources.
func (tx *Tx) InsertEvaluation(controlID, evidenceID string, evaluatedAt time.Time, verdict compliance.Verdict) (compliance.Evaluation, error) {
	if !verdict.Status.IsKnown() {
		return compliance.Evaluation{}, fmt.Errorf("evaluation %s: invalid status %q", controlID, verdict.Status)
	}
	details, err := verdict.Details.Marshal()
	if err != nil {
		return compliance.Evaluation{}, fmt.Errorf("evaluation %s: %w", controlID, err)
	}
	evaluation := compliance.Evaluation{
		ID:          uuid.NewString(),
		ControlID:   controlID,
		EvidenceID:  evidenceID,
		EvaluatedAt: evaluatedAt.UTC(),
		Status:      verdict.Status,
		Severity:    verdict.Severity,
		Remediation: verdict.Remediation,
		Details:     verdict.Details,
	}
	err = sqlitex.Execute(tx.conn, `
		INSERT INTO evaluations (id, control_id, evidence_id, evaluated_at,
			status, severity, remediation, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				evaluation.ID,
				evaluation.ControlID,
				nullableText(evaluation.EvidenceID),
				toNanos(evaluation.EvaluatedAt),
				string(evaluation.Status),
				string(evaluation.Severity),
				evaluation.Remediation,
				details,
			},
		})
	if err != nil {
		return compliance.Evaluation{}, fmt.Errorf("inserting evaluation %s: %w", controlID, classify(err))
	}
	return evaluation, nil
}

// InsertAlert persists a new, unacknowledged alert. A missing ID is
// generated.
func (tx *Tx) InsertAlert(alert compliance.Alert) (compliance.Alert, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.Acknowledged = false
	alert.AcknowledgedAt = time.Time{}

	err := sqlitex.Execute(tx.conn, `
		INSERT INTO alerts (id, control_id, created_at, severity, message, remediation)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				alert.ID,
				alert.ControlID,
				toNanos(alert.CreatedAt),
				string(alert.Severity),
				alert.Message,
				alert.Remediation,
			},
		})
	if err != nil {
		return compliance.Alert{}, fmt.Errorf("inserting alert %s: %w", alert.ControlID, classify(err))
	}
	return alert, nil
}

// InsertEvidence persists one snapshot in its own transaction.
func (s *Store) InsertEvidence(ctx context.Context, controlID string, snapshot compliance.Snapshot) (evidence compliance.Evidence, err error) {
	err = s.WriteControl(ctx, func(tx *Tx) error {
		evidence, err = tx.InsertEvidence(controlID, snapshot)
		return err
	})
	return evidence, err
}

// InsertEvaluation persists one verdict in its own transaction.
func (s *Store) InsertEvaluation(ctx context.Context, controlID, evidenceID string, evaluatedAt time.Time, verdict compliance.Verdict) (evaluation compliance.Evaluation, err error) {
	err = s.WriteControl(ctx, func(tx *Tx) error {
		evaluation, err = tx.InsertEvaluation(controlID, evidenceID, evaluatedAt, verdict)
		return err
	})
	return evaluation, err
}

// InsertAlert persists one alert in its own transaction.
func (s *Store) InsertAlert(ctx context.Context, alert compliance.Alert) (stored compliance.Alert, err error) {
	err = s.WriteControl(ctx, func(tx *Tx) error {
		stored, err = tx.InsertAlert(alert)
		return err
	})
	return stored, err
}
