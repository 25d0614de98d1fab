// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T, compression Compression) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		Compression: compression,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func testControl(id string, severity compliance.Severity) compliance.Control {
	return compliance.Control{
		ControlID: id,
		Name:      "Control " + id,
		Risk:      "risk of " + id,
		ExpectedState: payload.MustFromValue(map[string]any{
			"log_retention_days_minimum": 90,
		}),
		EvidenceSources: []compliance.EvidenceSource{
			{System: "cicd"},
			{System: "github", Options: payload.Payload{"branches": []any{"main"}}},
		},
		Severity:       severity,
		CheckFrequency: "daily",
	}
}

func seedControls(t *testing.T, store *Store, controls ...compliance.Control) {
	t.Helper()
	if _, err := store.UpsertControls(context.Background(), controls, baseTime); err != nil {
		t.Fatalf("UpsertControls: %v", err)
	}
}

func snapshotAt(source string, at time.Time, raw map[string]any) compliance.Snapshot {
	return compliance.Snapshot{CollectedAt: at, SourceSystem: source, RawSnapshot: payload.MustFromValue(raw)}
}

func TestUpsertControlsIdempotent(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()

	original := testControl("CC7.2", compliance.SeverityMedium)
	if _, err := store.UpsertControls(ctx, []compliance.Control{original}, baseTime); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	updated := original
	updated.Name = "Logging and Monitoring"
	updated.Severity = compliance.SeverityHigh
	later := baseTime.Add(time.Hour)
	stored, err := store.UpsertControls(ctx, []compliance.Control{updated}, later)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if !stored[0].CreatedAt.Equal(baseTime) || !stored[0].UpdatedAt.Equal(later) {
		t.Errorf("timestamps = created %v updated %v", stored[0].CreatedAt, stored[0].UpdatedAt)
	}

	controls, err := store.Controls(ctx)
	if err != nil {
		t.Fatalf("Controls: %v", err)
	}
	if len(controls) != 1 {
		t.Fatalf("controls = %d, want 1", len(controls))
	}
	got := controls[0]
	if got.Name != "Logging and Monitoring" || got.Severity != compliance.SeverityHigh {
		t.Errorf("control not updated: %+v", got)
	}
	if got.ExpectedState.Int("log_retention_days_minimum", 0) != 90 {
		t.Errorf("ExpectedState = %v", got.ExpectedState)
	}
	if len(got.EvidenceSources) != 2 || got.EvidenceSources[1].System != "github" {
		t.Fatalf("EvidenceSources = %+v", got.EvidenceSources)
	}
	if branches := got.EvidenceSources[1].Options.List("branches"); len(branches) != 1 || branches[0] != "main" {
		t.Errorf("github options = %v", got.EvidenceSources[1].Options)
	}
}

func TestControlNotFound(t *testing.T) {
	store := openTestStore(t, "")
	if _, err := store.Control(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Control(missing) error = %v, want ErrNotFound", err)
	}
}

func TestEvidenceUniqueness(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()
	seedControls(t, store, testControl("CC7.2", compliance.SeverityMedium))

	snapshot := snapshotAt("cicd", baseTime, map[string]any{"log_retention_days": 90})
	if _, err := store.InsertEvidence(ctx, "CC7.2", snapshot); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := store.InsertEvidence(ctx, "CC7.2", snapshot); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second insert error = %v, want ErrDuplicate", err)
	}
	rows, err := store.EvidenceAt(ctx, "CC7.2", baseTime)
	if err != nil {
		t.Fatalf("EvidenceAt: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("evidence rows = %d, want 1", len(rows))
	}
}

func TestEvaluationUniquenessAndImmutability(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()
	seedControls(t, store, testControl("CC7.2", compliance.SeverityMedium))

	verdict := compliance.Verdict{
		Status:      compliance.StatusPass,
		Severity:    compliance.SeverityMedium,
		Remediation: "No action required.",
		Details:     payload.Payload{"actual": map[string]any{"log_retention_days": int64(90)}},
	}
	first, err := store.InsertEvaluation(ctx, "CC7.2", "", baseTime, verdict)
	if err != nil {
		t.Fatalf("InsertEvaluation: %v", err)
	}

	failing := verdict
	failing.Status = compliance.StatusFail
	if _, err := store.InsertEvaluation(ctx, "CC7.2", "", baseTime, failing); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate insert error = %v, want ErrDuplicate", err)
	}

	err = store.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `UPDATE evaluations SET status = 'FAIL' WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{first.ID}})
	})
	if err == nil || !errors.Is(classify(err), ErrImmutable) {
		t.Fatalf("UPDATE evaluation error = %v, want immutability abort", err)
	}
	err = store.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `DELETE FROM evaluations`, nil)
	})
	if err == nil {
		t.Fatal("DELETE evaluations succeeded")
	}

	latest, err := store.LatestEvaluation(ctx, "CC7.2")
	if err != nil {
		t.Fatalf("LatestEvaluation: %v", err)
	}
	if latest.ID != first.ID || latest.Status != compliance.StatusPass {
		t.Errorf("latest = %+v, want the original PASS", latest)
	}
	if latest.EvidenceID != "" {
		t.Errorf("EvidenceID = %q, want empty", latest.EvidenceID)
	}
	if latest.Details.Map("actual").Int("log_retention_days", 0) != 90 {
		t.Errorf("Details = %v", latest.Details)
	}
}

func TestWriteControlAtomic(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()
	seedControls(t, store, testControl("CC8.1", compliance.SeverityHigh))

	abort := errors.New("collector exploded")
	err := store.WriteControl(ctx, func(tx *Tx) error {
		if _, err := tx.InsertEvidence("CC8.1", snapshotAt("github", baseTime, map[string]any{})); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("WriteControl error = %v", err)
	}
	rows, err := store.EvidenceAt(ctx, "CC8.1", baseTime)
	if err != nil {
		t.Fatalf("EvidenceAt: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rolled back write left %d evidence rows", len(rows))
	}
}

func TestLatestEvaluationBeforeIsStrict(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()
	seedControls(t, store, testControl("CC8.1", compliance.SeverityHigh))

	for i, status := range []compliance.Status{compliance.StatusPass, compliance.StatusFail} {
		at := baseTime.Add(time.Duration(i) * time.Hour)
		if _, err := store.InsertEvaluation(ctx, "CC8.1", "", at, compliance.Verdict{Status: status, Severity: compliance.SeverityHigh}); err != nil {
			t.Fatalf("InsertEvaluation: %v", err)
		}
	}

	err := store.WriteControl(ctx, func(tx *Tx) error {
		prior, err := tx.LatestEvaluationBefore("CC8.1", baseTime.Add(time.Hour))
		if err != nil {
			return err
		}
		if prior == nil || prior.Status != compliance.StatusPass {
			t.Errorf("prior before second = %+v, want the PASS", prior)
		}
		none, err := tx.LatestEvaluationBefore("CC8.1", baseTime)
		if err != nil {
			return err
		}
		if none != nil {
			t.Errorf("prior before first = %+v, want nil", none)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WriteControl: %v", err)
	}
}

func TestEvidenceCompressionRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(string(compression), func(t *testing.T) {
			store := openTestStore(t, compression)
			ctx := context.Background()
			seedControls(t, store, testControl("CC7.2", compliance.SeverityMedium))

			sources := make([]any, 0, 20)
			for range 20 {
				sources = append(sources, map[string]any{"name": "production_app", "shipped": true, "retention_days": 90})
			}
			raw := map[string]any{"log_sources": sources, "log_aggregation_system": "cloudwatch_logs"}
			written, err := store.InsertEvidence(ctx, "CC7.2", snapshotAt("cicd", baseTime, raw))
			if err != nil {
				t.Fatalf("InsertEvidence: %v", err)
			}

			read, err := store.EvidenceByID(ctx, written.ID)
			if err != nil {
				t.Fatalf("EvidenceByID: %v", err)
			}
			if read.Digest != written.Digest {
				t.Errorf("digest changed: %s vs %s", read.Digest, written.Digest)
			}
			if len(read.RawSnapshot.List("log_sources")) != 20 {
				t.Errorf("snapshot lost data: %v", read.RawSnapshot)
			}
			if !read.CollectedAt.Equal(baseTime) {
				t.Errorf("CollectedAt = %v", read.CollectedAt)
			}
		})
	}
}

func TestEvidenceTamperDetected(t *testing.T) {
	store := openTestStore(t, CompressionNone)
	ctx := context.Background()
	seedControls(t, store, testControl("CC7.2", compliance.SeverityMedium))

	written, err := store.InsertEvidence(ctx, "CC7.2", snapshotAt("cicd", baseTime, map[string]any{"log_retention_days": 90}))
	if err != nil {
		t.Fatalf("InsertEvidence: %v", err)
	}

	forged, err := payload.Payload{"log_retention_days": int64(365)}.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	err = store.pool.Read(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteTransient(conn, `DROP TRIGGER evidence_immutable_update`, nil); err != nil {
			return err
		}
		return sqlitex.Execute(conn, `UPDATE evidence SET raw_snapshot = ?, raw_size = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{forged, len(forged), written.ID}})
	})
	if err != nil {
		t.Fatalf("tampering: %v", err)
	}

	if _, err := store.EvidenceByID(ctx, written.ID); !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("EvidenceByID error = %v, want ErrDigestMismatch", err)
	}
}

func TestEvidenceAtDeclarationOrder(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()
	seedControls(t, store, testControl("CC8.1", compliance.SeverityHigh))

	err := store.WriteControl(ctx, func(tx *Tx) error {
		for _, source := range []string{"github", "cicd"} {
			if _, err := tx.InsertEvidence("CC8.1", snapshotAt(source, baseTime, map[string]any{})); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WriteControl: %v", err)
	}
	rows, err := store.EvidenceAt(ctx, "CC8.1", baseTime)
	if err != nil {
		t.Fatalf("EvidenceAt: %v", err)
	}
	if len(rows) != 2 || rows[0].SourceSystem != "github" || rows[1].SourceSystem != "cicd" {
		t.Errorf("rows = %+v", rows)
	}
	if _, err := store.EvidenceByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("EvidenceByID(nope) error = %v", err)
	}
}

func TestAlertsAcknowledgement(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()
	seedControls(t, store, testControl("CC6.1", compliance.SeverityHigh))

	alert, err := store.InsertAlert(ctx, compliance.Alert{
		ControlID:   "CC6.1",
		CreatedAt:   baseTime,
		Severity:    compliance.SeverityHigh,
		Message:     "Control CC6.1 (Control CC6.1) failed after previously passing",
		Remediation: "fix it",
	})
	if err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	if alert.ID == "" || alert.Acknowledged {
		t.Fatalf("alert = %+v", alert)
	}

	open, err := store.Alerts(ctx, AlertFilter{Unacknowledged: true})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open alerts = %d, want 1", len(open))
	}

	ackAt := baseTime.Add(time.Minute)
	acknowledged, err := store.AcknowledgeAlert(ctx, alert.ID, ackAt)
	if err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	if !acknowledged.Acknowledged || !acknowledged.AcknowledgedAt.Equal(ackAt) {
		t.Errorf("acknowledged = %+v", acknowledged)
	}
	again, err := store.AcknowledgeAlert(ctx, alert.ID, ackAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("second AcknowledgeAlert: %v", err)
	}
	if !again.AcknowledgedAt.Equal(ackAt) {
		t.Errorf("re-acknowledging moved AcknowledgedAt to %v", again.AcknowledgedAt)
	}
	if _, err := store.AcknowledgeAlert(ctx, "missing", ackAt); !errors.Is(err, ErrNotFound) {
		t.Errorf("AcknowledgeAlert(missing) error = %v", err)
	}

	open, err = store.Alerts(ctx, AlertFilter{Unacknowledged: true})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open alerts after ack = %d", len(open))
	}

	err = store.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `UPDATE alerts SET message = 'rewritten' WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{alert.ID}})
	})
	if !errors.Is(classify(err), ErrImmutable) {
		t.Errorf("rewriting alert message error = %v, want ErrImmutable", err)
	}
}

func TestRunLedger(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()

	if err := store.BeginRun(ctx, baseTime, baseTime); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.BeginRun(ctx, baseTime, baseTime); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second BeginRun error = %v, want ErrDuplicate", err)
	}
	interrupted, err := store.InterruptedRuns(ctx)
	if err != nil {
		t.Fatalf("InterruptedRuns: %v", err)
	}
	if len(interrupted) != 1 || !interrupted[0].Equal(baseTime) {
		t.Errorf("interrupted = %v", interrupted)
	}

	summary := compliance.NewRunSummary(baseTime)
	summary.ControlsProcessed = 3
	finished := baseTime.Add(2 * time.Second)
	if err := store.FinishRun(ctx, baseTime, finished, summary, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := store.FinishRun(ctx, baseTime, finished, summary, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("second FinishRun error = %v, want ErrNotFound", err)
	}

	second := baseTime.Add(time.Hour)
	if err := store.BeginRun(ctx, second, second); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.FinishRun(ctx, second, second, compliance.NewRunSummary(second), errors.New("store outage")); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d", len(runs))
	}
	if runs[0].State != compliance.RunFailed || runs[0].Error != "store outage" {
		t.Errorf("newest run = %+v", runs[0])
	}
	if runs[1].State != compliance.RunCompleted || runs[1].Summary.ControlsProcessed != 3 || !runs[1].FinishedAt.Equal(finished) {
		t.Errorf("first run = %+v", runs[1])
	}
	if !runs[1].Summary.RunAt.Equal(baseTime) {
		t.Errorf("summary RunAt = %v", runs[1].Summary.RunAt)
	}
}

func TestStatusesAndMetrics(t *testing.T) {
	store := openTestStore(t, "")
	ctx := context.Background()
	seedControls(t, store,
		testControl("CC6.1", compliance.SeverityHigh),
		testControl("CC7.2", compliance.SeverityMedium),
		testControl("CC8.1", compliance.SeverityHigh),
	)

	write := func(controlID string, at time.Time, status compliance.Status, severity compliance.Severity) {
		t.Helper()
		err := store.WriteControl(ctx, func(tx *Tx) error {
			evidence, err := tx.InsertEvidence(controlID, snapshotAt("cicd", at, map[string]any{}))
			if err != nil {
				return err
			}
			_, err = tx.InsertEvaluation(controlID, evidence.ID, at, compliance.Verdict{Status: status, Severity: severity})
			return err
		})
		if err != nil {
			t.Fatalf("write %s: %v", controlID, err)
		}
	}
	later := baseTime.Add(time.Hour)
	write("CC6.1", baseTime, compliance.StatusPass, compliance.SeverityHigh)
	write("CC6.1", later, compliance.StatusFail, compliance.SeverityHigh)
	write("CC7.2", later, compliance.StatusPass, compliance.SeverityMedium)

	statuses, err := store.ControlStatuses(ctx)
	if err != nil {
		t.Fatalf("ControlStatuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("statuses = %d", len(statuses))
	}
	if statuses[0].ControlID != "CC6.1" || statuses[0].LatestStatus != compliance.StatusFail || !statuses[0].LatestEvaluatedAt.Equal(later) {
		t.Errorf("CC6.1 status = %+v", statuses[0])
	}
	if !statuses[0].EvidenceFreshness["cicd"].Equal(later) {
		t.Errorf("CC6.1 freshness = %v", statuses[0].EvidenceFreshness)
	}
	if statuses[2].LatestStatus != "" || len(statuses[2].EvidenceFreshness) != 0 {
		t.Errorf("never-evaluated CC8.1 = %+v", statuses[2])
	}

	metrics, err := store.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if metrics.ControlsTotal != 3 || metrics.ControlsEvaluated != 2 || metrics.ControlsPassing != 1 {
		t.Errorf("metrics counts = %+v", metrics)
	}
	if metrics.PassRate != 0.5 || metrics.AuditReadinessScore != 0.5 {
		t.Errorf("PassRate = %v, AuditReadinessScore = %v, want 0.5", metrics.PassRate, metrics.AuditReadinessScore)
	}
	if metrics.FailedBySeverity[compliance.SeverityHigh] != 1 || metrics.FailedBySeverity[compliance.SeverityMedium] != 0 {
		t.Errorf("FailedBySeverity = %v", metrics.FailedBySeverity)
	}
}

func TestOpenRejectsUnknownCompression(t *testing.T) {
	_, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		Compression: "brotli",
	})
	if err == nil {
		t.Fatal("expected error for unknown compression")
	}
}
