// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkrun

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/ccengine/lib/auditstore"
	"github.com/bureau-foundation/ccengine/lib/collector"
	"github.com/bureau-foundation/ccengine/lib/evaluator"
	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *auditstore.Store {
	t.Helper()
	store, err := auditstore.Open(context.Background(), auditstore.Config{
		Path: filepath.Join(t.TempDir(), "audit.db"),
	})
	if err != nil {
		t.Fatalf("auditstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// staticControls upserts a fixed control list on every refresh.
type staticControls struct {
	store    *auditstore.Store
	controls []compliance.Control
}

func (s *staticControls) Refresh(ctx context.Context, at time.Time) ([]compliance.Control, error) {
	return s.store.UpsertControls(ctx, s.controls, at)
}

func control(id string, severity compliance.Severity, sources ...string) compliance.Control {
	declared := make([]compliance.EvidenceSource, len(sources))
	for i, source := range sources {
		declared[i] = compliance.EvidenceSource{System: source}
	}
	return compliance.Control{
		ControlID:       id,
		Name:            "Control " + id,
		Risk:            "risk",
		ExpectedState:   payload.Payload{"ok": true},
		EvidenceSources: declared,
		Severity:        severity,
		CheckFrequency:  compliance.DefaultCheckFrequency,
	}
}

// toggle reports {"ok": statuses[n]} on its n-th call.
type toggle struct {
	statuses []bool
	calls    int
}

func (tg *toggle) Collect(_ context.Context, request collector.Request) (compliance.Snapshot, error) {
	ok := tg.statuses[tg.calls]
	tg.calls++
	return compliance.Snapshot{
		CollectedAt:  request.At,
		SourceSystem: "toggle",
		RawSnapshot:  payload.Payload{"ok": ok},
	}, nil
}

// okRule passes when the toggle snapshot reports ok.
func okRule(id string) evaluator.Rule {
	return evaluator.NewRule(id, func(control compliance.Control, snapshots map[string]compliance.Snapshot) compliance.Verdict {
		if snapshots["toggle"].RawSnapshot.Bool("ok", false) {
			return compliance.Verdict{Status: compliance.StatusPass, Remediation: evaluator.PassRemediation}
		}
		return compliance.Verdict{Status: compliance.StatusFail, Remediation: "Fix " + id + "."}
	})
}

func sequenceRunner(t *testing.T, severity compliance.Severity, statuses ...bool) (*Runner, *auditstore.Store) {
	t.Helper()
	store := openTestStore(t)
	collectors := collector.NewEmptyRegistry()
	if err := collectors.Register("toggle", &toggle{statuses: statuses}); err != nil {
		t.Fatal(err)
	}
	rules := evaluator.NewRegistry()
	rules.MustRegister(okRule("SEQ.1"))
	return &Runner{
		Controls:   &staticControls{store: store, controls: []compliance.Control{control("SEQ.1", severity, "toggle")}},
		Collectors: collectors,
		Evaluator:  rules,
		Store:      store,
	}, store
}

func runSequence(t *testing.T, runner *Runner, count int) []compliance.RunSummary {
	t.Helper()
	summaries := make([]compliance.RunSummary, count)
	for i := range count {
		summary, err := runner.Run(context.Background(), baseTime.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		summaries[i] = summary
	}
	return summaries
}

func countAlerts(t *testing.T, store *auditstore.Store, controlID string) int {
	t.Helper()
	alerts, err := store.Alerts(context.Background(), auditstore.AlertFilter{ControlID: controlID})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	return len(alerts)
}

func TestRun_EdgeTriggeredAlerts(t *testing.T) {
	const pass, fail = true, false
	tests := []struct {
		name       string
		severity   compliance.Severity
		statuses   []bool
		wantAlerts int
		alertRun   int // index of the run that alerts, or -1
	}{
		{"pass_fail_fail", compliance.SeverityHigh, []bool{pass, fail, fail}, 1, 1},
		{"fail_fail_pass_fail", compliance.SeverityHigh, []bool{fail, fail, pass, fail}, 1, 3},
		{"first_evaluation_fail", compliance.SeverityHigh, []bool{fail}, 0, -1},
		{"pass_fail_pass_fail", compliance.SeverityHigh, []bool{pass, fail, pass, fail}, 2, -1},
		{"medium_never_alerts", compliance.SeverityMedium, []bool{pass, fail}, 0, -1},
		{"low_never_alerts", compliance.SeverityLow, []bool{pass, fail}, 0, -1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			runner, store := sequenceRunner(t, test.severity, test.statuses...)
			summaries := runSequence(t, runner, len(test.statuses))

			if got := countAlerts(t, store, "SEQ.1"); got != test.wantAlerts {
				t.Errorf("alerts = %d, want %d", got, test.wantAlerts)
			}
			if test.alertRun >= 0 {
				for i, summary := range summaries {
					want := 0
					if i == test.alertRun {
						want = 1
					}
					if summary.AlertsCreated != want {
						t.Errorf("run %d: alerts_created = %d, want %d", i, summary.AlertsCreated, want)
					}
				}
			}
		})
	}
}

func TestRun_AlertContent(t *testing.T) {
	runner, store := sequenceRunner(t, compliance.SeverityHigh, true, false)
	runSequence(t, runner, 2)

	alerts, err := store.Alerts(context.Background(), auditstore.AlertFilter{})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	alert := alerts[0]
	if alert.Message != "Control SEQ.1 (Control SEQ.1) failed after previously passing" {
		t.Errorf("message = %q", alert.Message)
	}
	if alert.Remediation != "Fix SEQ.1." || alert.Severity != compliance.SeverityHigh {
		t.Errorf("alert = %+v", alert)
	}
	if !alert.CreatedAt.Equal(baseTime.Add(time.Hour)) || alert.Acknowledged {
		t.Errorf("alert = %+v", alert)
	}
}

func TestRun_DuplicateRunTimestamp(t *testing.T) {
	runner, _ := sequenceRunner(t, compliance.SeverityHigh, true, true)
	if _, err := runner.Run(context.Background(), baseTime); err != nil {
		t.Fatalf("first run: %v", err)
	}
	_, err := runner.Run(context.Background(), baseTime)
	if !errors.Is(err, auditstore.ErrDuplicate) {
		t.Fatalf("second run at same time: got %v, want ErrDuplicate", err)
	}
}

func builtinControls() []compliance.Control {
	return []compliance.Control{
		{
			ControlID: "CC6.1", Name: "Logical Access Controls", Risk: "Unauthorized access",
			ExpectedState: payload.MustFromValue(map[string]any{
				"mfa_required_for_privileged_users": true,
				"admin_access_restricted":           true,
			}),
			EvidenceSources: []compliance.EvidenceSource{{System: compliance.SourceCloudIAM}},
			Severity:        compliance.SeverityHigh,
			CheckFrequency:  compliance.DefaultCheckFrequency,
		},
		{
			ControlID: "CC7.2", Name: "Logging and Monitoring", Risk: "Undetected incidents",
			ExpectedState: payload.MustFromValue(map[string]any{
				"centralized_logging_enabled": true,
				"log_retention_days_minimum":  90,
			}),
			EvidenceSources: []compliance.EvidenceSource{{System: compliance.SourceCICD}},
			Severity:        compliance.SeverityMedium,
			CheckFrequency:  compliance.DefaultCheckFrequency,
		},
		{
			ControlID: "CC8.1", Name: "Change Management", Risk: "Unreviewed changes",
			ExpectedState: payload.MustFromValue(map[string]any{
				"pr_reviews_required":                  true,
				"production_deploy_approvals_required": true,
			}),
			EvidenceSources: []compliance.EvidenceSource{
				{System: compliance.SourceGitHub},
				{System: compliance.SourceCICD},
			},
			Severity:       compliance.SeverityHigh,
			CheckFrequency: compliance.DefaultCheckFrequency,
		},
	}
}

func TestRun_DriftAcrossBuiltinControls(t *testing.T) {
	store := openTestStore(t)
	controls := &staticControls{store: store, controls: builtinControls()}
	newRunner := func(drift bool) *Runner {
		return &Runner{
			Controls:           controls,
			Collectors:         collector.NewRegistry(collector.Options{SimulateDrift: drift}),
			Evaluator:          evaluator.Default(),
			Store:              store,
			ParallelCollection: true,
		}
	}

	steady, err := newRunner(false).Run(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("steady run: %v", err)
	}
	if steady.ControlsPassed != 3 || steady.ControlsFailed != 0 || steady.AlertsCreated != 0 {
		t.Fatalf("steady summary = %+v", steady)
	}
	if steady.EvidenceCollected != 4 || steady.EvaluationsCreated != 3 {
		t.Errorf("steady counts = evidence %d evaluations %d", steady.EvidenceCollected, steady.EvaluationsCreated)
	}

	drifted, err := newRunner(true).Run(context.Background(), baseTime.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("drift run: %v", err)
	}
	if drifted.ControlsProcessed != 3 || drifted.AlertsCreated != 1 {
		t.Errorf("drift summary = %+v", drifted)
	}
	if len(drifted.FailedControls) != 1 {
		t.Fatalf("failed_controls = %+v, want exactly one", drifted.FailedControls)
	}
	failed := drifted.FailedControls[0]
	if failed.ControlID != "CC6.1" || failed.Severity != compliance.SeverityHigh {
		t.Errorf("failed control = %+v", failed)
	}

	latest, err := store.LatestEvaluation(context.Background(), "CC6.1")
	if err != nil {
		t.Fatalf("LatestEvaluation: %v", err)
	}
	issues := evaluator.Issues(compliance.Verdict{Details: latest.Details})
	if len(issues) == 0 {
		t.Errorf("drifted evaluation has no issues: %v", latest.Details)
	}
}

func TestRun_EvidenceOrderAndLinkage(t *testing.T) {
	store := openTestStore(t)
	runner := &Runner{
		Controls:           &staticControls{store: store, controls: builtinControls()[2:]},
		Collectors:         collector.NewRegistry(collector.Options{}),
		Evaluator:          evaluator.Default(),
		Store:              store,
		ParallelCollection: true,
	}
	if _, err := runner.Run(context.Background(), baseTime); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evidence, err := store.EvidenceAt(context.Background(), "CC8.1", baseTime)
	if err != nil {
		t.Fatalf("EvidenceAt: %v", err)
	}
	if len(evidence) != 2 || evidence[0].SourceSystem != "github" || evidence[1].SourceSystem != "cicd" {
		t.Fatalf("evidence = %+v, want github then cicd", evidence)
	}
	latest, err := store.LatestEvaluation(context.Background(), "CC8.1")
	if err != nil {
		t.Fatalf("LatestEvaluation: %v", err)
	}
	if latest.EvidenceID != evidence[0].ID {
		t.Errorf("evaluation references %q, want first evidence %q", latest.EvidenceID, evidence[0].ID)
	}
	if !latest.EvaluatedAt.Equal(baseTime) || !evidence[0].CollectedAt.Equal(baseTime) {
		t.Errorf("timestamps: evaluation %v evidence %v", latest.EvaluatedAt, evidence[0].CollectedAt)
	}
}

func TestRun_UnknownControlAndSource(t *testing.T) {
	store := openTestStore(t)
	runner := &Runner{
		Controls: &staticControls{store: store, controls: []compliance.Control{
			control("ZZ.9", compliance.SeverityHigh, "jira"),
		}},
		Collectors: collector.NewRegistry(collector.Options{}),
		Evaluator:  evaluator.Default(),
		Store:      store,
	}
	summary, err := runner.Run(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ControlsFailed != 1 || summary.EvidenceCollected != 1 {
		t.Errorf("summary = %+v", summary)
	}

	evidence, err := store.EvidenceAt(context.Background(), "ZZ.9", baseTime)
	if err != nil || len(evidence) != 1 {
		t.Fatalf("EvidenceAt = %v, %v", evidence, err)
	}
	if got := evidence[0].RawSnapshot.String(compliance.ErrorKey, ""); got != "Unknown source system: jira" {
		t.Errorf("error snapshot = %v", evidence[0].RawSnapshot)
	}

	latest, err := store.LatestEvaluation(context.Background(), "ZZ.9")
	if err != nil {
		t.Fatalf("LatestEvaluation: %v", err)
	}
	if latest.Status != compliance.StatusFail || latest.Details.String(evaluator.DetailError, "") != evaluator.ErrorUnknownControl {
		t.Errorf("evaluation = %+v", latest)
	}
	if latest.Remediation != "Unknown control ZZ.9. Implement evaluator logic." {
		t.Errorf("remediation = %q", latest.Remediation)
	}
}

func TestRun_NoEvidenceSources(t *testing.T) {
	store := openTestStore(t)
	rules := evaluator.NewRegistry()
	rules.MustRegister(okRule("EMPTY.1"))
	runner := &Runner{
		Controls:   &staticControls{store: store, controls: []compliance.Control{control("EMPTY.1", compliance.SeverityLow)}},
		Collectors: collector.NewEmptyRegistry(),
		Evaluator:  rules,
		Store:      store,
	}
	summary, err := runner.Run(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.EvidenceCollected != 0 || summary.EvaluationsCreated != 1 || summary.ControlsFailed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	latest, err := store.LatestEvaluation(context.Background(), "EMPTY.1")
	if err != nil {
		t.Fatalf("LatestEvaluation: %v", err)
	}
	if latest.EvidenceID != "" || latest.Details.String(evaluator.DetailError, "") != evaluator.ErrorInsufficientEvidence {
		t.Errorf("evaluation = %+v", latest)
	}
}

func TestRun_CollectorFailureIsEvidence(t *testing.T) {
	store := openTestStore(t)
	collectors := collector.NewRegistry(collector.Options{})
	broken := collector.Func(func(context.Context, collector.Request) (compliance.Snapshot, error) {
		return compliance.Snapshot{}, &collector.FetchError{Source: "cicd", ControlID: "CC7.2", Err: errors.New("connection refused")}
	})
	if err := collectors.Register(compliance.SourceCICD, broken); err != nil {
		t.Fatal(err)
	}
	runner := &Runner{
		Controls:   &staticControls{store: store, controls: builtinControls()[1:2]},
		Collectors: collectors,
		Evaluator:  evaluator.Default(),
		Store:      store,
	}
	summary, err := runner.Run(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ControlsFailed != 1 || summary.EvidenceCollected != 1 {
		t.Errorf("summary = %+v", summary)
	}
	evidence, err := store.EvidenceAt(context.Background(), "CC7.2", baseTime)
	if err != nil || len(evidence) != 1 {
		t.Fatalf("EvidenceAt = %v, %v", evidence, err)
	}
	if kind := evidence[0].RawSnapshot.String(compliance.ErrorKindKey, ""); kind != compliance.ErrorKindFetch {
		t.Errorf("error_kind = %q", kind)
	}
	latest, err := store.LatestEvaluation(context.Background(), "CC7.2")
	if err != nil {
		t.Fatalf("LatestEvaluation: %v", err)
	}
	if !latest.Details.Map(evaluator.DetailEvidenceErrors).Has("cicd") {
		t.Errorf("details missing evidence_errors: %v", latest.Details)
	}
}

// failingStore fails the n-th WriteControl call.
type failingStore struct {
	*auditstore.Store
	failOn int
	calls  int
}

func (s *failingStore) WriteControl(ctx context.Context, fn func(tx *auditstore.Tx) error) error {
	s.calls++
	if s.calls == s.failOn {
		return fmt.Errorf("disk I/O error")
	}
	return s.Store.WriteControl(ctx, fn)
}

func TestRun_StoreFailureKeepsPrefix(t *testing.T) {
	store := openTestStore(t)
	runner := &Runner{
		Controls:   &staticControls{store: store, controls: builtinControls()},
		Collectors: collector.NewRegistry(collector.Options{}),
		Evaluator:  evaluator.Default(),
		Store:      &failingStore{Store: store, failOn: 2},
	}
	summary, err := runner.Run(context.Background(), baseTime)
	if err == nil {
		t.Fatal("expected store failure")
	}
	if summary.ControlsProcessed != 1 || summary.EvaluationsCreated != 1 {
		t.Errorf("summary = %+v, want only the first control", summary)
	}
	if _, err := store.LatestEvaluation(context.Background(), "CC6.1"); err != nil {
		t.Errorf("first control not committed: %v", err)
	}
	if _, err := store.LatestEvaluation(context.Background(), "CC7.2"); !errors.Is(err, auditstore.ErrNotFound) {
		t.Errorf("failed control: got %v, want ErrNotFound", err)
	}

	runs, err := store.Runs(context.Background(), 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].State != compliance.RunFailed || runs[0].Summary.ControlsProcessed != 1 {
		t.Errorf("run ledger = %+v", runs)
	}
}

func TestRun_CancellationFinishesStartedControl(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collectors := collector.NewRegistry(collector.Options{})
	cancelling := collector.Func(func(collectCtx context.Context, request collector.Request) (compliance.Snapshot, error) {
		cancel()
		if collectCtx.Err() != nil {
			t.Error("collector context cancelled with the run")
		}
		return collector.IAMFixture{}.Collect(collectCtx, request)
	})
	if err := collectors.Register(compliance.SourceCloudIAM, cancelling); err != nil {
		t.Fatal(err)
	}
	runner := &Runner{
		Controls:   &staticControls{store: store, controls: builtinControls()},
		Collectors: collectors,
		Evaluator:  evaluator.Default(),
		Store:      store,
	}

	summary, err := runner.Run(ctx, baseTime)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if summary.ControlsProcessed != 1 {
		t.Errorf("controls_processed = %d, want 1", summary.ControlsProcessed)
	}
	if _, err := store.LatestEvaluation(context.Background(), "CC6.1"); err != nil {
		t.Errorf("started control not written: %v", err)
	}
	runs, err := store.Runs(context.Background(), 1)
	if err != nil || len(runs) != 1 || runs[0].State != compliance.RunFailed {
		t.Errorf("run ledger = %+v, %v", runs, err)
	}
}

func TestRun_RefreshFailure(t *testing.T) {
	store := openTestStore(t)
	runner := &Runner{
		Controls: refreshFunc(func(context.Context, time.Time) ([]compliance.Control, error) {
			return nil, errors.New("definitions directory missing")
		}),
		Collectors: collector.NewEmptyRegistry(),
		Evaluator:  evaluator.Default(),
		Store:      store,
	}

	summary, err := runner.Run(context.Background(), baseTime)
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if summary.ControlsProcessed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	runs, err := store.Runs(context.Background(), 1)
	if err != nil || len(runs) != 1 || runs[0].State != compliance.RunFailed {
		t.Errorf("run ledger = %+v, %v", runs, err)
	}
}

type refreshFunc func(ctx context.Context, at time.Time) ([]compliance.Control, error)

func (f refreshFunc) Refresh(ctx context.Context, at time.Time) ([]compliance.Control, error) {
	return f(ctx, at)
}
