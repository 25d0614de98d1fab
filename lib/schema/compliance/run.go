// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compliance

import "time"

// FailedControl is the compact description of one failing control in
// a run summary.
type FailedControl struct {
	ControlID   string   `json:"control_id"`
	Name        string   `json:"name"`
	Severity    Severity `json:"severity"`
	Remediation string   `json:"remediation"`
}

// RunSummary aggregates one check run.
type RunSummary struct {
	RunAt              time.Time       `json:"run_at"`
	ControlsProcessed  int             `json:"controls_processed"`
	ControlsPassed     int             `json:"controls_passed"`
	ControlsFailed     int             `json:"controls_failed"`
	EvidenceCollected  int             `json:"evidence_collected"`
	EvaluationsCreated int             `json:"evaluations_created"`
	AlertsCreated      int             `json:"alerts_created"`
	FailedControls     []FailedControl `json:"failed_controls"`
}

// NewRunSummary returns an empty summary for a run at runAt.
// FailedControls is non-nil so it encodes as [] rather than null.
func NewRunSummary(runAt time.Time) RunSummary {
	return RunSummary{RunAt: runAt, FailedControls: []FailedControl{}}
}

// Record folds one control's outcome into the summary.
func (s *RunSummary) Record(control Control, verdict Verdict, evidenceWritten int, alertCreated bool) {
	s.ControlsProcessed++
	s.EvidenceCollected += evidenceWritten
	s.EvaluationsCreated++
	if alertCreated {
		s.AlertsCreated++
	}
	if verdict.Status == StatusPass {
		s.ControlsPassed++
		return
	}
	s.ControlsFailed++
	s.FailedControls = append(s.FailedControls, FailedControl{
		ControlID:   control.ControlID,
		Name:        control.Name,
		Severity:    verdict.Severity,
		Remediation: verdict.Remediation,
	})
}

// RunState is the lifecycle state of a run ledger entry.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// Run is a run ledger entry. Summary holds whatever was committed;
// for a failed run that is the prefix of controls written before the
// failure.
type Run struct {
	RunAt      time.Time  `json:"run_at"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
	State      RunState   `json:"state"`
	Summary    RunSummary `json:"summary"`
	Error      string     `json:"error,omitempty"`
}
