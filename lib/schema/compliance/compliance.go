// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/ccengine/lib/payload"
)

// Severity ranks how serious a failing control is. Only high severity
// controls raise alerts on regression.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity accepts a severity in any letter case.
func ParseSeverity(text string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(text))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("invalid severity %q: must be low, medium, or high", text)
}

// IsKnown reports whether s is one of the three defined severities.
func (s Severity) IsKnown() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Status is the outcome of one evaluation.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// IsKnown reports whether s is PASS or FAIL.
func (s Status) IsKnown() bool { return s == StatusPass || s == StatusFail }

// Source system identifiers for the built-in collectors.
const (
	SourceGitHub   = "github"
	SourceCloudIAM = "cloud_iam"
	SourceCICD     = "cicd"
)

// DefaultCheckFrequency is used when a definition omits one.
const DefaultCheckFrequency = "daily"

// EvidenceSource names a source system a control depends on. Options
// carries any extra keys from the definition (for example the branch
// names a GitHub collector should inspect); collectors that need no
// options ignore it.
type EvidenceSource struct {
	System  string          `json:"system"`
	Options payload.Payload `json:"options,omitempty"`
}

// Control is a named compliance requirement.
type Control struct {
	ControlID       string           `json:"control_id"`
	Name            string           `json:"name"`
	Risk            string           `json:"risk"`
	ExpectedState   payload.Payload  `json:"expected_state"`
	EvidenceSources []EvidenceSource `json:"evidence_sources"`
	Severity        Severity         `json:"severity"`
	CheckFrequency  string           `json:"check_frequency"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// SourceSystems returns the declared source identifiers in
// declaration order.
func (c Control) SourceSystems() []string {
	systems := make([]string, len(c.EvidenceSources))
	for i, source := range c.EvidenceSources {
		systems[i] = source.System
	}
	return systems
}

// Snapshot is what one collector observed for one control at one
// instant. It becomes an Evidence row once persisted.
type Snapshot struct {
	CollectedAt  time.Time       `json:"collected_at"`
	SourceSystem string          `json:"source_system"`
	RawSnapshot  payload.Payload `json:"raw_snapshot"`
}

// Error-flagged snapshot keys. A snapshot carrying ErrorKey describes
// a collection failure rather than observed system state.
const (
	ErrorKey     = "error"
	ErrorKindKey = "error_kind"
)

// Error kinds recorded under ErrorKindKey.
const (
	ErrorKindUnknownSource = "unknown_source"
	ErrorKindFetch         = "fetch_error"
)

// Error returns the failure message of an error-flagged snapshot.
func (s Snapshot) Error() (string, bool) {
	message, ok := s.RawSnapshot[ErrorKey].(string)
	return message, ok
}

// Evidence is a persisted snapshot. (ControlID, SourceSystem,
// CollectedAt) is unique.
type Evidence struct {
	ID           string          `json:"id"`
	ControlID    string          `json:"control_id"`
	SourceSystem string          `json:"source_system"`
	CollectedAt  time.Time       `json:"collected_at"`
	RawSnapshot  payload.Payload `json:"raw_snapshot"`
	Digest       payload.Digest  `json:"-"`
}

// Snapshot returns the evidence as the value a collector produced.
func (e Evidence) Snapshot() Snapshot {
	return Snapshot{CollectedAt: e.CollectedAt, SourceSystem: e.SourceSystem, RawSnapshot: e.RawSnapshot}
}

// Verdict is an evaluator's judgement for one control.
type Verdict struct {
	Status      Status          `json:"status"`
	Severity    Severity        `json:"severity"`
	Remediation string          `json:"remediation"`
	Details     payload.Payload `json:"details"`
}

// Evaluation is a persisted verdict. (ControlID, EvaluatedAt) is
// unique. EvidenceID references the first evidence row written for the
// same control and timestamp, and is empty when the control declared
// no evidence sources.
type Evaluation struct {
	ID          string          `json:"id"`
	ControlID   string          `json:"control_id"`
	EvidenceID  string          `json:"evidence_id,omitempty"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
	Status      Status          `json:"status"`
	Severity    Severity        `json:"severity"`
	Remediation string          `json:"remediation"`
	Details     payload.Payload `json:"details"`
}

// Alert records a high severity PASS to FAIL regression.
type Alert struct {
	ID             string    `json:"id"`
	ControlID      string    `json:"control_id"`
	CreatedAt      time.Time `json:"created_at"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	Remediation    string    `json:"remediation"`
	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitzero"`
}

// AlertMessage is the message recorded for a regression of control.
func AlertMessage(control Control) string {
	return fmt.Sprintf("Control %s (%s) failed after previously passing", control.ControlID, control.Name)
}

// ShouldAlert reports whether an evaluation with status current,
// following prior (nil when the control has no earlier evaluation),
// is a high severity PASS to FAIL transition.
func ShouldAlert(severity Severity, prior *Evaluation, current Status) bool {
	return severity == SeverityHigh && prior != nil && prior.Status == StatusPass && current == StatusFail
}
