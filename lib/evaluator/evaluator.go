// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"fmt"
	"sort"

	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// PassRemediation is the remediation text of every passing verdict.
const PassRemediation = "No action required."

// Detail keys and error markers shared by all verdicts.
const (
	DetailIssues         = "issues"
	DetailExpected       = "expected"
	DetailActual         = "actual"
	DetailError          = "error"
	DetailEvidenceErrors = "evidence_errors"

	ErrorUnknownControl       = "unknown_control"
	ErrorInsufficientEvidence = "insufficient_evidence"
)

// Rule evaluates one control. Implementations must be pure and must
// tolerate missing sources and missing fields.
type Rule interface {
	ControlID() string
	Evaluate(control compliance.Control, snapshots map[string]compliance.Snapshot) compliance.Verdict
}

// EvaluateFunc is the signature of a rule body.
type EvaluateFunc func(control compliance.Control, snapshots map[string]compliance.Snapshot) compliance.Verdict

type funcRule struct {
	controlID string
	evaluate  EvaluateFunc
}

func (r funcRule) ControlID() string { return r.controlID }

func (r funcRule) Evaluate(control compliance.Control, snapshots map[string]compliance.Snapshot) compliance.Verdict {
	return r.evaluate(control, snapshots)
}

// NewRule adapts a function to a Rule for controlID.
func NewRule(controlID string, evaluate EvaluateFunc) Rule {
	return funcRule{controlID: controlID, evaluate: evaluate}
}

// Registry maps control identifiers to rules. Register all rules
// before the first Evaluate; the registry is read-only afterwards and
// safe for concurrent Evaluate calls.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Default returns a registry holding the built-in rules.
func Default() *Registry {
	registry := NewRegistry()
	for _, rule := range BuiltinRules() {
		registry.MustRegister(rule)
	}
	return registry
}

// Register adds a rule. Registering a second rule for the same
// control identifier is an error.
func (r *Registry) Register(rule Rule) error {
	id := rule.ControlID()
	if id == "" {
		return fmt.Errorf("evaluator: rule has an empty control identifier")
	}
	if _, exists := r.rules[id]; exists {
		return fmt.Errorf("evaluator: rule for control %s already registered", id)
	}
	r.rules[id] = rule
	return nil
}

// MustRegister is Register for static wiring. Panics on error.
func (r *Registry) MustRegister(rule Rule) {
	if err := r.Register(rule); err != nil {
		panic(err.Error())
	}
}

// Lookup returns the rule for controlID.
func (r *Registry) Lookup(controlID string) (Rule, bool) {
	rule, ok := r.rules[controlID]
	return rule, ok
}

// ControlIDs returns the identifiers with registered rules, sorted.
func (r *Registry) ControlIDs() []string {
	ids := make([]string, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Evaluate dispatches to the control's rule. The verdict's severity is
// always the control's current severity. Snapshots flagged as
// collection errors are listed under details.evidence_errors whatever
// the rule concludes.
func (r *Registry) Evaluate(control compliance.Control, snapshots map[string]compliance.Snapshot) compliance.Verdict {
	var verdict compliance.Verdict
	rule, ok := r.rules[control.ControlID]
	switch {
	case !ok:
		verdict = compliance.Verdict{
			Status:      compliance.StatusFail,
			Remediation: fmt.Sprintf("Unknown control %s. Implement evaluator logic.", control.ControlID),
			Details:     payload.Payload{DetailError: ErrorUnknownControl},
		}
	case len(snapshots) == 0:
		verdict = compliance.Verdict{
			Status:      compliance.StatusFail,
			Remediation: fmt.Sprintf("Declare at least one evidence source for control %s.", control.ControlID),
			Details: payload.Payload{
				DetailError:    ErrorInsufficientEvidence,
				DetailExpected: expectedState(control),
			},
		}
	default:
		verdict = rule.Evaluate(control, snapshots)
	}

	verdict.Severity = control.Severity
	if verdict.Details == nil {
		verdict.Details = payload.Payload{}
	}
	if errors := evidenceErrors(snapshots); len(errors) > 0 {
		verdict.Details[DetailEvidenceErrors] = errors
	}
	return verdict
}

func evidenceErrors(snapshots map[string]compliance.Snapshot) map[string]any {
	var errors map[string]any
	for source, snapshot := range snapshots {
		message, flagged := snapshot.Error()
		if !flagged {
			continue
		}
		if errors == nil {
			errors = make(map[string]any)
		}
		errors[source] = message
	}
	return errors
}

// snapshotPayload returns the raw payload collected from source, or an
// empty payload when the source was not collected.
func snapshotPayload(snapshots map[string]compliance.Snapshot, source string) payload.Payload {
	snapshot, ok := snapshots[source]
	if !ok || snapshot.RawSnapshot == nil {
		return payload.Payload{}
	}
	return snapshot.RawSnapshot
}

func expectedState(control compliance.Control) map[string]any {
	if control.ExpectedState == nil {
		return map[string]any{}
	}
	return map[string]any(control.ExpectedState.Clone())
}

// conclude builds the verdict for a rule: FAIL with failRemediation
// when issues is non-empty, PASS otherwise.
func conclude(control compliance.Control, issues []string, failRemediation string, actual map[string]any) compliance.Verdict {
	details := payload.Payload{
		DetailExpected: expectedState(control),
		DetailActual:   actual,
	}
	if len(issues) == 0 {
		return compliance.Verdict{Status: compliance.StatusPass, Remediation: PassRemediation, Details: details}
	}
	list := make([]any, len(issues))
	for i, issue := range issues {
		list[i] = issue
	}
	details[DetailIssues] = list
	return compliance.Verdict{Status: compliance.StatusFail, Remediation: failRemediation, Details: details}
}

// Issues returns the issue list of a verdict's details.
func Issues(verdict compliance.Verdict) []string {
	var issues []string
	for _, issue := range verdict.Details.List(DetailIssues) {
		if text, ok := issue.(string); ok {
			issues = append(issues, text)
		}
	}
	return issues
}
