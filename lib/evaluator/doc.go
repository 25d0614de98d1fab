// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package evaluator turns a control and its freshly collected evidence
// snapshots into a verdict.
//
// Evaluation logic is control-specific Go code. Each control's logic
// is a [Rule] registered under the control identifier; [Registry]
// dispatches by identifier and never fails: a control without a rule
// yields a FAIL verdict flagged "unknown_control", and a control that
// collected no snapshots at all yields a FAIL verdict flagged
// "insufficient_evidence". Rules are pure functions of their inputs.
// They perform no I/O and never read the clock.
//
// Every rule follows the same shape. It reads the snapshots it needs
// (a missing source reads as an empty payload), compares each expected
// field against the observed value, and collects every unmet
// expectation into an ordered issue list. The status is FAIL iff that
// list is non-empty. The remediation is a fixed numbered action list
// per control, or "No action required." on pass. Details always carry
// "expected" and a normalized "actual" view, plus "issues" on failure.
package evaluator
