// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controldef

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
	"github.com/bureau-foundation/ccengine/lib/testutil"
)

const accessControlYAML = `control_id: CC6.1
name: Logical Access Controls
risk: Unauthorized access to production systems
expected_state:
  mfa_required_for_privileged_users: true
  admin_access_restricted: true
evidence_sources:
  - cloud_iam
severity: HIGH
`

func TestParseYAML(t *testing.T) {
	t.Parallel()

	control, err := Parse("CC6.1.yml", []byte(accessControlYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if control.ControlID != "CC6.1" || control.Name != "Logical Access Controls" {
		t.Errorf("identity = %q %q", control.ControlID, control.Name)
	}
	if control.Severity != compliance.SeverityHigh {
		t.Errorf("Severity = %q, want high", control.Severity)
	}
	if control.CheckFrequency != "daily" {
		t.Errorf("CheckFrequency = %q, want default daily", control.CheckFrequency)
	}
	if got := control.SourceSystems(); len(got) != 1 || got[0] != "cloud_iam" {
		t.Errorf("SourceSystems = %v", got)
	}
	if !control.ExpectedState.Bool("mfa_required_for_privileged_users", false) {
		t.Error("expected_state lost mfa_required_for_privileged_users")
	}
}

func TestParseJSONC(t *testing.T) {
	t.Parallel()

	data := `{
		// Change management
		"control_id": "CC8.1",
		"name": "Change Management",
		"risk": "Unreviewed changes reach production",
		"expected_state": {"pr_reviews_required": true, "minimum_approvals": 2,},
		"evidence_sources": ["github", {"system": "cicd", "pipeline": "deploy"}],
		"severity": "medium",
		"check_frequency": "hourly",
	}`
	control, err := Parse("CC8.1.jsonc", []byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := control.ExpectedState.Int("minimum_approvals", 0); got != 2 {
		t.Errorf("minimum_approvals = %d, want 2", got)
	}
	if len(control.EvidenceSources) != 2 {
		t.Fatalf("EvidenceSources = %+v", control.EvidenceSources)
	}
	cicd := control.EvidenceSources[1]
	if cicd.System != "cicd" || cicd.Options.String("pipeline", "") != "deploy" {
		t.Errorf("second source = %+v", cicd)
	}
	if cicd.Options.Has("system") {
		t.Error("options should not repeat the system key")
	}
	if control.EvidenceSources[0].Options != nil {
		t.Errorf("bare source has options %v", control.EvidenceSources[0].Options)
	}
	if control.CheckFrequency != "hourly" {
		t.Errorf("CheckFrequency = %q", control.CheckFrequency)
	}
}

func TestParseNoSources(t *testing.T) {
	t.Parallel()

	data := "control_id: X1\nname: n\nrisk: r\nexpected_state: {}\nseverity: low\n"
	control, err := Parse("x.yaml", []byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if control.EvidenceSources == nil || len(control.EvidenceSources) != 0 {
		t.Errorf("EvidenceSources = %#v, want empty non-nil", control.EvidenceSources)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	base := map[string]string{
		"control_id":     "control_id: CC1\n",
		"name":           "name: n\n",
		"risk":           "risk: r\n",
		"expected_state": "expected_state: {a: true}\n",
		"severity":       "severity: high\n",
	}
	build := func(replace map[string]string) string {
		var builder strings.Builder
		for _, key := range []string{"control_id", "name", "risk", "expected_state", "severity"} {
			if line, ok := replace[key]; ok {
				builder.WriteString(line)
				continue
			}
			builder.WriteString(base[key])
		}
		builder.WriteString(replace["extra"])
		return builder.String()
	}

	tests := []struct {
		name       string
		data       string
		wantReason string
		wantID     string
	}{
		{"bad severity", build(map[string]string{"severity": "severity: critical\n"}), "invalid severity", "CC1"},
		{"missing control id", build(map[string]string{"control_id": ""}), "control_id", ""},
		{"missing name", build(map[string]string{"name": ""}), "name", "CC1"},
		{"expected state not mapping", build(map[string]string{"expected_state": "expected_state: [1]\n"}), "expected_state must be a mapping", "CC1"},
		{"source without system", build(map[string]string{"extra": "evidence_sources:\n  - {kind: x}\n"}), "missing a string 'system'", "CC1"},
		{"source wrong type", build(map[string]string{"extra": "evidence_sources:\n  - 5\n"}), "must be a string or a mapping", "CC1"},
		{"sources not list", build(map[string]string{"extra": "evidence_sources: github\n"}), "must be a list", "CC1"},
		{"duplicate source", build(map[string]string{"extra": "evidence_sources: [github, github]\n"}), "more than once", "CC1"},
		{"empty document", "", "empty", ""},
		{"malformed yaml", "control_id: [", "parsing YAML", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse("def.yml", []byte(test.data))
			if err == nil {
				t.Fatal("expected error")
			}
			var definitionError *DefinitionError
			if !errors.As(err, &definitionError) {
				t.Fatalf("error %v is not a *DefinitionError", err)
			}
			if !strings.Contains(definitionError.Reason, test.wantReason) {
				t.Errorf("Reason = %q, want substring %q", definitionError.Reason, test.wantReason)
			}
			if definitionError.ControlID != test.wantID {
				t.Errorf("ControlID = %q, want %q", definitionError.ControlID, test.wantID)
			}
			if definitionError.File != "def.yml" {
				t.Errorf("File = %q", definitionError.File)
			}
		})
	}
}

func TestLoadSortedOrder(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteFiles(t, map[string]string{
		"b.yml":      "control_id: B\nname: b\nrisk: r\nexpected_state: {}\nseverity: low\n",
		"a.jsonc":    `{"control_id": "A", "name": "a", "risk": "r", "expected_state": {}, "severity": "high"}`,
		"c.yaml":     "control_id: C\nname: c\nrisk: r\nexpected_state: {}\nseverity: medium\n",
		"README.md":  "not a control",
		"notes.txt":  "ignored",
		"z.yml.orig": "ignored",
	})
	controls, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var ids []string
	for _, control := range controls {
		ids = append(ids, control.ControlID)
	}
	if strings.Join(ids, ",") != "A,B,C" {
		t.Errorf("order = %v, want A,B,C", ids)
	}
}

func TestLoadAllOrNothing(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteFiles(t, map[string]string{
		"a.yml": "control_id: A\nname: a\nrisk: r\nexpected_state: {}\nseverity: low\n",
		"b.yml": "control_id: B\nname: b\nrisk: r\nexpected_state: {}\nseverity: urgent\n",
		"c.yml": "control_id: A\nname: dup\nrisk: r\nexpected_state: {}\nseverity: low\n",
	})
	controls, err := Load(dir)
	if err == nil {
		t.Fatal("expected error")
	}
	if controls != nil {
		t.Errorf("controls = %v, want nil on error", controls)
	}
	message := err.Error()
	if !strings.Contains(message, "b.yml") || !strings.Contains(message, "duplicate control_id") {
		t.Errorf("error should report both problems, got: %v", message)
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
