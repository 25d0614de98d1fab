// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controldef

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// DefinitionError describes an invalid control definition. ControlID
// is empty when the file could not be parsed far enough to read it.
type DefinitionError struct {
	File      string
	ControlID string
	Reason    string
}

func (e *DefinitionError) Error() string {
	if e.ControlID == "" {
		return fmt.Sprintf("control definition %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("control definition %s (control %s): %s", e.File, e.ControlID, e.Reason)
}

// IsDefinitionFile reports whether name has an extension Load reads.
func IsDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml", ".json", ".jsonc":
		return true
	}
	return false
}

// Load reads every definition file in dir in sorted name order. If any
// file is invalid, Load returns nil and an error joining one
// *DefinitionError per problem.
func Load(dir string) ([]compliance.Control, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading control definitions: %w", err)
	}

	var (
		controls []compliance.Control
		problems []error
		seen     = make(map[string]string)
	)
	// os.ReadDir returns entries sorted by file name.
	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading control definition %s: %w", path, err)
		}
		control, err := Parse(entry.Name(), data)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		if previous, duplicate := seen[control.ControlID]; duplicate {
			problems = append(problems, &DefinitionError{
				File:      entry.Name(),
				ControlID: control.ControlID,
				Reason:    fmt.Sprintf("duplicate control_id, already defined in %s", previous),
			})
			continue
		}
		seen[control.ControlID] = entry.Name()
		controls = append(controls, control)
	}

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return controls, nil
}

// Parse decodes and normalizes one definition. The format is chosen by
// the extension of name: .json and .jsonc are JSONC, anything else is
// YAML.
func Parse(name string, data []byte) (compliance.Control, error) {
	fail := func(controlID, format string, args ...any) (compliance.Control, error) {
		return compliance.Control{}, &DefinitionError{File: name, ControlID: controlID, Reason: fmt.Sprintf(format, args...)}
	}

	raw, err := decode(name, data)
	if err != nil {
		return fail("", "%v", err)
	}
	document, err := payload.FromValue(raw)
	if err != nil {
		return fail("", "%v", err)
	}

	controlID, err := requiredString(document, "control_id")
	if err != nil {
		return fail("", "%v", err)
	}
	control := compliance.Control{ControlID: controlID}

	if control.Name, err = requiredString(document, "name"); err != nil {
		return fail(controlID, "%v", err)
	}
	if control.Risk, err = requiredString(document, "risk"); err != nil {
		return fail(controlID, "%v", err)
	}

	expected, ok := document.Get("expected_state")
	if !ok {
		return fail(controlID, "missing required field expected_state")
	}
	expectedMap, ok := expected.(map[string]any)
	if !ok {
		return fail(controlID, "expected_state must be a mapping, got %s", describe(expected))
	}
	control.ExpectedState = payload.Payload(expectedMap)

	severityText, err := requiredString(document, "severity")
	if err != nil {
		return fail(controlID, "%v", err)
	}
	if control.Severity, err = compliance.ParseSeverity(severityText); err != nil {
		return fail(controlID, "invalid severity %q: must be low, medium, or high", severityText)
	}

	if control.EvidenceSources, err = parseSources(document); err != nil {
		return fail(controlID, "%v", err)
	}

	control.CheckFrequency = compliance.DefaultCheckFrequency
	if document.Has("check_frequency") {
		frequency, ok := document["check_frequency"].(string)
		if !ok || strings.TrimSpace(frequency) == "" {
			return fail(controlID, "check_frequency must be a non-empty string")
		}
		control.CheckFrequency = strings.TrimSpace(frequency)
	}

	return control, nil
}

func decode(name string, data []byte) (any, error) {
	var raw any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.UseNumber()
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}
	if raw == nil {
		return nil, errors.New("definition is empty")
	}
	return raw, nil
}

func parseSources(document payload.Payload) ([]compliance.EvidenceSource, error) {
	value, ok := document.Get("evidence_sources")
	if !ok || value == nil {
		return []compliance.EvidenceSource{}, nil
	}
	entries, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("evidence_sources must be a list, got %s", describe(value))
	}

	sources := make([]compliance.EvidenceSource, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		var source compliance.EvidenceSource
		switch typed := entry.(type) {
		case string:
			source.System = typed
		case map[string]any:
			system, ok := typed["system"].(string)
			if !ok {
				return nil, fmt.Errorf("evidence_sources[%d] is missing a string 'system' key", i)
			}
			source.System = system
			if len(typed) > 1 {
				source.Options = make(payload.Payload, len(typed)-1)
				for key, option := range typed {
					if key != "system" {
						source.Options[key] = option
					}
				}
			}
		default:
			return nil, fmt.Errorf("evidence_sources[%d] must be a string or a mapping, got %s", i, describe(entry))
		}
		source.System = strings.TrimSpace(source.System)
		if source.System == "" {
			return nil, fmt.Errorf("evidence_sources[%d] has an empty system", i)
		}
		// One evidence row per (control, source, run): a repeated
		// source would collide on the evidence uniqueness key.
		if seen[source.System] {
			return nil, fmt.Errorf("evidence_sources lists %q more than once", source.System)
		}
		seen[source.System] = true
		sources = append(sources, source)
	}
	return sources, nil
}

func requiredString(document payload.Payload, key string) (string, error) {
	value, ok := document.Get(key)
	if !ok || value == nil {
		return "", fmt.Errorf("missing required field %s", key)
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %s", key, describe(value))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s must not be empty", key)
	}
	return text, nil
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case int64, float64:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "a list"
	case map[string]any:
		return "a mapping"
	}
	return fmt.Sprintf("%T", value)
}
