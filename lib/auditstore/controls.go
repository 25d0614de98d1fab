// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ccengine/lib/codec"
	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

const controlColumns = `control_id, name, risk, expected_state, evidence_sources,
	severity, check_frequency, created_at, updated_at`

// storedSource is the CBOR shape of one evidence source.
type storedSource struct {
	System  string         `json:"system"`
	Options map[string]any `json:"options,omitempty"`
}

// UpsertControls inserts or updates every control by identifier in one
// transaction. A new control gets CreatedAt = at; an existing control
// keeps its CreatedAt and has every other field replaced. The returned
// controls are in input order and carry their stored timestamps.
func (s *Store) UpsertControls(ctx context.Context, controls []compliance.Control, at time.Time) (stored []compliance.Control, err error) {
	err = s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		stored = make([]compliance.Control, 0, len(controls))
		for _, control := range controls {
			result, err := upsertControl(conn, control, at)
			if err != nil {
				return err
			}
			stored = append(stored, result)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upserting controls: %w", err)
	}
	return stored, nil
}

func upsertControl(conn *sqlite.Conn, control compliance.Control, at time.Time) (compliance.Control, error) {
	if !control.Severity.IsKnown() {
		return control, fmt.Errorf("control %s: invalid severity %q", control.ControlID, control.Severity)
	}
	expected, err := control.ExpectedState.Marshal()
	if err != nil {
		return control, fmt.Errorf("control %s: %w", control.ControlID, err)
	}
	sources := make([]storedSource, len(control.EvidenceSources))
	for i, source := range control.EvidenceSources {
		sources[i] = storedSource{System: source.System, Options: source.Options}
	}
	encodedSources, err := codec.Marshal(sources)
	if err != nil {
		return control, fmt.Errorf("control %s: encoding evidence sources: %w", control.ControlID, err)
	}

	var createdAt, updatedAt int64
	err = sqlitex.Execute(conn, `
		INSERT INTO controls (`+controlColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (control_id) DO UPDATE SET
			name = excluded.name,
			risk = excluded.risk,
			expected_state = excluded.expected_state,
			evidence_sources = excluded.evidence_sources,
			severity = excluded.severity,
			check_frequency = excluded.check_frequency,
			updated_at = excluded.updated_at
		RETURNING created_at, updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				control.ControlID,
				control.Name,
				control.Risk,
				expected,
				encodedSources,
				string(control.Severity),
				control.CheckFrequency,
				toNanos(at),
				toNanos(at),
			},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				createdAt = stmt.ColumnInt64(0)
				updatedAt = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return control, fmt.Errorf("control %s: %w", control.ControlID, classify(err))
	}
	control.CreatedAt = fromNanos(createdAt)
	control.UpdatedAt = fromNanos(updatedAt)
	return control, nil
}

// Controls returns every stored control ordered by identifier.
func (s *Store) Controls(ctx context.Context) ([]compliance.Control, error) {
	var controls []compliance.Control
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+controlColumns+` FROM controls ORDER BY control_id`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					control, err := scanControl(stmt)
					if err != nil {
						return err
					}
					controls = append(controls, control)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("listing controls: %w", err)
	}
	return controls, nil
}

// Control returns one control, or ErrNotFound.
func (s *Store) Control(ctx context.Context, controlID string) (compliance.Control, error) {
	var (
		control compliance.Control
		found   bool
	)
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+controlColumns+` FROM controls WHERE control_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{controlID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					var err error
					control, err = scanControl(stmt)
					found = true
					return err
				},
			})
	})
	if err != nil {
		return control, fmt.Errorf("reading control %s: %w", controlID, err)
	}
	if !found {
		return control, fmt.Errorf("control %s: %w", controlID, ErrNotFound)
	}
	return control, nil
}

func scanControl(stmt *sqlite.Stmt) (compliance.Control, error) {
	control := compliance.Control{
		ControlID:      stmt.ColumnText(0),
		Name:           stmt.ColumnText(1),
		Risk:           stmt.ColumnText(2),
		Severity:       compliance.Severity(stmt.ColumnText(5)),
		CheckFrequency: stmt.ColumnText(6),
		CreatedAt:      fromNanos(stmt.ColumnInt64(7)),
		UpdatedAt:      fromNanos(stmt.ColumnInt64(8)),
	}

	expected, err := payload.Unmarshal(columnBlob(stmt, 3))
	if err != nil {
		return control, fmt.Errorf("control %s expected_state: %w", control.ControlID, err)
	}
	control.ExpectedState = expected

	var sources []storedSource
	if err := codec.Unmarshal(columnBlob(stmt, 4), &sources); err != nil {
		return control, fmt.Errorf("control %s evidence_sources: %w", control.ControlID, err)
	}
	control.EvidenceSources = make([]compliance.EvidenceSource, len(sources))
	for i, source := range sources {
		control.EvidenceSources[i].System = source.System
		if source.Options != nil {
			options, err := payload.FromValue(source.Options)
			if err != nil {
				return control, fmt.Errorf("control %s evidence source %s: %w", control.ControlID, source.System, err)
			}
			control.EvidenceSources[i].Options = options
		}
	}
	return control, nil
}
