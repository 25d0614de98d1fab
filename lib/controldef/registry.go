// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controldef

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// Upserter persists control definitions by identifier. It returns the
// stored controls in the order given, carrying their original
// creation times.
type Upserter interface {
	UpsertControls(ctx context.Context, controls []compliance.Control, at time.Time) ([]compliance.Control, error)
}

// Registry refreshes the stored control registry from a definitions
// directory.
type Registry struct {
	Dir    string
	Store  Upserter
	Logger *slog.Logger
}

// Refresh loads every definition and upserts it. On any definition
// error nothing is written.
func (r *Registry) Refresh(ctx context.Context, at time.Time) ([]compliance.Control, error) {
	controls, err := Load(r.Dir)
	if err != nil {
		return nil, err
	}
	stored, err := r.Store.UpsertControls(ctx, controls, at)
	if err != nil {
		return nil, fmt.Errorf("upserting controls: %w", err)
	}
	if r.Logger != nil {
		r.Logger.Debug("control registry refreshed", "dir", r.Dir, "controls", len(stored))
	}
	return stored, nil
}
