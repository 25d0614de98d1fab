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
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// BeginRun records a run at runAt as running. A run timestamp can be
// used once: a second BeginRun for the same runAt returns ErrDuplicate,
// whatever the state of the first.
func (s *Store) BeginRun(ctx context.Context, runAt, startedAt time.Time) error {
	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO runs (run_at, started_at, state) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{toNanos(runAt), toNanos(startedAt), string(compliance.RunRunning)}})
	})
	if err != nil {
		return fmt.Errorf("beginning run %s: %w", runAt.UTC().Format(time.RFC3339Nano), classify(err))
	}
	return nil
}

// FinishRun closes a running ledger entry. A nil runErr marks the run
// completed; otherwise it is marked failed with the error text. The
// summary is stored in either case.
func (s *Store) FinishRun(ctx context.Context, runAt, finishedAt time.Time, summary compliance.RunSummary, runErr error) error {
	encoded, err := codec.Marshal(summary)
	if err != nil {
		return fmt.Errorf("finishing run: encoding summary: %w", err)
	}
	state := compliance.RunCompleted
	message := ""
	if runErr != nil {
		state = compliance.RunFailed
		message = runErr.Error()
	}

	var changed int
	err = s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE runs SET finished_at = ?, state = ?, summary = ?, error = ?
			 WHERE run_at = ? AND state = ?`,
			&sqlitex.ExecOptions{Args: []any{
				toNanos(finishedAt), string(state), encoded, message,
				toNanos(runAt), string(compliance.RunRunning),
			}})
		changed = conn.Changes()
		return err
	})
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if changed == 0 {
		return fmt.Errorf("finishing run %s: no running entry: %w", runAt.UTC().Format(time.RFC3339Nano), ErrNotFound)
	}
	return nil
}

// Runs returns ledger entries, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]compliance.Run, error) {
	var runs []compliance.Run
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT run_at, started_at, finished_at, state, summary, error
			 FROM runs ORDER BY run_at DESC LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{limitOrDefault(limit)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					run := compliance.Run{
						RunAt:      fromNanos(stmt.ColumnInt64(0)),
						StartedAt:  fromNanos(stmt.ColumnInt64(1)),
						FinishedAt: columnTime(stmt, 2),
						State:      compliance.RunState(stmt.ColumnText(3)),
						Error:      stmt.ColumnText(5),
					}
					if stmt.ColumnIsNull(4) {
						run.Summary = compliance.NewRunSummary(run.RunAt)
					} else if err := codec.Unmarshal(columnBlob(stmt, 4), &run.Summary); err != nil {
						return fmt.Errorf("run %d summary: %w", stmt.ColumnInt64(0), err)
					}
					runs = append(runs, run)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// InterruptedRuns returns runs still marked running. Outside an active
// run these are runs whose process died mid-run; their committed
// controls are valid and the rest were never written.
func (s *Store) InterruptedRuns(ctx context.Context) ([]time.Time, error) {
	var runAts []time.Time
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT run_at FROM runs WHERE state = ? ORDER BY run_at`,
			&sqlitex.ExecOptions{
				Args: []any{string(compliance.RunRunning)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					runAts = append(runAts, fromNanos(stmt.ColumnInt64(0)))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("listing interrupted runs: %w", err)
	}
	return runAts, nil
}
