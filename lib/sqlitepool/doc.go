// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite connection pool behind the audit
// store.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool, applies a fixed set
// of pragmas to every connection, and brings the schema up to date
// with an ordered list of migrations tracked in PRAGMA user_version.
// Connections are not safe for concurrent use: each goroutine takes
// its own connection and puts it back when done.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=FULL by default: a committed evaluation survives
//     power loss. The audit trail is the only copy of the history, so
//     NORMAL is opt-in through Config.Synchronous.
//   - busy_timeout: Config.BusyTimeout, default five seconds.
//   - foreign_keys=ON: evaluations reference evidence rows.
//   - temp_store=MEMORY.
//
// # Usage
//
//	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
//	    Path:       "/var/lib/ccengine/audit.db",
//	    Logger:     logger,
//	    Migrations: []string{schemaV1, schemaV2},
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.Immediate(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "INSERT ...", &sqlitex.ExecOptions{Args: args})
//	})
//
// Callers write SQL directly and use sqlitex.Execute for cached
// statements. There is no query builder.
package sqlitepool
