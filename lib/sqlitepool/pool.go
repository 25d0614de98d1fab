// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultPoolSize is used when Config.PoolSize is not positive. Writes
// are serialized by SQLite regardless; the extra connections serve
// concurrent readers.
const DefaultPoolSize = 4

// DefaultBusyTimeout is used when Config.BusyTimeout is zero.
const DefaultBusyTimeout = 5 * time.Second

// Synchronous is the value of PRAGMA synchronous.
type Synchronous string

const (
	SynchronousFull   Synchronous = "FULL"
	SynchronousNormal Synchronous = "NORMAL"
)

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the database file. The parent directory must exist.
	// ":memory:" works only with PoolSize 1, since every in-memory
	// connection is a separate database.
	Path string

	PoolSize    int
	BusyTimeout time.Duration

	// Synchronous defaults to SynchronousFull.
	Synchronous Synchronous

	// Migrations are applied in order at Open. Migration i moves the
	// database from user_version i to i+1, in its own transaction.
	// Append new migrations; never edit applied ones.
	Migrations []string

	Logger *slog.Logger
}

// Pool is a fixed-size pool of prepared SQLite connections. Safe for
// concurrent use.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool and applies pending migrations before
// returning. The caller must Close the pool.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	synchronous := cfg.Synchronous
	switch synchronous {
	case "":
		synchronous = SynchronousFull
	case SynchronousFull, SynchronousNormal:
	default:
		return nil, fmt.Errorf("sqlitepool: unsupported synchronous mode %q", synchronous)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=" + string(synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	pool := &Pool{inner: inner, logger: logger, path: cfg.Path}
	version, err := pool.migrate(ctx, cfg.Migrations)
	if err != nil {
		inner.Close()
		return nil, err
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
		"schema_version", version,
	)
	return pool, nil
}

// migrate applies migrations past the stored user_version and returns
// the resulting version.
func (p *Pool) migrate(ctx context.Context, migrations []string) (version int, err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer p.Put(conn)

	version, err = userVersion(conn)
	if err != nil {
		return 0, err
	}
	if version > len(migrations) {
		return version, fmt.Errorf("sqlitepool: %s has schema version %d, newer than this binary (%d)", p.path, version, len(migrations))
	}

	for ; version < len(migrations); version++ {
		if err := applyMigration(conn, version+1, migrations[version]); err != nil {
			return version, err
		}
		p.logger.Info("sqlite schema migrated", "path", p.path, "version", version+1)
	}
	return version, nil
}

func applyMigration(conn *sqlite.Conn, target int, script string) (err error) {
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: migration %d: %w", target, err)
	}
	defer endFn(&err)

	if err = sqlitex.ExecuteScript(conn, script, nil); err != nil {
		return fmt.Errorf("sqlitepool: migration %d: %w", target, err)
	}
	if err = sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA user_version=%d", target), nil); err != nil {
		return fmt.Errorf("sqlitepool: migration %d: setting user_version: %w", target, err)
	}
	return nil
}

func userVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. Every Take must be paired with a Put.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Put(nil) is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Read runs fn with a borrowed connection outside any explicit
// transaction.
func (p *Pool) Read(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)
	return fn(conn)
}

// Immediate runs fn inside a BEGIN IMMEDIATE transaction, which takes
// the write lock up front so reads inside fn cannot be invalidated by
// another writer. The transaction commits when fn returns nil and
// rolls back otherwise.
func (p *Pool) Immediate(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin immediate: %w", err)
	}
	defer endFn(&err)
	return fn(conn)
}

// Path returns the database file path.
func (p *Pool) Path() string { return p.path }

// Close closes every connection, waiting for borrowed ones to return.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}
