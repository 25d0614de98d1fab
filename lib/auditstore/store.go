// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/ccengine/lib/sqlitepool"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("auditstore: not found")

	// ErrDuplicate is returned when an insert would violate a
	// uniqueness key.
	ErrDuplicate = errors.New("auditstore: duplicate record")

	// ErrImmutable is returned when a write would modify an
	// append-only record.
	ErrImmutable = errors.New("auditstore: record is immutable")

	// ErrDigestMismatch is returned when a stored evidence snapshot no
	// longer matches its recorded digest.
	ErrDigestMismatch = errors.New("auditstore: evidence digest mismatch")
)

// Config holds the parameters for opening a store. Path is required.
type Config struct {
	Path        string
	PoolSize    int
	BusyTimeout time.Duration
	Synchronous sqlitepool.Synchronous

	// Compression is applied to new evidence snapshots. Defaults to
	// CompressionZstd.
	Compression Compression

	Logger *slog.Logger
}

// Store is the SQLite-backed audit store. Safe for concurrent use.
type Store struct {
	pool        *sqlitepool.Pool
	compression Compression
	logger      *slog.Logger
}

// Open opens (creating if needed) the database at cfg.Path and brings
// its schema up to date.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	compression := cfg.Compression
	if compression == "" {
		compression = CompressionZstd
	}
	if _, err := ParseCompression(string(compression)); err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:        cfg.Path,
		PoolSize:    cfg.PoolSize,
		BusyTimeout: cfg.BusyTimeout,
		Synchronous: cfg.Synchronous,
		Migrations:  migrations,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	return &Store{pool: pool, compression: compression, logger: logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// classify maps SQLite constraint failures onto the package's
// sentinel errors, keeping the original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintUnique, sqlite.ResultConstraintPrimaryKey:
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case sqlite.ResultConstraintTrigger:
		return fmt.Errorf("%w: %w", ErrImmutable, err)
	}
	return err
}

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(nanos int64) time.Time { return time.Unix(0, nanos).UTC() }

// nullableNanos returns nil for the zero time so it binds as NULL.
func nullableNanos(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func columnTime(stmt *sqlite.Stmt, column int) time.Time {
	if stmt.ColumnIsNull(column) {
		return time.Time{}
	}
	return fromNanos(stmt.ColumnInt64(column))
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

// nullableText returns nil for the empty string so it binds as NULL.
func nullableText(text string) any {
	if text == "" {
		return nil
	}
	return text
}
