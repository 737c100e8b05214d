// Package store implements diskuto's relational storage engine: the
// SQLite-backed writer/reader connection pool, off-thread dispatch of
// blocking SQL work, the item/profile/follow/known_user/file query surface,
// and the content-addressable blob side-store in the store/blob
// subpackage.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	_ "github.com/mattn/go-sqlite3"

	"diskuto/internal/config"
	"diskuto/internal/database/migrations"
)

// Store owns the writer/reader connection pools and the off-I/O-thread
// dispatcher every blocking call goes through.
type Store struct {
	writer     *sql.DB
	reader     *sql.DB
	dispatcher *Dispatcher
}

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting query functions
// run either standalone against the reader pool or inside a caller-owned
// write transaction.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// pragmas applied to every connection, following the pool-sizing and
// durability tradeoffs of a WAL-mode single-writer embedded database.
const dsnPragmas = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

// Open opens the writer and reader pools against the same WAL-mode file and
// starts the dispatcher. It does not run migrations; call CheckMigrations or
// MigrateUp explicitly.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	writer, err := sql.Open("sqlite3", cfg.Path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("opening writer connection: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite3", cfg.Path+dsnPragmas)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("opening reader pool: %w", err)
	}
	readerConns := cfg.ReaderConns
	if readerConns <= 0 {
		readerConns = config.DefaultReaderConns
	}
	reader.SetMaxOpenConns(readerConns)

	return &Store{
		writer:     writer,
		reader:     reader,
		dispatcher: newDispatcher(runtime.NumCPU()),
	}, nil
}

// Close stops the dispatcher and closes both connection pools.
func (s *Store) Close() error {
	s.dispatcher.close()
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("closing writer pool: %w", err)
	}
	if err := s.reader.Close(); err != nil {
		return fmt.Errorf("closing reader pool: %w", err)
	}
	return nil
}

// CheckMigrations verifies the on-disk schema matches the version this
// binary expects. `serve` calls this and refuses to start on a mismatch.
func (s *Store) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.writer)
}

// MigrateUp brings the schema to the latest version.
func (s *Store) MigrateUp() error {
	return migrations.MigrateUp(s.writer)
}

// BackupTo writes a consistent snapshot of the database to destPath using
// SQLite's VACUUM INTO, dispatched off the calling goroutine.
func (s *Store) BackupTo(ctx context.Context, destPath string) error {
	_, err := Dispatch(ctx, s.dispatcher, func() (struct{}, error) {
		_, err := s.writer.ExecContext(context.WithoutCancel(ctx), "VACUUM INTO ?", destPath)
		return struct{}{}, err
	})
	return err
}

// WithWriteTx runs fn inside a new write transaction dispatched off the
// calling goroutine, committing on success and rolling back on error or
// panic.
func (s *Store) WithWriteTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	_, err := Dispatch(ctx, s.dispatcher, func() (struct{}, error) {
		ctx := context.WithoutCancel(ctx)
		tx, err := s.writer.BeginTx(ctx, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("beginning transaction: %w", err)
		}
		if err := fn(ctx, tx); err != nil {
			tx.Rollback()
			return struct{}{}, err
		}
		if err := tx.Commit(); err != nil {
			return struct{}{}, fmt.Errorf("committing transaction: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Reader dispatches fn against the read pool off the calling goroutine.
func Reader[T any](ctx context.Context, s *Store, fn func(ctx context.Context, q Queryer) (T, error)) (T, error) {
	return Dispatch(ctx, s.dispatcher, func() (T, error) {
		return fn(context.WithoutCancel(ctx), s.reader)
	})
}

// ReaderDB exposes the reader pool directly for the liveness probe.
func (s *Store) ReaderDB() *sql.DB {
	return s.reader
}
