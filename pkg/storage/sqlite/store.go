// Package sqlite provides a SQLite-backed implementation of storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/storage"
	"github.com/agoradao/agora/pkg/storage/sqlite/migrations"
)

// Store persists governance, treasury and ledger state in SQLite. Units of
// work are serialized; each one runs inside a single sql.Tx.
type Store struct {
	mu        sync.Mutex
	sqlDB     *sql.DB
	publisher storage.Publisher
}

var _ storage.Store = (*Store)(nil)

func openDB(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return sqlDB, nil
}

// Open opens a SQLite store at path and applies embedded migrations. A nil
// publisher drops committed events after journaling them.
func Open(ctx context.Context, path string, publisher storage.Publisher) (*Store, error) {
	sqlDB, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := applyMigrations(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, publisher: publisher}, nil
}

// Migrate applies pending migrations to the database at path and returns the
// names of the files it applied.
func Migrate(ctx context.Context, path string) ([]string, error) {
	sqlDB, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()
	return applyMigrations(ctx, sqlDB, migrations.FS, ".")
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Atomic runs fn inside one SQL transaction, joining the one carried by ctx
// when present.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if tx, ok := storage.TxFrom(ctx, s); ok {
		return fn(ctx, tx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	pending, err := s.run(ctx, fn)
	if err != nil {
		return err
	}
	if s.publisher != nil && len(pending) > 0 {
		s.publisher.Publish(ctx, pending)
	}
	return nil
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		if strings.Contains(err.Error(), "database is closed") {
			return nil, storage.ErrClosed
		}
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	tx := &sqliteTx{tx: sqlTx}
	if err := fn(storage.WithTx(ctx, s, tx), tx); err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return tx.pending, nil
}
