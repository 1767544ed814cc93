// Package store implements the embedded SQLite persistence layer: schema
// migrations, transactional writes, and CRUD over models, conversations,
// and application state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store owns the single database file and all access to it. Safe for
// concurrent use from multiple goroutines; database/sql pools the
// underlying connections and WAL keeps readers unblocked by the writer.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens or creates the database at path, runs any pending schema
// migrations, and purges model rows with invalid names. A store whose
// schema version is newer than this build supports refuses to open.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=synchronous(normal)&_pragma=busy_timeout(30000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db, path: path, log: log}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	if n, err := s.cleanupInvalidModels(context.Background()); err == nil && n > 0 {
		log.Info().Int("removed", n).Msg("purged models with invalid names")
	}

	log.Debug().Str("path", path).Msg("store opened")
	return s, nil
}

// withTx runs fn inside a transaction. Exactly one of commit or rollback
// happens: commit on a nil return, rollback (and the error propagated)
// otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		s.log.Debug().Err(err).Msg("transaction rolled back")
		return err
	}
	return tx.Commit()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. Connections checked out by in-flight
// operations are released as those operations finish.
func (s *Store) Close() error {
	return s.db.Close()
}
