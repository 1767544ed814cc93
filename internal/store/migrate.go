package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// schemaVersion is the schema this build reads and writes.
const schemaVersion = 4

var (
	// ErrSchemaTooNew means the database was written by a newer build.
	// Opening it would risk silent corruption, so we refuse.
	ErrSchemaTooNew = errors.New("database schema is newer than supported")

	// ErrMigration wraps any failure while upgrading the schema. The
	// store is left at its pre-migration version.
	ErrMigration = errors.New("schema migration failed")
)

// migrationSteps upgrade the schema one version forward each, keyed by
// the version they upgrade from. They run in order inside a single
// transaction, so a store several versions behind reaches the current
// version in one open and a failure leaves it untouched.
var migrationSteps = map[int]func(tx *sql.Tx) error{
	1: migrateV1toV2,
	2: migrateV2toV3,
	3: migrateV3toV4,
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS db_metadata (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT
		)`)
	if err != nil {
		return fmt.Errorf("%w: ensure metadata table: %v", ErrMigration, err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: read schema version: %v", ErrMigration, err)
	}

	switch {
	case current > schemaVersion:
		return fmt.Errorf("%w: found %d, supported %d", ErrSchemaTooNew, current, schemaVersion)
	case current == schemaVersion:
		return nil
	}

	s.log.Info().Int("from", current).Int("to", schemaVersion).Msg("migrating schema")

	// Table rebuilds rename and drop tables that other tables reference.
	// Foreign keys must be off on the migration connection or the drops
	// would cascade into live rows. The pragma is a no-op inside a
	// transaction, so it is set on a dedicated connection first.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigration, err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("%w: %v", ErrMigration, err)
	}
	defer conn.ExecContext(ctx, `PRAGMA foreign_keys = ON`)

	err = func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if current == 0 {
			// Fresh database: create the current schema directly.
			if err := createSchema(tx); err != nil {
				return err
			}
		} else {
			for v := current; v < schemaVersion; v++ {
				step, ok := migrationSteps[v]
				if !ok {
					return fmt.Errorf("no migration step from version %d", v)
				}
				if err := step(tx); err != nil {
					return fmt.Errorf("step %d to %d: %w", v, v+1, err)
				}
			}
		}
		if err := setSchemaVersion(tx, schemaVersion); err != nil {
			return err
		}
		return tx.Commit()
	}()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigration, err)
	}

	s.log.Info().Int("version", schemaVersion).Msg("schema migration complete")
	return nil
}

// SchemaVersion returns the stored schema version, 0 if none is recorded.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT CAST(value AS INTEGER) FROM db_metadata WHERE key = 'schema_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func setSchemaVersion(tx *sql.Tx, v int) error {
	_, err := tx.Exec(`
		INSERT INTO db_metadata (key, value, updated_at)
		VALUES ('schema_version', ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		fmt.Sprint(v))
	return err
}

func createSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE models (
			name        TEXT PRIMARY KEY,
			size        INTEGER,
			digest      TEXT,
			modified_at TEXT,

			format             TEXT,
			family             TEXT,
			families           TEXT,
			parameter_size     TEXT,
			quantization_level TEXT,

			modelfile  TEXT,
			parameters TEXT,
			template   TEXT,
			system     TEXT,

			capabilities TEXT,

			is_cached     INTEGER DEFAULT 1,
			last_accessed TEXT,
			created_at    TEXT,
			updated_at    TEXT
		)`,
		`CREATE TABLE conversations (
			conversation_id TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			model_name      TEXT,
			system_prompt   TEXT,

			total_tokens  INTEGER DEFAULT 0,
			total_time    REAL DEFAULT 0.0,
			message_count INTEGER DEFAULT 0,

			created_at TEXT,
			updated_at TEXT
		)`,
		`CREATE TABLE messages (
			message_id      TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,

			model_name      TEXT,
			tokens_used     INTEGER,
			generation_time REAL,
			timestamp       TEXT,

			error    TEXT,
			is_error INTEGER DEFAULT 0,

			sequence_number INTEGER NOT NULL,

			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE message_attachments (
			attachment_id   TEXT PRIMARY KEY,
			message_id      TEXT NOT NULL,
			attachment_type TEXT NOT NULL,

			data      TEXT,
			filename  TEXT,
			mime_type TEXT,
			size      INTEGER,

			created_at TEXT,

			FOREIGN KEY (message_id) REFERENCES messages(message_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE app_state (
			key         TEXT PRIMARY KEY,
			value       TEXT,
			value_type  TEXT DEFAULT 'string',
			description TEXT,
			updated_at  TEXT
		)`,
		`CREATE INDEX idx_models_family ON models(family)`,
		`CREATE INDEX idx_models_last_accessed ON models(last_accessed)`,
		`CREATE INDEX idx_conversations_model ON conversations(model_name)`,
		`CREATE INDEX idx_conversations_updated ON conversations(updated_at)`,
		`CREATE INDEX idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX idx_messages_timestamp ON messages(timestamp)`,
		`CREATE INDEX idx_messages_sequence ON messages(conversation_id, sequence_number)`,
		`CREATE INDEX idx_attachments_message ON message_attachments(message_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateV1toV2 adds the capabilities column to models.
func migrateV1toV2(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE models ADD COLUMN capabilities TEXT`)
	return err
}

// migrateV2toV3 rebuilds conversations without the foreign key on
// model_name. SQLite cannot drop a constraint in place, so: rename,
// recreate, copy, drop, reindex.
func migrateV2toV3(tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE conversations RENAME TO conversations_old`,
		`CREATE TABLE conversations (
			conversation_id TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			model_name      TEXT,
			system_prompt   TEXT,
			total_tokens    INTEGER DEFAULT 0,
			total_time      REAL DEFAULT 0.0,
			message_count   INTEGER DEFAULT 0,
			created_at      TEXT,
			updated_at      TEXT
		)`,
		`INSERT INTO conversations SELECT * FROM conversations_old`,
		`DROP TABLE conversations_old`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateV3toV4 rebuilds messages so its foreign key references the
// rebuilt conversations table rather than the renamed original.
func migrateV3toV4(tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE messages RENAME TO messages_old`,
		`CREATE TABLE messages (
			message_id      TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			model_name      TEXT,
			tokens_used     INTEGER,
			generation_time REAL,
			timestamp       TEXT,
			error           TEXT,
			is_error        INTEGER DEFAULT 0,
			sequence_number INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
		)`,
		`INSERT INTO messages SELECT * FROM messages_old`,
		`DROP TABLE messages_old`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sequence ON messages(conversation_id, sequence_number)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
