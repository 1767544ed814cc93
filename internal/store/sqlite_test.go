package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamalot/llamalot/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testModel(name string) *model.Model {
	return &model.Model{
		Name:       name,
		Size:       4_700_000_000,
		Digest:     "sha256:abc123",
		ModifiedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Details: model.Details{
			Format:            "gguf",
			Family:            "llama",
			Families:          []string{"llama"},
			ParameterSize:     "8B",
			QuantizationLevel: "Q4_K_M",
		},
		Capabilities: []string{"completion"},
		Info: &model.Info{
			Architecture:   "llama",
			ParameterCount: 8_030_000_000,
			ContextLength:  8192,
		},
	}
}

func TestOpenFreshStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Models)
	assert.Equal(t, schemaVersion, stats.SchemaVersion)
}

func TestReopenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SaveModel(ctx, testModel("llama3:8b")))
	require.NoError(t, s.Close())

	// Opening a store already at the current version migrates nothing
	// and leaves data untouched.
	s, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	m, err := s.GetModel(ctx, "llama3:8b")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "sha256:abc123", m.Digest)
}

func TestSchemaTooNewRefusesToOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`UPDATE db_metadata SET value = '99' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, zerolog.Nop())
	require.ErrorIs(t, err, ErrSchemaTooNew)
}

// buildV1Store hand-builds a version 1 database: no capabilities column,
// a foreign key on conversations.model_name, and messages referencing
// conversations directly.
func buildV1Store(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(on)")
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE db_metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TEXT)`,
		`INSERT INTO db_metadata (key, value) VALUES ('schema_version', '1')`,
		`CREATE TABLE models (
			name TEXT PRIMARY KEY, size INTEGER, digest TEXT, modified_at TEXT,
			format TEXT, family TEXT, families TEXT, parameter_size TEXT, quantization_level TEXT,
			modelfile TEXT, parameters TEXT, template TEXT, system TEXT,
			is_cached INTEGER DEFAULT 1, last_accessed TEXT, created_at TEXT, updated_at TEXT
		)`,
		`CREATE TABLE conversations (
			conversation_id TEXT PRIMARY KEY, title TEXT NOT NULL, model_name TEXT, system_prompt TEXT,
			total_tokens INTEGER DEFAULT 0, total_time REAL DEFAULT 0.0, message_count INTEGER DEFAULT 0,
			created_at TEXT, updated_at TEXT,
			FOREIGN KEY (model_name) REFERENCES models(name)
		)`,
		`CREATE TABLE messages (
			message_id TEXT PRIMARY KEY, conversation_id TEXT NOT NULL, role TEXT NOT NULL, content TEXT NOT NULL,
			model_name TEXT, tokens_used INTEGER, generation_time REAL, timestamp TEXT,
			error TEXT, is_error INTEGER DEFAULT 0, sequence_number INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE message_attachments (
			attachment_id TEXT PRIMARY KEY, message_id TEXT NOT NULL, attachment_type TEXT NOT NULL,
			data TEXT, filename TEXT, mime_type TEXT, size INTEGER, created_at TEXT,
			FOREIGN KEY (message_id) REFERENCES messages(message_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE app_state (
			key TEXT PRIMARY KEY, value TEXT, value_type TEXT DEFAULT 'string',
			description TEXT, updated_at TEXT
		)`,
		`INSERT INTO models (name, size, digest, family, families)
			VALUES ('llama2:7b', 3800000000, 'sha256:old', 'llama', '[''llama'']')`,
		`INSERT INTO conversations (conversation_id, title, model_name, created_at, updated_at)
			VALUES ('conv-1', 'hello', 'llama2:7b', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`,
		`INSERT INTO messages (message_id, conversation_id, role, content, timestamp, sequence_number)
			VALUES ('conv-1_msg_0', 'conv-1', 'user', 'hi', '2024-01-01T00:00:00Z', 0)`,
		`INSERT INTO messages (message_id, conversation_id, role, content, timestamp, sequence_number)
			VALUES ('conv-1_msg_1', 'conv-1', 'assistant', 'hello there', '2024-01-01T00:00:01Z', 1)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func TestMultiStepMigration(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	buildV1Store(t, path)

	// A store three versions behind reaches the current version in one
	// open, with data preserved.
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	// The v1 legacy literal list format is still readable.
	m, err := s.GetModel(ctx, "llama2:7b")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{"llama"}, m.Details.Families)

	// The capabilities column added in v2 is writable.
	m.Capabilities = []string{"completion"}
	require.NoError(t, s.SaveModel(ctx, m))

	c, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "hi", c.Messages[0].Content)

	// The rebuilt foreign key cascades from the rebuilt tables.
	deleted, err := s.DeleteConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	var msgs int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&msgs))
	assert.Zero(t, msgs)
}

func TestMigrationFailureRollsBackEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	buildV1Store(t, path)

	// A leftover table collides with the v2 to v3 rebuild.
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE conversations_old (x INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path, zerolog.Nop())
	require.ErrorIs(t, err, ErrMigration)

	// The store is left at its pre-migration version with no partial
	// schema change visible, including the v1 to v2 step that ran
	// inside the same transaction.
	db, err = sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var v string
	require.NoError(t, db.QueryRow(
		`SELECT value FROM db_metadata WHERE key = 'schema_version'`).Scan(&v))
	assert.Equal(t, "1", v)

	rows, err := db.Query(`SELECT name FROM pragma_table_info('models')`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var col string
		require.NoError(t, rows.Scan(&col))
		assert.NotEqual(t, "capabilities", col)
	}
	require.NoError(t, rows.Err())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveModel(ctx, testModel("llama3:8b")))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM models`); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO nonexistent VALUES (1)`)
		return err
	})
	require.Error(t, err)

	// The delete inside the failed transaction is not visible.
	m, err := s.GetModel(ctx, "llama3:8b")
	require.NoError(t, err)
	assert.NotNil(t, m)
}
