package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamalot/llamalot/internal/model"
)

func backdate(t *testing.T, s *Store, table, column, key, value string, ts time.Time) {
	t.Helper()
	_, err := s.db.Exec(
		`UPDATE `+table+` SET `+column+` = ? WHERE `+key+` = ?`,
		ts.UTC().Format(timeFormat), value)
	require.NoError(t, err)
}

func TestCleanupOldData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	old := time.Now().UTC().AddDate(0, 0, -60)

	// Stale conversation, fresh conversation.
	require.NoError(t, s.SaveConversation(ctx, testConversation("stale-conv", "hi")))
	backdate(t, s, "conversations", "updated_at", "conversation_id", "stale-conv", old)
	require.NoError(t, s.SaveConversation(ctx, testConversation("fresh-conv", "hi")))

	// Unused stale model, stale model still referenced by fresh-conv,
	// and a fresh model.
	require.NoError(t, s.SaveModel(ctx, testModel("unused-old")))
	backdate(t, s, "models", "last_accessed", "name", "unused-old", old)
	require.NoError(t, s.SaveModel(ctx, testModel("llama3:8b")))
	backdate(t, s, "models", "last_accessed", "name", "llama3:8b", old)
	require.NoError(t, s.SaveModel(ctx, testModel("fresh")))

	stats, err := s.CleanupOldData(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Conversations)
	assert.Equal(t, 1, stats.Models)

	// Referenced-by-conversation keeps a stale model alive.
	m, err := s.GetModel(ctx, "llama3:8b")
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = s.GetModel(ctx, "unused-old")
	require.NoError(t, err)
	assert.Nil(t, m)

	c, err := s.GetConversation(ctx, "fresh-conv")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveModel(ctx, testModel("llama3:8b")))
	require.NoError(t, s.SaveConversation(ctx, testConversation("conv-1", "hi", "hello")))
	require.NoError(t, s.SetAppState(ctx, "k", "v", ""))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Models)
	assert.Equal(t, 1, stats.Conversations)
	assert.Equal(t, 2, stats.Messages)
	assert.Equal(t, 1, stats.AppState)
	assert.Equal(t, schemaVersion, stats.SchemaVersion)
	assert.Positive(t, stats.FileSizeBytes)
}

func TestPurgeCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveModel(ctx, testModel("llama3:8b")))
	c := testConversation("conv-1", "hi")
	c.Messages[0].Attachments = []model.Attachment{{Data: "xyz"}}
	require.NoError(t, s.SaveConversation(ctx, c))
	require.NoError(t, s.SetAppState(ctx, "keep-me", "v", ""))

	require.NoError(t, s.PurgeCache(ctx))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Models)
	assert.Zero(t, stats.Conversations)
	assert.Zero(t, stats.Messages)
	assert.Zero(t, stats.Attachments)

	// App state survives a purge.
	assert.Equal(t, "v", s.GetAppState(ctx, "keep-me", nil))
}
