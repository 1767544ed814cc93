package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamalot/llamalot/internal/model"
)

func TestSaveAndGetModelRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := testModel("llama3:8b")
	require.NoError(t, s.SaveModel(ctx, in))

	out, err := s.GetModel(ctx, "llama3:8b")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Size, out.Size)
	assert.Equal(t, in.Digest, out.Digest)
	assert.True(t, in.ModifiedAt.Equal(out.ModifiedAt))
	assert.Equal(t, in.Details, out.Details)
	assert.Equal(t, in.Capabilities, out.Capabilities)
	require.NotNil(t, out.Info)
	assert.Equal(t, *in.Info, *out.Info)
}

func TestGetModelMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.GetModel(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestGetModelBumpsLastAccessed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveModel(ctx, testModel("llama3:8b")))

	var before string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT last_accessed FROM models WHERE name = 'llama3:8b'`).Scan(&before))

	// Backdate, then read through the API.
	old := time.Now().UTC().Add(-2 * time.Hour).Format(timeFormat)
	_, err := s.db.ExecContext(ctx,
		`UPDATE models SET last_accessed = ? WHERE name = 'llama3:8b'`, old)
	require.NoError(t, err)

	_, err = s.GetModel(ctx, "llama3:8b")
	require.NoError(t, err)

	var after string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT last_accessed FROM models WHERE name = 'llama3:8b'`).Scan(&after))
	assert.Greater(t, after, old)
}

func TestSaveModelPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := testModel("llama3:8b")
	require.NoError(t, s.SaveModel(ctx, m))

	var created string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT created_at FROM models WHERE name = 'llama3:8b'`).Scan(&created))

	// Backdate created_at, re-save, and check the upsert kept it.
	old := "2020-01-01T00:00:00Z"
	_, err := s.db.ExecContext(ctx,
		`UPDATE models SET created_at = ? WHERE name = 'llama3:8b'`, old)
	require.NoError(t, err)

	m.Size = 1
	require.NoError(t, s.SaveModel(ctx, m))

	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT created_at FROM models WHERE name = 'llama3:8b'`).Scan(&created))
	assert.Equal(t, old, created)

	out, err := s.GetModel(ctx, "llama3:8b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Size)
}

func TestSaveModelRejectsEmptyName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.SaveModel(ctx, &model.Model{Name: "  "})
	require.Error(t, err)
}

func TestListModelsOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b := testModel("b-model")
	b.Details.Family = "gemma"
	require.NoError(t, s.SaveModel(ctx, b))
	require.NoError(t, s.SaveModel(ctx, testModel("c-model")))
	require.NoError(t, s.SaveModel(ctx, testModel("a-model")))

	all, err := s.ListModels(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a-model", all[0].Name)
	assert.Equal(t, "b-model", all[1].Name)
	assert.Equal(t, "c-model", all[2].Name)

	gemma, err := s.ListModels(ctx, "gemma")
	require.NoError(t, err)
	require.Len(t, gemma, 1)
	assert.Equal(t, "b-model", gemma[0].Name)
}

func TestInvalidNamesExcludedAndPurged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveModel(ctx, testModel("good")))
	// Invalid rows can only arrive through older writers; inject one.
	_, err := s.db.ExecContext(ctx, `INSERT INTO models (name, size) VALUES ('', 1)`)
	require.NoError(t, err)

	models, err := s.ListModels(ctx, "")
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "good", models[0].Name)

	n, err := s.cleanupInvalidModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM models`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDeleteModel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveModel(ctx, testModel("llama3:8b")))

	deleted, err := s.DeleteModel(ctx, "llama3:8b")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteModel(ctx, "llama3:8b")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestParseStringList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{``, nil},
		{`["llama", "clip"]`, []string{"llama", "clip"}},
		{`['llama', 'clip']`, []string{"llama", "clip"}},
		{`['llama']`, []string{"llama"}},
		{`[]`, nil},
		{`not a list`, nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseStringList(tc.in), "input %q", tc.in)
	}
}

func TestGetModelTolerantOfNullColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Rows written by older clients carry NULL in every detail column.
	_, err := s.db.ExecContext(ctx, `INSERT INTO models (name) VALUES ('legacy:7b')`)
	require.NoError(t, err)

	m, err := s.GetModel(ctx, "legacy:7b")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Empty(t, m.Details.Format)
	assert.Empty(t, m.Details.Family)
	assert.Empty(t, m.Details.ParameterSize)
	assert.Empty(t, m.Details.QuantizationLevel)
	assert.Zero(t, m.Size)
	assert.Nil(t, m.Info)

	models, err := s.ListModels(ctx, "")
	require.NoError(t, err)
	assert.Len(t, models, 1)
}

func TestMalformedInfoDegradesToArchitecture(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveModel(ctx, testModel("llama3:8b")))
	_, err := s.db.ExecContext(ctx,
		`UPDATE models SET parameters = '{not json' WHERE name = 'llama3:8b'`)
	require.NoError(t, err)

	m, err := s.GetModel(ctx, "llama3:8b")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotNil(t, m.Info)
	assert.Equal(t, "llama", m.Info.Architecture)
	assert.Zero(t, m.Info.ContextLength)
}
