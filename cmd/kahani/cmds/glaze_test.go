package cmds

import (
	"context"
	"testing"

	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/kahani/pkg/chat"
	"github.com/go-go-golems/kahani/pkg/conversation"
	"github.com/go-go-golems/kahani/pkg/generation"
	"github.com/go-go-golems/kahani/pkg/persistence/chatstore"
	"github.com/go-go-golems/kahani/pkg/persistence/kvstore"
)

type rowRecorder struct {
	rows []types.Row
}

func (r *rowRecorder) AddRow(_ context.Context, row types.Row) error {
	r.rows = append(r.rows, row)
	return nil
}

func (r *rowRecorder) Close(_ context.Context) error {
	return nil
}

func cell(t *testing.T, row types.Row, name string) interface{} {
	t.Helper()
	v, ok := row.Get(name)
	require.True(t, ok, "missing column %s", name)
	return v
}

func TestAddThreadRows(t *testing.T) {
	ctx := context.Background()
	ts := chatstore.NewThreadStore(kvstore.NewInMemoryStore())
	store, err := conversation.Open(ctx, ts, ts)
	require.NoError(t, err)
	older, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Rename(ctx, older.ID, "پرانی"))
	require.NoError(t, store.AppendMessage(ctx, older.ID, chat.RoleUser, "سلام"))
	newer, err := store.Create(ctx)
	require.NoError(t, err)

	rec := &rowRecorder{}
	require.NoError(t, addThreadRows(ctx, rec, store, 0))
	require.Len(t, rec.rows, 2)
	require.Equal(t, newer.ID, cell(t, rec.rows[0], "id"))
	require.Equal(t, true, cell(t, rec.rows[0], "active"))
	require.Equal(t, "پرانی", cell(t, rec.rows[1], "title"))
	require.Equal(t, 1, cell(t, rec.rows[1], "messages"))
	require.Equal(t, false, cell(t, rec.rows[1], "active"))

	rec = &rowRecorder{}
	require.NoError(t, addThreadRows(ctx, rec, store, 1))
	require.Len(t, rec.rows, 1)
}

func TestModelInfoRow(t *testing.T) {
	row := modelInfoRow(&generation.ModelInfo{ModelType: "trigram", VocabularySize: 12000, TotalTokens: 5, IsTrained: true})
	require.Equal(t, "trigram", cell(t, row, "model_type"))
	require.Equal(t, 12000, cell(t, row, "vocabulary_size"))
	require.Equal(t, true, cell(t, row, "is_trained"))
}
