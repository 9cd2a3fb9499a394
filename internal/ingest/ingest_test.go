package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/loader"
	"github.com/OFFIS-RIT/graphsync/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLoader map[string]string

func (m mapLoader) Load(_ context.Context, src loader.Source) ([]byte, error) {
	text, ok := m[src.Path]
	if !ok {
		return nil, errors.New("no such source")
	}
	return []byte(text), nil
}

func TestAddDocument(t *testing.T) {
	ctx := context.Background()
	gs := memory.NewGraphStore()

	require.NoError(t, AddDocument(ctx, gs, "doc1", "some text", "markdown", false))

	content, err := gs.GetContent(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, common.Content{Text: "some text", CType: "markdown"}, content)

	st, err := gs.Status(ctx, common.VertexDocument)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Unprocessed)

	require.Error(t, AddDocument(ctx, gs, "", "text", "", false))
}

func TestAddDocument_ReplaceResetsProcessed(t *testing.T) {
	ctx := context.Background()
	gs := memory.NewGraphStore()

	require.NoError(t, AddDocument(ctx, gs, "doc1", "old", "", false))
	require.NoError(t, gs.MarkProcessed(ctx, common.VertexDocument, []string{"doc1"}))

	require.NoError(t, AddDocument(ctx, gs, "doc1", "new", "", false))
	st, err := gs.Status(ctx, common.VertexDocument)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Unprocessed, "plain upsert keeps the processed flag")

	require.NoError(t, AddDocument(ctx, gs, "doc1", "newer", "", true))
	st, err = gs.Status(ctx, common.VertexDocument)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Unprocessed)

	content, err := gs.GetContent(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "newer", content.Text)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	gs := memory.NewGraphStore()
	l := mapLoader{"a.txt": "alpha", "b.md": "# beta", "blank.txt": "   "}

	sources := []loader.Source{
		{ID: "a", Path: "a.txt", Loader: l},
		{ID: "b", Path: "b.md", ContentType: "markdown", Loader: l},
		{ID: "blank", Path: "blank.txt", Loader: l},
		{ID: "missing", Path: "missing.txt", Loader: l},
	}

	res, err := Run(ctx, gs, sources, Params{Concurrency: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.txt")
	assert.Equal(t, Result{Added: 2, Skipped: 1, Failed: 1}, res)
	assert.Equal(t, []string{"a", "b"}, gs.IDs(common.VertexDocument))

	content, err := gs.GetContent(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "markdown", content.CType)
}
