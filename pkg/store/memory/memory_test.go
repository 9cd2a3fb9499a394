package memory

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphStore_UpsertKeepsProcessedFlag(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()

	require.NoError(t, s.UpsertVertex(ctx, common.VertexEntity, "NASA", common.Attributes{"description": []string{"agency"}}))
	require.NoError(t, s.MarkProcessed(ctx, common.VertexEntity, []string{"NASA"}))
	require.NoError(t, s.UpsertVertex(ctx, common.VertexEntity, "NASA", common.Attributes{"entity_type": "ORG"}))

	v, ok, err := s.GetVertex(ctx, common.VertexEntity, "NASA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.Processed)
	assert.Equal(t, []string{"agency"}, v.Attributes.Strings("description"))
	assert.Equal(t, "ORG", v.Attributes.String("entity_type"))

	require.NoError(t, s.UpsertVertex(ctx, common.VertexChunk, "doc_chunk_0", nil))
	chunk, _, _ := s.GetVertex(ctx, common.VertexChunk, "doc_chunk_0")
	assert.True(t, chunk.Processed, "non-scanned types are created processed")
}

func TestGraphStore_DescriptionsAreUnioned(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()

	// a stale, shorter list landing after a newer one must not drop entries
	require.NoError(t, s.UpsertVertex(ctx, common.VertexEntity, "NASA", common.Attributes{"description": []string{"c", "b", "a"}}))
	require.NoError(t, s.UpsertVertex(ctx, common.VertexEntity, "NASA", common.Attributes{"description": []string{"b", "a"}}))

	v, _, err := s.GetVertex(ctx, common.VertexEntity, "NASA")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, v.Attributes.Strings("description"))

	require.NoError(t, s.UpsertVertex(ctx, common.VertexEntity, "NASA", common.Attributes{"description": []string{"d", ""}}))
	v, _, _ = s.GetVertex(ctx, common.VertexEntity, "NASA")
	assert.Equal(t, []string{"d", "b", "a", "c"}, v.Attributes.Strings("description"))

	require.NoError(t, s.UpsertVertex(ctx, common.VertexCommunity, "community_1_0", common.Attributes{"description": "first"}))
	require.NoError(t, s.UpsertVertex(ctx, common.VertexCommunity, "community_1_0", common.Attributes{"description": "second"}))
	c, _, _ := s.GetVertex(ctx, common.VertexCommunity, "community_1_0")
	assert.Equal(t, "second", c.Attributes.String("description"), "plain summaries are replaced")
}

func TestGraphStore_PendingSteps(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()

	pending, err := s.Pending(ctx, common.StepCommunities)
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, s.SetPending(ctx, common.StepCommunities, true))
	require.NoError(t, s.SetPending(ctx, common.StepCommunities, true))
	pending, _ = s.Pending(ctx, common.StepCommunities)
	assert.True(t, pending)
	pending, _ = s.Pending(ctx, common.StepResolvedRelationships)
	assert.False(t, pending)

	require.NoError(t, s.SetPending(ctx, common.StepCommunities, false))
	pending, _ = s.Pending(ctx, common.StepCommunities)
	assert.False(t, pending)
}

func TestGraphStore_BatchesPartitionIDs(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		require.NoError(t, s.UpsertVertex(ctx, common.VertexDocument, id, nil))
	}

	var all []string
	for b := range 3 {
		ids, err := s.ListUnprocessedIDs(ctx, common.VertexDocument, b, 3)
		require.NoError(t, err)
		all = append(all, ids...)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f", "g"}, all)
}

func TestGraphStore_GetContent(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()

	_, err := s.GetContent(ctx, "doc1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpsertVertex(ctx, common.VertexContent, "doc1", common.Attributes{"text": "hello", "ctype": "markdown"}))
	require.NoError(t, s.UpsertEdge(ctx, common.VertexDocument, "doc1", common.EdgeHasContent, common.VertexContent, "doc1", nil))

	c, err := s.GetContent(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, common.Content{Text: "hello", CType: "markdown"}, c)
}

func TestGraphStore_ClusteringAndChildren(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()

	resolve := func(entity, resolved, desc string) {
		require.NoError(t, s.UpsertVertex(ctx, common.VertexEntity, entity, common.Attributes{"description": []string{desc}}))
		require.NoError(t, s.UpsertEdge(ctx, common.VertexEntity, entity, common.EdgeResolvesTo, common.VertexResolvedEntity, resolved, nil))
	}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		resolve(id, id, "entity "+id)
	}
	relate := func(a, b string) {
		require.NoError(t, s.UpsertEdge(ctx, common.VertexEntity, a, common.EdgeRelationship, common.VertexEntity, b,
			common.Attributes{"relation_type": "KNOWS"}))
	}
	relate("a", "b")
	relate("b", "c")
	relate("a", "c")
	relate("d", "e")
	relate("e", "f")
	relate("d", "f")
	relate("c", "d")
	require.NoError(t, s.CopyResolvedRelationships(ctx))
	require.Len(t, s.Edges(common.EdgeRelationship), 14)

	mod, err := s.RunClusteringPass(ctx, common.ClusteringParams{Iteration: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.357, mod, 1e-3)

	comms, err := s.ListCommunities(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"community_1_0", "community_1_1"}, comms)

	children, err := s.GetChildren(ctx, 1, "community_1_0")
	require.NoError(t, err)
	assert.Equal(t, []string{"entity a", "entity b", "entity c"}, children)

	mod2, err := s.RunClusteringPass(ctx, common.ClusteringParams{Iteration: 2})
	require.NoError(t, err)
	assert.InDelta(t, mod, mod2, 1e-9)
	layer2, _ := s.ListCommunities(ctx, 2)
	require.Len(t, layer2, 2)

	children, err = s.GetChildren(ctx, 2, layer2[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"community_1_0"}, children, "undescribed communities fall back to their id")

	// rerunning layer 1 drops every layer above it
	_, err = s.RunClusteringPass(ctx, common.ClusteringParams{Iteration: 1})
	require.NoError(t, err)
	layer2, _ = s.ListCommunities(ctx, 2)
	assert.Empty(t, layer2)
}

func TestGraphStore_RemoveVertexDropsEdges(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()
	require.NoError(t, s.UpsertEdge(ctx, common.VertexChunk, "c1", common.EdgeContainsEntity, common.VertexEntity, "x", nil))
	require.NoError(t, s.RemoveVertex(ctx, common.VertexEntity, "x"))

	assert.Empty(t, s.Edges(common.EdgeContainsEntity))
	missing, err := s.MissingVertices(ctx, common.VertexEntity, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, missing)
}

func TestVectorStore_ReplaceAndNearest(t *testing.T) {
	ctx := context.Background()
	s := NewVectorStore()

	require.NoError(t, s.AddEmbedding(ctx, common.VertexEntity, "NASA", "agency", []float32{1, 0}))
	require.NoError(t, s.AddEmbedding(ctx, common.VertexEntity, "NASA", "space agency", []float32{1, 0.01}))
	require.NoError(t, s.AddEmbedding(ctx, common.VertexEntity, "National_Aeronautics_and_Space_Administration", "", []float32{0.99, 0.02}))
	require.NoError(t, s.AddEmbedding(ctx, common.VertexEntity, "Banana", "", []float32{0, 1}))

	entries, err := s.ListEntries(ctx, common.VertexEntity)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	text, _ := s.Text(common.VertexEntity, "NASA")
	assert.Equal(t, "space agency", text)

	near, err := s.KNearest(ctx, common.VertexEntity, "NASA", 10, 0.9)
	require.NoError(t, err)
	assert.Equal(t, []string{"National_Aeronautics_and_Space_Administration"}, near)

	_, err = s.KNearest(ctx, common.VertexEntity, "Unknown", 10, 0.9)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.RemoveEmbeddings(ctx, common.VertexEntity, common.VectorFilter{VertexIDs: []string{"Banana"}}))
	entries, _ = s.ListEntries(ctx, common.VertexEntity)
	assert.Len(t, entries, 2)
}

func TestVectorStore_EnsureIndexes(t *testing.T) {
	ctx := context.Background()
	s := NewVectorStore()
	require.NoError(t, store.EnsureIndexes(ctx, s, common.EmbeddedTypes...))
	for _, idx := range common.EmbeddedTypes {
		ok, err := s.Exists(ctx, idx)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
