// Package store defines the graph and vector store collaborators used by the
// pipeline. Implementations are bound to a single graph.
package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
)

var ErrNotFound = errors.New("not found")

// GraphStore persists vertices and edges of one graph and runs the
// graph-side algorithms (clustering, relationship copy-through).
type GraphStore interface {
	// ListUnprocessedIDs returns the unprocessed ids of vtype that fall into
	// batch out of totalBatches. Every id belongs to exactly one batch.
	ListUnprocessedIDs(ctx context.Context, vtype common.VertexType, batch, totalBatches int) ([]string, error)
	// GetContent returns the text attached to a Document or chunk through
	// HAS_CONTENT. ErrNotFound if there is none.
	GetContent(ctx context.Context, id string) (common.Content, error)
	GetVertex(ctx context.Context, vtype common.VertexType, id string) (common.Vertex, bool, error)
	// UpsertVertex creates the vertex or merges attrs into it. A description
	// list is unioned with the stored one, newest first, so writes applied
	// out of order never drop a description. It never resets the processed
	// flag of an existing vertex.
	UpsertVertex(ctx context.Context, vtype common.VertexType, id string, attrs common.Attributes) error
	UpsertEdge(
		ctx context.Context,
		srcType common.VertexType, srcID string,
		edgeType common.EdgeType,
		tgtType common.VertexType, tgtID string,
		attrs common.Attributes,
	) error
	// RemoveVertex deletes the vertex and every edge touching it.
	RemoveVertex(ctx context.Context, vtype common.VertexType, id string) error
	MarkProcessed(ctx context.Context, vtype common.VertexType, ids []string) error

	// RunClusteringPass partitions the nodes of the given layer, writes the
	// resulting Community vertices and membership edges, and returns the
	// modularity of the partition.
	RunClusteringPass(ctx context.Context, params common.ClusteringParams) (float64, error)
	ListCommunities(ctx context.Context, iteration int) ([]string, error)
	// GetChildren returns one description per child of a community. Children
	// without a description are represented by their id.
	GetChildren(ctx context.Context, iteration int, communityID string) ([]string, error)
	// CopyResolvedRelationships mirrors every Entity RELATIONSHIP edge onto the
	// ResolvedEntities its endpoints resolve to.
	CopyResolvedRelationships(ctx context.Context) error

	// SetPending flags step as owed or, with pending false, as done. The
	// flag outlives the pass that set it.
	SetPending(ctx context.Context, step common.Step, pending bool) error
	Pending(ctx context.Context, step common.Step) (bool, error)

	// MissingVertices returns the ids that have no vertex of vtype.
	MissingVertices(ctx context.Context, vtype common.VertexType, ids []string) ([]string, error)
	Status(ctx context.Context, vtype common.VertexType) (common.VertexStatus, error)
}

// VectorStore keeps embeddings per index. Index names are vertex type names.
type VectorStore interface {
	// AddEmbedding stores vector for id, replacing any earlier entry for it.
	AddEmbedding(ctx context.Context, index common.VertexType, id, text string, vector []float32) error
	RemoveEmbeddings(ctx context.Context, index common.VertexType, filter common.VectorFilter) error
	// KNearest returns up to k ids whose embedding has at least threshold
	// cosine similarity with the embedding of id, the nearest first. The id
	// itself is not part of the result.
	KNearest(ctx context.Context, index common.VertexType, id string, k int, threshold float64) ([]string, error)
	Exists(ctx context.Context, index common.VertexType) (bool, error)
	CreateIndex(ctx context.Context, index common.VertexType) error
	ListEntries(ctx context.Context, index common.VertexType) ([]common.VectorEntry, error)
}

// Stores bundles the two stores of one graph.
type Stores struct {
	Graph  GraphStore
	Vector VectorStore
}

// Opener binds stores to a graph name.
type Opener interface {
	Open(ctx context.Context, graph string) (Stores, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, graph string) (Stores, error)

func (f OpenerFunc) Open(ctx context.Context, graph string) (Stores, error) { return f(ctx, graph) }
