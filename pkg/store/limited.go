package store

import (
	"context"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"golang.org/x/sync/semaphore"
)

// DefaultGraphConcurrency is the number of graph store calls allowed in flight
// per graph.
const DefaultGraphConcurrency = 10

// LimitedGraphStore caps the number of concurrent calls into a GraphStore.
type LimitedGraphStore struct {
	inner GraphStore
	sem   *semaphore.Weighted
}

func NewLimitedGraphStore(inner GraphStore, limit int) *LimitedGraphStore {
	if limit <= 0 {
		limit = DefaultGraphConcurrency
	}
	return &LimitedGraphStore{inner: inner, sem: semaphore.NewWeighted(int64(limit))}
}

func (l *LimitedGraphStore) acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}

func limited[T any](ctx context.Context, l *LimitedGraphStore, fn func() (T, error)) (T, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn()
}

func limitedErr(ctx context.Context, l *LimitedGraphStore, fn func() error) error {
	release, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (l *LimitedGraphStore) ListUnprocessedIDs(ctx context.Context, vtype common.VertexType, batch, totalBatches int) ([]string, error) {
	return limited(ctx, l, func() ([]string, error) {
		return l.inner.ListUnprocessedIDs(ctx, vtype, batch, totalBatches)
	})
}

func (l *LimitedGraphStore) GetContent(ctx context.Context, id string) (common.Content, error) {
	return limited(ctx, l, func() (common.Content, error) { return l.inner.GetContent(ctx, id) })
}

func (l *LimitedGraphStore) GetVertex(ctx context.Context, vtype common.VertexType, id string) (common.Vertex, bool, error) {
	var found bool
	v, err := limited(ctx, l, func() (common.Vertex, error) {
		v, ok, err := l.inner.GetVertex(ctx, vtype, id)
		found = ok
		return v, err
	})
	return v, found, err
}

func (l *LimitedGraphStore) UpsertVertex(ctx context.Context, vtype common.VertexType, id string, attrs common.Attributes) error {
	return limitedErr(ctx, l, func() error { return l.inner.UpsertVertex(ctx, vtype, id, attrs) })
}

func (l *LimitedGraphStore) UpsertEdge(
	ctx context.Context,
	srcType common.VertexType, srcID string,
	edgeType common.EdgeType,
	tgtType common.VertexType, tgtID string,
	attrs common.Attributes,
) error {
	return limitedErr(ctx, l, func() error {
		return l.inner.UpsertEdge(ctx, srcType, srcID, edgeType, tgtType, tgtID, attrs)
	})
}

func (l *LimitedGraphStore) RemoveVertex(ctx context.Context, vtype common.VertexType, id string) error {
	return limitedErr(ctx, l, func() error { return l.inner.RemoveVertex(ctx, vtype, id) })
}

func (l *LimitedGraphStore) MarkProcessed(ctx context.Context, vtype common.VertexType, ids []string) error {
	return limitedErr(ctx, l, func() error { return l.inner.MarkProcessed(ctx, vtype, ids) })
}

func (l *LimitedGraphStore) RunClusteringPass(ctx context.Context, params common.ClusteringParams) (float64, error) {
	return limited(ctx, l, func() (float64, error) { return l.inner.RunClusteringPass(ctx, params) })
}

func (l *LimitedGraphStore) ListCommunities(ctx context.Context, iteration int) ([]string, error) {
	return limited(ctx, l, func() ([]string, error) { return l.inner.ListCommunities(ctx, iteration) })
}

func (l *LimitedGraphStore) GetChildren(ctx context.Context, iteration int, communityID string) ([]string, error) {
	return limited(ctx, l, func() ([]string, error) {
		return l.inner.GetChildren(ctx, iteration, communityID)
	})
}

func (l *LimitedGraphStore) CopyResolvedRelationships(ctx context.Context) error {
	return limitedErr(ctx, l, func() error { return l.inner.CopyResolvedRelationships(ctx) })
}

func (l *LimitedGraphStore) SetPending(ctx context.Context, step common.Step, pending bool) error {
	return limitedErr(ctx, l, func() error { return l.inner.SetPending(ctx, step, pending) })
}

func (l *LimitedGraphStore) Pending(ctx context.Context, step common.Step) (bool, error) {
	return limited(ctx, l, func() (bool, error) { return l.inner.Pending(ctx, step) })
}

func (l *LimitedGraphStore) MissingVertices(ctx context.Context, vtype common.VertexType, ids []string) ([]string, error) {
	return limited(ctx, l, func() ([]string, error) { return l.inner.MissingVertices(ctx, vtype, ids) })
}

func (l *LimitedGraphStore) Status(ctx context.Context, vtype common.VertexType) (common.VertexStatus, error) {
	return limited(ctx, l, func() (common.VertexStatus, error) { return l.inner.Status(ctx, vtype) })
}
