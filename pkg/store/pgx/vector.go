package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// VectorStore implements store.VectorStore on the embeddings table. Search is
// exact cosine distance through pgvector.
type VectorStore struct {
	conn  pgxIConn
	graph string
}

var _ store.VectorStore = (*VectorStore)(nil)

func NewVectorStore(conn pgxIConn, graph string) *VectorStore {
	return &VectorStore{conn: conn, graph: graph}
}

func (s *VectorStore) AddEmbedding(ctx context.Context, index common.VertexType, id, text string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("add embedding %s/%s: empty vector", index, id)
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	filter := common.VectorFilter{VertexIDs: []string{id}}
	if _, err := tx.Exec(ctx, removeEmbeddingsSQL, s.graph, string(index), filter.VertexIDs, filter.PKs); err != nil {
		return fmt.Errorf("replace embedding %s/%s: %w", index, id, err)
	}
	if _, err := tx.Exec(ctx, insertEmbeddingSQL, s.graph, string(index), id, util.SanitizePostgresText(text), pgvector.NewVector(vector)); err != nil {
		return fmt.Errorf("add embedding %s/%s: %w", index, id, err)
	}
	return tx.Commit(ctx)
}

func (s *VectorStore) RemoveEmbeddings(ctx context.Context, index common.VertexType, filter common.VectorFilter) error {
	if filter.Empty() {
		return nil
	}
	ids := filter.VertexIDs
	if ids == nil {
		ids = []string{}
	}
	pks := filter.PKs
	if pks == nil {
		pks = []int64{}
	}
	if _, err := s.conn.Exec(ctx, removeEmbeddingsSQL, s.graph, string(index), ids, pks); err != nil {
		return fmt.Errorf("remove embeddings from %s: %w", index, err)
	}
	return nil
}

func (s *VectorStore) KNearest(ctx context.Context, index common.VertexType, id string, k int, threshold float64) ([]string, error) {
	var query pgvector.Vector
	err := s.conn.QueryRow(ctx, embeddingOfSQL, s.graph, string(index), id).Scan(&query)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s/%s: %w", index, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("embedding %s/%s: %w", index, id, err)
	}

	// NULL means no limit.
	var limit any
	if k > 0 {
		limit = k
	}
	rows, err := s.conn.Query(ctx, kNearestSQL, s.graph, string(index), id, query, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest to %s/%s: %w", index, id, err)
	}
	return pgxv5.CollectRows(rows, pgxv5.RowTo[string])
}

func (s *VectorStore) Exists(ctx context.Context, index common.VertexType) (bool, error) {
	var ok bool
	if err := s.conn.QueryRow(ctx, indexExistsSQL, s.graph, string(index)).Scan(&ok); err != nil {
		return false, fmt.Errorf("index %s: %w", index, err)
	}
	return ok, nil
}

func (s *VectorStore) CreateIndex(ctx context.Context, index common.VertexType) error {
	if _, err := s.conn.Exec(ctx, createIndexSQL, s.graph, string(index)); err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	return nil
}

func (s *VectorStore) ListEntries(ctx context.Context, index common.VertexType) ([]common.VectorEntry, error) {
	rows, err := s.conn.Query(ctx, listEntriesSQL, s.graph, string(index))
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", index, err)
	}
	return pgxv5.CollectRows(rows, pgxv5.RowToStructByPos[common.VectorEntry])
}

const insertEmbeddingSQL = `
INSERT INTO embeddings (graph, idx, vertex_id, text, embedding)
VALUES ($1, $2, $3, $4, $5);
`

const removeEmbeddingsSQL = `
DELETE FROM embeddings
WHERE graph = $1 AND idx = $2
  AND (vertex_id = ANY($3::text[]) OR pk = ANY($4::bigint[]));
`

const embeddingOfSQL = `
SELECT embedding FROM embeddings
WHERE graph = $1 AND idx = $2 AND vertex_id = $3
ORDER BY pk DESC
LIMIT 1;
`

const kNearestSQL = `
SELECT vertex_id
FROM (
    SELECT DISTINCT ON (vertex_id) vertex_id, embedding <=> $4 AS dist
    FROM embeddings
    WHERE graph = $1 AND idx = $2 AND vertex_id <> $3
    ORDER BY vertex_id, dist
) nearest
WHERE 1 - dist >= $5
ORDER BY dist, vertex_id
LIMIT $6;
`

const indexExistsSQL = `
SELECT EXISTS (
    SELECT 1 FROM vector_indexes WHERE graph = $1 AND idx = $2
);
`

const createIndexSQL = `
INSERT INTO vector_indexes (graph, idx)
VALUES ($1, $2)
ON CONFLICT (graph, idx) DO NOTHING;
`

const listEntriesSQL = `
SELECT pk, vertex_id FROM embeddings
WHERE graph = $1 AND idx = $2
ORDER BY pk;
`
