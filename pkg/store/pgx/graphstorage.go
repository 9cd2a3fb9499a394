// Package pgx implements the graph and vector stores on PostgreSQL with the
// pgvector extension. Every store is bound to one graph name; all graphs share
// the same tables.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphStore implements store.GraphStore on the vertices and edges tables.
type GraphStore struct {
	conn  pgxIConn
	graph string
}

var _ store.GraphStore = (*GraphStore)(nil)

func NewGraphStore(conn pgxIConn, graph string) *GraphStore {
	return &GraphStore{conn: conn, graph: graph}
}

func encodeAttributes(attrs common.Attributes) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	return string(b), nil
}

func decodeAttributes(raw []byte) (common.Attributes, error) {
	attrs := common.Attributes{}
	if len(raw) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}

// decodeDescriptions reads a description attribute that may hold a string or
// a list of strings.
func decodeDescriptions(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return common.Attributes{common.AttrDescription: v}.Strings(common.AttrDescription)
}

func (s *GraphStore) ListUnprocessedIDs(ctx context.Context, vtype common.VertexType, batch, totalBatches int) ([]string, error) {
	totalBatches = max(totalBatches, 1)
	rows, err := s.conn.Query(ctx, listUnprocessedSQL, s.graph, string(vtype), batch, totalBatches)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed %s: %w", vtype, err)
	}
	return pgxv5.CollectRows(rows, pgxv5.RowTo[string])
}

func (s *GraphStore) GetContent(ctx context.Context, id string) (common.Content, error) {
	var c common.Content
	err := s.conn.QueryRow(ctx, getContentSQL, s.graph, id).Scan(&c.Text, &c.CType)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Content{}, fmt.Errorf("content of %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return common.Content{}, fmt.Errorf("content of %s: %w", id, err)
	}
	return c, nil
}

func (s *GraphStore) GetVertex(ctx context.Context, vtype common.VertexType, id string) (common.Vertex, bool, error) {
	var (
		raw       []byte
		processed bool
	)
	err := s.conn.QueryRow(ctx, getVertexSQL, s.graph, string(vtype), id).Scan(&raw, &processed)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Vertex{}, false, nil
	}
	if err != nil {
		return common.Vertex{}, false, fmt.Errorf("get %s %s: %w", vtype, id, err)
	}
	attrs, err := decodeAttributes(raw)
	if err != nil {
		return common.Vertex{}, false, err
	}
	return common.Vertex{Type: vtype, ID: id, Attributes: attrs, Processed: processed}, true, nil
}

func (s *GraphStore) UpsertVertex(ctx context.Context, vtype common.VertexType, id string, attrs common.Attributes) error {
	if id == "" {
		return fmt.Errorf("upsert %s: empty id", vtype)
	}
	payload, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, upsertVertexSQL, s.graph, string(vtype), id, payload, !vtype.Scanned())
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", vtype, id, err)
	}
	return nil
}

func (s *GraphStore) UpsertEdge(
	ctx context.Context,
	srcType common.VertexType, srcID string,
	edgeType common.EdgeType,
	tgtType common.VertexType, tgtID string,
	attrs common.Attributes,
) error {
	if srcID == "" || tgtID == "" {
		return fmt.Errorf("upsert %s edge: empty endpoint", edgeType)
	}
	payload, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, v := range []struct {
		t  common.VertexType
		id string
	}{{srcType, srcID}, {tgtType, tgtID}} {
		if _, err := tx.Exec(ctx, ensureVertexSQL, s.graph, string(v.t), v.id, !v.t.Scanned()); err != nil {
			return fmt.Errorf("ensure %s %s: %w", v.t, v.id, err)
		}
	}
	_, err = tx.Exec(ctx, upsertEdgeSQL,
		s.graph, string(srcType), srcID, string(edgeType), string(tgtType), tgtID, payload)
	if err != nil {
		return fmt.Errorf("upsert %s edge %s->%s: %w", edgeType, srcID, tgtID, err)
	}
	return tx.Commit(ctx)
}

func (s *GraphStore) RemoveVertex(ctx context.Context, vtype common.VertexType, id string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, removeVertexEdgesSQL, s.graph, string(vtype), id); err != nil {
		return fmt.Errorf("remove edges of %s %s: %w", vtype, id, err)
	}
	if _, err := tx.Exec(ctx, removeVertexSQL, s.graph, string(vtype), id); err != nil {
		return fmt.Errorf("remove %s %s: %w", vtype, id, err)
	}
	return tx.Commit(ctx)
}

func (s *GraphStore) MarkProcessed(ctx context.Context, vtype common.VertexType, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.conn.Exec(ctx, markProcessedSQL, s.graph, string(vtype), ids); err != nil {
		return fmt.Errorf("mark %d %s processed: %w", len(ids), vtype, err)
	}
	return nil
}

func (s *GraphStore) SetPending(ctx context.Context, step common.Step, pending bool) error {
	query := clearPendingSQL
	if pending {
		query = setPendingSQL
	}
	if _, err := s.conn.Exec(ctx, query, s.graph, string(step)); err != nil {
		return fmt.Errorf("set %s pending=%t: %w", step, pending, err)
	}
	return nil
}

func (s *GraphStore) Pending(ctx context.Context, step common.Step) (bool, error) {
	var pending bool
	if err := s.conn.QueryRow(ctx, pendingSQL, s.graph, string(step)).Scan(&pending); err != nil {
		return false, fmt.Errorf("pending %s: %w", step, err)
	}
	return pending, nil
}

func (s *GraphStore) MissingVertices(ctx context.Context, vtype common.VertexType, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, missingVerticesSQL, s.graph, string(vtype), ids)
	if err != nil {
		return nil, fmt.Errorf("missing %s: %w", vtype, err)
	}
	missing, err := pgxv5.CollectRows(rows, pgxv5.RowTo[string])
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return missing, nil
}

func (s *GraphStore) Status(ctx context.Context, vtype common.VertexType) (common.VertexStatus, error) {
	st := common.VertexStatus{Type: vtype}
	if err := s.conn.QueryRow(ctx, statusSQL, s.graph, string(vtype)).Scan(&st.Total, &st.Processed); err != nil {
		return st, fmt.Errorf("status of %s: %w", vtype, err)
	}
	st.Unprocessed = st.Total - st.Processed
	return st, nil
}

const listUnprocessedSQL = `
SELECT id
FROM vertices
WHERE graph = $1 AND vtype = $2 AND NOT processed
  AND ((hashtext(id)::bigint % $4::bigint) + $4::bigint) % $4::bigint = $3::bigint
ORDER BY id;
`

const getContentSQL = `
SELECT COALESCE(c.attributes->>'text', ''), COALESCE(c.attributes->>'ctype', '')
FROM edges e
JOIN vertices c ON c.graph = e.graph AND c.vtype = e.tgt_type AND c.id = e.tgt_id
WHERE e.graph = $1 AND e.src_id = $2 AND e.etype = 'HAS_CONTENT' AND e.tgt_type = 'Content'
ORDER BY e.src_type
LIMIT 1;
`

const getVertexSQL = `
SELECT attributes, processed
FROM vertices
WHERE graph = $1 AND vtype = $2 AND id = $3;
`

const upsertVertexSQL = `
INSERT INTO vertices (graph, vtype, id, attributes, processed)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (graph, vtype, id) DO UPDATE
SET attributes = vertices.attributes || EXCLUDED.attributes || CASE
        WHEN jsonb_typeof(EXCLUDED.attributes->'description') = 'array'
         AND jsonb_typeof(vertices.attributes->'description') = 'array'
        THEN jsonb_build_object('description', (
            SELECT COALESCE(jsonb_agg(d ORDER BY pos), '[]'::jsonb)
            FROM (
                SELECT DISTINCT ON (d) d, pos
                FROM (
                    SELECT d, n AS pos
                    FROM jsonb_array_elements(EXCLUDED.attributes->'description') WITH ORDINALITY AS i(d, n)
                    UNION ALL
                    SELECT d, 1000000 + n
                    FROM jsonb_array_elements(vertices.attributes->'description') WITH ORDINALITY AS p(d, n)
                ) AS merged
                WHERE d <> '""'::jsonb
                ORDER BY d, pos
            ) AS firsts
        ))
        ELSE '{}'::jsonb
    END,
    updated_at = now();
`

const ensureVertexSQL = `
INSERT INTO vertices (graph, vtype, id, processed)
VALUES ($1, $2, $3, $4)
ON CONFLICT (graph, vtype, id) DO NOTHING;
`

const upsertEdgeSQL = `
INSERT INTO edges (graph, src_type, src_id, etype, tgt_type, tgt_id, attributes)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
ON CONFLICT (graph, src_type, src_id, etype, tgt_type, tgt_id) DO UPDATE
SET attributes = edges.attributes || EXCLUDED.attributes;
`

const removeVertexEdgesSQL = `
DELETE FROM edges
WHERE graph = $1
  AND ((src_type = $2 AND src_id = $3) OR (tgt_type = $2 AND tgt_id = $3));
`

const removeVertexSQL = `
DELETE FROM vertices
WHERE graph = $1 AND vtype = $2 AND id = $3;
`

const markProcessedSQL = `
UPDATE vertices
SET processed = TRUE, updated_at = now()
WHERE graph = $1 AND vtype = $2 AND id = ANY($3::text[]);
`

const missingVerticesSQL = `
SELECT x.id
FROM unnest($3::text[]) WITH ORDINALITY AS x(id, ord)
WHERE NOT EXISTS (
    SELECT 1 FROM vertices v
    WHERE v.graph = $1 AND v.vtype = $2 AND v.id = x.id
)
ORDER BY x.ord;
`

const statusSQL = `
SELECT count(*), count(*) FILTER (WHERE processed)
FROM vertices
WHERE graph = $1 AND vtype = $2;
`

const setPendingSQL = `
INSERT INTO pending_steps (graph, step)
VALUES ($1, $2)
ON CONFLICT (graph, step) DO NOTHING;
`

const clearPendingSQL = `
DELETE FROM pending_steps WHERE graph = $1 AND step = $2;
`

const pendingSQL = `
SELECT EXISTS (SELECT 1 FROM pending_steps WHERE graph = $1 AND step = $2);
`
