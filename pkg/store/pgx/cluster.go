package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/community"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
	pgxv5 "github.com/jackc/pgx/v5"
)

// loadBaseGraph reads the ResolvedEntity graph the clustering layers are
// built on.
func (s *GraphStore) loadBaseGraph(ctx context.Context) (*community.Graph, error) {
	base := community.NewGraph()

	rows, err := s.conn.Query(ctx, resolvedNodesSQL, s.graph)
	if err != nil {
		return nil, fmt.Errorf("load resolved entities: %w", err)
	}
	ids, err := pgxv5.CollectRows(rows, pgxv5.RowTo[string])
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		base.AddNode(id)
	}

	rows, err = s.conn.Query(ctx, resolvedEdgesSQL, s.graph)
	if err != nil {
		return nil, fmt.Errorf("load resolved relationships: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, err
		}
		base.AddEdge(src, tgt, 1)
	}
	return base, rows.Err()
}

// loadMemberships returns, per layer below iteration, the community each node
// of that layer belongs to.
func (s *GraphStore) loadMemberships(ctx context.Context, iteration int) ([]map[string]string, error) {
	parents := make([]map[string]string, 0, iteration)
	for layer := 1; layer < iteration; layer++ {
		rows, err := s.conn.Query(ctx, membershipsSQL, s.graph, layer)
		if err != nil {
			return nil, fmt.Errorf("load layer %d memberships: %w", layer, err)
		}
		p := make(map[string]string)
		for rows.Next() {
			var member, cid string
			if err := rows.Scan(&member, &cid); err != nil {
				rows.Close()
				return nil, err
			}
			p[member] = cid
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		parents = append(parents, p)
	}
	return parents, nil
}

func (s *GraphStore) RunClusteringPass(ctx context.Context, params common.ClusteringParams) (float64, error) {
	resolution := params.Resolution
	if resolution <= 0 {
		resolution = 1
	}

	base, err := s.loadBaseGraph(ctx)
	if err != nil {
		return 0, err
	}
	parents, err := s.loadMemberships(ctx, params.Iteration)
	if err != nil {
		return 0, err
	}
	assignment, err := community.Run(base, parents, params.Iteration, resolution)
	if err != nil {
		return 0, err
	}

	memberType := common.VertexResolvedEntity
	if params.Iteration > 1 {
		memberType = common.VertexCommunity
	}
	var members, targets []string
	for k, cid := range assignment.Communities {
		for _, m := range assignment.Members[k] {
			members = append(members, m)
			targets = append(targets, cid)
		}
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, dropCommunitiesSQL, s.graph, params.Iteration); err != nil {
		return 0, fmt.Errorf("drop communities from iteration %d: %w", params.Iteration, err)
	}
	if _, err := tx.Exec(ctx, insertCommunitiesSQL, s.graph, params.Iteration, assignment.Communities); err != nil {
		return 0, fmt.Errorf("insert communities: %w", err)
	}
	if _, err := tx.Exec(ctx, insertMembershipsSQL, s.graph, string(memberType), members, targets); err != nil {
		return 0, fmt.Errorf("insert memberships: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	logger.Debug("[Graph][Cluster] Clustering pass stored",
		"graph", s.graph, "iteration", params.Iteration,
		"communities", len(assignment.Communities), "modularity", assignment.Modularity)
	return assignment.Modularity, nil
}

func (s *GraphStore) ListCommunities(ctx context.Context, iteration int) ([]string, error) {
	rows, err := s.conn.Query(ctx, listCommunitiesSQL, s.graph, iteration)
	if err != nil {
		return nil, fmt.Errorf("list communities of iteration %d: %w", iteration, err)
	}
	return pgxv5.CollectRows(rows, pgxv5.RowTo[string])
}

func (s *GraphStore) GetChildren(ctx context.Context, iteration int, communityID string) ([]string, error) {
	var exists bool
	if err := s.conn.QueryRow(ctx, communityExistsSQL, s.graph, communityID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("community %s: %w", communityID, err)
	}
	if !exists {
		return nil, fmt.Errorf("community %s: %w", communityID, store.ErrNotFound)
	}

	rows, err := s.conn.Query(ctx, childrenSQL, s.graph, communityID)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", communityID, err)
	}
	var (
		ids   []string
		descs = make(map[string][]string)
	)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		descs[id] = decodeDescriptions(raw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if iteration == 1 && len(ids) > 0 {
		if err := s.addResolvedDescriptions(ctx, ids, descs); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, store.ChildDescription(id, descs[id]))
	}
	return out, nil
}

// addResolvedDescriptions appends the descriptions of the entities that
// resolve to each of ids.
func (s *GraphStore) addResolvedDescriptions(ctx context.Context, ids []string, descs map[string][]string) error {
	rows, err := s.conn.Query(ctx, resolvedDescriptionsSQL, s.graph, ids)
	if err != nil {
		return fmt.Errorf("resolved descriptions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			target string
			raw    []byte
		)
		if err := rows.Scan(&target, &raw); err != nil {
			return err
		}
		descs[target] = append(descs[target], decodeDescriptions(raw)...)
	}
	return rows.Err()
}

func (s *GraphStore) CopyResolvedRelationships(ctx context.Context) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, ensureResolvedSQL, s.graph); err != nil {
		return fmt.Errorf("ensure resolved entities: %w", err)
	}
	tag, err := tx.Exec(ctx, copyResolvedSQL, s.graph)
	if err != nil {
		return fmt.Errorf("copy resolved relationships: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Debug("[Graph][Resolve] Copied relationships to resolved entities",
		"graph", s.graph, "edges", tag.RowsAffected())
	return nil
}

const resolvedNodesSQL = `
SELECT id FROM vertices
WHERE graph = $1 AND vtype = 'ResolvedEntity'
ORDER BY id;
`

const resolvedEdgesSQL = `
SELECT src_id, tgt_id FROM edges
WHERE graph = $1 AND etype = 'RELATIONSHIP'
  AND src_type = 'ResolvedEntity' AND tgt_type = 'ResolvedEntity'
ORDER BY src_id, tgt_id;
`

const membershipsSQL = `
SELECT e.src_id, e.tgt_id
FROM edges e
JOIN vertices c ON c.graph = e.graph AND c.vtype = 'Community' AND c.id = e.tgt_id
WHERE e.graph = $1 AND e.etype = 'IN_COMMUNITY' AND e.tgt_type = 'Community'
  AND (c.attributes->>'iteration')::int = $2;
`

const dropCommunitiesSQL = `
WITH gone AS (
    DELETE FROM vertices
    WHERE graph = $1 AND vtype = 'Community'
      AND COALESCE((attributes->>'iteration')::int, 0) >= $2
    RETURNING id
)
DELETE FROM edges e
USING gone
WHERE e.graph = $1
  AND ((e.src_type = 'Community' AND e.src_id = gone.id)
    OR (e.tgt_type = 'Community' AND e.tgt_id = gone.id));
`

const insertCommunitiesSQL = `
INSERT INTO vertices (graph, vtype, id, attributes, processed)
SELECT $1, 'Community', cid, jsonb_build_object('iteration', $2::int), TRUE
FROM unnest($3::text[]) AS cid
ON CONFLICT (graph, vtype, id) DO UPDATE
SET attributes = vertices.attributes || EXCLUDED.attributes,
    updated_at = now();
`

const insertMembershipsSQL = `
INSERT INTO edges (graph, src_type, src_id, etype, tgt_type, tgt_id)
SELECT $1, $2, m.src, 'IN_COMMUNITY', 'Community', m.tgt
FROM unnest($3::text[], $4::text[]) AS m(src, tgt)
ON CONFLICT DO NOTHING;
`

const listCommunitiesSQL = `
SELECT id FROM vertices
WHERE graph = $1 AND vtype = 'Community'
  AND (attributes->>'iteration')::int = $2
ORDER BY id;
`

const communityExistsSQL = `
SELECT EXISTS (
    SELECT 1 FROM vertices WHERE graph = $1 AND vtype = 'Community' AND id = $2
);
`

const childrenSQL = `
SELECT e.src_id, v.attributes->'description'
FROM edges e
LEFT JOIN vertices v ON v.graph = e.graph AND v.vtype = e.src_type AND v.id = e.src_id
WHERE e.graph = $1 AND e.etype = 'IN_COMMUNITY'
  AND e.tgt_type = 'Community' AND e.tgt_id = $2
ORDER BY e.src_id;
`

const resolvedDescriptionsSQL = `
SELECT r.tgt_id, ent.attributes->'description'
FROM edges r
JOIN vertices ent ON ent.graph = r.graph AND ent.vtype = 'Entity' AND ent.id = r.src_id
WHERE r.graph = $1 AND r.etype = 'RESOLVES_TO' AND r.src_type = 'Entity'
  AND r.tgt_id = ANY($2::text[])
ORDER BY r.tgt_id, r.src_id;
`

const ensureResolvedSQL = `
INSERT INTO vertices (graph, vtype, id, processed)
SELECT DISTINCT $1, 'ResolvedEntity', tgt_id, TRUE
FROM edges
WHERE graph = $1 AND etype = 'RESOLVES_TO' AND src_type = 'Entity'
ON CONFLICT (graph, vtype, id) DO NOTHING;
`

const copyResolvedSQL = `
INSERT INTO edges (graph, src_type, src_id, etype, tgt_type, tgt_id, attributes)
SELECT DISTINCT ON (rs.tgt_id, rt.tgt_id)
       $1, 'ResolvedEntity', rs.tgt_id, 'RELATIONSHIP', 'ResolvedEntity', rt.tgt_id, e.attributes
FROM edges e
JOIN edges rs ON rs.graph = e.graph AND rs.etype = 'RESOLVES_TO'
             AND rs.src_type = 'Entity' AND rs.src_id = e.src_id
JOIN edges rt ON rt.graph = e.graph AND rt.etype = 'RESOLVES_TO'
             AND rt.src_type = 'Entity' AND rt.src_id = e.tgt_id
WHERE e.graph = $1 AND e.etype = 'RELATIONSHIP'
  AND e.src_type = 'Entity' AND e.tgt_type = 'Entity'
  AND rs.tgt_id <> rt.tgt_id
ORDER BY rs.tgt_id, rt.tgt_id, e.src_id, e.tgt_id
ON CONFLICT (graph, src_type, src_id, etype, tgt_type, tgt_id) DO UPDATE
SET attributes = EXCLUDED.attributes;
`
