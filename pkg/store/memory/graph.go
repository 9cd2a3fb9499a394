// Package memory provides in-process graph and vector stores. They back the
// tests and single-node development setups.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/community"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
)

type vertexKey struct {
	Type common.VertexType
	ID   string
}

type EdgeKey struct {
	SrcType common.VertexType
	SrcID   string
	Type    common.EdgeType
	TgtType common.VertexType
	TgtID   string
}

type vertexRecord struct {
	attrs     common.Attributes
	processed bool
}

// GraphStore is a store.GraphStore kept in maps.
type GraphStore struct {
	mu       sync.RWMutex
	vertices map[vertexKey]*vertexRecord
	edges    map[EdgeKey]common.Attributes
	pending  map[common.Step]bool

	resolution float64
	upserts    atomic.Int64
}

var _ store.GraphStore = (*GraphStore)(nil)

func NewGraphStore() *GraphStore {
	return &GraphStore{
		vertices:   make(map[vertexKey]*vertexRecord),
		edges:      make(map[EdgeKey]common.Attributes),
		pending:    make(map[common.Step]bool),
		resolution: 1,
	}
}

// Upserts counts vertex and edge upserts since creation.
func (s *GraphStore) Upserts() int64 { return s.upserts.Load() }

func (s *GraphStore) ensureVertex(vtype common.VertexType, id string) *vertexRecord {
	key := vertexKey{vtype, id}
	rec, ok := s.vertices[key]
	if !ok {
		rec = &vertexRecord{attrs: common.Attributes{}, processed: !vtype.Scanned()}
		s.vertices[key] = rec
	}
	return rec
}

func (s *GraphStore) ListUnprocessedIDs(_ context.Context, vtype common.VertexType, batch, totalBatches int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for key, rec := range s.vertices {
		if key.Type != vtype || rec.processed {
			continue
		}
		if store.BatchOf(key.ID, totalBatches) == batch {
			ids = append(ids, key.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *GraphStore) GetContent(_ context.Context, id string) (common.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key := range s.edges {
		if key.Type != common.EdgeHasContent || key.SrcID != id || key.TgtType != common.VertexContent {
			continue
		}
		if rec, ok := s.vertices[vertexKey{common.VertexContent, key.TgtID}]; ok {
			return common.Content{
				Text:  rec.attrs.String(common.AttrText),
				CType: rec.attrs.String(common.AttrCType),
			}, nil
		}
	}
	return common.Content{}, fmt.Errorf("content of %s: %w", id, store.ErrNotFound)
}

func (s *GraphStore) GetVertex(_ context.Context, vtype common.VertexType, id string) (common.Vertex, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.vertices[vertexKey{vtype, id}]
	if !ok {
		return common.Vertex{}, false, nil
	}
	return common.Vertex{
		Type:       vtype,
		ID:         id,
		Attributes: maps.Clone(rec.attrs),
		Processed:  rec.processed,
	}, true, nil
}

func (s *GraphStore) UpsertVertex(_ context.Context, vtype common.VertexType, id string, attrs common.Attributes) error {
	if id == "" {
		return fmt.Errorf("upsert %s: empty id", vtype)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensureVertex(vtype, id)
	for k, v := range attrs {
		if k == common.AttrDescription {
			v = mergeDescriptions(v, rec.attrs[k])
		}
		rec.attrs[k] = v
	}
	s.upserts.Add(1)
	return nil
}

// mergeDescriptions unions a description list with the stored list. Plain
// string descriptions replace whatever was stored.
func mergeDescriptions(incoming, stored any) any {
	in, ok := incoming.([]string)
	if !ok {
		return incoming
	}
	switch stored.(type) {
	case []string, []any:
		prev := common.Attributes{common.AttrDescription: stored}.Strings(common.AttrDescription)
		return store.DedupeStrings(append(slices.Clone(in), prev...))
	}
	return slices.Clone(in)
}

func (s *GraphStore) UpsertEdge(
	_ context.Context,
	srcType common.VertexType, srcID string,
	edgeType common.EdgeType,
	tgtType common.VertexType, tgtID string,
	attrs common.Attributes,
) error {
	if srcID == "" || tgtID == "" {
		return fmt.Errorf("upsert %s edge: empty endpoint", edgeType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureVertex(srcType, srcID)
	s.ensureVertex(tgtType, tgtID)
	key := EdgeKey{srcType, srcID, edgeType, tgtType, tgtID}
	existing, ok := s.edges[key]
	if !ok {
		existing = common.Attributes{}
		s.edges[key] = existing
	}
	maps.Copy(existing, attrs)
	s.upserts.Add(1)
	return nil
}

func (s *GraphStore) RemoveVertex(_ context.Context, vtype common.VertexType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeVertexLocked(vtype, id)
	return nil
}

func (s *GraphStore) removeVertexLocked(vtype common.VertexType, id string) {
	delete(s.vertices, vertexKey{vtype, id})
	for key := range s.edges {
		if (key.SrcType == vtype && key.SrcID == id) || (key.TgtType == vtype && key.TgtID == id) {
			delete(s.edges, key)
		}
	}
}

func (s *GraphStore) MarkProcessed(_ context.Context, vtype common.VertexType, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if rec, ok := s.vertices[vertexKey{vtype, id}]; ok {
			rec.processed = true
		}
	}
	return nil
}

func (s *GraphStore) idsOf(vtype common.VertexType) []string {
	var ids []string
	for key := range s.vertices {
		if key.Type == vtype {
			ids = append(ids, key.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *GraphStore) sortedEdges(match func(EdgeKey) bool) []EdgeKey {
	var out []EdgeKey
	for key := range s.edges {
		if match(key) {
			out = append(out, key)
		}
	}
	slices.SortFunc(out, func(a, b EdgeKey) int {
		return strings.Compare(
			a.SrcID+"\x00"+string(a.Type)+"\x00"+a.TgtID,
			b.SrcID+"\x00"+string(b.Type)+"\x00"+b.TgtID,
		)
	})
	return out
}

func (s *GraphStore) RunClusteringPass(_ context.Context, params common.ClusteringParams) (float64, error) {
	resolution := params.Resolution
	if resolution <= 0 {
		resolution = s.resolution
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := community.NewGraph()
	for _, id := range s.idsOf(common.VertexResolvedEntity) {
		base.AddNode(id)
	}
	for _, e := range s.sortedEdges(func(k EdgeKey) bool {
		return k.Type == common.EdgeRelationship &&
			k.SrcType == common.VertexResolvedEntity &&
			k.TgtType == common.VertexResolvedEntity
	}) {
		base.AddEdge(e.SrcID, e.TgtID, 1)
	}

	parents := make([]map[string]string, 0, params.Iteration)
	for layer := 1; layer < params.Iteration; layer++ {
		p := make(map[string]string)
		for key := range s.edges {
			if key.Type != common.EdgeInCommunity || key.TgtType != common.VertexCommunity {
				continue
			}
			if rec, ok := s.vertices[vertexKey{common.VertexCommunity, key.TgtID}]; ok &&
				rec.attrs.Int(common.AttrIteration) == layer {
				p[key.SrcID] = key.TgtID
			}
		}
		parents = append(parents, p)
	}

	assignment, err := community.Run(base, parents, params.Iteration, resolution)
	if err != nil {
		return 0, err
	}

	for key, rec := range s.vertices {
		if key.Type == common.VertexCommunity && rec.attrs.Int(common.AttrIteration) >= params.Iteration {
			s.removeVertexLocked(key.Type, key.ID)
		}
	}

	memberType := common.VertexResolvedEntity
	if params.Iteration > 1 {
		memberType = common.VertexCommunity
	}
	for k, cid := range assignment.Communities {
		rec := s.ensureVertex(common.VertexCommunity, cid)
		rec.attrs[common.AttrIteration] = params.Iteration
		for _, member := range assignment.Members[k] {
			s.edges[EdgeKey{memberType, member, common.EdgeInCommunity, common.VertexCommunity, cid}] = common.Attributes{}
		}
	}
	return assignment.Modularity, nil
}

func (s *GraphStore) ListCommunities(_ context.Context, iteration int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for key, rec := range s.vertices {
		if key.Type == common.VertexCommunity && rec.attrs.Int(common.AttrIteration) == iteration {
			ids = append(ids, key.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *GraphStore) GetChildren(_ context.Context, iteration int, communityID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.vertices[vertexKey{common.VertexCommunity, communityID}]; !ok {
		return nil, fmt.Errorf("community %s: %w", communityID, store.ErrNotFound)
	}

	var out []string
	for _, e := range s.sortedEdges(func(k EdgeKey) bool {
		return k.Type == common.EdgeInCommunity && k.TgtID == communityID
	}) {
		rec := s.vertices[vertexKey{e.SrcType, e.SrcID}]
		var descs []string
		if rec != nil {
			descs = rec.attrs.Strings(common.AttrDescription)
		}
		if iteration == 1 {
			for _, r := range s.sortedEdges(func(k EdgeKey) bool {
				return k.Type == common.EdgeResolvesTo && k.TgtID == e.SrcID
			}) {
				if ent, ok := s.vertices[vertexKey{common.VertexEntity, r.SrcID}]; ok {
					descs = append(descs, ent.attrs.Strings(common.AttrDescription)...)
				}
			}
		}
		out = append(out, store.ChildDescription(e.SrcID, descs))
	}
	return out, nil
}

func (s *GraphStore) CopyResolvedRelationships(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := make(map[string][]string)
	for key := range s.edges {
		if key.Type == common.EdgeResolvesTo && key.SrcType == common.VertexEntity {
			resolved[key.SrcID] = append(resolved[key.SrcID], key.TgtID)
		}
	}
	for _, e := range s.sortedEdges(func(k EdgeKey) bool {
		return k.Type == common.EdgeRelationship && k.SrcType == common.VertexEntity && k.TgtType == common.VertexEntity
	}) {
		attrs := s.edges[e]
		for _, rs := range resolved[e.SrcID] {
			for _, rt := range resolved[e.TgtID] {
				if rs == rt {
					continue
				}
				s.ensureVertex(common.VertexResolvedEntity, rs)
				s.ensureVertex(common.VertexResolvedEntity, rt)
				s.edges[EdgeKey{common.VertexResolvedEntity, rs, common.EdgeRelationship, common.VertexResolvedEntity, rt}] = maps.Clone(attrs)
			}
		}
	}
	return nil
}

func (s *GraphStore) SetPending(_ context.Context, step common.Step, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending {
		s.pending[step] = true
	} else {
		delete(s.pending, step)
	}
	return nil
}

func (s *GraphStore) Pending(_ context.Context, step common.Step) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[step], nil
}

func (s *GraphStore) MissingVertices(_ context.Context, vtype common.VertexType, ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for _, id := range ids {
		if _, ok := s.vertices[vertexKey{vtype, id}]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *GraphStore) Status(_ context.Context, vtype common.VertexType) (common.VertexStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := common.VertexStatus{Type: vtype}
	for key, rec := range s.vertices {
		if key.Type != vtype {
			continue
		}
		st.Total++
		if rec.processed {
			st.Processed++
		}
	}
	st.Unprocessed = st.Total - st.Processed
	return st, nil
}

// Edges returns the edges of type t in a stable order.
func (s *GraphStore) Edges(t common.EdgeType) []EdgeKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedEdges(func(k EdgeKey) bool { return k.Type == t })
}

// EdgeAttributes returns a copy of the attributes of an edge.
func (s *GraphStore) EdgeAttributes(key EdgeKey) (common.Attributes, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.edges[key]
	return maps.Clone(attrs), ok
}

// IDs returns every vertex id of vtype, sorted.
func (s *GraphStore) IDs(vtype common.VertexType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idsOf(vtype)
}
