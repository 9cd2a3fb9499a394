package memory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
)

type vectorEntry struct {
	pk     int64
	id     string
	text   string
	vector []float32
}

// VectorStore is a store.VectorStore doing exhaustive cosine search.
type VectorStore struct {
	mu      sync.RWMutex
	indexes map[common.VertexType][]vectorEntry
	nextPK  int64
	adds    int64
}

var _ store.VectorStore = (*VectorStore)(nil)

func NewVectorStore() *VectorStore {
	return &VectorStore{indexes: make(map[common.VertexType][]vectorEntry)}
}

func (s *VectorStore) AddEmbedding(_ context.Context, index common.VertexType, id, text string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("add embedding %s/%s: empty vector", index, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := slices.DeleteFunc(s.indexes[index], func(e vectorEntry) bool { return e.id == id })
	s.nextPK++
	s.indexes[index] = append(entries, vectorEntry{pk: s.nextPK, id: id, text: text, vector: slices.Clone(vector)})
	s.adds++
	return nil
}

// Insert appends an entry without replacing earlier ones for the same id.
// Stores that lost their uniqueness guarantee look like this; the cleanup
// pass repairs them.
func (s *VectorStore) Insert(index common.VertexType, id string, vector []float32) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPK++
	s.indexes[index] = append(s.indexes[index], vectorEntry{pk: s.nextPK, id: id, vector: slices.Clone(vector)})
	return s.nextPK
}

// Adds counts AddEmbedding calls.
func (s *VectorStore) Adds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adds
}

// Text returns the text stored with the embedding of id.
func (s *VectorStore) Text(index common.VertexType, id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.indexes[index] {
		if e.id == id {
			return e.text, true
		}
	}
	return "", false
}

func (s *VectorStore) RemoveEmbeddings(_ context.Context, index common.VertexType, filter common.VectorFilter) error {
	if filter.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[index] = slices.DeleteFunc(s.indexes[index], func(e vectorEntry) bool {
		return slices.Contains(filter.VertexIDs, e.id) || slices.Contains(filter.PKs, e.pk)
	})
	return nil
}

func (s *VectorStore) KNearest(_ context.Context, index common.VertexType, id string, k int, threshold float64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.indexes[index]
	i := slices.IndexFunc(entries, func(e vectorEntry) bool { return e.id == id })
	if i < 0 {
		return nil, fmt.Errorf("embedding %s/%s: %w", index, id, store.ErrNotFound)
	}
	query := entries[i].vector

	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	seen := map[string]bool{id: true}
	for _, e := range entries {
		if seen[e.id] {
			continue
		}
		seen[e.id] = true
		if score := cosine(query, e.vector); score >= threshold {
			hits = append(hits, hit{e.id, score})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out, nil
}

func (s *VectorStore) Exists(_ context.Context, index common.VertexType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[index]
	return ok, nil
}

func (s *VectorStore) CreateIndex(_ context.Context, index common.VertexType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[index]; !ok {
		s.indexes[index] = nil
	}
	return nil
}

func (s *VectorStore) ListEntries(_ context.Context, index common.VertexType) ([]common.VectorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.VectorEntry, 0, len(s.indexes[index]))
	for _, e := range s.indexes[index] {
		out = append(out, common.VectorEntry{PK: e.pk, VertexID: e.id})
	}
	slices.SortFunc(out, func(a, b common.VectorEntry) int { return cmp.Compare(a.PK, b.PK) })
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Opener hands out one pair of stores per graph name, creating them on first
// use.
type Opener struct {
	mu     sync.Mutex
	graphs map[string]store.Stores
}

func NewOpener() *Opener {
	return &Opener{graphs: make(map[string]store.Stores)}
}

func (o *Opener) Open(_ context.Context, graph string) (store.Stores, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.graphs[graph]
	if !ok {
		st = store.Stores{Graph: NewGraphStore(), Vector: NewVectorStore()}
		o.graphs[graph] = st
	}
	return st, nil
}
