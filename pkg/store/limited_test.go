package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
	"github.com/OFFIS-RIT/graphsync/pkg/store/memory"
	"github.com/stretchr/testify/assert"
)

type slowStore struct {
	*memory.GraphStore
	inflight atomic.Int64
	peak     atomic.Int64
}

func (s *slowStore) UpsertVertex(ctx context.Context, vtype common.VertexType, id string, attrs common.Attributes) error {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return s.GraphStore.UpsertVertex(ctx, vtype, id, attrs)
}

func TestLimitedGraphStore_CapsConcurrency(t *testing.T) {
	inner := &slowStore{GraphStore: memory.NewGraphStore()}
	limited := store.NewLimitedGraphStore(inner, 3)

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limited.UpsertVertex(context.Background(), common.VertexEntity, string(rune('a'+i)), nil)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.peak.Load(), int64(3))
	assert.Equal(t, int64(30), inner.Upserts())
}

func TestDedupeStringsAndChunkRange(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, store.DedupeStrings([]string{"a", "", "b", "a"}))

	var spans [][2]int
	_ = store.ChunkRange(25, 10, func(start, end int) error {
		spans = append(spans, [2]int{start, end})
		return nil
	})
	assert.Equal(t, [][2]int{{0, 10}, {10, 20}, {20, 25}}, spans)
}
