package consistency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/graphsync/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory(built *atomic.Int64) Factory {
	opener := memory.NewOpener()
	return func(ctx context.Context, name string) (*Driver, error) {
		if name == "broken" {
			return nil, errors.New("no such graph")
		}
		built.Add(1)
		stores, err := opener.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		return NewDriver(NewDriverParams{
			Graph:        name,
			Stores:       stores,
			Pipeline:     &scriptedPipeline{},
			SyncInterval: time.Hour,
		})
	}
}

func TestRegistry_StartIsIdempotent(t *testing.T) {
	var built atomic.Int64
	r := NewRegistry(testFactory(&built))
	defer r.StopAll()

	d1, started, err := r.Start(context.Background(), "g")
	require.NoError(t, err)
	assert.True(t, started)

	d2, started, err := r.Start(context.Background(), "g")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Same(t, d1, d2)
	assert.Equal(t, int64(1), built.Load())

	got, ok := r.Get("g")
	require.True(t, ok)
	assert.Same(t, d1, got)
}

func TestRegistry_ConcurrentStart(t *testing.T) {
	var built atomic.Int64
	r := NewRegistry(testFactory(&built))
	defer r.StopAll()

	var (
		wg      sync.WaitGroup
		starts  atomic.Int64
		drivers sync.Map
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, started, err := r.Start(context.Background(), "g")
			if err != nil {
				return
			}
			if started {
				starts.Add(1)
			}
			drivers.Store(d, struct{}{})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), starts.Load())
	n := 0
	drivers.Range(func(any, any) bool { n++; return true })
	assert.Equal(t, 1, n)
}

func TestRegistry_FactoryError(t *testing.T) {
	var built atomic.Int64
	r := NewRegistry(testFactory(&built))

	_, _, err := r.Start(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Empty(t, r.Graphs())
}

func TestRegistry_StopAndGraphs(t *testing.T) {
	var built atomic.Int64
	r := NewRegistry(testFactory(&built))

	for _, name := range []string{"b", "a", "c"} {
		_, _, err := r.Start(context.Background(), name)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.Graphs())

	assert.True(t, r.Stop("b"))
	assert.False(t, r.Stop("b"))
	assert.Equal(t, []string{"a", "c"}, r.Graphs())

	r.StopAll()
	assert.Empty(t, r.Graphs())
}
