package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_DrainOnClose(t *testing.T) {
	ctx := context.Background()
	ch := New[int](5)
	for i := range 5 {
		require.NoError(t, ch.Put(ctx, i))
	}
	ch.Close()

	var got []int
	for item := range ch.All() {
		got = append(got, item)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)

	_, ok, err := ch.Get(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	ch := New[string](1)
	ch.Close()
	ch.Close()
	assert.True(t, ch.Closed())
	assert.ErrorIs(t, ch.Put(context.Background(), "x"), ErrClosed)
}

func TestChannel_PutBlocksWhileFull(t *testing.T) {
	ctx := context.Background()
	ch := New[int](1)
	require.NoError(t, ch.Put(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- ch.Put(ctx, 2) }()

	select {
	case <-done:
		t.Fatal("put returned while the channel was full")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok, err := ch.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	require.NoError(t, <-done)
	assert.Equal(t, 1, ch.Len())
}

func TestChannel_CloseReleasesBlockedProducer(t *testing.T) {
	ctx := context.Background()
	ch := New[int](1)
	require.NoError(t, ch.Put(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- ch.Put(ctx, 2) }()
	time.Sleep(10 * time.Millisecond)
	ch.Close()

	err := <-done
	assert.True(t, errors.Is(err, ErrClosed))

	var got []int
	for v := range ch.All() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1}, got)
}

func TestChannel_GetHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok, err := New[int](1).Get(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_ManyProducersManyConsumers(t *testing.T) {
	ctx := context.Background()
	ch := New[int](3)

	var producers sync.WaitGroup
	for p := range 4 {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for i := range 25 {
				_ = ch.Put(ctx, p*100+i)
			}
		}()
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	var consumers sync.WaitGroup
	for range 3 {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			_ = ch.Drain(ctx, func(v int) {
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			})
		}()
	}

	producers.Wait()
	ch.Close()
	consumers.Wait()
	assert.Len(t, seen, 100)
}
