package graph

import "sync"

// LayerBarrier tracks the communities of one layer until each has been
// written. Done is closed once every id was marked.
type LayerBarrier struct {
	mu      sync.Mutex
	pending map[string]struct{}
	done    chan struct{}
}

func NewLayerBarrier(ids []string) *LayerBarrier {
	b := &LayerBarrier{
		pending: make(map[string]struct{}, len(ids)),
		done:    make(chan struct{}),
	}
	for _, id := range ids {
		b.pending[id] = struct{}{}
	}
	if len(b.pending) == 0 {
		close(b.done)
	}
	return b
}

// Mark records id as written. Unknown and repeated ids are ignored.
func (b *LayerBarrier) Mark(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[id]; !ok {
		return
	}
	delete(b.pending, id)
	if len(b.pending) == 0 {
		close(b.done)
	}
}

func (b *LayerBarrier) Done() <-chan struct{} { return b.done }

func (b *LayerBarrier) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
