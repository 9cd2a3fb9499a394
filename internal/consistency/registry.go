package consistency

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/OFFIS-RIT/graphsync/pkg/logger"
)

// Factory builds the driver of a graph.
type Factory func(ctx context.Context, graph string) (*Driver, error)

// Registry owns the running drivers, at most one per graph.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	drivers map[string]*Driver
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, drivers: make(map[string]*Driver)}
}

// StartOption prepares a freshly built driver before its loops run.
type StartOption func(*Driver)

// WithCorrelation records id on the first pass of kind.
func WithCorrelation(kind, id string) StartOption {
	return func(d *Driver) { d.Correlate(kind, id) }
}

// Start builds and starts the driver for graph unless one is running.
// started is false when the driver already existed, in which case opts are
// not applied.
func (r *Registry) Start(ctx context.Context, graph string, opts ...StartOption) (d *Driver, started bool, err error) {
	if d, ok := r.Get(graph); ok {
		return d, false, nil
	}
	d, err = r.factory(ctx, graph)
	if err != nil {
		return nil, false, fmt.Errorf("build driver for %s: %w", graph, err)
	}

	r.mu.Lock()
	if existing, ok := r.drivers[graph]; ok {
		r.mu.Unlock()
		return existing, false, nil
	}
	r.drivers[graph] = d
	r.mu.Unlock()

	for _, opt := range opts {
		opt(d)
	}
	d.Start(ctx)
	return d, true, nil
}

func (r *Registry) Get(graph string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[graph]
	return d, ok
}

// Stop stops and forgets the driver of graph. It reports whether one was
// running.
func (r *Registry) Stop(graph string) bool {
	r.mu.Lock()
	d, ok := r.drivers[graph]
	delete(r.drivers, graph)
	r.mu.Unlock()
	if !ok {
		return false
	}
	d.Stop()
	return true
}

// StopAll halts every driver concurrently and waits for all of them. The
// graphs stay flagged initialized for the next worker.
func (r *Registry) StopAll() {
	r.mu.Lock()
	drivers := r.drivers
	r.drivers = make(map[string]*Driver)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for name, d := range drivers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Halt()
			logger.Debug("[Registry] Stopped driver", "graph", name)
		}()
	}
	wg.Wait()
}

// Graphs returns the names of the running drivers, sorted.
func (r *Registry) Graphs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
