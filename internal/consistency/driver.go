// Package consistency keeps graphs eventually consistent: a driver per graph
// runs pipeline passes until nothing is left to process and periodically
// removes embeddings that no longer match a vertex.
package consistency

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/graph"
	"github.com/OFFIS-RIT/graphsync/pkg/leaselock"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
)

const (
	KindSync    = "sync"
	KindCleanup = "cleanup"

	DefaultSyncInterval    = 30 * time.Minute
	DefaultCleanupInterval = 24 * time.Hour
	DefaultCleanupBatch    = 10
)

// Pipeline runs one processing pass over a graph.
type Pipeline interface {
	Sync(ctx context.Context, report *graph.Report) (didWork bool, err error)
}

// Leaser serializes passes across replicas. fn only runs while the lease
// for key is held.
type Leaser interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Status is the externally visible state of a driver.
type Status struct {
	Graph       string                `json:"graph"`
	Initialized bool                  `json:"initialized"`
	Vertices    []common.VertexStatus `json:"vertices"`
	LastSync    *graph.ReportData     `json:"last_sync,omitempty"`
	LastCleanup *graph.ReportData     `json:"last_cleanup,omitempty"`
}

// Driver runs the sync and cleanup loops of one graph.
//
// A Driver should be created using NewDriver.
type Driver struct {
	name     string
	stores   store.Stores
	pipeline Pipeline
	statuses StatusStore
	leases   Leaser

	syncInterval    time.Duration
	cleanupInterval time.Duration
	cleanupBatch    int

	syncNow    chan struct{}
	cleanupNow chan struct{}

	mu           sync.Mutex
	correlations map[string][]string
	initialized  bool
	lastSync     *graph.Report
	lastCleanup  *graph.Report
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewDriverParams configures a Driver. Statuses and Leases are optional;
// without Leases every pass runs unguarded.
type NewDriverParams struct {
	Graph    string
	Stores   store.Stores
	Pipeline Pipeline
	Statuses StatusStore
	Leases   Leaser

	SyncInterval    time.Duration
	CleanupInterval time.Duration
	CleanupBatch    int
}

func NewDriver(params NewDriverParams) (*Driver, error) {
	switch {
	case params.Graph == "":
		return nil, errors.New("graph name is required")
	case params.Stores.Graph == nil || params.Stores.Vector == nil:
		return nil, errors.New("graph and vector store are required")
	case params.Pipeline == nil:
		return nil, errors.New("pipeline is required")
	}

	d := &Driver{
		name:            params.Graph,
		stores:          params.Stores,
		pipeline:        params.Pipeline,
		statuses:        params.Statuses,
		leases:          params.Leases,
		syncInterval:    params.SyncInterval,
		cleanupInterval: params.CleanupInterval,
		cleanupBatch:    params.CleanupBatch,
		syncNow:         make(chan struct{}, 1),
		cleanupNow:      make(chan struct{}, 1),
		correlations:    make(map[string][]string),
	}
	if d.syncInterval <= 0 {
		d.syncInterval = DefaultSyncInterval
	}
	if d.cleanupInterval <= 0 {
		d.cleanupInterval = DefaultCleanupInterval
	}
	if d.cleanupBatch <= 0 {
		d.cleanupBatch = DefaultCleanupBatch
	}
	return d, nil
}

func (d *Driver) Graph() string { return d.name }

// Start launches the sync and cleanup loops. Calling Start on a running
// driver does nothing.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.initialized = true
	done := d.done
	d.mu.Unlock()

	if d.statuses != nil {
		if err := d.statuses.SetInitialized(ctx, d.name, true); err != nil {
			logger.Error("[Consistency] Failed to persist initialized flag", "graph", d.name, "err", err)
		}
	}
	logger.Info("[Consistency] Driver started", "graph", d.name)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.syncLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		d.cleanupLoop(ctx)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
}

// Stop cancels both loops, waits for the running passes to return and
// clears the persisted initialized flag.
func (d *Driver) Stop() { d.stop(true) }

// Halt stops the driver like Stop but leaves the persisted flag set, so the
// next worker picks the graph up again.
func (d *Driver) Halt() { d.stop(false) }

func (d *Driver) stop(persist bool) {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	d.mu.Lock()
	d.initialized = false
	d.mu.Unlock()
	if persist && d.statuses != nil {
		if err := d.statuses.SetInitialized(context.Background(), d.name, false); err != nil {
			logger.Error("[Consistency] Failed to persist initialized flag", "graph", d.name, "err", err)
		}
	}
	logger.Info("[Consistency] Driver stopped", "graph", d.name)
}

// Correlate attaches ids to the next pass of kind that has not started yet.
// Empty ids are ignored.
func (d *Driver) Correlate(kind string, ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		if id != "" {
			d.correlations[kind] = append(d.correlations[kind], id)
		}
	}
}

func (d *Driver) takeCorrelations(kind string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.correlations[kind]
	delete(d.correlations, kind)
	return ids
}

// TriggerSync wakes the sync loop if it is sleeping. ids are recorded on
// the pass that follows.
func (d *Driver) TriggerSync(ids ...string) {
	d.Correlate(KindSync, ids...)
	notify(d.syncNow)
}

// TriggerCleanup wakes the cleanup loop if it is sleeping. ids are recorded
// on the pass that follows.
func (d *Driver) TriggerCleanup(ids ...string) {
	d.Correlate(KindCleanup, ids...)
	notify(d.cleanupNow)
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// sleep waits for d, a trigger or cancellation. It reports false when ctx
// is done.
func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	case <-t.C:
		return true
	}
}

func (d *Driver) syncLoop(ctx context.Context) {
	for ctx.Err() == nil {
		didWork, _ := d.SyncOnce(ctx)
		if didWork {
			continue
		}
		if !sleep(ctx, d.syncInterval, d.syncNow) {
			return
		}
	}
}

func (d *Driver) cleanupLoop(ctx context.Context) {
	for ctx.Err() == nil {
		_ = d.CleanupOnce(ctx)
		if !sleep(ctx, d.cleanupInterval, d.cleanupNow) {
			return
		}
	}
}

// SyncOnce runs a single sync pass and reports whether it processed
// anything.
func (d *Driver) SyncOnce(ctx context.Context) (bool, error) {
	var didWork bool
	report, err := d.run(ctx, KindSync, func(ctx context.Context, report *graph.Report) error {
		var err error
		didWork, err = d.pipeline.Sync(ctx, report)
		return err
	})
	d.mu.Lock()
	d.lastSync = report
	d.mu.Unlock()
	return didWork, err
}

// CleanupOnce removes duplicate embeddings and embeddings of deleted
// vertices from every index.
func (d *Driver) CleanupOnce(ctx context.Context) error {
	report, err := d.run(ctx, KindCleanup, d.cleanup)
	d.mu.Lock()
	d.lastCleanup = report
	d.mu.Unlock()
	return err
}

// run executes fn under the pass lease, recovering panics and persisting
// the report before and after.
func (d *Driver) run(ctx context.Context, kind string, fn func(context.Context, *graph.Report) error) (*graph.Report, error) {
	report := graph.NewReport(d.name, kind)
	report.AddCorrelationIDs(d.takeCorrelations(kind)...)
	d.save(ctx, report)

	guarded := func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s pass: %v", kind, r)
				logger.Error("[Consistency] Recovered panic", "graph", d.name, "kind", kind, "stack", string(debug.Stack()))
			}
		}()
		defer report.Track(kind)()
		return fn(ctx, report)
	}

	var err error
	if d.leases != nil {
		err = d.leases.WithLease(ctx, "graph:"+d.name+":"+kind, guarded)
	} else {
		err = guarded(ctx)
	}

	switch {
	case errors.Is(err, leaselock.ErrBusy):
		logger.Info("[Consistency] Pass already running elsewhere", "graph", d.name, "kind", kind)
	case err != nil && ctx.Err() == nil:
		logger.Error("[Consistency] Pass failed", "graph", d.name, "kind", kind, "err", err)
	case err == nil:
		snap := report.Snapshot()
		logger.Info("[Consistency] Pass finished",
			"graph", d.name,
			"kind", kind,
			"request_id", snap.RequestID,
			"correlation_ids", snap.CorrelationIDs,
			"failures", report.Failures(),
		)
	}
	report.Finish(err)
	d.save(context.WithoutCancel(ctx), report)
	return report, err
}

func (d *Driver) save(ctx context.Context, report *graph.Report) {
	if d.statuses == nil {
		return
	}
	if err := d.statuses.SaveRun(ctx, report.Snapshot()); err != nil {
		logger.Error("[Consistency] Failed to persist run", "graph", d.name, "request_id", report.RequestID(), "err", err)
	}
}

// splitDuplicates keeps the first entry per vertex id, in pk order, and
// returns the pks of every later one.
func splitDuplicates(entries []common.VectorEntry) (ids []string, dupes []int64) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.VertexID]; ok {
			dupes = append(dupes, e.PK)
			continue
		}
		seen[e.VertexID] = struct{}{}
		ids = append(ids, e.VertexID)
	}
	return ids, dupes
}

func (d *Driver) cleanup(ctx context.Context, report *graph.Report) error {
	var errs []error
	for _, index := range common.EmbeddedTypes {
		if err := d.cleanupIndex(ctx, index, report); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("cleanup %s: %w", index, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) cleanupIndex(ctx context.Context, index common.VertexType, report *graph.Report) error {
	exists, err := d.stores.Vector.Exists(ctx, index)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	entries, err := d.stores.Vector.ListEntries(ctx, index)
	if err != nil {
		return err
	}
	slices.SortFunc(entries, func(a, b common.VectorEntry) int { return cmp.Compare(a.PK, b.PK) })

	ids, dupes := splitDuplicates(entries)
	if len(dupes) > 0 {
		if err := d.stores.Vector.RemoveEmbeddings(ctx, index, common.VectorFilter{PKs: dupes}); err != nil {
			return fmt.Errorf("remove duplicates: %w", err)
		}
		report.Inc(graph.CounterDuplicates, int64(len(dupes)))
		logger.Info("[Cleanup] Removed duplicate embeddings", "graph", d.name, "index", index, "count", len(dupes))
	}

	return store.ChunkRange(len(ids), d.cleanupBatch, func(start, end int) error {
		batch := ids[start:end]
		missing, err := d.stores.Graph.MissingVertices(ctx, index, batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.Fail("cleanup", string(index), err)
			return nil
		}
		if len(missing) == 0 {
			return nil
		}
		if err := d.stores.Vector.RemoveEmbeddings(ctx, index, common.VectorFilter{VertexIDs: missing}); err != nil {
			report.Fail("cleanup", string(index), err)
			return nil
		}
		report.Inc(graph.CounterOrphans, int64(len(missing)))
		logger.Info("[Cleanup] Removed orphan embeddings", "graph", d.name, "index", index, "count", len(missing))
		return nil
	})
}

// Status reports the driver state and per-type vertex counts.
func (d *Driver) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	st := Status{Graph: d.name, Initialized: d.initialized}
	if d.lastSync != nil {
		snap := d.lastSync.Snapshot()
		st.LastSync = &snap
	}
	if d.lastCleanup != nil {
		snap := d.lastCleanup.Snapshot()
		st.LastCleanup = &snap
	}
	d.mu.Unlock()

	for _, vtype := range common.VertexTypes {
		vs, err := d.stores.Graph.Status(ctx, vtype)
		if err != nil {
			return st, fmt.Errorf("status of %s: %w", vtype, err)
		}
		st.Vertices = append(st.Vertices, vs)
	}
	return st, nil
}
