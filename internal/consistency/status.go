package consistency

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/graph"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
)

// GraphState is the persisted driver flag of one graph.
type GraphState struct {
	Graph       string    `json:"graph"`
	Initialized bool      `json:"initialized"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusStore persists driver state and pass reports so processes other
// than the worker can read them.
type StatusStore interface {
	SetInitialized(ctx context.Context, graph string, initialized bool) error
	SaveRun(ctx context.Context, run graph.ReportData) error
	// GetRun looks a run up by its request id or, failing that, returns the
	// latest run carrying id as a correlation id.
	GetRun(ctx context.Context, id string) (graph.ReportData, bool, error)
	// LatestRun returns the most recently started run of kind for graph.
	LatestRun(ctx context.Context, graph, kind string) (graph.ReportData, bool, error)
	GetGraph(ctx context.Context, graph string) (GraphState, bool, error)
	ListGraphs(ctx context.Context) ([]GraphState, error)
}

// MemoryStatusStore keeps status in process.
type MemoryStatusStore struct {
	mu     sync.RWMutex
	graphs map[string]GraphState
	runs   map[string]graph.ReportData
}

var _ StatusStore = (*MemoryStatusStore)(nil)

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{
		graphs: make(map[string]GraphState),
		runs:   make(map[string]graph.ReportData),
	}
}

func (m *MemoryStatusStore) SetInitialized(_ context.Context, name string, initialized bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs[name] = GraphState{Graph: name, Initialized: initialized, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryStatusStore) SaveRun(_ context.Context, run graph.ReportData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RequestID] = run
	return nil
}

func (m *MemoryStatusStore) GetRun(_ context.Context, id string) (graph.ReportData, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if run, ok := m.runs[id]; ok {
		return run, true, nil
	}
	var (
		latest graph.ReportData
		found  bool
	)
	for _, run := range m.runs {
		if !slices.Contains(run.CorrelationIDs, id) {
			continue
		}
		if !found || run.StartedAt.After(latest.StartedAt) {
			latest, found = run, true
		}
	}
	return latest, found, nil
}

func (m *MemoryStatusStore) LatestRun(_ context.Context, name, kind string) (graph.ReportData, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest graph.ReportData
		found  bool
	)
	for _, run := range m.runs {
		if run.Graph != name || run.Kind != kind {
			continue
		}
		if !found || run.StartedAt.After(latest.StartedAt) {
			latest, found = run, true
		}
	}
	return latest, found, nil
}

func (m *MemoryStatusStore) GetGraph(_ context.Context, name string) (GraphState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.graphs[name]
	return st, ok, nil
}

func (m *MemoryStatusStore) ListGraphs(_ context.Context) ([]GraphState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]GraphState, 0, len(m.graphs))
	for _, st := range m.graphs {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b GraphState) int { return strings.Compare(a.Graph, b.Graph) })
	return out, nil
}

// LoadStatus assembles the status of a graph from persisted state, for
// processes that do not run its driver. It reports false when no driver was
// ever started for the graph.
func LoadStatus(ctx context.Context, statuses StatusStore, gs store.GraphStore, name string) (Status, bool, error) {
	state, ok, err := statuses.GetGraph(ctx, name)
	if err != nil || !ok {
		return Status{}, false, err
	}
	st := Status{Graph: name, Initialized: state.Initialized}

	if run, ok, err := statuses.LatestRun(ctx, name, KindSync); err != nil {
		return st, false, err
	} else if ok {
		st.LastSync = &run
	}
	if run, ok, err := statuses.LatestRun(ctx, name, KindCleanup); err != nil {
		return st, false, err
	} else if ok {
		st.LastCleanup = &run
	}

	for _, vtype := range common.VertexTypes {
		vs, err := gs.Status(ctx, vtype)
		if err != nil {
			return st, false, err
		}
		st.Vertices = append(st.Vertices, vs)
	}
	return st, true, nil
}
