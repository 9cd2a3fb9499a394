package graph

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/OFFIS-RIT/graphsync/internal/timing"
	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
)

// MaxFailures caps the failures kept per report. Later ones are only counted.
const MaxFailures = 100

// Counter names used in reports.
const (
	CounterDocuments     = "documents"
	CounterChunks        = "chunks"
	CounterEmbeddings    = "embeddings"
	CounterExtractions   = "extractions"
	CounterEntities      = "entities"
	CounterRelationships = "relationships"
	CounterMutations     = "mutations"
	CounterResolved      = "resolved_entities"
	CounterLayers        = "community_layers"
	CounterCommunities   = "communities"
	CounterSummaries     = "summaries"
	CounterDuplicates    = "duplicate_embeddings"
	CounterOrphans       = "orphan_embeddings"
)

type ReportStatus string

const (
	StatusRunning   ReportStatus = "running"
	StatusSucceeded ReportStatus = "succeeded"
	StatusFailed    ReportStatus = "failed"
)

// Failure is one per-item error recorded during a pass.
type Failure struct {
	Stage string    `json:"stage"`
	ID    string    `json:"id"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// ReportData is the serializable state of a Report.
type ReportData struct {
	RequestID       string           `json:"request_id"`
	CorrelationIDs  []string         `json:"correlation_ids,omitempty"`
	Graph           string           `json:"graph"`
	Kind            string           `json:"kind"`
	Status          ReportStatus     `json:"status"`
	Error           string           `json:"error,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	Counters        map[string]int64 `json:"counters"`
	PhasesMs        map[string]int64 `json:"phases_ms"`
	Failures        []Failure        `json:"failures"`
	DroppedFailures int              `json:"dropped_failures,omitempty"`
}

// Report collects counters, phase timings and failures of one pass. All
// methods are safe for concurrent use and accept a nil receiver.
type Report struct {
	mu     sync.Mutex
	data   ReportData
	phases *timing.Phases
}

func NewReport(graph, kind string) *Report {
	return &Report{
		data: ReportData{
			RequestID: util.NewRequestID(),
			Graph:     graph,
			Kind:      kind,
			Status:    StatusRunning,
			StartedAt: time.Now().UTC(),
			Counters:  make(map[string]int64),
		},
		phases: timing.NewPhases(),
	}
}

func (r *Report) RequestID() string {
	if r == nil {
		return ""
	}
	return r.data.RequestID
}

// AddCorrelationIDs ties the pass to the requests that asked for it.
func (r *Report) AddCorrelationIDs(ids ...string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if id != "" && !slices.Contains(r.data.CorrelationIDs, id) {
			r.data.CorrelationIDs = append(r.data.CorrelationIDs, id)
		}
	}
}

func (r *Report) Inc(counter string, n int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.data.Counters[counter] += n
	r.mu.Unlock()
}

func (r *Report) Count(counter string) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Counters[counter]
}

// Fail logs err and records it against id.
func (r *Report) Fail(stage, id string, err error) {
	logger.Error("["+stage+"] "+id, "err", err)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data.Failures) >= MaxFailures {
		r.data.DroppedFailures++
		return
	}
	r.data.Failures = append(r.data.Failures, Failure{
		Stage: stage,
		ID:    id,
		Error: err.Error(),
		At:    time.Now().UTC(),
	})
}

// Failures returns the number of failures recorded, dropped ones included.
func (r *Report) Failures() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data.Failures) + r.data.DroppedFailures
}

// Track times phase until the returned function is called.
func (r *Report) Track(phase string) func() {
	if r == nil {
		return func() {}
	}
	return r.phases.Track(phase)
}

// Finish closes the report. A nil err marks it succeeded.
func (r *Report) Finish(err error) {
	if r == nil {
		return
	}
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.FinishedAt = &now
	if err != nil {
		r.data.Status = StatusFailed
		r.data.Error = err.Error()
		return
	}
	r.data.Status = StatusSucceeded
}

// Snapshot returns a copy of the current state.
func (r *Report) Snapshot() ReportData {
	if r == nil {
		return ReportData{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.data
	out.Counters = maps.Clone(r.data.Counters)
	out.Failures = append([]Failure(nil), r.data.Failures...)
	out.CorrelationIDs = slices.Clone(r.data.CorrelationIDs)
	out.PhasesMs = r.phases.Milliseconds()
	if out.FinishedAt != nil {
		t := *out.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
