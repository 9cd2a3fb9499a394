// Package timing records how long the phases of a pass take.
package timing

import (
	"maps"
	"sync"
	"time"
)

// Phases accumulates wall-clock durations per named phase. Safe for
// concurrent use.
type Phases struct {
	mu        sync.Mutex
	durations map[string]time.Duration
	order     []string
}

func NewPhases() *Phases {
	return &Phases{durations: make(map[string]time.Duration)}
}

// Track starts timing phase and returns the function that stops it.
//
//	defer phases.Track("resolve")()
func (p *Phases) Track(phase string) func() {
	start := time.Now()
	return func() { p.Add(phase, time.Since(start)) }
}

// Add adds d to phase.
func (p *Phases) Add(phase string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.durations[phase]; !ok {
		p.order = append(p.order, phase)
	}
	p.durations[phase] += d
}

// Get returns the accumulated duration for phase.
func (p *Phases) Get(phase string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durations[phase]
}

// Milliseconds returns a copy of all phases in milliseconds, the format
// persisted in run reports.
func (p *Phases) Milliseconds() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.durations))
	for k, v := range p.durations {
		out[k] = v.Milliseconds()
	}
	return out
}

// Names returns the phases in first-seen order.
func (p *Phases) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// Merge adds every phase of other into p.
func (p *Phases) Merge(other *Phases) {
	other.mu.Lock()
	snapshot := maps.Clone(other.durations)
	order := append([]string(nil), other.order...)
	other.mu.Unlock()
	for _, name := range order {
		p.Add(name, snapshot[name])
	}
}
