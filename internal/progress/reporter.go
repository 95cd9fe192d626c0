package progress

import (
	"sync"
	"time"
)

// MultiReporter fans events out to a set of sinks while enforcing the
// per-job stream contract: percent never regresses, and after a terminal
// event every later event for that job is dropped.
type MultiReporter struct {
	mu    sync.Mutex
	jobs  map[string]*jobState
	sinks []Reporter
}

type jobState struct {
	lastPercent float64
	terminal    bool
}

// NewMultiReporter builds a fan-out reporter over the given sinks. Nil
// sinks are skipped.
func NewMultiReporter(sinks ...Reporter) *MultiReporter {
	kept := make([]Reporter, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &MultiReporter{
		jobs:  make(map[string]*jobState),
		sinks: kept,
	}
}

// Emit applies the monotonic clamp and terminal guard, then forwards the
// event to every sink.
func (m *MultiReporter) Emit(evt Event) {
	if evt.JobID == "" {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	state, ok := m.jobs[evt.JobID]
	if !ok {
		state = &jobState{}
		m.jobs[evt.JobID] = state
	}
	if state.terminal {
		m.mu.Unlock()
		return
	}
	if evt.Percent < state.lastPercent {
		evt.Percent = state.lastPercent
	} else {
		state.lastPercent = evt.Percent
	}
	if evt.Terminal {
		state.terminal = true
	}
	sinks := append([]Reporter(nil), m.sinks...)
	m.mu.Unlock()

	for _, sink := range sinks {
		sink.Emit(evt)
	}
}

// Forget releases per-job clamp state once a job is fully finished and
// cascades to every sink that holds per-job state of its own (the hub's
// event buffers in particular).
func (m *MultiReporter) Forget(jobID string) {
	m.mu.Lock()
	delete(m.jobs, jobID)
	sinks := append([]Reporter(nil), m.sinks...)
	m.mu.Unlock()

	for _, sink := range sinks {
		if f, ok := sink.(interface{ Forget(jobID string) }); ok {
			f.Forget(jobID)
		}
	}
}
