package progress

import (
	"time"

	"upframe/internal/queue"
)

// Event is one progress update published by the pipeline for a job.
type Event struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	JobID     string            `json:"job_id"`
	Stage     queue.Stage       `json:"stage,omitempty"`
	Status    queue.Status      `json:"status"`
	Message   string            `json:"message,omitempty"`
	Percent   float64           `json:"percent"`
	Terminal  bool              `json:"terminal"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Reporter receives progress events. Implementations must tolerate being
// called from multiple goroutines.
type Reporter interface {
	Emit(evt Event)
}

// NopReporter discards all events.
type NopReporter struct{}

// Emit implements Reporter.
func (NopReporter) Emit(Event) {}
