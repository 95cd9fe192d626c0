package progress

import (
	"context"
	"sync"
)

const defaultHubCapacity = 256

// Hub buffers recent events per job and wakes waiters when new events
// arrive. Subscribers poll with Fetch; there is no replay beyond the
// bounded buffer, and a subscriber that joins late sees only what is still
// buffered.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	jobs     map[string]*jobBuffer
	nextSeq  uint64
}

type jobBuffer struct {
	events   []Event
	terminal bool
}

// NewHub constructs a bounded in-memory event fan-out buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultHubCapacity
	}
	h := &Hub{
		capacity: capacity,
		jobs:     make(map[string]*jobBuffer),
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Emit implements Reporter by publishing the event to the job's buffer.
func (h *Hub) Emit(evt Event) {
	if h == nil || evt.JobID == "" {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq

	buf, ok := h.jobs[evt.JobID]
	if !ok {
		buf = &jobBuffer{}
		h.jobs[evt.JobID] = buf
	}
	if len(buf.events) == h.capacity {
		copy(buf.events, buf.events[1:])
		buf.events = buf.events[:h.capacity-1]
	}
	buf.events = append(buf.events, evt)
	if evt.Terminal {
		buf.terminal = true
	}
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns buffered events for a job with sequence greater than since.
// When wait is true and no events are available, Fetch blocks until an event
// arrives, the job reaches a terminal event, or the context ends. The
// returned done flag reports whether the job's stream has terminated.
func (h *Hub) Fetch(ctx context.Context, jobID string, since uint64, wait bool) ([]Event, uint64, bool, error) {
	if h == nil {
		return nil, since, true, nil
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next, done := h.snapshotLocked(jobID, since)
		if len(events) > 0 || done || !wait {
			return events, next, done, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, false, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, false, err
		}
	}
}

// Sequence returns the sequence number of the most recently published
// event. A subscriber that wants only future events starts from here.
func (h *Hub) Sequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}

// Forget drops the buffered events for a job. A terminated stream keeps a
// single-event tombstone (the terminal event) so a subscriber mid-Fetch
// still observes the end of the stream instead of blocking on a vanished
// buffer.
func (h *Hub) Forget(jobID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	buf, ok := h.jobs[jobID]
	if ok {
		if buf.terminal && len(buf.events) > 0 {
			buf.events = []Event{buf.events[len(buf.events)-1]}
		} else {
			delete(h.jobs, jobID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) snapshotLocked(jobID string, since uint64) ([]Event, uint64, bool) {
	buf, ok := h.jobs[jobID]
	if !ok {
		return nil, since, false
	}

	var out []Event
	next := since
	for _, evt := range buf.events {
		if evt.Sequence > since {
			out = append(out, evt)
			next = evt.Sequence
		}
	}
	done := buf.terminal && next >= lastSequence(buf.events)
	return out, next, done
}

func lastSequence(events []Event) uint64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Sequence
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
