package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"upframe/internal/progress"
	"upframe/internal/queue"
)

// handleEvents streams progress events for a job as server-sent events.
// Subscribers see events from the point of subscription onward; the stream
// closes after the terminal event. A job that is already terminal yields a
// single snapshot built from the durable row.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if s.hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event streaming unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if job.IsTerminal() {
		writeSSE(w, terminalSnapshot(job))
		flusher.Flush()
		return
	}

	since := s.hub.Sequence()
	for {
		events, next, done, err := s.hub.Fetch(r.Context(), id, since, true)
		for _, evt := range events {
			writeSSE(w, evt)
		}
		if len(events) > 0 {
			flusher.Flush()
		}
		if done || err != nil {
			return
		}
		since = next
	}
}

// terminalSnapshot reconstructs a terminal event from the durable job row
// for subscribers that arrive after the job finished. It carries the same
// summary metadata the live terminal event does.
func terminalSnapshot(job *queue.Job) progress.Event {
	evt := progress.Event{
		Timestamp: job.UpdatedAt,
		JobID:     job.ID,
		Stage:     job.Stage,
		Status:    job.Status,
		Message:   job.ProgressMessage,
		Percent:   job.ProgressPercent,
		Terminal:  true,
		Meta: map[string]string{
			"frames_total":    strconv.Itoa(job.FramesTotal),
			"frames_enhanced": strconv.Itoa(job.FramesEnhanced),
			"frames_copied":   strconv.Itoa(job.FramesCopied),
			"frames_dropped":  strconv.Itoa(job.FramesDropped),
		},
	}
	if job.Status == queue.StatusFailed {
		evt.Error = job.ErrorMessage
		evt.Code = job.FailureCode
	}
	if job.ArtifactPath != "" {
		evt.Meta["artifact"] = job.ArtifactPath
	}
	if job.Warning != "" {
		evt.Meta["warning"] = job.Warning
	}
	return evt
}

func writeSSE(w http.ResponseWriter, evt progress.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
}
