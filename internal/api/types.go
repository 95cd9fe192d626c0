package api

import (
	"time"

	"upframe/internal/deps"
	"upframe/internal/queue"
)

// JobView is the wire representation of a job row.
type JobView struct {
	ID              string     `json:"id"`
	SourceRef       string     `json:"source_ref"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage,omitempty"`
	ProgressPercent float64    `json:"progress_percent"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ArtifactPath    string     `json:"artifact_path,omitempty"`
	Error           string     `json:"error,omitempty"`
	FailureCode     string     `json:"failure_code,omitempty"`
	Warning         string     `json:"warning,omitempty"`
	FramesTotal     int        `json:"frames_total"`
	FramesEnhanced  int        `json:"frames_enhanced"`
	FramesCopied    int        `json:"frames_copied"`
	FramesDropped   int        `json:"frames_dropped"`
	AudioPresent    bool       `json:"audio_present"`
	CancelRequested bool       `json:"cancel_requested"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// FromJob converts a queue row into its wire representation.
func FromJob(job *queue.Job) JobView {
	return JobView{
		ID:              job.ID,
		SourceRef:       job.SourceRef,
		Status:          string(job.Status),
		Stage:           string(job.Stage),
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		ArtifactPath:    job.ArtifactPath,
		Error:           job.ErrorMessage,
		FailureCode:     job.FailureCode,
		Warning:         job.Warning,
		FramesTotal:     job.FramesTotal,
		FramesEnhanced:  job.FramesEnhanced,
		FramesCopied:    job.FramesCopied,
		FramesDropped:   job.FramesDropped,
		AudioPresent:    job.AudioPresent,
		CancelRequested: job.CancelRequested,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
}

// SubmitRequest is the JSON submission body for pre-stored sources.
type SubmitRequest struct {
	SourceRef string `json:"source_ref"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	JobID           string `json:"job_id"`
	CancelRequested bool   `json:"cancel_requested"`
}

// HealthResponse reports daemon and store health.
type HealthResponse struct {
	Status          string              `json:"status"`
	WorkflowRunning bool                `json:"workflow_running"`
	LastError       string              `json:"last_error,omitempty"`
	Queue           queue.HealthSummary `json:"queue"`
	Dependencies    []deps.Status       `json:"dependencies,omitempty"`
}
