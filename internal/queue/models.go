package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Stage identifies the pipeline phase a running job is in.
type Stage string

const (
	StageSetup       Stage = "setup"
	StageExtract     Stage = "extract"
	StageAnalyze     Stage = "analyze"
	StageEnhance     Stage = "enhance"
	StageReconstruct Stage = "reconstruct"
)

// UserCancelReason is the error message set when a user explicitly cancels a job.
const UserCancelReason = "Cancelled by user"

// DaemonStopReason is the error message set when jobs are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Failed    int
	Completed int
}

// Job represents an enhancement job persisted in SQLite.
type Job struct {
	ID              string
	SourceRef       string
	SourcePath      string
	ArtifactPath    string
	Status          Status
	Stage           Stage
	ProgressPercent float64
	ProgressMessage string
	ErrorMessage    string
	FailureCode     string
	Warning         string
	FramesTotal     int
	FramesEnhanced  int
	FramesCopied    int
	FramesDropped   int
	AudioPresent    bool
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LastHeartbeat   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsTerminal reports whether the job has reached a terminal status.
func (j Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// SetProgress updates the stage, message, and percent together.
// Use this instead of setting the three fields individually.
func (j *Job) SetProgress(stage Stage, message string, percent float64) {
	j.Stage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetCompleted marks the job as successfully finished.
func (j *Job) SetCompleted(artifactPath string) {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.ArtifactPath = artifactPath
	j.ProgressPercent = 100
	j.ErrorMessage = ""
	j.FailureCode = ""
	j.CompletedAt = &now
	j.LastHeartbeat = nil
}

// SetFailed marks the job as failed with the given code and message.
// Clears heartbeat and freezes progress at its last value.
func (j *Job) SetFailed(code, message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.FailureCode = code
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.CompletedAt = &now
	j.LastHeartbeat = nil
}
