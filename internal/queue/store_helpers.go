package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, source_ref, source_path, artifact_path, status, stage, progress_percent, progress_message, error_message, failure_code, warning, frames_total, frames_enhanced, frames_copied, frames_dropped, audio_present, cancel_requested, created_at, updated_at, started_at, completed_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		sourceRef       sql.NullString
		sourcePath      sql.NullString
		artifactPath    sql.NullString
		statusStr       string
		stageStr        sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		errorMessage    sql.NullString
		failureCode     sql.NullString
		warning         sql.NullString
		framesTotal     sql.NullInt64
		framesEnhanced  sql.NullInt64
		framesCopied    sql.NullInt64
		framesDropped   sql.NullInt64
		audioPresent    sql.NullInt64
		cancelRequested sql.NullInt64
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		heartbeatRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceRef,
		&sourcePath,
		&artifactPath,
		&statusStr,
		&stageStr,
		&progressPercent,
		&progressMessage,
		&errorMessage,
		&failureCode,
		&warning,
		&framesTotal,
		&framesEnhanced,
		&framesCopied,
		&framesDropped,
		&audioPresent,
		&cancelRequested,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		SourceRef:       sourceRef.String,
		SourcePath:      sourcePath.String,
		ArtifactPath:    artifactPath.String,
		Status:          Status(statusStr),
		Stage:           Stage(stageStr.String),
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		ErrorMessage:    errorMessage.String,
		FailureCode:     failureCode.String,
		Warning:         warning.String,
		FramesTotal:     int(framesTotal.Int64),
		FramesEnhanced:  int(framesEnhanced.Int64),
		FramesCopied:    int(framesCopied.Int64),
		FramesDropped:   int(framesDropped.Int64),
		AudioPresent:    audioPresent.Int64 != 0,
		CancelRequested: cancelRequested.Int64 != 0,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
