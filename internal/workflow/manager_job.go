package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"upframe/internal/logging"
	"upframe/internal/progress"
	"upframe/internal/queue"
	"upframe/internal/services"
)

// processJob runs the pipeline for a leased job and persists exactly one
// terminal transition. The wall-clock budget is enforced here so every
// stage sees the same deadline.
func (m *Manager) processJob(ctx context.Context, job *queue.Job) {
	logger := m.logger.With(logging.String(logging.FieldJobID, job.ID))
	started := time.Now()

	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if m.jobTimeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, m.jobTimeout)
		defer cancelTimeout()
	}

	heartbeatDone := make(chan struct{})
	go m.heartbeatLoop(ctx, job.ID, heartbeatDone)
	defer close(heartbeatDone)

	logger.Info("job started",
		logging.String("source_ref", job.SourceRef),
		logging.String(logging.FieldEventType, "job_started"))

	err := m.runner.Run(runCtx, job)

	// Daemon shutdown: leave the terminal transition to ResetStuckRunning
	// on the next start rather than racing the closing store.
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		logger.Info("job interrupted by shutdown")
		return
	}

	if err == nil {
		m.completeJob(ctx, job, logger, time.Since(started))
		return
	}
	m.failJob(ctx, job, logger, err)
}

func (m *Manager) completeJob(ctx context.Context, job *queue.Job, logger *slog.Logger, elapsed time.Duration) {
	job.SetCompleted(job.ArtifactPath)
	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("persist completed job failed", logging.Error(err))
	}

	m.reporter.Emit(progress.Event{
		JobID:    job.ID,
		Status:   queue.StatusCompleted,
		Stage:    job.Stage,
		Message:  "Pipeline completed successfully",
		Percent:  100,
		Terminal: true,
		Meta:     terminalMeta(job),
	})
	m.forgetJob(job.ID)

	logger.Info("job completed",
		logging.Duration("elapsed", elapsed),
		logging.Int("frames_total", job.FramesTotal),
		logging.Int("frames_enhanced", job.FramesEnhanced),
		logging.String(logging.FieldEventType, "job_completed"))

	if err := m.notifier.NotifyJobCompleted(ctx, job.ID, job.SourceRef, job.FramesEnhanced, job.FramesTotal); err != nil {
		logger.Error("completion notification failed", logging.Error(err))
	}
}

func (m *Manager) failJob(ctx context.Context, job *queue.Job, logger *slog.Logger, runErr error) {
	code := services.FailureCode(runErr)
	message := services.Message(runErr)

	job.SetFailed(code, message)
	if err := m.store.Update(ctx, job); err != nil && !errors.Is(err, queue.ErrTerminalJob) {
		logger.Error("persist failed job failed", logging.Error(err))
	}

	m.reporter.Emit(progress.Event{
		JobID:    job.ID,
		Status:   queue.StatusFailed,
		Stage:    job.Stage,
		Message:  message,
		Percent:  job.ProgressPercent,
		Terminal: true,
		Error:    message,
		Code:     code,
		Meta:     terminalMeta(job),
	})
	m.forgetJob(job.ID)

	logger.Error("job failed",
		logging.String("code", code),
		logging.Error(runErr),
		logging.String(logging.FieldEventType, "job_failed"))

	if err := m.notifier.NotifyJobFailed(ctx, job.ID, job.SourceRef, code, message); err != nil {
		logger.Error("failure notification failed", logging.Error(err))
	}
}

func (m *Manager) forgetJob(jobID string) {
	if m.forgetter != nil {
		m.forgetter.Forget(jobID)
	}
}

// terminalMeta packs the job summary into the single terminal event so
// stream subscribers see the same counts the durable row records.
func terminalMeta(job *queue.Job) map[string]string {
	meta := map[string]string{
		"frames_total":    strconv.Itoa(job.FramesTotal),
		"frames_enhanced": strconv.Itoa(job.FramesEnhanced),
		"frames_copied":   strconv.Itoa(job.FramesCopied),
		"frames_dropped":  strconv.Itoa(job.FramesDropped),
	}
	if job.ArtifactPath != "" {
		meta["artifact"] = job.ArtifactPath
	}
	if job.Warning != "" {
		meta["warning"] = job.Warning
	}
	return meta
}
