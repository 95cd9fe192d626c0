package workflow

import (
	"context"
	"errors"
	"time"

	"upframe/internal/logging"
)

// Start begins background processing. Jobs left running by a previous
// process are failed before the first poll.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	if count, err := m.store.ResetStuckRunning(runCtx); err != nil {
		m.logger.Warn("reset stuck jobs failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job database access"))
	} else if count > 0 {
		m.logger.Info("failed jobs left running by previous process",
			logging.Int64("count", count))
	}

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx)
	}
	return nil
}

// Stop terminates background processing and waits for in-flight jobs to
// observe cancellation.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.LeaseNextPending(ctx)
		if err != nil {
			m.handleLeaseError(ctx, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		m.processJob(ctx, job)
	}
}

func (m *Manager) handleLeaseError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	m.logger.Error("failed to lease next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_lease_failed"),
		logging.String(logging.FieldErrorHint, "check job database access"))
	select {
	case <-ctx.Done():
	case <-time.After(m.retryBackoff):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

// heartbeatLoop refreshes the job heartbeat until done is closed.
func (m *Manager) heartbeatLoop(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.store.UpdateHeartbeat(ctx, jobID); err != nil {
				m.logger.Warn("heartbeat update failed",
					logging.String(logging.FieldJobID, jobID),
					logging.Error(err))
			}
		}
	}
}
