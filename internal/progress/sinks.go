package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"upframe/internal/config"
	"upframe/internal/logging"
	"upframe/internal/queue"
)

// StoreSink persists non-terminal progress onto the job row so that poll
// clients see the same numbers as stream clients. Terminal transitions are
// written by the workflow manager, not here.
type StoreSink struct {
	store  *queue.Store
	logger *slog.Logger
}

// NewStoreSink builds a sink that mirrors progress into the job database.
func NewStoreSink(store *queue.Store, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Emit implements Reporter.
func (s *StoreSink) Emit(evt Event) {
	if s.store == nil || evt.Terminal {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := s.store.GetByID(ctx, evt.JobID)
	if err != nil || job == nil || job.IsTerminal() {
		return
	}
	job.SetProgress(evt.Stage, evt.Message, evt.Percent)
	if err := s.store.Update(ctx, job); err != nil {
		s.logger.Warn("persist progress failed",
			logging.String(logging.FieldJobID, evt.JobID),
			logging.Error(err))
	}
}

// RedisSink mirrors every event to a Redis pub/sub channel named
// "<prefix>:<job id>". Publish failures are logged and swallowed; the
// mirror is best effort and never blocks the pipeline.
type RedisSink struct {
	client  *redis.Client
	prefix  string
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisSink builds a sink for the configured Redis instance. Returns nil
// when no address is configured so callers can pass the result straight to
// NewMultiReporter.
func NewRedisSink(cfg config.Redis, logger *slog.Logger) *RedisSink {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisSink{
		client:  client,
		prefix:  cfg.ChannelPrefix,
		logger:  logger,
		timeout: 3 * time.Second,
	}
}

// Channel returns the pub/sub channel name for a job.
func (r *RedisSink) Channel(jobID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, jobID)
}

// Emit implements Reporter.
func (r *RedisSink) Emit(evt Event) {
	if r == nil || r.client == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.Channel(evt.JobID), payload).Err(); err != nil {
		r.logger.Debug("redis publish failed",
			logging.String(logging.FieldJobID, evt.JobID),
			logging.Error(err))
	}
}

// Close releases the underlying Redis connection.
func (r *RedisSink) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
