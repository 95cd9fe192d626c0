package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"upframe/internal/config"
	"upframe/internal/logging"
	"upframe/internal/notifications"
	"upframe/internal/progress"
	"upframe/internal/queue"
)

// JobRunner executes the enhancement pipeline for one leased job.
type JobRunner interface {
	Run(ctx context.Context, job *queue.Job) error
}

// Manager polls the job store and drives leased jobs through the pipeline
// on a bounded set of workers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	runner       JobRunner
	reporter     progress.Reporter
	forgetter    interface{ Forget(jobID string) }
	notifier     notifications.Service
	logger       *slog.Logger
	pollInterval time.Duration
	retryBackoff time.Duration
	jobTimeout   time.Duration
	workers      int

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// Options configures a Manager.
type Options struct {
	Config   *config.Config
	Store    *queue.Store
	Runner   JobRunner
	Reporter progress.Reporter
	Notifier notifications.Service
	Logger   *slog.Logger
}

// NewManager constructs a workflow manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.NopReporter{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}
	workers := opts.Config.Workflow.MaxConcurrentJobs
	if workers <= 0 {
		workers = 1
	}
	m := &Manager{
		cfg:          opts.Config,
		store:        opts.Store,
		runner:       opts.Runner,
		reporter:     reporter,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		pollInterval: time.Duration(opts.Config.Workflow.QueuePollInterval) * time.Second,
		retryBackoff: time.Duration(opts.Config.Workflow.ErrorRetryInterval) * time.Second,
		jobTimeout:   time.Duration(opts.Config.Workflow.JobTimeout) * time.Second,
		workers:      workers,
	}
	if f, ok := reporter.(interface{ Forget(jobID string) }); ok {
		m.forgetter = f
	}
	return m
}

// Running reports whether the manager has active workers.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent queue access error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
