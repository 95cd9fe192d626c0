package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"upframe/internal/api"
	"upframe/internal/config"
	"upframe/internal/deps"
	"upframe/internal/enhance"
	"upframe/internal/logging"
	"upframe/internal/media/ffmpeg"
	"upframe/internal/media/ffprobe"
	"upframe/internal/notifications"
	"upframe/internal/pipeline"
	"upframe/internal/progress"
	"upframe/internal/quality"
	"upframe/internal/queue"
	"upframe/internal/workflow"
)

// Daemon owns the processing services and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	hub      *progress.Hub
	redis    *progress.RedisSink
	workflow *workflow.Manager
	server   *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New wires the store, progress fan-out, pipeline, workflow manager, and
// HTTP gateway from configuration. The daemon does not start processing
// until Start is called.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}

	hub := progress.NewHub(0)
	redisSink := progress.NewRedisSink(cfg.Redis, logger)
	sinks := []progress.Reporter{hub, progress.NewStoreSink(store, logger)}
	if redisSink != nil {
		sinks = append(sinks, redisSink)
	}
	reporter := progress.NewMultiReporter(sinks...)

	var enhancer enhance.Enhancer
	if cfg.Enhancer.URL != "" {
		httpEnhancer, err := enhance.NewHTTPEnhancer(cfg.Enhancer)
		if err != nil {
			store.Close()
			return nil, err
		}
		enhancer = enhance.NewPool(httpEnhancer, cfg.Enhancer.MaxConcurrent)
	}

	prober := pipeline.ProberFunc(func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, cfg.Media.FFprobeBinary, path)
	})

	orchestrator := pipeline.New(pipeline.Options{
		Config:     cfg,
		Prober:     prober,
		Runner:     ffmpeg.NewRunner(cfg.Media.FFmpegBinary),
		Classifier: quality.NewHeuristic(cfg.Analysis),
		Enhancer:   enhancer,
		Cancels:    store,
		Reporter:   reporter,
		Logger:     logger,
	})

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManager(workflow.Options{
		Config:   cfg,
		Store:    store,
		Runner:   orchestrator,
		Reporter: reporter,
		Notifier: notifier,
		Logger:   logger,
	})

	server, err := api.NewServer(api.Options{
		Config:       cfg,
		Store:        store,
		Hub:          hub,
		Workflow:     manager,
		Notifier:     notifier,
		Requirements: deps.ForConfig(cfg),
		Logger:       logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "upframed.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		hub:      hub,
		redis:    redisSink,
		workflow: manager,
		server:   server,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, starts the workflow manager, and binds
// the HTTP gateway.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another upframe daemon instance is already running")
	}

	for _, dep := range deps.CheckBinaries(deps.ForConfig(d.cfg)) {
		if !dep.Available {
			d.logger.Warn("external dependency unavailable",
				logging.String("dependency", dep.Name),
				logging.String("detail", dep.Detail))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.Start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.Addr()))
	return nil
}

// Stop halts processing, shuts the gateway down, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.Stop()
	d.workflow.Stop()
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.logger.Warn("failed to close redis publisher", logging.Error(err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the job store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the bound gateway address once started.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// LockPath returns the instance lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
