package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"upframe/internal/config"
	"upframe/internal/enhance"
	"upframe/internal/logging"
	"upframe/internal/media"
	"upframe/internal/progress"
	"upframe/internal/quality"
	"upframe/internal/queue"
	"upframe/internal/services"
)

// Progress anchors per stage. Enhancement interpolates between its start
// anchor and end anchor as frames complete.
const (
	percentSetupStart       = 5
	percentSetupDone        = 10
	percentExtractStart     = 15
	percentExtractDone      = 30
	percentAnalyzeStart     = 35
	percentAnalyzeDone      = 50
	percentEnhanceStart     = 55
	percentEnhanceDone      = 85
	percentReconstructStart = 90
	percentReconstructDone  = 95
)

// Orchestrator drives one job through the enhancement pipeline: extract
// frames, score their quality, enhance the deficient ones, and reconstruct
// the output container.
type Orchestrator struct {
	cfg        *config.Config
	prober     Prober
	runner     MediaRunner
	classifier quality.Classifier
	enhancer   enhance.Enhancer
	cancels    CancelChecker
	reporter   progress.Reporter
	logger     *slog.Logger
}

// Options collects the orchestrator's collaborators.
type Options struct {
	Config     *config.Config
	Prober     Prober
	Runner     MediaRunner
	Classifier quality.Classifier
	Enhancer   enhance.Enhancer
	Cancels    CancelChecker
	Reporter   progress.Reporter
	Logger     *slog.Logger
}

// New builds an Orchestrator. A nil reporter or logger is replaced with a
// no-op implementation.
func New(opts Options) *Orchestrator {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.NopReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:        opts.Config,
		prober:     opts.Prober,
		runner:     opts.Runner,
		classifier: opts.Classifier,
		enhancer:   opts.Enhancer,
		cancels:    opts.Cancels,
		reporter:   reporter,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run executes the pipeline for a leased job. On success the job's artifact
// fields are populated; the caller persists the terminal transition and emits
// the terminal event. Run itself emits only non-terminal progress.
func (o *Orchestrator) Run(ctx context.Context, job *queue.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	logger := o.logger.With(logging.String(logging.FieldJobID, job.ID))

	sampler := logging.NewProgressSampler(10)
	emitMeta := func(stage queue.Stage, message string, percent float64, meta map[string]string) {
		job.SetProgress(stage, message, percent)
		o.reporter.Emit(progress.Event{
			JobID:   job.ID,
			Status:  queue.StatusRunning,
			Stage:   stage,
			Message: message,
			Percent: percent,
			Meta:    meta,
		})
		if sampler.ShouldLog(percent, string(stage)) {
			logger.Info(message,
				logging.String(logging.FieldStage, string(stage)),
				logging.Float64("percent", percent))
		}
	}
	emit := func(stage queue.Stage, message string, percent float64) {
		emitMeta(stage, message, percent, nil)
	}

	if err := o.checkpoint(ctx, job, queue.StageSetup); err != nil {
		return err
	}
	emit(queue.StageSetup, "Preparing workspace", percentSetupStart)
	workspace, info, err := o.setup(ctx, job)
	if err != nil {
		return err
	}
	defer workspace.cleanup(logger)
	job.AudioPresent = info.HasAudio
	emit(queue.StageSetup, "Workspace ready", percentSetupDone)

	if err := o.checkpoint(ctx, job, queue.StageExtract); err != nil {
		return err
	}
	emit(queue.StageExtract, "Starting frame extraction", percentExtractStart)
	frames, err := o.extract(ctx, job, workspace)
	if err != nil {
		return err
	}
	job.FramesTotal = len(frames)
	skipped := 0
	if info.FrameCount > len(frames) {
		skipped = info.FrameCount - len(frames)
	}
	extractMsg := fmt.Sprintf("Frame extraction completed, extracted %d frames", len(frames))
	if skipped > 0 {
		extractMsg = fmt.Sprintf("Frame extraction completed, extracted %d frames (%d undecodable, skipped)", len(frames), skipped)
	}
	emitMeta(queue.StageExtract, extractMsg, percentExtractDone, map[string]string{
		"frames_extracted": strconv.Itoa(len(frames)),
		"frames_skipped":   strconv.Itoa(skipped),
	})

	if err := o.checkpoint(ctx, job, queue.StageAnalyze); err != nil {
		return err
	}
	emit(queue.StageAnalyze, "Starting quality analysis", percentAnalyzeStart)
	analyzed, err := o.analyze(ctx, job, frames)
	if err != nil {
		return err
	}
	job.FramesDropped = analyzed.dropped
	emitMeta(queue.StageAnalyze, fmt.Sprintf("Quality analysis completed, analyzed %d frames (%d deficient, %d dropped)",
		len(analyzed.frames), analyzed.deficient, analyzed.dropped), percentAnalyzeDone, analyzed.meta())

	if err := o.checkpoint(ctx, job, queue.StageEnhance); err != nil {
		return err
	}
	emit(queue.StageEnhance, "Starting frame enhancement", percentEnhanceStart)
	enhanced, copied, err := o.enhance(ctx, job, analyzed, workspace, emit)
	if err != nil {
		return err
	}
	job.FramesEnhanced = enhanced
	job.FramesCopied = copied
	emitMeta(queue.StageEnhance, fmt.Sprintf("Frame enhancement completed, %d enhanced, %d copied",
		enhanced, copied), percentEnhanceDone, map[string]string{
		"frames_enhanced": strconv.Itoa(enhanced),
		"frames_copied":   strconv.Itoa(copied),
	})

	if err := o.checkpoint(ctx, job, queue.StageReconstruct); err != nil {
		return err
	}
	emit(queue.StageReconstruct, "Starting video reconstruction", percentReconstructStart)
	artifactPath, warning, err := o.reconstruct(ctx, job, workspace, info)
	if err != nil {
		return err
	}
	job.ArtifactPath = artifactPath
	job.Warning = warning
	reconstructMeta := map[string]string{"artifact": artifactPath}
	if warning != "" {
		reconstructMeta["warning"] = warning
	}
	emitMeta(queue.StageReconstruct, "Video reconstruction completed", percentReconstructDone, reconstructMeta)

	logger.Info("pipeline completed",
		logging.Int("frames_total", job.FramesTotal),
		logging.Int("frames_enhanced", job.FramesEnhanced),
		logging.Int("frames_copied", job.FramesCopied),
		logging.Int("frames_dropped", job.FramesDropped),
		logging.String("artifact", artifactPath))
	return nil
}

// checkpoint enforces stage-boundary cancellation: context cancellation and
// the persisted cancel flag are both honored before a new stage begins.
func (o *Orchestrator) checkpoint(ctx context.Context, job *queue.Job, next queue.Stage) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, string(next), "checkpoint", "job cancelled", err)
	}
	if o.cancels == nil {
		return nil
	}
	flagged, err := o.cancels.CancelRequested(ctx, job.ID)
	if err != nil {
		return services.Wrap(nil, string(next), "checkpoint", "read cancel flag", err)
	}
	if flagged {
		return services.Wrap(services.ErrCancelled, string(next), "checkpoint", queue.UserCancelReason, nil)
	}
	return nil
}

// workspace holds the per-job scratch layout.
type workspace struct {
	root     string
	frames   *media.FrameStore
	video    string
	artifact string
}

func (w *workspace) cleanup(logger *slog.Logger) {
	if w == nil || w.root == "" {
		return
	}
	if err := os.RemoveAll(w.root); err != nil {
		logger.Warn("scratch cleanup failed",
			logging.String("path", w.root),
			logging.Error(err))
	}
}

// artifactDir returns the durable artifact directory under the data root.
func (o *Orchestrator) artifactDir() string {
	return filepath.Join(o.cfg.Paths.DataDir, "enhanced")
}
