package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"upframe/internal/config"
	"upframe/internal/media"
	"upframe/internal/media/ffprobe"
	"upframe/internal/pipeline"
	"upframe/internal/progress"
	"upframe/internal/quality"
	"upframe/internal/queue"
	"upframe/internal/services"
	"upframe/internal/testsupport"
)

type fakeProber struct {
	result ffprobe.Result
	err    error
}

func (f *fakeProber) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return f.result, f.err
}

func probeResult(hasAudio bool) ffprobe.Result {
	streams := []ffprobe.Stream{
		{CodecType: "video", Width: 64, Height: 48, AvgFrameRate: "24/1"},
	}
	if hasAudio {
		streams = append(streams, ffprobe.Stream{CodecType: "audio", Channels: 2})
	}
	return ffprobe.Result{
		Streams: streams,
		Format:  ffprobe.Format{Duration: "2.0"},
	}
}

type fakeRunner struct {
	t             *testing.T
	frameCount    int
	extractErr    error
	encodeErr     error
	muxErr        error
	encodeCalls   int
	encodeDir     string
	encodedFrames int
	muxCalls      int
}

func (f *fakeRunner) ExtractFrames(ctx context.Context, inputPath, framesDir string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	for i := 0; i < f.frameCount; i++ {
		name := fmt.Sprintf(media.FramePattern, i)
		testsupport.WriteFramePNG(f.t, filepath.Join(framesDir, name), 64, 48, 128)
	}
	return nil
}

func (f *fakeRunner) EncodeFrames(ctx context.Context, framesDir string, frameRate float64, outputPath string) error {
	f.encodeCalls++
	f.encodeDir = framesDir
	f.encodedFrames = countFrameFiles(f.t, framesDir)
	if f.encodeErr != nil {
		return f.encodeErr
	}
	testsupport.WriteFile(f.t, outputPath, 64)
	return nil
}

func countFrameFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read frame dir: %v", err)
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	return count
}

func (f *fakeRunner) MuxAudio(ctx context.Context, videoPath, audioSourcePath, outputPath string) error {
	f.muxCalls++
	if f.muxErr != nil {
		return f.muxErr
	}
	testsupport.WriteFile(f.t, outputPath, 128)
	return nil
}

type scriptedClassifier struct {
	mu      sync.Mutex
	i       int
	verdict []quality.Verdict
	errs    []error
}

func (s *scriptedClassifier) Classify(ctx context.Context, img image.Image) (quality.Verdict, quality.Metrics, error) {
	s.mu.Lock()
	idx := s.i
	s.i++
	s.mu.Unlock()
	if idx < len(s.errs) && s.errs[idx] != nil {
		return quality.Verdict{}, quality.Metrics{}, s.errs[idx]
	}
	if idx < len(s.verdict) {
		return s.verdict[idx], quality.Metrics{}, nil
	}
	return quality.Verdict{}, quality.Metrics{}, nil
}

type fakeEnhancer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEnhancer) Enhance(ctx context.Context, img image.Image) (image.Image, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	bounds := img.Bounds()
	// Models upscale; the pipeline must resize back.
	return image.NewGray(image.Rect(0, 0, bounds.Dx()*2, bounds.Dy()*2)), nil
}

type fakeCancels struct {
	flagged bool
}

func (f *fakeCancels) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	return f.flagged, nil
}

type captureReporter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureReporter) Emit(evt progress.Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *captureReporter) all() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]progress.Event(nil), c.events...)
}

type fixture struct {
	cfg      *config.Config
	job      *queue.Job
	prober   *fakeProber
	runner   *fakeRunner
	class    *scriptedClassifier
	enhancer *fakeEnhancer
	cancels  *fakeCancels
	reporter *captureReporter
}

func newFixture(t *testing.T, frameCount int, hasAudio bool) *fixture {
	cfg := testsupport.NewConfig(t)
	cfg.Analysis.Workers = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	sourcePath := filepath.Join(cfg.Paths.StagingDir, "source.mp4")
	testsupport.WriteFile(t, sourcePath, 1024)

	return &fixture{
		cfg:      cfg,
		job:      &queue.Job{ID: "job-1", SourcePath: sourcePath, Status: queue.StatusRunning},
		prober:   &fakeProber{result: probeResult(hasAudio)},
		runner:   &fakeRunner{t: t, frameCount: frameCount},
		class:    &scriptedClassifier{},
		enhancer: &fakeEnhancer{},
		cancels:  &fakeCancels{},
		reporter: &captureReporter{},
	}
}

func (f *fixture) orchestrator() *pipeline.Orchestrator {
	return pipeline.New(pipeline.Options{
		Config:     f.cfg,
		Prober:     f.prober,
		Runner:     f.runner,
		Classifier: f.class,
		Enhancer:   f.enhancer,
		Cancels:    f.cancels,
		Reporter:   f.reporter,
	})
}

func TestRunHealthyFramesSkipEnhancer(t *testing.T) {
	f := newFixture(t, 3, true)
	f.class.verdict = []quality.Verdict{{}, {}, {}}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.enhancer.calls != 0 {
		t.Errorf("enhancer calls = %d, want 0", f.enhancer.calls)
	}
	if f.job.FramesTotal != 3 || f.job.FramesEnhanced != 0 || f.job.FramesDropped != 0 {
		t.Errorf("frame counts = %d/%d/%d", f.job.FramesTotal, f.job.FramesEnhanced, f.job.FramesDropped)
	}
	if f.job.ArtifactPath == "" {
		t.Fatal("artifact path not set")
	}
	if _, err := os.Stat(f.job.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if f.runner.muxCalls != 1 {
		t.Errorf("mux calls = %d, want 1", f.runner.muxCalls)
	}
	if f.job.Warning != "" {
		t.Errorf("unexpected warning %q", f.job.Warning)
	}
}

func TestRunRoutesOnlyDeficientFrames(t *testing.T) {
	f := newFixture(t, 4, false)
	// Frames 1 and 3 are deficient; low resolution alone must not route.
	f.class.verdict = []quality.Verdict{
		{Blurry: true},
		{LowResolution: true, Pixelated: true},
		{Dark: true},
		{},
	}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.enhancer.calls != 2 {
		t.Errorf("enhancer calls = %d, want 2", f.enhancer.calls)
	}
	if f.job.FramesEnhanced != 2 {
		t.Errorf("FramesEnhanced = %d, want 2", f.job.FramesEnhanced)
	}
	if f.job.FramesCopied != 2 {
		t.Errorf("FramesCopied = %d, want 2", f.job.FramesCopied)
	}

	// Scratch is removed once the run finishes.
	if _, err := os.Stat(f.cfg.JobScratchDir(f.job.ID)); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir to be cleaned up, stat err = %v", err)
	}
}

func TestRunCopiedFramesEmitNoPerFrameEvents(t *testing.T) {
	f := newFixture(t, 3, false)
	f.class.verdict = []quality.Verdict{{}, {}, {}}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, evt := range f.reporter.all() {
		if strings.HasPrefix(evt.Message, "Enhancing frame") {
			t.Fatalf("copied frame produced a per-frame event: %q", evt.Message)
		}
	}
	if f.job.FramesCopied != 3 {
		t.Errorf("FramesCopied = %d, want 3", f.job.FramesCopied)
	}
}

func TestRunPerFrameEventsOnlyForRoutedFrames(t *testing.T) {
	f := newFixture(t, 4, false)
	f.class.verdict = []quality.Verdict{
		{Blurry: true},
		{},
		{Dark: true},
		{},
	}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	perFrame := 0
	for _, evt := range f.reporter.all() {
		if strings.HasPrefix(evt.Message, "Enhancing frame") {
			perFrame++
		}
	}
	if perFrame != 2 {
		t.Fatalf("per-frame events = %d, want 2 (one per routed frame)", perFrame)
	}
}

func TestRunDroppedFrameExcludedFromReconstruct(t *testing.T) {
	f := newFixture(t, 3, false)
	f.class.verdict = []quality.Verdict{{}, {}, {}}
	f.class.errs = []error{nil, errors.New("classifier blew up"), nil}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.runner.encodedFrames != 2 {
		t.Fatalf("reconstruct consumed %d frames, want 2 (dropped frame must be excluded)", f.runner.encodedFrames)
	}
	if filepath.Base(f.runner.encodeDir) != "enhanced" {
		t.Errorf("reconstruct read from %q, want the enhanced dir", f.runner.encodeDir)
	}
	if f.job.FramesCopied != 2 || f.job.FramesDropped != 1 {
		t.Errorf("copied/dropped = %d/%d, want 2/1", f.job.FramesCopied, f.job.FramesDropped)
	}
}

func TestRunSkippedFramesReportedInExtractSummary(t *testing.T) {
	f := newFixture(t, 3, false)
	f.prober.result.Streams[0].NBFrames = "5"
	f.class.verdict = []quality.Verdict{{}, {}, {}}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var extractDone *progress.Event
	for _, evt := range f.reporter.all() {
		if evt.Stage == queue.StageExtract && evt.Meta != nil {
			evt := evt
			extractDone = &evt
		}
	}
	if extractDone == nil {
		t.Fatal("no extract summary event with metadata")
	}
	if extractDone.Meta["frames_extracted"] != "3" || extractDone.Meta["frames_skipped"] != "2" {
		t.Fatalf("extract meta = %v, want 3 extracted / 2 skipped", extractDone.Meta)
	}
	if !strings.Contains(extractDone.Message, "skipped") {
		t.Errorf("extract summary message %q does not mention skipped frames", extractDone.Message)
	}
}

func TestRunStageSummariesCarryMeta(t *testing.T) {
	f := newFixture(t, 4, false)
	f.class.verdict = []quality.Verdict{
		{Blurry: true},
		{Dark: true, Pixelated: true},
		{LowResolution: true},
		{},
	}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	byStage := map[queue.Stage]map[string]string{}
	for _, evt := range f.reporter.all() {
		if evt.Meta != nil {
			byStage[evt.Stage] = evt.Meta
		}
	}

	analyze := byStage[queue.StageAnalyze]
	if analyze == nil {
		t.Fatal("no analyze summary metadata")
	}
	want := map[string]string{
		"frames_analyzed":       "4",
		"frames_blurry":         "1",
		"frames_dark":           "1",
		"frames_low_resolution": "1",
		"frames_pixelated":      "1",
		"frames_good":           "1",
		"frames_dropped":        "0",
	}
	for key, value := range want {
		if analyze[key] != value {
			t.Errorf("analyze meta[%q] = %q, want %q", key, analyze[key], value)
		}
	}

	enhance := byStage[queue.StageEnhance]
	if enhance == nil {
		t.Fatal("no enhance summary metadata")
	}
	if enhance["frames_enhanced"] != "2" || enhance["frames_copied"] != "2" {
		t.Errorf("enhance meta = %v, want 2 enhanced / 2 copied", enhance)
	}

	reconstruct := byStage[queue.StageReconstruct]
	if reconstruct == nil {
		t.Fatal("no reconstruct summary metadata")
	}
	if reconstruct["artifact"] != f.job.ArtifactPath {
		t.Errorf("reconstruct meta artifact = %q, want %q", reconstruct["artifact"], f.job.ArtifactPath)
	}
}

func TestRunFrameClassificationFailureIsDropped(t *testing.T) {
	f := newFixture(t, 3, false)
	f.class.verdict = []quality.Verdict{{}, {}, {}}
	f.class.errs = []error{nil, errors.New("classifier blew up"), nil}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.job.FramesDropped != 1 {
		t.Errorf("FramesDropped = %d, want 1", f.job.FramesDropped)
	}
	if f.job.FramesTotal != 3 {
		t.Errorf("FramesTotal = %d, want 3", f.job.FramesTotal)
	}
}

func TestRunAllFramesFailAnalysis(t *testing.T) {
	f := newFixture(t, 2, false)
	f.class.errs = []error{errors.New("bad frame"), errors.New("bad frame")}

	err := f.orchestrator().Run(context.Background(), f.job)
	if err == nil {
		t.Fatal("expected failure")
	}
	if code := services.FailureCode(err); code != services.CodeNoFramesAnalyzed {
		t.Fatalf("failure code = %s, want NoFramesAnalyzed", code)
	}
}

func TestRunEnhancerFailureIsJobFatal(t *testing.T) {
	f := newFixture(t, 2, false)
	f.class.verdict = []quality.Verdict{{Dark: true}, {}}
	f.enhancer.err = errors.New("model unavailable")

	err := f.orchestrator().Run(context.Background(), f.job)
	if err == nil {
		t.Fatal("expected failure")
	}
	if code := services.FailureCode(err); code != services.CodeEnhancementFailed {
		t.Fatalf("failure code = %s, want EnhancementFailed", code)
	}
}

func TestRunZeroFramesExtracted(t *testing.T) {
	f := newFixture(t, 0, false)

	err := f.orchestrator().Run(context.Background(), f.job)
	if err == nil {
		t.Fatal("expected failure")
	}
	if code := services.FailureCode(err); code != services.CodeNoFramesExtracted {
		t.Fatalf("failure code = %s, want NoFramesExtracted", code)
	}
}

func TestRunMissingSource(t *testing.T) {
	f := newFixture(t, 2, false)
	f.job.SourcePath = filepath.Join(f.cfg.Paths.StagingDir, "missing.mp4")

	err := f.orchestrator().Run(context.Background(), f.job)
	if err == nil {
		t.Fatal("expected failure")
	}
	if code := services.FailureCode(err); code != services.CodeSourceUnreadable {
		t.Fatalf("failure code = %s, want SourceUnreadable", code)
	}
}

func TestRunMuxFailureFallsBackToVideoOnly(t *testing.T) {
	f := newFixture(t, 2, true)
	f.class.verdict = []quality.Verdict{{}, {}}
	f.runner.muxErr = errors.New("no audio encoder")

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.job.Warning == "" {
		t.Fatal("expected video-only warning")
	}
	if _, err := os.Stat(f.job.ArtifactPath); err != nil {
		t.Fatalf("fallback artifact missing: %v", err)
	}
}

func TestRunEncodeFailure(t *testing.T) {
	f := newFixture(t, 2, false)
	f.class.verdict = []quality.Verdict{{}, {}}
	f.runner.encodeErr = errors.New("encoder crashed")

	err := f.orchestrator().Run(context.Background(), f.job)
	if err == nil {
		t.Fatal("expected failure")
	}
	if code := services.FailureCode(err); code != services.CodeReconstructionFailed {
		t.Fatalf("failure code = %s, want ReconstructionFailed", code)
	}
}

func TestRunHonorsCancelFlagAtBoundary(t *testing.T) {
	f := newFixture(t, 2, false)
	f.cancels.flagged = true

	err := f.orchestrator().Run(context.Background(), f.job)
	if err == nil {
		t.Fatal("expected cancellation")
	}
	if code := services.FailureCode(err); code != services.CodeCancelled {
		t.Fatalf("failure code = %s, want Cancelled", code)
	}
	if f.runner.encodeCalls != 0 {
		t.Error("stages ran after cancellation")
	}
}

func TestRunProgressIsMonotonicNonTerminal(t *testing.T) {
	f := newFixture(t, 3, true)
	f.class.verdict = []quality.Verdict{{Blurry: true}, {}, {Dark: true}}

	if err := f.orchestrator().Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events := f.reporter.all()
	if len(events) == 0 {
		t.Fatal("no progress events emitted")
	}
	last := -1.0
	for i, evt := range events {
		if evt.Terminal {
			t.Errorf("events[%d] is terminal; the orchestrator must not emit terminal events", i)
		}
		if evt.Percent < last {
			t.Errorf("events[%d] percent regressed: %v -> %v", i, last, evt.Percent)
		}
		last = evt.Percent
		if evt.Percent < 0 || evt.Percent > 95 {
			t.Errorf("events[%d] percent out of range: %v", i, evt.Percent)
		}
	}
	if events[0].Percent != 5 {
		t.Errorf("first anchor = %v, want 5", events[0].Percent)
	}
	if events[len(events)-1].Percent != 95 {
		t.Errorf("final anchor = %v, want 95", events[len(events)-1].Percent)
	}
}
