package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"upframe/internal/fileutil"
	"upframe/internal/logging"
	"upframe/internal/media"
	"upframe/internal/quality"
	"upframe/internal/queue"
	"upframe/internal/services"
)

// analyzedFrame pairs a frame with its quality verdict.
type analyzedFrame struct {
	frame   media.Frame
	verdict quality.Verdict
}

// analysisResult is the output of the analyze stage.
type analysisResult struct {
	frames    []analyzedFrame
	deficient int
	dropped   int
	blurry    int
	dark      int
	lowRes    int
	pixelated int
	good      int
}

func (r analysisResult) meta() map[string]string {
	return map[string]string{
		"frames_analyzed":       strconv.Itoa(len(r.frames)),
		"frames_blurry":         strconv.Itoa(r.blurry),
		"frames_dark":           strconv.Itoa(r.dark),
		"frames_low_resolution": strconv.Itoa(r.lowRes),
		"frames_pixelated":      strconv.Itoa(r.pixelated),
		"frames_good":           strconv.Itoa(r.good),
		"frames_dropped":        strconv.Itoa(r.dropped),
	}
}

func (o *Orchestrator) setup(ctx context.Context, job *queue.Job) (*workspace, MediaInfo, error) {
	const stage = string(queue.StageSetup)

	sourceInfo, err := os.Stat(job.SourcePath)
	if err != nil {
		return nil, MediaInfo{}, services.Wrap(services.ErrSourceUnreadable, stage, "stat source", "source file is not accessible", err)
	}
	if sourceInfo.IsDir() || sourceInfo.Size() == 0 {
		return nil, MediaInfo{}, services.Wrap(services.ErrSourceUnreadable, stage, "stat source", "source is empty or not a file", nil)
	}

	probed, err := o.prober.Inspect(ctx, job.SourcePath)
	if err != nil {
		return nil, MediaInfo{}, services.Wrap(services.ErrSourceUnreadable, stage, "probe source", "source could not be probed", err)
	}
	video := probed.VideoStream()
	if video == nil {
		return nil, MediaInfo{}, services.Wrap(services.ErrSourceUnreadable, stage, "probe source", "source has no video stream", nil)
	}

	info := MediaInfo{
		FrameRate:       probed.FrameRate(),
		DurationSeconds: probed.DurationSeconds(),
		FrameCount:      probed.FrameCount(),
		Width:           video.Width,
		Height:          video.Height,
		HasAudio:        probed.HasAudio(),
	}
	if info.FrameRate <= 0 {
		info.FrameRate = o.cfg.Media.DefaultFrameRate
	}

	root := o.cfg.JobScratchDir(job.ID)
	store, err := media.NewFrameStore(root)
	if err != nil {
		return nil, MediaInfo{}, services.Wrap(nil, stage, "create workspace", "scratch directory could not be created", err)
	}

	ws := &workspace{
		root:     root,
		frames:   store,
		video:    filepath.Join(root, "video.mp4"),
		artifact: filepath.Join(o.artifactDir(), job.ID+".mp4"),
	}
	return ws, info, nil
}

func (o *Orchestrator) extract(ctx context.Context, job *queue.Job, ws *workspace) ([]media.Frame, error) {
	const stage = string(queue.StageExtract)

	if err := o.runner.ExtractFrames(ctx, job.SourcePath, ws.frames.FramesDir()); err != nil {
		if isContextError(err) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrNoFramesExtracted, stage, "extract frames", "frame extraction failed", err)
	}

	frames, err := ws.frames.List()
	if err != nil {
		return nil, services.Wrap(nil, stage, "list frames", "frame listing failed", err)
	}
	if len(frames) == 0 {
		return nil, services.Wrap(services.ErrNoFramesExtracted, stage, "extract frames", "source produced zero frames", nil)
	}
	return frames, nil
}

// analyze classifies frames concurrently. A frame whose classification fails
// is dropped from the pipeline with a warning and never reaches the enhanced
// sequence or reconstruction. Only a fully empty analysis is job fatal.
func (o *Orchestrator) analyze(ctx context.Context, job *queue.Job, frames []media.Frame) (analysisResult, error) {
	const stage = string(queue.StageAnalyze)

	workers := o.cfg.Analysis.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu       sync.Mutex
		analyzed []analyzedFrame
		dropped  int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, frame := range frames {
		frame := frame
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			img, err := media.Load(frame)
			if err == nil {
				var verdict quality.Verdict
				verdict, _, err = o.classifier.Classify(groupCtx, img)
				if err == nil {
					mu.Lock()
					analyzed = append(analyzed, analyzedFrame{frame: frame, verdict: verdict})
					mu.Unlock()
					return nil
				}
			}
			if isContextError(err) {
				return err
			}
			mu.Lock()
			dropped++
			mu.Unlock()
			o.logger.Warn("frame dropped from analysis",
				logging.String(logging.FieldJobID, job.ID),
				logging.Int("frame", frame.Index),
				logging.Error(err))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return analysisResult{}, services.Wrap(services.ErrCancelled, stage, "analyze frames", "analysis interrupted", err)
	}

	if len(analyzed) == 0 {
		return analysisResult{}, services.Wrap(services.ErrNoFramesAnalyzed, stage, "analyze frames", "no frame survived analysis", nil)
	}

	sort.Slice(analyzed, func(i, j int) bool { return analyzed[i].frame.Index < analyzed[j].frame.Index })
	result := analysisResult{frames: analyzed, dropped: dropped}
	for _, af := range analyzed {
		v := af.verdict
		if v.Deficient() {
			result.deficient++
		}
		if v.Blurry {
			result.blurry++
		}
		if v.Dark {
			result.dark++
		}
		if v.LowResolution {
			result.lowRes++
		}
		if v.Pixelated {
			result.pixelated++
		}
		if !v.Blurry && !v.Dark && !v.LowResolution && !v.Pixelated {
			result.good++
		}
	}
	return result, nil
}

// enhance walks the analyzed frames in ordinal order and builds the enhanced
// sequence: deficient frames go through the enhancer and are resized back to
// the original geometry, everything else is copied byte for byte. Progress
// events cover only frames actually routed to the enhancer; copies stay
// silent so a mostly-healthy video does not flood subscribers. Any enhancer
// failure is job fatal.
func (o *Orchestrator) enhance(ctx context.Context, job *queue.Job, analyzed analysisResult, ws *workspace, emit func(queue.Stage, string, float64)) (int, int, error) {
	const stage = string(queue.StageEnhance)

	total := len(analyzed.frames)
	enhanced := 0
	copied := 0
	for i, af := range analyzed.frames {
		target := media.Frame{Index: i, Path: ws.frames.EnhancedPath(i)}

		if !af.verdict.Deficient() {
			if err := fileutil.CopyFile(af.frame.Path, target.Path); err != nil {
				return enhanced, copied, services.Wrap(nil, stage, "copy frame", fmt.Sprintf("frame %d copy failed", af.frame.Index), err)
			}
			copied++
			continue
		}

		percent := percentEnhanceStart + (float64(i)/float64(total))*(percentEnhanceDone-percentEnhanceStart)
		emit(queue.StageEnhance, fmt.Sprintf("Enhancing frame %d/%d", i+1, total), percent)

		if o.enhancer == nil {
			return enhanced, copied, services.Wrap(services.ErrEnhancementFailed, stage, "enhance frame", "enhancer is not configured", nil)
		}

		img, err := media.Load(af.frame)
		if err != nil {
			return enhanced, copied, services.Wrap(services.ErrEnhancementFailed, stage, "load frame", fmt.Sprintf("frame %d unreadable", af.frame.Index), err)
		}
		bounds := img.Bounds()

		out, err := o.enhancer.Enhance(ctx, img)
		if err != nil {
			if isContextError(err) {
				return enhanced, copied, err
			}
			return enhanced, copied, services.Wrap(services.ErrEnhancementFailed, stage, "enhance frame", fmt.Sprintf("frame %d enhancement failed", af.frame.Index), err)
		}

		out = media.ResizeTo(out, bounds.Dx(), bounds.Dy())
		if err := media.Save(target, out); err != nil {
			return enhanced, copied, services.Wrap(services.ErrEnhancementFailed, stage, "save frame", fmt.Sprintf("frame %d write failed", af.frame.Index), err)
		}
		enhanced++
	}
	return enhanced, copied, nil
}

// reconstruct re-encodes the enhanced frame sequence and muxes the original
// audio back in. Mux failure degrades to a video-only artifact with a
// warning; encode failure is job fatal.
func (o *Orchestrator) reconstruct(ctx context.Context, job *queue.Job, ws *workspace, info MediaInfo) (string, string, error) {
	const stage = string(queue.StageReconstruct)

	if err := os.MkdirAll(o.artifactDir(), 0o755); err != nil {
		return "", "", services.Wrap(services.ErrReconstructionFailed, stage, "create artifact dir", "artifact directory unavailable", err)
	}

	if err := o.runner.EncodeFrames(ctx, ws.frames.EnhancedDir(), info.FrameRate, ws.video); err != nil {
		if isContextError(err) {
			return "", "", err
		}
		return "", "", services.Wrap(services.ErrReconstructionFailed, stage, "encode frames", "video encoding failed", err)
	}

	if !info.HasAudio {
		if err := fileutil.MoveFile(ws.video, ws.artifact); err != nil {
			return "", "", services.Wrap(services.ErrReconstructionFailed, stage, "store artifact", "artifact move failed", err)
		}
		return ws.artifact, "", nil
	}

	if err := o.runner.MuxAudio(ctx, ws.video, job.SourcePath, ws.artifact); err != nil {
		if isContextError(err) {
			return "", "", err
		}
		o.logger.Warn("audio mux failed, falling back to video-only artifact",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		if moveErr := fileutil.MoveFile(ws.video, ws.artifact); moveErr != nil {
			return "", "", services.Wrap(services.ErrReconstructionFailed, stage, "store artifact", "video-only fallback failed", moveErr)
		}
		return ws.artifact, "audio track could not be muxed; artifact is video only", nil
	}
	return ws.artifact, "", nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
