package pipeline

import (
	"context"

	"upframe/internal/media/ffprobe"
)

// Prober inspects a media container.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, path string) (ffprobe.Result, error)

// Inspect implements Prober.
func (f ProberFunc) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return f(ctx, path)
}

// MediaRunner drives the external ffmpeg binary.
type MediaRunner interface {
	ExtractFrames(ctx context.Context, inputPath, framesDir string) error
	EncodeFrames(ctx context.Context, framesDir string, frameRate float64, outputPath string) error
	MuxAudio(ctx context.Context, videoPath, audioSourcePath, outputPath string) error
}

// CancelChecker reports whether cancellation has been requested for a job.
// The orchestrator consults it at stage boundaries only; a stage that has
// begun runs to completion.
type CancelChecker interface {
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

// MediaInfo captures the source properties the pipeline needs downstream.
type MediaInfo struct {
	FrameRate       float64
	DurationSeconds float64
	FrameCount      int
	Width           int
	Height          int
	HasAudio        bool
}
