package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"upframe/internal/media"
)

// outputTailLimit bounds how much ffmpeg stderr is carried in errors.
const outputTailLimit = 2048

// Runner executes ffmpeg with a configured binary path.
type Runner struct {
	binary string
}

// NewRunner returns a Runner for the given ffmpeg binary. An empty binary
// falls back to "ffmpeg" on PATH.
func NewRunner(binary string) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Runner{binary: binary}
}

// ExtractArgs builds the argument list for decoding every frame of the input
// into the frames directory using the shared frame filename pattern. Frames
// are numbered from zero so filenames match the pipeline's ordinals.
func ExtractArgs(inputPath, framesDir string) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-i", inputPath,
		"-vsync", "0",
		"-start_number", "0",
		filepath.Join(framesDir, media.FramePattern),
	}
}

// EncodeArgs builds the argument list for re-encoding a frame sequence into
// a video-only stream at the given frame rate. The input sequence is read
// from index zero to mirror ExtractArgs.
func EncodeArgs(framesDir string, frameRate float64, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-framerate", strconv.FormatFloat(frameRate, 'f', -1, 64),
		"-start_number", "0",
		"-i", filepath.Join(framesDir, media.FramePattern),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outputPath,
	}
}

// MuxArgs builds the argument list for copying the re-encoded video stream
// and transcoding the original's first audio stream into the final container.
func MuxArgs(videoPath, audioSourcePath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-i", videoPath,
		"-i", audioSourcePath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		outputPath,
	}
}

// ExtractFrames decodes every frame of the input video into framesDir.
func (r *Runner) ExtractFrames(ctx context.Context, inputPath, framesDir string) error {
	if strings.TrimSpace(inputPath) == "" {
		return errors.New("ffmpeg extract: empty input path")
	}
	return r.run(ctx, "extract frames", ExtractArgs(inputPath, framesDir))
}

// EncodeFrames re-encodes the frame sequence in framesDir into a video-only
// file at outputPath.
func (r *Runner) EncodeFrames(ctx context.Context, framesDir string, frameRate float64, outputPath string) error {
	if frameRate <= 0 {
		return fmt.Errorf("ffmpeg encode: invalid frame rate %v", frameRate)
	}
	return r.run(ctx, "encode frames", EncodeArgs(framesDir, frameRate, outputPath))
}

// MuxAudio combines the encoded video stream with the first audio stream of
// the original source into outputPath.
func (r *Runner) MuxAudio(ctx context.Context, videoPath, audioSourcePath, outputPath string) error {
	return r.run(ctx, "mux audio", MuxArgs(videoPath, audioSourcePath, outputPath))
}

func (r *Runner) run(ctx context.Context, operation string, args []string) error {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg %s: %w: %s", operation, err, tail(output))
	}
	return nil
}

func tail(output []byte) string {
	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) <= outputTailLimit {
		return trimmed
	}
	return "..." + trimmed[len(trimmed)-outputTailLimit:]
}
