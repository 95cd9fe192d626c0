package media

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// FramePattern is the printf pattern used for extracted frame filenames.
// ffmpeg's image2 muxer consumes the same pattern, so extraction output and
// reconstruction input stay in lockstep.
const FramePattern = "frame_%06d.png"

// Frame identifies one extracted frame on disk.
type Frame struct {
	Index int
	Path  string
}

// FrameStore manages the per-job frame directory layout: a frames/ directory
// of extracted originals and an enhanced/ directory that shadows it. Every
// frame that survives analysis is written to enhanced/ (enhancer output or a
// byte copy of the original), so reconstruction re-encodes enhanced/ and
// never sees frames the classifier dropped.
type FrameStore struct {
	root string
}

// NewFrameStore creates the frame directories under a job scratch root.
func NewFrameStore(root string) (*FrameStore, error) {
	store := &FrameStore{root: root}
	if err := os.MkdirAll(store.FramesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	if err := os.MkdirAll(store.EnhancedDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create enhanced dir: %w", err)
	}
	return store, nil
}

// Root returns the job scratch root backing the store.
func (s *FrameStore) Root() string {
	return s.root
}

// FramesDir returns the directory holding extracted frames.
func (s *FrameStore) FramesDir() string {
	return filepath.Join(s.root, "frames")
}

// FramePath returns the on-disk path for a frame index.
func (s *FrameStore) FramePath(index int) string {
	return filepath.Join(s.FramesDir(), fmt.Sprintf(FramePattern, index))
}

// EnhancedDir returns the directory holding the frames that feed
// reconstruction.
func (s *FrameStore) EnhancedDir() string {
	return filepath.Join(s.root, "enhanced")
}

// EnhancedPath returns the on-disk path for a frame index in the enhanced
// sequence. The sequence is renumbered densely from zero so the image2
// demuxer never hits a gap when analysis dropped a frame.
func (s *FrameStore) EnhancedPath(index int) string {
	return filepath.Join(s.EnhancedDir(), fmt.Sprintf(FramePattern, index))
}

// List returns the extracted frames in index order.
func (s *FrameStore) List() ([]Frame, error) {
	entries, err := os.ReadDir(s.FramesDir())
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}

	var frames []Frame
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".png") {
			continue
		}
		var index int
		if _, err := fmt.Sscanf(name, FramePattern, &index); err != nil {
			continue
		}
		frames = append(frames, Frame{Index: index, Path: filepath.Join(s.FramesDir(), name)})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return frames, nil
}

// Load decodes a frame image from disk.
func Load(frame Frame) (image.Image, error) {
	img, err := imaging.Open(frame.Path)
	if err != nil {
		return nil, fmt.Errorf("open frame %d: %w", frame.Index, err)
	}
	return img, nil
}

// Save encodes an image back to the frame's path, replacing the original.
func Save(frame Frame, img image.Image) error {
	if err := imaging.Save(img, frame.Path); err != nil {
		return fmt.Errorf("save frame %d: %w", frame.Index, err)
	}
	return nil
}

// ResizeTo scales an image to exact target dimensions using Lanczos
// resampling. Enhanced frames come back from the model at a multiple of the
// input size and must match the original geometry before re-encoding.
func ResizeTo(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return img
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}
