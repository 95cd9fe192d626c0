package quality

import (
	"context"
	"image"
)

// Verdict records which quality deficiencies a frame exhibits.
type Verdict struct {
	Blurry        bool `json:"blurry"`
	Dark          bool `json:"dark"`
	LowResolution bool `json:"low_resolution"`
	Pixelated     bool `json:"pixelated"`
}

// Deficient reports whether the frame should be routed to enhancement.
// Only blur and darkness route; low resolution and pixelation are recorded
// for observability but do not trigger the enhancer on their own.
func (v Verdict) Deficient() bool {
	return v.Blurry || v.Dark
}

// Metrics carries the raw measurements behind a Verdict for logging.
type Metrics struct {
	LaplacianVariance float64
	Brightness        float64
	Blockiness        float64
	Width             int
	Height            int
}

// Classifier scores a single frame image.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (Verdict, Metrics, error)
}
