package quality

import (
	"context"
	"errors"
	"image"
	"math"

	"upframe/internal/config"
)

// Heuristic scores frames with cheap pixel statistics: Laplacian variance
// for blur, mean value-channel brightness for darkness, a geometry floor for
// resolution, and a block-edge metric for compression pixelation.
type Heuristic struct {
	blurThreshold       float64
	darkThreshold       float64
	minWidth            int
	minHeight           int
	blockSize           int
	blockinessThreshold float64
}

// NewHeuristic builds a Heuristic from analysis configuration.
func NewHeuristic(cfg config.Analysis) *Heuristic {
	return &Heuristic{
		blurThreshold:       cfg.BlurThreshold,
		darkThreshold:       cfg.DarkThreshold,
		minWidth:            cfg.MinWidth,
		minHeight:           cfg.MinHeight,
		blockSize:           cfg.BlockSize,
		blockinessThreshold: cfg.BlockinessThreshold,
	}
}

// Classify measures the image and maps the measurements to a Verdict.
func (h *Heuristic) Classify(ctx context.Context, img image.Image) (Verdict, Metrics, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, Metrics{}, err
	}
	if img == nil {
		return Verdict{}, Metrics{}, errors.New("classify: nil image")
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return Verdict{}, Metrics{}, errors.New("classify: empty image")
	}

	gray := grayPlane(img)
	value := valuePlane(img)

	metrics := Metrics{
		LaplacianVariance: laplacianVariance(gray, width, height),
		Brightness:        mean(value),
		Blockiness:        blockiness(gray, width, height, h.blockSize),
		Width:             width,
		Height:            height,
	}

	verdict := Verdict{
		Blurry:        metrics.LaplacianVariance < h.blurThreshold,
		Dark:          metrics.Brightness < h.darkThreshold,
		LowResolution: width < h.minWidth || height < h.minHeight,
		Pixelated:     metrics.Blockiness > h.blockinessThreshold,
	}
	return verdict, metrics, nil
}

// grayPlane converts the image to a float64 luma plane using the standard
// ITU-R BT.601 weights.
func grayPlane(img image.Image) []float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := make([]float64, width*height)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			r8 := float64(r >> 8)
			g8 := float64(g >> 8)
			b8 := float64(b >> 8)
			plane[i] = 0.299*r8 + 0.587*g8 + 0.114*b8
			i++
		}
	}
	return plane
}

// valuePlane extracts the HSV value channel, which is the per-pixel maximum
// of the color components.
func valuePlane(img image.Image) []float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := make([]float64, width*height)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			v := max3(r>>8, g>>8, b>>8)
			plane[i] = float64(v)
			i++
		}
	}
	return plane
}

func max3(a, b, c uint32) uint32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// laplacianVariance applies the 4-neighbor Laplacian kernel to the interior
// of the luma plane and returns the variance of the response. Sharp images
// have strong second derivatives and a high variance.
func laplacianVariance(gray []float64, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0
	}
	responses := make([]float64, 0, (width-2)*(height-2))
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			center := gray[y*width+x]
			lap := gray[(y-1)*width+x] + gray[(y+1)*width+x] +
				gray[y*width+x-1] + gray[y*width+x+1] - 4*center
			responses = append(responses, lap)
		}
	}
	return variance(responses)
}

// blockiness averages the absolute luma difference across block boundaries.
// Heavily compressed frames show visible seams every blockSize pixels.
func blockiness(gray []float64, width, height, blockSize int) float64 {
	if blockSize < 2 {
		return 0
	}
	total := 0.0
	count := 0
	for y := blockSize; y < height; y += blockSize {
		rowDiff := 0.0
		for x := 0; x < width; x++ {
			rowDiff += math.Abs(gray[y*width+x] - gray[(y-1)*width+x])
		}
		total += rowDiff / float64(width)
		count++
	}
	for x := blockSize; x < width; x += blockSize {
		colDiff := 0.0
		for y := 0; y < height; y++ {
			colDiff += math.Abs(gray[y*width+x] - gray[y*width+x-1])
		}
		total += colDiff / float64(height)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}
