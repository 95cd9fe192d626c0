package enhance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"upframe/internal/config"
)

const userAgent = "Upframe-Go/0.1.0"

// maxResponseBytes caps how much enhanced image data is read from the
// inference service for a single frame.
const maxResponseBytes = 64 << 20

// Enhancer runs model inference on a single frame image.
type Enhancer interface {
	Enhance(ctx context.Context, img image.Image) (image.Image, error)
}

// Pool wraps an Enhancer with a weighted admission limit shared across all
// jobs. Acquire blocks rather than fails when the pool is saturated.
type Pool struct {
	inner Enhancer
	sem   *semaphore.Weighted
}

// NewPool builds an admission pool around an enhancer.
func NewPool(inner Enhancer, maxConcurrent int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Enhance waits for an admission slot and then delegates to the wrapped
// enhancer.
func (p *Pool) Enhance(ctx context.Context, img image.Image) (image.Image, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.inner.Enhance(ctx, img)
}

// HTTPEnhancer posts PNG-encoded frames to an inference service and decodes
// the enhanced PNG from the response body.
type HTTPEnhancer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEnhancer builds an enhancer for the configured inference endpoint.
// Returns an error when no endpoint is configured; callers that never route
// a deficient frame will not hit the enhancer, so construction is deferred
// until the pipeline actually needs one.
func NewHTTPEnhancer(cfg config.Enhancer) (*HTTPEnhancer, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("enhancer url is not configured")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPEnhancer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Enhance sends one frame for super-resolution and returns the result.
func (e *HTTPEnhancer) Enhance(ctx context.Context, img image.Image) (image.Image, error) {
	var body bytes.Buffer
	if err := png.Encode(&body, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build enhance request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enhance request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("enhance request: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	enhanced, err := png.Decode(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("decode enhanced frame: %w", err)
	}
	return enhanced, nil
}
