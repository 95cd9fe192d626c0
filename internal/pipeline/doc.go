// Package pipeline orchestrates the per-job enhancement workflow: probe and
// stage the source, extract frames, score their quality, enhance the
// deficient ones, and reconstruct the output container with the original
// audio.
//
// The orchestrator emits non-terminal progress only; the workflow manager
// owns terminal transitions. Cancellation is honored at stage boundaries: a
// stage that has begun always runs to completion.
package pipeline
