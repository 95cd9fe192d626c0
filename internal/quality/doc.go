// Package quality classifies extracted frames for enhancement routing.
// The Heuristic classifier uses pixel statistics only; no model inference
// happens here.
package quality
