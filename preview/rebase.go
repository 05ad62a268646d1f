// Package preview implements the rebased preview publisher of spec.md §4.9
// (C9): an independent, bounded-resolution tile pyramid built from the
// source slide and published idempotently to object storage. Grounded on
// pspoerri-geotiff2pmtiles's own downsample/zoom math
// (internal/tile/zoom.go, downsample.go) for the level-remapping idiom, and
// on aistore's publish-then-mark-complete pattern for the idempotency
// marker.
package preview

import "math"

// DefaultTargetMaxDim and DefaultRequestedMaxLevel are spec.md §4.9's
// documented defaults.
const (
	DefaultTargetMaxDim      = 2048
	DefaultRequestedMaxLevel = 6
)

// RebasedDimensions implements spec.md §4.9's "rebased dimensions": scale
// down only if the slide's largest dimension exceeds targetMaxDim; never
// upscale.
func RebasedDimensions(width, height, targetMaxDim int) (int, int) {
	m := width
	if height > m {
		m = height
	}
	s := float64(m) / float64(targetMaxDim)
	if s <= 1 {
		return width, height
	}
	return int(math.Round(float64(width) / s)), int(math.Round(float64(height) / s))
}

// RebasedMaxLevel implements spec.md §4.9's "rebased maxLevel":
// min(requestedMaxLevel, ceil(log2(max(rebasedWidth, rebasedHeight)))).
func RebasedMaxLevel(rebasedWidth, rebasedHeight, requestedMaxLevel int) int {
	m := rebasedWidth
	if rebasedHeight > m {
		m = rebasedHeight
	}
	full := 0
	if m > 1 {
		full = int(math.Ceil(math.Log2(float64(m))))
	}
	if requestedMaxLevel < full {
		return requestedMaxLevel
	}
	return full
}
