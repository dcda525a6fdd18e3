package gateway

import (
	"fmt"
	"math"
)

// DimensionStep is the granularity the engine tiles latents at.
const DimensionStep = 64

// FitDimensions computes the working width and height for an image of
// origWidth x origHeight. The shorter side is driven by baseSize; if the
// longer side would then exceed maxSize, both are scaled down so the longer
// side equals maxSize. Both results are rounded to the nearest multiple of
// DimensionStep, never exceed maxSize and are at least DimensionStep.
//
// This is a pure function with no side effects.
//
// Example:
//
//	FitDimensions(512, 768, 1000, 500) // 768, 384
//	FitDimensions(512, 768, 300, 300)  // 512, 512
func FitDimensions(baseSize, maxSize, origWidth, origHeight int) (int, int, error) {
	if origWidth <= 0 || origHeight <= 0 {
		return 0, 0, fmt.Errorf("%w: source %dx%d", ErrInvalidDimension, origWidth, origHeight)
	}
	if baseSize < DimensionStep || maxSize < DimensionStep {
		return 0, 0, fmt.Errorf("%w: base_size %d and max_size %d must be at least %d",
			ErrInvalidDimension, baseSize, maxSize, DimensionStep)
	}

	ratio := float64(origWidth) / float64(origHeight)
	base, limit := float64(baseSize), float64(maxSize)

	var w, h float64
	if ratio >= 1 {
		w, h = base*ratio, base
		if w > limit {
			w, h = limit, limit/ratio
		}
	} else {
		w, h = base, base/ratio
		if h > limit {
			w, h = limit*ratio, limit
		}
	}

	return snapDimension(w, maxSize), snapDimension(h, maxSize), nil
}

// snapDimension rounds v to the nearest step, flooring instead when
// rounding up would pass maxSize.
func snapDimension(v float64, maxSize int) int {
	n := int(math.Round(v/DimensionStep)) * DimensionStep
	if n > maxSize {
		n = maxSize / DimensionStep * DimensionStep
	}
	if n < DimensionStep {
		n = DimensionStep
	}
	return n
}
