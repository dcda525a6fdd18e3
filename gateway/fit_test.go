package gateway

import (
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		name                 string
		base, max, w, h      int
		wantWidth, wantHeigt int
	}{
		{"landscape capped by max", 512, 768, 1000, 500, 768, 384},
		{"square", 512, 768, 300, 300, 512, 512},
		{"square large source", 512, 768, 4000, 4000, 512, 512},
		{"landscape under max", 512, 1024, 1500, 1000, 768, 512},
		{"portrait under max", 512, 1024, 1000, 1500, 512, 768},
		{"portrait capped by max", 512, 768, 500, 1000, 384, 768},
		{"odd ratio rounds to step", 512, 2048, 1920, 1080, 896, 512},
		{"max not a step multiple floors", 512, 700, 2000, 1000, 640, 320},
		{"base above max", 1024, 768, 100, 100, 768, 768},
		{"extreme ratio keeps minimum", 512, 768, 10000, 10, 768, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := FitDimensions(tt.base, tt.max, tt.w, tt.h)
			if err != nil {
				t.Fatalf("FitDimensions() error: %v", err)
			}
			if w != tt.wantWidth || h != tt.wantHeigt {
				t.Errorf("FitDimensions(%d, %d, %d, %d) = %d, %d; want %d, %d",
					tt.base, tt.max, tt.w, tt.h, w, h, tt.wantWidth, tt.wantHeigt)
			}
		})
	}
}

func TestFitDimensions_InvalidDimension(t *testing.T) {
	tests := []struct {
		name            string
		base, max, w, h int
	}{
		{"zero width", 512, 768, 0, 100},
		{"zero height", 512, 768, 100, 0},
		{"negative width", 512, 768, -5, 100},
		{"base below step", 32, 768, 100, 100},
		{"max below step", 512, 0, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := FitDimensions(tt.base, tt.max, tt.w, tt.h)
			if !errors.Is(err, ErrInvalidDimension) {
				t.Errorf("FitDimensions() error = %v, want ErrInvalidDimension", err)
			}
		})
	}
}

func TestFitDimensions_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.IntRange(DimensionStep, 2048).Draw(t, "base")
		limit := rapid.IntRange(DimensionStep, 4096).Draw(t, "max")
		w := rapid.IntRange(1, 8192).Draw(t, "w")
		h := rapid.IntRange(1, 8192).Draw(t, "h")

		gotW, gotH, err := FitDimensions(base, limit, w, h)
		if err != nil {
			t.Fatalf("FitDimensions(%d, %d, %d, %d) error: %v", base, limit, w, h, err)
		}

		for _, d := range []int{gotW, gotH} {
			if d%DimensionStep != 0 {
				t.Fatalf("dimension %d is not a multiple of %d", d, DimensionStep)
			}
			if d > limit {
				t.Fatalf("dimension %d exceeds max %d", d, limit)
			}
			if d < DimensionStep {
				t.Fatalf("dimension %d below minimum", d)
			}
		}

		// Each side moves by less than one step from the exact fit, so the
		// ratio error is bounded by a step on each side.
		ratio := float64(w) / float64(h)
		if diff := math.Abs(float64(gotW) - float64(gotH)*ratio); diff > DimensionStep*(1+ratio) {
			t.Fatalf("%dx%d drifts from ratio %.4f by %.1f px", gotW, gotH, ratio, diff)
		}
	})
}

func TestFitDimensions_Deterministic(t *testing.T) {
	w1, h1, _ := FitDimensions(512, 768, 1234, 567)
	w2, h2, _ := FitDimensions(512, 768, 1234, 567)
	if w1 != w2 || h1 != h2 {
		t.Errorf("FitDimensions not deterministic: %dx%d vs %dx%d", w1, h1, w2, h2)
	}
}
