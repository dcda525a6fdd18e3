package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GenerationMetrics summarises one finished gateway request.
// It implements zapcore.ObjectMarshaler so it nests as one JSON object.
//
//	logger.Info("generation complete", logging.GenerationFields(logging.GenerationMetrics{
//	    Endpoint: "txt2img",
//	    Images:   2,
//	    Width:    768,
//	    Height:   384,
//	    Seed:     -1,
//	    Duration: 3 * time.Second,
//	}))
type GenerationMetrics struct {
	// Endpoint is txt2img, img2img or upscale
	Endpoint string

	// Images is the number of files persisted
	Images int

	// Width and Height are the working dimensions sent to the engine
	Width  int
	Height int

	// Mode is the normalised edit mode, -1 when not applicable
	Mode int

	Seed int64

	// Sampler or upscaler name, whichever the endpoint used
	Model string

	// EngineDuration is the time spent inside the engine call
	EngineDuration time.Duration

	// Duration is the total request time
	Duration time.Duration
}

// MarshalLogObject implements zapcore.ObjectMarshaler. Durations are
// encoded in milliseconds.
func (m GenerationMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("endpoint", m.Endpoint)
	enc.AddInt("images", m.Images)
	if m.Width > 0 && m.Height > 0 {
		enc.AddInt("width", m.Width)
		enc.AddInt("height", m.Height)
	}
	if m.Mode >= 0 {
		enc.AddInt("mode", m.Mode)
	}
	enc.AddInt64("seed", m.Seed)
	if m.Model != "" {
		enc.AddString("model", m.Model)
	}
	enc.AddInt64("engine_ms", m.EngineDuration.Milliseconds())
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	return nil
}

// GenerationFields wraps metrics in a zap.Field under the "generation" key.
func GenerationFields(m GenerationMetrics) zap.Field {
	return zap.Object("generation", m)
}

// PathFields returns one field holding the persisted output paths.
func PathFields(paths []string) zap.Field {
	return zap.Strings("outputs", paths)
}
