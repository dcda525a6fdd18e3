package gateway

import "errors"

// Request-level failures. None of them are retried.
var (
	// ErrInvalidDimension indicates zero/negative source dimensions or size bounds.
	ErrInvalidDimension = errors.New("gateway: invalid dimension")

	// ErrInvalidMode indicates an edit mode outside 0..3.
	ErrInvalidMode = errors.New("gateway: invalid mode")

	// ErrMissingMask indicates mode 1 without a readable mask file.
	ErrMissingMask = errors.New("gateway: missing mask")

	// ErrMissingSource indicates a src_path that cannot be opened as an image.
	ErrMissingSource = errors.New("gateway: missing source image")

	// ErrUnknownSampler indicates a sampler name not in the engine registry.
	ErrUnknownSampler = errors.New("gateway: unknown sampler")

	// ErrUnknownUpscaler indicates an upscaler name not in the engine registry.
	ErrUnknownUpscaler = errors.New("gateway: unknown upscaler")

	// ErrInvalidParameter indicates a resolved value the engine would reject
	// (steps, cfg scale, batch size, ...).
	ErrInvalidParameter = errors.New("gateway: invalid parameter")

	// ErrEngineFailure wraps any error returned by the inference engine.
	ErrEngineFailure = errors.New("gateway: engine failure")

	// ErrPersist indicates the output directory or an output file could not be written.
	ErrPersist = errors.New("gateway: persist failed")
)

var clientErrors = []error{
	ErrInvalidDimension,
	ErrInvalidMode,
	ErrMissingMask,
	ErrMissingSource,
	ErrUnknownSampler,
	ErrUnknownUpscaler,
	ErrInvalidParameter,
}

// IsClientError reports whether err was caused by the request rather than
// the engine or the host.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
