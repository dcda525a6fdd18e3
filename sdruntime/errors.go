package sdruntime

import "errors"

// Sentinel errors for engine operations.
var (
	// Transport errors
	ErrEngineUnavailable = errors.New("sdruntime: engine unavailable")
	ErrEngineResponse    = errors.New("sdruntime: engine returned an error")

	// Generation errors
	ErrGenerationFailed = errors.New("sdruntime: image generation failed")
	ErrNoImages         = errors.New("sdruntime: engine returned no images")

	// Input validation errors
	ErrInvalidParams = errors.New("sdruntime: invalid generation parameters")

	ErrImageDecodeFail = errors.New("sdruntime: failed to decode image")
)
