package gateway

import (
	"context"
	"fmt"

	"sdgateway/sdruntime"
)

// SamplerIndex returns the registry position of name.
func SamplerIndex(ctx context.Context, reg sdruntime.Registry, name string) (int, error) {
	samplers, err := reg.Samplers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list samplers: %w", ErrEngineFailure, err)
	}
	if i := indexOf(samplers, name); i >= 0 {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSampler, name)
}

// UpscalerIndex returns the registry position of name. Index 0 is always
// the sentinel sdruntime.NoneUpscaler.
func UpscalerIndex(ctx context.Context, reg sdruntime.Registry, name string) (int, error) {
	upscalers, err := reg.Upscalers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list upscalers: %w", ErrEngineFailure, err)
	}
	if i := indexOf(upscalers, name); i >= 0 {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownUpscaler, name)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
