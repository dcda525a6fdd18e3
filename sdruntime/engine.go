package sdruntime

import (
	"context"
	"image"
)

// NoneUpscaler is the registry entry that means "do not upscale".
// It always sits at index 0 of the upscaler list.
const NoneUpscaler = "None"

// Result is what the engine hands back for one generation call.
type Result struct {
	Images []image.Image

	// Info is the engine's textual metadata (parameters, seeds, model).
	Info string

	// HTML is the engine's rendered info; the gateway does not use it.
	HTML string
}

// Engine generates images from resolved parameters. Calls block until the
// engine finishes and may take minutes.
type Engine interface {
	Txt2Img(ctx context.Context, p Txt2ImgParams) (*Result, error)
	Img2Img(ctx context.Context, p Img2ImgParams) (*Result, error)
}

// Upscaler upscales one image to width x height with the named upscaler.
// The returned Result holds exactly one image.
type Upscaler interface {
	Upscale(ctx context.Context, name string, img image.Image, width, height int) (*Result, error)
}

// Registry lists what the engine offers. Upscalers()[0] is NoneUpscaler.
type Registry interface {
	Samplers(ctx context.Context) ([]string, error)
	Upscalers(ctx context.Context) ([]string, error)
}

// FaceRestorer configures the engine-wide face restoration model. The
// setting is shared by every request the engine serves.
type FaceRestorer interface {
	ConfigureFaceRestorer(ctx context.Context, name string, codeformerWeight float64) error
}

// Backend bundles every capability; Client satisfies it.
type Backend interface {
	Engine
	Upscaler
	Registry
	FaceRestorer
}
