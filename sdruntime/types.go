package sdruntime

import (
	"fmt"
	"image"
	"strings"
)

// Txt2ImgParams is a fully resolved text-to-image invocation.
type Txt2ImgParams struct {
	Prompt         string
	NegativePrompt string
	SamplerName    string
	SamplerIndex   int // position of SamplerName in the registry
	Steps          int
	CFGScale       float64
	Seed           int64 // -1 lets the engine pick
	Width          int
	Height         int
	BatchCount     int // sequential batches (n_iter)
	BatchSize      int // images per batch
	RestoreFaces   bool
	Tiling         bool
}

// Img2ImgParams is a fully resolved image-to-image invocation.
type Img2ImgParams struct {
	Txt2ImgParams

	Image image.Image
	Mask  *image.Gray // nil unless inpainting

	Mode              int
	MaskBlur          int
	InpaintingFill    int
	DenoisingStrength float64
	ResizeMode        int
	InpaintFullRes    bool
	InpaintPadding    int
}

// Parameter limits
const (
	MinImageSize      = 64
	MaxImageSize      = 4096
	ImageSizeMultiple = 8

	MinSteps = 1
	MaxSteps = 150

	MinCFGScale = 1.0
	MaxCFGScale = 30.0

	MaxBatchCount = 100
	MaxBatchSize  = 8

	MaxPromptLength = 10000

	// InpaintPadding is the padding sent with inpaint-full-res requests.
	InpaintPadding = 32
)

// ExpectedImages is how many images a successful call returns.
func (p Txt2ImgParams) ExpectedImages() int {
	return p.BatchCount * p.BatchSize
}

// Validate checks parameter ranges.
// This is a pure function with no side effects.
func (p Txt2ImgParams) Validate() error {
	if len(p.Prompt) > MaxPromptLength {
		return fmt.Errorf("%w: prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(p.Prompt), MaxPromptLength)
	}
	if len(p.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(p.NegativePrompt), MaxPromptLength)
	}
	if strings.TrimSpace(p.SamplerName) == "" {
		return fmt.Errorf("%w: sampler name is empty", ErrInvalidParams)
	}

	if err := validateSize("width", p.Width); err != nil {
		return err
	}
	if err := validateSize("height", p.Height); err != nil {
		return err
	}

	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d must be between %d and %d",
			ErrInvalidParams, p.Steps, MinSteps, MaxSteps)
	}
	if p.CFGScale < MinCFGScale || p.CFGScale > MaxCFGScale {
		return fmt.Errorf("%w: cfg scale %.2f must be between %.1f and %.1f",
			ErrInvalidParams, p.CFGScale, MinCFGScale, MaxCFGScale)
	}
	if p.BatchCount < 1 || p.BatchCount > MaxBatchCount {
		return fmt.Errorf("%w: batch count %d must be between 1 and %d",
			ErrInvalidParams, p.BatchCount, MaxBatchCount)
	}
	if p.BatchSize < 1 || p.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch size %d must be between 1 and %d",
			ErrInvalidParams, p.BatchSize, MaxBatchSize)
	}
	if p.Seed < -1 {
		return fmt.Errorf("%w: seed %d must be -1 or non-negative", ErrInvalidParams, p.Seed)
	}
	return nil
}

// Validate checks the embedded generation parameters plus the
// image-to-image specific fields.
func (p Img2ImgParams) Validate() error {
	if err := p.Txt2ImgParams.Validate(); err != nil {
		return err
	}
	if p.Image == nil {
		return fmt.Errorf("%w: source image is required", ErrInvalidParams)
	}
	if p.DenoisingStrength < 0 || p.DenoisingStrength > 1 {
		return fmt.Errorf("%w: denoising strength %.2f must be between 0 and 1",
			ErrInvalidParams, p.DenoisingStrength)
	}
	if p.MaskBlur < 0 {
		return fmt.Errorf("%w: mask blur %d must not be negative", ErrInvalidParams, p.MaskBlur)
	}
	if p.InpaintingFill < 0 || p.InpaintingFill > 3 {
		return fmt.Errorf("%w: inpainting fill %d must be between 0 and 3",
			ErrInvalidParams, p.InpaintingFill)
	}
	if p.ResizeMode < 0 || p.ResizeMode > 3 {
		return fmt.Errorf("%w: resize mode %d must be between 0 and 3", ErrInvalidParams, p.ResizeMode)
	}
	return nil
}

func validateSize(name string, v int) error {
	if v < MinImageSize || v > MaxImageSize {
		return fmt.Errorf("%w: %s %d must be between %d and %d",
			ErrInvalidParams, name, v, MinImageSize, MaxImageSize)
	}
	if v%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: %s %d must be divisible by %d",
			ErrInvalidParams, name, v, ImageSizeMultiple)
	}
	return nil
}
