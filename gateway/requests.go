package gateway

// Request bodies of the three generation endpoints. Pointer fields are
// optional: nil means "use the profile default", while an explicit zero or
// false overrides it. Empty strings count as absent.

// GenerateRequest is the txt2img payload.
type GenerateRequest struct {
	Prompt         string   `json:"prompt,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	SamplerName    string   `json:"sampler_name,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	BatchCount     *int     `json:"batch_count,omitempty"`
	BatchSize      *int     `json:"batch_size,omitempty"`
	CFGScale       *float64 `json:"cfg_scale,omitempty"`
	BaseSize       *int     `json:"base_size,omitempty"`
	MaxSize        *int     `json:"max_size,omitempty"`
	Tiling         *bool    `json:"tiling,omitempty"`
	UseGFPGAN      *bool    `json:"use_gfpgan,omitempty"`

	FaceRestorer     string   `json:"face_restorer,omitempty"`
	CodeformerWeight *float64 `json:"codeformer_weight,omitempty"`

	// Size of the canvas the outputs are resized to. Both or neither.
	OrigWidth  *int `json:"orig_width,omitempty"`
	OrigHeight *int `json:"orig_height,omitempty"`
}

// EditRequest is the img2img payload.
type EditRequest struct {
	Prompt         string   `json:"prompt,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	SamplerName    string   `json:"sampler_name,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	BatchCount     *int     `json:"batch_count,omitempty"`
	BatchSize      *int     `json:"batch_size,omitempty"`
	CFGScale       *float64 `json:"cfg_scale,omitempty"`
	BaseSize       *int     `json:"base_size,omitempty"`
	MaxSize        *int     `json:"max_size,omitempty"`
	Tiling         *bool    `json:"tiling,omitempty"`
	UseGFPGAN      *bool    `json:"use_gfpgan,omitempty"`

	FaceRestorer     string   `json:"face_restorer,omitempty"`
	CodeformerWeight *float64 `json:"codeformer_weight,omitempty"`

	Mode     *int   `json:"mode,omitempty"`
	SrcPath  string `json:"src_path"`
	MaskPath string `json:"mask_path,omitempty"`

	MaskBlur          *int     `json:"mask_blur,omitempty"`
	InpaintingFill    *int     `json:"inpainting_fill,omitempty"`
	DenoisingStrength *float64 `json:"denoising_strength,omitempty"`
	InpaintFullRes    *bool    `json:"inpaint_full_res,omitempty"`
	UpscalerName      string   `json:"upscaler_name,omitempty"`
}

// UpscaleRequest is the upscale payload.
type UpscaleRequest struct {
	SrcPath        string `json:"src_path"`
	UpscalerName   string `json:"upscaler_name,omitempty"`
	DownscaleFirst *bool  `json:"downscale_first,omitempty"`
}
