package sdruntime

// Request and response bodies of the webui /sdapi/v1 endpoints.

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	SamplerName    string  `json:"sampler_name"`
	SamplerIndex   string  `json:"sampler_index"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Seed           int64   `json:"seed"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	NIter          int     `json:"n_iter"`
	BatchSize      int     `json:"batch_size"`
	RestoreFaces   bool    `json:"restore_faces"`
	Tiling         bool    `json:"tiling"`
	SendImages     bool    `json:"send_images"`
	SaveImages     bool    `json:"save_images"`
}

type img2imgRequest struct {
	txt2imgRequest

	InitImages            []string `json:"init_images"`
	Mask                  string   `json:"mask,omitempty"`
	MaskBlur              int      `json:"mask_blur"`
	InpaintingFill        int      `json:"inpainting_fill"`
	InpaintFullRes        bool     `json:"inpaint_full_res"`
	InpaintFullResPadding int      `json:"inpaint_full_res_padding"`
	DenoisingStrength     float64  `json:"denoising_strength"`
	ResizeMode            int      `json:"resize_mode"`
	IncludeInitImages     bool     `json:"include_init_images"`
}

type generationResponse struct {
	Images     []string               `json:"images"`
	Parameters map[string]interface{} `json:"parameters"`
	Info       string                 `json:"info"`
}

type extraSingleImageRequest struct {
	Image            string `json:"image"`
	ResizeMode       int    `json:"resize_mode"`
	UpscalingResizeW int    `json:"upscaling_resize_w"`
	UpscalingResizeH int    `json:"upscaling_resize_h"`
	UpscalingCrop    bool   `json:"upscaling_crop"`
	Upscaler1        string `json:"upscaler_1"`
}

type extraSingleImageResponse struct {
	HTMLInfo string `json:"html_info"`
	Image    string `json:"image"`
}

type namedItem struct {
	Name string `json:"name"`
}

type optionsRequest struct {
	FaceRestorationModel string  `json:"face_restoration_model"`
	CodeFormerWeight     float64 `json:"code_former_weight"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
	Errors string `json:"errors"`
}
