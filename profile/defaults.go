package profile

// DefaultSamplePath is the output directory used when a profile sets none.
const DefaultSamplePath = "outputs/krita"

// Defaults returns the built-in values applied before the YAML file.
func Defaults() Snapshot {
	common := Profile{
		SamplePath:       DefaultSamplePath,
		SamplerName:      "Euler a",
		Steps:            20,
		CFGScale:         7.5,
		Seed:             -1,
		BatchCount:       1,
		BatchSize:        1,
		BaseSize:         512,
		MaxSize:          768,
		FaceRestorer:     "CodeFormer",
		CodeformerWeight: 0.5,
		UpscalerName:     "None",
	}

	edit := common
	edit.Steps = 30
	edit.MaskBlur = 4
	edit.InpaintingFill = 1
	edit.DenoisingStrength = 0.4

	return Snapshot{
		Generate: common,
		Edit:     edit,
		Upscale: Profile{
			SamplePath:   DefaultSamplePath,
			UpscalerName: "None",
		},
		Plugin: map[string]interface{}{},
	}
}
