package profile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
plugin:
  sample_path: /tmp/krita
  show_prompt: true
txt2img:
  prompts:
    - masterpiece
    - ""
    - highly detailed
  negative_prompt: blurry
  sampler_name: DPM++ 2M
  steps: 25
  seed: 1234
  base_size: 640
edit:
  mode: 1
  denoising_strength: 0.6
upscale:
  upscaler_name: R-ESRGAN 4x+
  downscale_first: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "krita_config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSource_Load(t *testing.T) {
	snap, err := NewFileSource(writeConfig(t, sampleYAML)).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	gen := snap.Generate
	if gen.SamplerName != "DPM++ 2M" || gen.Steps != 25 || gen.Seed != 1234 || gen.BaseSize != 640 {
		t.Errorf("generate profile = %+v", gen)
	}
	// untouched fields keep their defaults
	if gen.MaxSize != 768 || gen.CFGScale != 7.5 || gen.BatchCount != 1 {
		t.Errorf("generate defaults lost: %+v", gen)
	}
	if got := gen.Prompts.Collect(); got != "masterpiece, highly detailed" {
		t.Errorf("Prompts.Collect() = %q", got)
	}
	if got := gen.NegativePrompt.Collect(); got != "blurry" {
		t.Errorf("NegativePrompt.Collect() = %q", got)
	}

	if snap.Edit.Mode != 1 || snap.Edit.DenoisingStrength != 0.6 || snap.Edit.MaskBlur != 4 {
		t.Errorf("edit profile = %+v", snap.Edit)
	}
	if snap.Upscale.UpscalerName != "R-ESRGAN 4x+" || !snap.Upscale.DownscaleFirst {
		t.Errorf("upscale profile = %+v", snap.Upscale)
	}

	if snap.PluginSamplePath() != "/tmp/krita" {
		t.Errorf("PluginSamplePath() = %q", snap.PluginSamplePath())
	}
	if snap.Plugin["show_prompt"] != true {
		t.Errorf("plugin passthrough lost: %v", snap.Plugin)
	}
}

func TestFileSource_ReadsEveryTime(t *testing.T) {
	path := writeConfig(t, "txt2img:\n  steps: 10\n")
	src := NewFileSource(path)

	first, err := src.Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("txt2img:\n  steps: 40\n"), 0644); err != nil {
		t.Fatal(err)
	}
	second, err := src.Load()
	if err != nil {
		t.Fatal(err)
	}

	if first.Generate.Steps != 10 || second.Generate.Steps != 40 {
		t.Errorf("steps = %d then %d, want 10 then 40", first.Generate.Steps, second.Generate.Steps)
	}
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	if !errors.Is(err, ErrProfileRead) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load() error = %v, want ErrProfileRead wrapping fs.ErrNotExist", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not a mapping", "- a\n- b\n"},
		{"wrong field type", "txt2img:\n  steps: many\n"},
		{"prompt map", "txt2img:\n  prompts:\n    a: b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); !errors.Is(err, ErrProfileParse) {
				t.Errorf("Parse() error = %v, want ErrProfileParse", err)
			}
		})
	}
}

func TestParse_EmptyUsesDefaults(t *testing.T) {
	snap, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	want := Defaults()
	if snap.Generate.Steps != want.Generate.Steps || snap.Edit.DenoisingStrength != want.Edit.DenoisingStrength {
		t.Errorf("snapshot = %+v, want defaults", snap)
	}
	if snap.PluginSamplePath() != DefaultSamplePath {
		t.Errorf("PluginSamplePath() = %q, want %q", snap.PluginSamplePath(), DefaultSamplePath)
	}
}

func TestStaticSource_Copies(t *testing.T) {
	src := StaticSource{Snapshot: Defaults()}
	a, _ := src.Load()
	a.Generate.Steps = 99
	a.Plugin["x"] = 1

	b, _ := src.Load()
	if b.Generate.Steps == 99 {
		t.Error("mutating one snapshot leaked into the next")
	}
	if _, ok := b.Plugin["x"]; ok {
		t.Error("plugin map shared between snapshots")
	}
}
