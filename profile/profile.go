// Package profile loads per-endpoint generation defaults from a YAML file.
//
// The file is read again on every Load so edits apply without a restart.
// Each Load returns an independent Snapshot that the caller may keep for
// the duration of one request.
package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrProfileRead  = errors.New("profile: cannot read config file")
	ErrProfileParse = errors.New("profile: cannot parse config file")
)

// Profile holds the defaults for one endpoint. Fields that do not apply to
// an endpoint are ignored by it.
type Profile struct {
	SamplePath string `yaml:"sample_path"`

	// Prompt templates used when the request carries no prompt at all
	Prompts        PromptList `yaml:"prompts"`
	NegativePrompt PromptList `yaml:"negative_prompt"`

	SamplerName string  `yaml:"sampler_name"`
	Steps       int     `yaml:"steps"`
	CFGScale    float64 `yaml:"cfg_scale"`
	Seed        int64   `yaml:"seed"`
	BatchCount  int     `yaml:"n_iter"`
	BatchSize   int     `yaml:"batch_size"`
	BaseSize    int     `yaml:"base_size"`
	MaxSize     int     `yaml:"max_size"`
	Tiling      bool    `yaml:"tiling"`
	UseGFPGAN   bool    `yaml:"use_gfpgan"`

	FaceRestorer     string  `yaml:"face_restorer"`
	CodeformerWeight float64 `yaml:"codeformer_weight"`

	// img2img
	Mode              int     `yaml:"mode"`
	MaskBlur          int     `yaml:"mask_blur"`
	InpaintingFill    int     `yaml:"inpainting_fill"`
	DenoisingStrength float64 `yaml:"denoising_strength"`
	InpaintFullRes    bool    `yaml:"inpaint_full_res"`
	ResizeMode        int     `yaml:"resize_mode"`

	// upscale (UpscalerName is also read by img2img)
	UpscalerName   string `yaml:"upscaler_name"`
	DownscaleFirst bool   `yaml:"downscale_first"`
}

// Snapshot is one read of the config file.
type Snapshot struct {
	Generate Profile
	Edit     Profile
	Upscale  Profile

	// Plugin is passed through to the info endpoint unchanged
	Plugin map[string]interface{}
}

// PluginSamplePath returns plugin.sample_path, falling back to the
// generate profile's output directory.
func (s *Snapshot) PluginSamplePath() string {
	if v, ok := s.Plugin["sample_path"].(string); ok && v != "" {
		return v
	}
	return s.Generate.SamplePath
}

// Source yields a fresh Snapshot per call.
type Source interface {
	Load() (*Snapshot, error)
}

// FileSource reads a YAML file on every Load.
type FileSource struct {
	Path string
}

// NewFileSource returns a Source backed by path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and parses the file on top of Defaults.
func (f *FileSource) Load() (*Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileRead, err)
	}
	return Parse(data)
}

// StaticSource always returns a copy of the same Snapshot.
type StaticSource struct {
	Snapshot Snapshot
}

// Load returns a copy so callers cannot mutate the shared value.
func (s StaticSource) Load() (*Snapshot, error) {
	snap := s.Snapshot
	snap.Plugin = make(map[string]interface{}, len(s.Snapshot.Plugin))
	for k, v := range s.Snapshot.Plugin {
		snap.Plugin[k] = v
	}
	return &snap, nil
}

// Profile section names. The webui-style names are accepted as aliases so
// existing krita_config.yaml files keep working.
var sectionKeys = map[string][]string{
	"generate": {"generate", "txt2img"},
	"edit":     {"edit", "img2img"},
	"upscale":  {"upscale"},
	"plugin":   {"plugin"},
}

// Parse decodes YAML data on top of Defaults.
func Parse(data []byte) (*Snapshot, error) {
	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileParse, err)
	}

	snap := Defaults()
	targets := map[string]interface{}{
		"generate": &snap.Generate,
		"edit":     &snap.Edit,
		"upscale":  &snap.Upscale,
		"plugin":   &snap.Plugin,
	}

	for name, keys := range sectionKeys {
		for _, key := range keys {
			node, ok := sections[key]
			if !ok {
				continue
			}
			if err := node.Decode(targets[name]); err != nil {
				return nil, fmt.Errorf("%w: section %q: %v", ErrProfileParse, key, err)
			}
			break
		}
	}

	if snap.Plugin == nil {
		snap.Plugin = map[string]interface{}{}
	}
	if _, ok := snap.Plugin["sample_path"]; !ok {
		snap.Plugin["sample_path"] = snap.Generate.SamplePath
	}
	return &snap, nil
}

// PromptList is a list of prompt fragments. A plain YAML string decodes to
// a single-element list.
type PromptList []string

// UnmarshalYAML accepts either a scalar or a sequence of strings.
func (p *PromptList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*p = PromptList{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("prompt list must be a string or a list of strings")
	}
}

// Collect joins the non-blank fragments with ", ".
func (p PromptList) Collect() string {
	parts := make([]string, 0, len(p))
	for _, s := range p {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
