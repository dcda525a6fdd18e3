package gateway

import (
	"fmt"
	"image"
	"strings"

	"sdgateway/imageops"
)

// EditMode selects how an img2img request is processed.
type EditMode int

const (
	// ModePlain runs img2img on the whole canvas.
	ModePlain EditMode = iota
	// ModeInpaintMasked regenerates only the pixels under the mask.
	ModeInpaintMasked
	// ModeCropRegion works on a square base_size canvas.
	ModeCropRegion
	// ModeUncrop is accepted from clients but runs as ModeCropRegion.
	ModeUncrop
)

func (m EditMode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeInpaintMasked:
		return "inpaint"
	case ModeCropRegion:
		return "crop"
	case ModeUncrop:
		return "uncrop"
	default:
		return fmt.Sprintf("EditMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the four known modes.
func (m EditMode) Valid() bool {
	return m >= ModePlain && m <= ModeUncrop
}

// NormalizeMode maps the legacy uncrop mode onto crop-region. Every other
// mode is returned unchanged.
func NormalizeMode(m EditMode) EditMode {
	if m == ModeUncrop {
		return ModeCropRegion
	}
	return m
}

// CompositePolicy is the post-processing applied to resized engine output.
type CompositePolicy int

const (
	// CompositeIdentity keeps the resized output as is.
	CompositeIdentity CompositePolicy = iota
	// CompositeMaskOut keeps only pixels under the mask, the rest become transparent.
	CompositeMaskOut
)

// MaskLoader reads a mask file as a single-channel image.
type MaskLoader func(path string) (*image.Gray, error)

// LoadMask is the default MaskLoader.
func LoadMask(path string) (*image.Gray, error) {
	img, err := imageops.Open(path)
	if err != nil {
		return nil, err
	}
	return imageops.ToGray(img), nil
}

// ModeSelection is the outcome of SelectMode.
type ModeSelection struct {
	// Mode is the normalized mode sent to the engine
	Mode EditMode

	// Mask is non-nil only for ModeInpaintMasked
	Mask *image.Gray

	Policy CompositePolicy

	// SquareCanvas forces the working size to base_size x base_size
	SquareCanvas bool
}

// SelectMode validates mode, loads the mask when the mode needs one and
// then normalizes the mode. Only ModeInpaintMasked ever calls load, so the
// uncrop remap cannot cause a mask read.
func SelectMode(mode EditMode, maskPath string, load MaskLoader) (ModeSelection, error) {
	if !mode.Valid() {
		return ModeSelection{}, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}

	var sel ModeSelection
	if mode == ModeInpaintMasked {
		if strings.TrimSpace(maskPath) == "" {
			return ModeSelection{}, fmt.Errorf("%w: mask_path is empty", ErrMissingMask)
		}
		if load == nil {
			load = LoadMask
		}
		mask, err := load(maskPath)
		if err != nil {
			return ModeSelection{}, fmt.Errorf("%w: %s: %w", ErrMissingMask, maskPath, err)
		}
		sel.Mask = mask
		sel.Policy = CompositeMaskOut
	}

	sel.Mode = NormalizeMode(mode)
	sel.SquareCanvas = sel.Mode == ModeCropRegion
	return sel, nil
}
