// Package imageops holds the pixel-level primitives the gateway needs:
// decoding from disk or base64, channel conversion, resampling, mask
// compositing and PNG encoding.
package imageops

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrInvalidImage      = errors.New("imageops: invalid image data")
	ErrEmptyImage        = errors.New("imageops: empty image data")
	ErrInvalidDimensions = errors.New("imageops: invalid dimensions")
)

// Open decodes the image file at path. File system errors are wrapped
// unchanged so callers can test for fs.ErrNotExist.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imageops: open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidImage, path, err)
	}
	return img, nil
}

// Decode decodes PNG, JPEG, GIF, WebP or BMP data.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// DecodeBase64 decodes a base64 image, with or without a data URI prefix.
func DecodeBase64(s string) (image.Image, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrInvalidImage, err)
	}
	return Decode(data)
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("imageops: encode png: %w", err)
	}
	return nil
}

// EncodeBase64PNG returns img as base64-encoded PNG without a data URI prefix.
func EncodeBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Size returns the width and height of img.
func Size(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// ToRGB drops the alpha channel: colour values are kept, every pixel
// becomes fully opaque.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			dst.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return dst
}

// ToGray converts img to a single-channel luminance image.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Resize stretches img to exactly width x height with Catmull-Rom
// resampling. Aspect ratio is not preserved. An image already at the
// target size is returned as is.
func Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img, nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// ResizeGray is Resize for single-channel masks.
func ResizeGray(mask *image.Gray, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	b := mask.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return mask, nil
	}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), mask, b, draw.Src, nil)
	return dst, nil
}

// MaskOut pastes img onto a fully transparent canvas of the same size
// using mask as the alpha stencil. Pixels where the mask is 0 end up
// transparent; pixels where it is 255 keep img unchanged. Partial mask
// values scale colour and alpha alike, as a paste onto RGBA(0,0,0,0)
// does. A mask of a different size is first stretched to the canvas.
func MaskOut(img image.Image, mask *image.Gray) (*image.NRGBA, error) {
	w, h := Size(img)
	m, err := ResizeGray(mask, w, h)
	if err != nil {
		return nil, err
	}

	stencil := &image.Alpha{
		Pix:    m.Pix,
		Stride: m.Stride,
		Rect:   image.Rect(0, 0, w, h),
	}
	if m.Bounds().Min != (image.Point{}) {
		stencil = image.NewAlpha(image.Rect(0, 0, w, h))
		draw.Draw(stencil, stencil.Bounds(), alphaFromGray(m), m.Bounds().Min, draw.Src)
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.DrawMask(canvas, canvas.Bounds(), img, img.Bounds().Min, stencil, image.Point{}, draw.Over)
	for y := 0; y < h; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < w; x++ {
			a := uint32(stencil.Pix[y*stencil.Stride+x])
			if a == 0xff {
				continue
			}
			p := row[x*4 : x*4+3]
			for i := range p {
				p[i] = uint8((uint32(p[i])*a + 0x7f) / 0xff)
			}
		}
	}
	return canvas, nil
}

type grayAsAlpha struct{ *image.Gray }

func (g grayAsAlpha) ColorModel() color.Model { return color.AlphaModel }

func (g grayAsAlpha) At(x, y int) color.Color {
	return color.Alpha{A: g.GrayAt(x, y).Y}
}

func alphaFromGray(g *image.Gray) image.Image {
	return grayAsAlpha{g}
}
