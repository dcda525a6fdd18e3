package imageops

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// halfMask is white on the left half and black on the right half.
func halfMask(w, h int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			m.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return m
}

func TestResize(t *testing.T) {
	img := solid(100, 50, color.NRGBA{R: 200, A: 255})

	out, err := Resize(img, 64, 128)
	if err != nil {
		t.Fatalf("Resize() error: %v", err)
	}
	if w, h := Size(out); w != 64 || h != 128 {
		t.Errorf("Size() = %dx%d, want 64x128", w, h)
	}
}

func TestResize_SameSizeIsIdentity(t *testing.T) {
	img := solid(32, 32, color.White)
	out, err := Resize(img, 32, 32)
	if err != nil {
		t.Fatalf("Resize() error: %v", err)
	}
	if out != image.Image(img) {
		t.Error("Resize() to the same size should return the input")
	}
}

func TestResize_InvalidDimensions(t *testing.T) {
	_, err := Resize(solid(4, 4, color.White), 0, 10)
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("Resize(0, 10) error = %v, want ErrInvalidDimensions", err)
	}
}

func TestMaskOut(t *testing.T) {
	img := solid(8, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	out, err := MaskOut(img, halfMask(8, 4))
	if err != nil {
		t.Fatalf("MaskOut() error: %v", err)
	}

	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			got := out.NRGBAAt(x, y)
			if x < 4 {
				if got != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) {
					t.Fatalf("masked pixel (%d,%d) = %v, want source colour", x, y, got)
				}
			} else if got.A != 0 {
				t.Fatalf("unmasked pixel (%d,%d) = %v, want transparent", x, y, got)
			}
		}
	}
}

func TestMaskOut_PartialMask(t *testing.T) {
	img := solid(2, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	mask := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range mask.Pix {
		mask.Pix[i] = 128
	}

	out, err := MaskOut(img, mask)
	if err != nil {
		t.Fatalf("MaskOut() error: %v", err)
	}

	want := color.NRGBA{R: 100, G: 50, B: 25, A: 128}
	got := out.NRGBAAt(1, 1)
	near := func(a, b uint8) bool { return a+1 >= b && b+1 >= a }
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) || !near(got.A, want.A) {
		t.Errorf("half-masked pixel = %v, want about %v", got, want)
	}
}

func TestMaskOut_ScalesMask(t *testing.T) {
	img := solid(16, 16, color.NRGBA{G: 255, A: 255})
	full := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range full.Pix {
		full.Pix[i] = 255
	}

	out, err := MaskOut(img, full)
	if err != nil {
		t.Fatalf("MaskOut() error: %v", err)
	}
	if w, h := Size(out); w != 16 || h != 16 {
		t.Fatalf("Size() = %dx%d, want 16x16", w, h)
	}
	if got := out.NRGBAAt(15, 15); got.A != 255 || got.G != 255 {
		t.Errorf("corner pixel = %v, want opaque green", got)
	}
}

func TestToRGB_DropsAlpha(t *testing.T) {
	img := solid(2, 2, color.NRGBA{R: 100, G: 50, B: 25, A: 0x80})

	out := ToRGB(img)
	got := out.NRGBAAt(1, 1)
	if got.A != 0xff {
		t.Errorf("alpha = %d, want 255", got.A)
	}
	if got.R < 98 || got.R > 102 {
		t.Errorf("red = %d, want ~100", got.R)
	}
}

func TestToGray(t *testing.T) {
	g := ToGray(solid(3, 3, color.White))
	if g.GrayAt(1, 1).Y != 255 {
		t.Errorf("white converted to %d, want 255", g.GrayAt(1, 1).Y)
	}
	g = ToGray(solid(3, 3, color.Black))
	if g.GrayAt(1, 1).Y != 0 {
		t.Errorf("black converted to %d, want 0", g.GrayAt(1, 1).Y)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(12, 7, color.White)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if w, h := Size(img); w != 12 || h != 7 {
		t.Errorf("Size() = %dx%d, want 12x7", w, h)
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open() error = %v, want fs.ErrNotExist", err)
	}
}

func TestOpen_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Open() error = %v, want ErrInvalidImage", err)
	}
}

func TestBase64(t *testing.T) {
	encoded, err := EncodeBase64PNG(solid(5, 6, color.White))
	if err != nil {
		t.Fatalf("EncodeBase64PNG() error: %v", err)
	}

	for _, input := range []string{encoded, "data:image/png;base64," + encoded} {
		img, err := DecodeBase64(input)
		if err != nil {
			t.Fatalf("DecodeBase64() error: %v", err)
		}
		if w, h := Size(img); w != 5 || h != 6 {
			t.Errorf("Size() = %dx%d, want 5x6", w, h)
		}
	}

	if _, err := DecodeBase64("!!!"); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("DecodeBase64(garbage) error = %v, want ErrInvalidImage", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Decode(nil) error = %v, want ErrEmptyImage", err)
	}
}
