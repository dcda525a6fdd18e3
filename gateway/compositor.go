package gateway

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sdgateway/imageops"
)

// ResizeAll stretches every image to width x height. Zero dimensions mean
// "keep the engine size".
func ResizeAll(images []image.Image, width, height int) ([]image.Image, error) {
	if width == 0 && height == 0 {
		return images, nil
	}
	out := make([]image.Image, len(images))
	for i, img := range images {
		resized, err := imageops.Resize(img, width, height)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDimension, err)
		}
		out[i] = resized
	}
	return out, nil
}

// Composite applies policy to every image.
func Composite(images []image.Image, policy CompositePolicy, mask *image.Gray) ([]image.Image, error) {
	if policy != CompositeMaskOut {
		return images, nil
	}
	if mask == nil {
		return nil, fmt.Errorf("%w: mask-out without a mask", ErrMissingMask)
	}
	out := make([]image.Image, len(images))
	for i, img := range images {
		masked, err := imageops.MaskOut(img, mask)
		if err != nil {
			return nil, err
		}
		out[i] = masked
	}
	return out, nil
}

// PersistBatch writes images to dir as {ts}_{i}.png and returns their
// absolute paths in order. The directory is created if needed. When a
// name is already taken the file gets a short random suffix instead of
// overwriting it.
func PersistBatch(dir string, ts int64, images []image.Image) ([]string, error) {
	abs, err := ensureDir(dir)
	if err != nil {
		return nil, err
	}

	prefix := strconv.FormatInt(ts, 10)
	paths := make([]string, len(images))

	var g errgroup.Group
	for i, img := range images {
		g.Go(func() error {
			p, err := writeUnique(abs, prefix+"_"+strconv.Itoa(i), img)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// PersistSingle writes img to dir as {ts}.png.
func PersistSingle(dir string, ts int64, img image.Image) (string, error) {
	abs, err := ensureDir(dir)
	if err != nil {
		return "", err
	}
	return writeUnique(abs, strconv.FormatInt(ts, 10), img)
}

func ensureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPersist, dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrPersist, abs, err)
	}
	return abs, nil
}

func writeUnique(dir, stem string, img image.Image) (string, error) {
	path := filepath.Join(dir, stem+".png")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		path = filepath.Join(dir, stem+"_"+uuid.NewString()[:8]+".png")
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if err := imageops.EncodePNG(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: encode %s: %w", ErrPersist, path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %w", ErrPersist, path, err)
	}
	return path, nil
}
