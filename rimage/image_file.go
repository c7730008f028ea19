package rimage

import (
	"bufio"
	"image"
	// register gif.
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.viam.com/utils"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ErrEmptyImage is returned when a decoded image has no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// IsEmpty reports whether img is nil or has zero area.
func IsEmpty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}

// ReadImageFromFile decodes the image stored at path. Every format registered with the image
// package is accepted: png, jpeg, gif, bmp, tiff, ppm and qoi.
func ReadImageFromFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %q", path)
	}
	if IsEmpty(img) {
		return nil, errors.Wrapf(ErrEmptyImage, "%q", path)
	}
	return img, nil
}

// ReadImageConfig returns the dimensions of the image stored at path without decoding its pixels.
func ReadImageConfig(path string) (image.Config, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return image.Config{}, errors.Wrapf(err, "cannot decode %q", path)
	}
	return cfg, nil
}

// WriteImageToFile encodes img to path, choosing the format from the file extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode(f, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		return bmp.Encode(f, img)
	case ".tif", ".tiff":
		return tiff.Encode(f, img, nil)
	case ".ppm":
		return ppm.Encode(f, img)
	case ".qoi":
		return qoi.Encode(f, img)
	default:
		return errors.Errorf("unsupported image extension for %q", path)
	}
}
