// Package capture writes presented frames to image files.
package capture

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

// ErrUnknownFormat is returned for a file extension with no encoder.
var ErrUnknownFormat = errors.New("capture: unknown image format")

type encoder func(io.Writer, image.Image) error

var encoders = map[string]encoder{
	".png":  png.Encode,
	".webp": encodeWebP,
	".bmp":  bmp.Encode,
	".tga":  tga.Encode,
}

// encodeWebP writes a lossless WebP.
func encodeWebP(w io.Writer, img image.Image) error {
	return nativewebp.Encode(w, img, nil)
}

// Formats lists the supported file extensions.
func Formats() []string {
	return []string{".png", ".webp", ".bmp", ".tga"}
}

// Encode writes img to w in the format named by ext, e.g. ".png".
func Encode(w io.Writer, ext string, img image.Image) error {
	enc, ok := encoders[strings.ToLower(ext)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	return enc(w, img)
}

// Save writes img to path, choosing the encoder from the extension.
func Save(path string, img image.Image) (err error) {
	ext := filepath.Ext(path)
	if _, ok := encoders[strings.ToLower(ext)]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := Encode(f, ext, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
