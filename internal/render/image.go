// Package render turns pose records into guide images and assembles the
// side-by-side demo strip.
package render

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers "webp" with image.Decode, so imaging.Open reads it too
)

// LoadImage loads a reference image, applying its EXIF orientation.
// JPEG, PNG, GIF and WebP are accepted.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("image: cannot decode %s: %w", path, err)
	}
	return img, nil
}

// DecodeFrame decodes one encoded frame from the decoder stream.
func DecodeFrame(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image: unsupported frame (%d bytes): %w", len(data), err)
	}
	return img, nil
}

// SaveImage writes img in the format named by the path's extension.
// WebP is written lossless; quality applies to JPEG.
func SaveImage(img image.Image, path string, quality int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := webp.Encode(f, img, &webp.Options{Lossless: true}); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case ".png":
		return imaging.Save(img, path)
	case ".jpg", ".jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("image: unsupported output format %q (use .png, .jpg or .webp)", filepath.Ext(path))
	}
}

// EncodePNG writes img as PNG, the encoder's input format.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// EncodeJPEG encodes img for the pose worker.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Aspect returns width / height.
func Aspect(img image.Image) float64 {
	b := img.Bounds()
	if b.Dy() == 0 {
		return 0
	}
	return float64(b.Dx()) / float64(b.Dy())
}

// CanvasSize returns a frame size with the given aspect whose shorter side is
// short pixels. Both sides are even so yuv420p encoders accept them.
func CanvasSize(aspect float64, short int) (int, int) {
	if aspect <= 0 {
		aspect = 1
	}
	var w, h int
	if aspect >= 1 {
		h = short
		w = int(float64(short) * aspect)
	} else {
		w = short
		h = int(float64(short) / aspect)
	}
	return even(w), even(h)
}

func even(n int) int {
	n -= n % 2
	if n < 2 {
		return 2
	}
	return n
}
