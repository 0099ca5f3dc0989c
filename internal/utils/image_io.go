package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

// SupportedImageExtensions lists supported file extensions for loading and saving.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// NormalizeExtension lowercases ext and ensures a leading dot. It returns
// false when the extension is not one we can encode.
func NormalizeExtension(ext string) (string, bool) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return "", false
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext, IsSupportedImage("x" + ext)
}

// ImageMetadata captures lightweight file and pixel information.
type ImageMetadata struct {
	Path      string
	Format    string
	SizeBytes int64
	Width     int
	Height    int
}

// LoadImage opens and decodes an image file, returning the image and metadata.
func LoadImage(path string) (image.Image, ImageMetadata, error) {
	if path == "" {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		err := &ImageProcessingError{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
		return nil, ImageMetadata{}, err
	}

	f, err := os.Open(path) //nolint:gosec // G304: reading user-provided image path is expected
	if err != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: err}
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: err}
	}

	img, format, err := DecodeImage(f)
	if err != nil {
		return nil, ImageMetadata{}, err
	}

	b := img.Bounds()
	meta := ImageMetadata{
		Path:      path,
		Format:    format,
		SizeBytes: fi.Size(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
	return img, meta, nil
}

// DecodeImage decodes any registered image format from r. An image with
// empty bounds is reported as a decode failure.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: err}
	}
	if img.Bounds().Empty() {
		return nil, format, &ImageProcessingError{Operation: "decode", Err: errors.New("image has no pixels")}
	}
	return img, format, nil
}

// DecodeImageBytes is DecodeImage over an in-memory buffer.
func DecodeImageBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &ImageProcessingError{Operation: "decode", Err: errors.New("empty image data")}
	}
	img, _, err := DecodeImage(bytes.NewReader(data))
	return img, err
}

// EncodeImage writes img to w in the format implied by ext (".png", ".jpg", ...).
func EncodeImage(w io.Writer, img image.Image, ext string) error {
	norm, ok := NormalizeExtension(ext)
	if !ok {
		return &ImageProcessingError{Operation: "encode", Err: fmt.Errorf("unsupported format: %s", ext)}
	}
	format, err := imaging.FormatFromExtension(norm)
	if err != nil {
		return &ImageProcessingError{Operation: "encode", Err: err}
	}
	if err := imaging.Encode(w, img, format, imaging.JPEGQuality(95)); err != nil {
		return &ImageProcessingError{Operation: "encode", Err: err}
	}
	return nil
}
