package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common frame sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
)

// Placement positions one QR code on a canvas.
type Placement struct {
	Content string
	X, Y    int
	Size    int
	// Damaged wipes everything but the finder patterns, leaving a symbol
	// that can be located but not decoded.
	Damaged bool
}

// GenerateQR renders content as a QR symbol of size×size pixels, quiet zone
// included.
func GenerateQR(content string, size int) (*image.RGBA, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, err
	}
	w, h := matrix.GetWidth(), matrix.GetHeight()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			c := color.RGBA{255, 255, 255, 255}
			if matrix.Get(x, y) {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

// QRImage is GenerateQR for tests.
func QRImage(t *testing.T, content string, size int) *image.RGBA {
	t.Helper()
	img, err := GenerateQR(content, size)
	require.NoError(t, err, "Failed to encode QR %q", content)
	return img
}

// QRCanvas draws every placement on a white canvas of the given size.
func QRCanvas(t *testing.T, size ImageSize, placements ...Placement) *image.RGBA {
	t.Helper()
	canvas := CreateTestImage(size.Width, size.Height, color.White)
	for _, p := range placements {
		code := QRImage(t, p.Content, p.Size)
		if p.Damaged {
			DamageQR(code)
		}
		r := image.Rect(p.X, p.Y, p.X+code.Bounds().Dx(), p.Y+code.Bounds().Dy())
		draw.Draw(canvas, r, code, image.Point{}, draw.Src)
	}
	return canvas
}

// DamageQR paints the data area, format and timing modules of a rendered
// symbol white in place. The three finder patterns are kept.
func DamageQR(img *image.RGBA) {
	b := img.Bounds()
	symbol := image.Rectangle{Min: b.Max, Max: b.Min}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y).R < 128 {
				symbol = symbol.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	if symbol.Empty() {
		return
	}

	// The top-left finder starts the first dark row and is 7 modules wide.
	run := 0
	for x := symbol.Min.X; x < symbol.Max.X && img.RGBAAt(x, symbol.Min.Y).R < 128; x++ {
		run++
	}
	finder := run
	finders := []image.Rectangle{
		image.Rect(symbol.Min.X, symbol.Min.Y, symbol.Min.X+finder, symbol.Min.Y+finder),
		image.Rect(symbol.Max.X-finder, symbol.Min.Y, symbol.Max.X, symbol.Min.Y+finder),
		image.Rect(symbol.Min.X, symbol.Max.Y-finder, symbol.Min.X+finder, symbol.Max.Y),
	}
	white := color.RGBA{255, 255, 255, 255}
	for y := symbol.Min.Y; y < symbol.Max.Y; y++ {
		for x := symbol.Min.X; x < symbol.Max.X; x++ {
			pt := image.Pt(x, y)
			if !pt.In(finders[0]) && !pt.In(finders[1]) && !pt.In(finders[2]) {
				img.SetRGBA(x, y, white)
			}
		}
	}
}

// CreateTestImage creates a solid image with the specified dimensions and color.
func CreateTestImage(width, height int, background color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	return img
}

// SaveImage saves an image as PNG to the specified path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "encode %s", path)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec // G304: test fixture path
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err, "decode %s", path)
	return img
}
