package enhance

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int, lo, hi uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	span := int(hi) - int(lo)
	for y := range h {
		for x := range w {
			v := uint8(int(lo) + span*x/(w-1))
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func grayRange(g *image.Gray) (uint8, uint8) {
	lo, hi := uint8(255), uint8(0)
	for _, v := range g.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func TestEnhanceDoesNotMutateInput(t *testing.T) {
	src := gradient(64, 48, 90, 160)
	before := append([]uint8(nil), src.Pix...)

	out := Enhance(src, DefaultOptions())

	require.NotNil(t, out)
	assert.Equal(t, before, src.Pix)
	assert.Equal(t, image.Rect(0, 0, 64, 48), out.Bounds())
}

func TestEnhanceUniformImageStaysUniform(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	out := Enhance(src, DefaultOptions())
	lo, hi := grayRange(out)
	assert.Equal(t, lo, hi)
}

func TestEnhanceEmptyImage(t *testing.T) {
	out := Enhance(image.NewRGBA(image.Rect(0, 0, 0, 0)), DefaultOptions())
	assert.True(t, out.Bounds().Empty())
	assert.True(t, Enhance(nil, DefaultOptions()).Bounds().Empty())
}

func TestToGrayOffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 14, 12))
	src.Set(10, 10, color.RGBA{255, 255, 255, 255})
	g := ToGray(src)
	assert.Equal(t, image.Rect(0, 0, 4, 2), g.Bounds())
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), g.GrayAt(1, 0).Y)
}

func TestCLAHEStretchesLowContrast(t *testing.T) {
	g := ToGray(gradient(256, 64, 100, 140))
	inLo, inHi := grayRange(g)
	require.Equal(t, 40, int(inHi)-int(inLo))

	// A high clip limit behaves like plain per-tile equalization.
	out := CLAHE(g, 100, 4)
	lo, hi := grayRange(out)
	assert.Greater(t, int(hi)-int(lo), 100)
}

func TestCLAHEKeepsBlackAndWhite(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			if (x/8+y/8)%2 == 0 {
				src.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	out := CLAHE(src, 2.0, 8)
	assert.Greater(t, out.GrayAt(0, 0).Y, uint8(200))
	assert.Less(t, out.GrayAt(8, 0).Y, uint8(60))
}

func TestUnsharpMaskIdentityWhenDisabled(t *testing.T) {
	g := ToGray(gradient(16, 16, 0, 255))
	out := UnsharpMask(g, 0, 0.6)
	assert.Equal(t, g.Pix, out.Pix)
}

func TestUnsharpMaskIncreasesEdgeContrast(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 20, 4))
	for y := range 4 {
		for x := 10; x < 20; x++ {
			src.SetGray(x, y, color.Gray{Y: 180})
		}
		for x := range 10 {
			src.SetGray(x, y, color.Gray{Y: 60})
		}
	}
	out := UnsharpMask(src, 1.0, 0.6)
	assert.Less(t, out.GrayAt(9, 1).Y, uint8(60))
	assert.Greater(t, out.GrayAt(10, 1).Y, uint8(180))
}
