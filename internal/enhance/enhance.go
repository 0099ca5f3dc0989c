// Package enhance prepares frames for QR detection. The output is only ever
// used as detector input; callers crop and save from the original frame.
package enhance

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Options controls the contrast and sharpening passes.
type Options struct {
	// ClipLimit bounds each tile histogram bin relative to a uniform histogram.
	ClipLimit float64
	// TileGrid is the number of tiles along each axis.
	TileGrid int
	// BlurSigma is the Gaussian sigma used to build the unsharp mask.
	BlurSigma float64
	// Amount is the weight of the mask: out = (1+Amount)*in - Amount*blur.
	Amount float64
}

// DefaultOptions returns the settings tuned for printed and on-screen codes.
func DefaultOptions() Options {
	return Options{
		ClipLimit: 2.0,
		TileGrid:  8,
		BlurSigma: 1.0,
		Amount:    0.6,
	}
}

// Enhance converts img to intensity, equalizes local contrast and sharpens
// module edges. img is not modified.
func Enhance(img image.Image, opts Options) *image.Gray {
	if img == nil || img.Bounds().Empty() {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	gray := ToGray(img)
	eq := CLAHE(gray, opts.ClipLimit, opts.TileGrid)
	return UnsharpMask(eq, opts.BlurSigma, opts.Amount)
}

// ToGray returns a single-channel copy of img with origin-based bounds.
func ToGray(img image.Image) *image.Gray {
	g := imaging.Grayscale(img)
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}

// UnsharpMask subtracts a Gaussian-blurred copy to emphasize edges.
func UnsharpMask(src *image.Gray, sigma, amount float64) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	if sigma <= 0 || amount == 0 {
		copy(out.Pix, src.Pix)
		return out
	}
	blur := imaging.Blur(src, sigma)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := float64(src.Pix[y*src.Stride+x])
			bv := float64(blur.Pix[y*blur.Stride+x*4])
			out.Pix[y*out.Stride+x] = saturate((1+amount)*v - amount*bv)
		}
	}
	return out
}

func saturate(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
