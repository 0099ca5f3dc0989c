package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	multidetector "github.com/makiuchi-d/gozxing/multi/qrcode/detector"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
	"github.com/makiuchi-d/gozxing/qrcode/detector"
)

// Distance in modules from a finder pattern center to the symbol edge.
const finderHalfWidth = 3.5

// GozxingBackend detects QR codes with github.com/makiuchi-d/gozxing.
type GozxingBackend struct {
	opts Options
}

// NewBackend returns the default gozxing-backed implementation.
func NewBackend(opts Options) *GozxingBackend { return &GozxingBackend{opts: opts} }

func (b *GozxingBackend) hints() map[gozxing.DecodeHintType]interface{} {
	hints := make(map[gozxing.DecodeHintType]interface{})
	if b.opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return hints
}

// DetectMulti locates every QR symbol in img and decodes each one. Symbols
// that are located but fail to decode are reported without text so the
// caller can still track them by position.
func (b *GozxingBackend) DetectMulti(ctx context.Context, img image.Image) Capability {
	if err := ctx.Err(); err != nil {
		return Unsupported(err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Unsupported(fmt.Errorf("binarize frame: %w", err))
	}
	matrix, err := bmp.GetBlackMatrix()
	if err != nil {
		if isNotFound(err) {
			return Empty()
		}
		return Unsupported(fmt.Errorf("black matrix: %w", err))
	}

	hints := b.hints()
	located, err := multidetector.NewMultiDetector(matrix).DetectMulti(hints)
	if err != nil {
		if isNotFound(err) {
			return b.locate(bmp)
		}
		return Unsupported(fmt.Errorf("multi locate: %w", err))
	}

	dec := decoder.NewDecoder()
	codes := make([]RawCode, 0, len(located))
	for _, loc := range located {
		if err := ctx.Err(); err != nil {
			return Unsupported(err)
		}
		points := loc.GetPoints()
		res, err := dec.Decode(loc.GetBits(), hints)
		if err != nil {
			if !isReaderError(err) {
				return Unsupported(fmt.Errorf("multi decode: %w", err))
			}
			codes = append(codes, RawCode{Polygon: symbolCorners(points)})
			continue
		}
		// Mirrored symbols swap bottom-left and top-right.
		if meta, ok := res.GetOther().(*decoder.QRCodeDecoderMetaData); ok {
			meta.ApplyMirroredCorrection(points)
		}
		codes = append(codes, RawCode{
			Polygon: symbolCorners(points),
			Text:    res.GetText(),
			Decoded: true,
		})
	}
	return Found(dropPhantoms(codes)...)
}

// DetectSingle decodes at most one QR symbol.
func (b *GozxingBackend) DetectSingle(ctx context.Context, img image.Image) Capability {
	if err := ctx.Err(); err != nil {
		return Unsupported(err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Unsupported(fmt.Errorf("binarize frame: %w", err))
	}

	r, err := qrcode.NewQRCodeReader().Decode(bmp, b.hints())
	if err != nil {
		if isNotFound(err) {
			return Empty()
		}
		// Located but not decodable: report the position only.
		return b.locate(bmp)
	}
	return Found(RawCode{
		Polygon: symbolCorners(r.GetResultPoints()),
		Text:    r.GetText(),
		Decoded: true,
	})
}

// locate runs the QR detector without decoding.
func (b *GozxingBackend) locate(bmp *gozxing.BinaryBitmap) Capability {
	matrix, err := bmp.GetBlackMatrix()
	if err != nil {
		if isNotFound(err) {
			return Empty()
		}
		return Unsupported(fmt.Errorf("black matrix: %w", err))
	}
	res, err := detector.NewDetector(matrix).Detect(b.hints())
	if err != nil {
		if isNotFound(err) {
			return Empty()
		}
		return Unsupported(fmt.Errorf("locate: %w", err))
	}
	return Found(RawCode{Polygon: symbolCorners(res.GetPoints())})
}

func isNotFound(err error) bool {
	var nf gozxing.NotFoundException
	return errors.As(err, &nf)
}

// isReaderError reports decode failures caused by the symbol itself
// (checksum, format or not found), as opposed to internal errors.
func isReaderError(err error) bool {
	var re gozxing.ReaderException
	return errors.As(err, &re)
}

// dropPhantoms removes undecoded symbols that cover most of another, smaller
// or decoded, symbol. The multi finder may pair finder patterns of two
// neighbouring codes into a third candidate spanning both.
func dropPhantoms(codes []RawCode) []RawCode {
	boxes := make([]image.Rectangle, len(codes))
	for i, c := range codes {
		boxes[i] = polygonBounds(c.Polygon)
	}
	out := make([]RawCode, 0, len(codes))
	for i, c := range codes {
		if c.Decoded || !coversOther(i, codes, boxes) {
			out = append(out, c)
		}
	}
	return out
}

func coversOther(i int, codes []RawCode, boxes []image.Rectangle) bool {
	own := area(boxes[i])
	for j, other := range boxes {
		if j == i || area(other) == 0 {
			continue
		}
		if !codes[j].Decoded && area(other) >= own {
			continue
		}
		if 2*area(boxes[i].Intersect(other)) >= area(other) {
			return true
		}
	}
	return false
}

func polygonBounds(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X, r.Min.Y = min(r.Min.X, p.X), min(r.Min.Y, p.Y)
		r.Max.X, r.Max.Y = max(r.Max.X, p.X), max(r.Max.Y, p.Y)
	}
	return r
}

func area(r image.Rectangle) int { return r.Dx() * r.Dy() }

// symbolCorners turns QR result points (bottom-left, top-left and top-right
// finder centers, optionally followed by an alignment pattern) into the four
// outer corners of the symbol, ordered TL, TR, BR, BL. Inputs with fewer than
// three points are returned as-is.
func symbolCorners(pts []gozxing.ResultPoint) []image.Point {
	if len(pts) < 3 {
		out := make([]image.Point, 0, len(pts))
		for _, p := range pts {
			if p != nil {
				out = append(out, roundPoint(p.GetX(), p.GetY()))
			}
		}
		return out
	}
	bl, tl, tr := pts[0], pts[1], pts[2]
	if bl == nil || tl == nil || tr == nil {
		return nil
	}

	type fpt struct{ x, y float64 }
	centers := []fpt{
		{tl.GetX(), tl.GetY()},
		{tr.GetX(), tr.GetY()},
		{tr.GetX() + bl.GetX() - tl.GetX(), tr.GetY() + bl.GetY() - tl.GetY()},
		{bl.GetX(), bl.GetY()},
	}
	var cx, cy float64
	for _, c := range centers {
		cx += c.x / 4
		cy += c.y / 4
	}

	offset := finderHalfWidth * moduleSize(bl, tl, tr) * math.Sqrt2
	out := make([]image.Point, 0, 4)
	for _, c := range centers {
		dx, dy := c.x-cx, c.y-cy
		n := math.Hypot(dx, dy)
		if n == 0 {
			out = append(out, roundPoint(c.x, c.y))
			continue
		}
		out = append(out, roundPoint(c.x+dx/n*offset, c.y+dy/n*offset))
	}
	return out
}

// moduleSize averages the finder patterns' estimated module size. Points
// without an estimate fall back to the smallest symbol geometry, where
// adjacent finder centers are 14 modules apart.
func moduleSize(bl, tl, tr gozxing.ResultPoint) float64 {
	type estimator interface{ GetEstimatedModuleSize() float64 }
	var sum float64
	n := 0
	for _, p := range []gozxing.ResultPoint{bl, tl, tr} {
		if e, ok := p.(estimator); ok && e.GetEstimatedModuleSize() > 0 {
			sum += e.GetEstimatedModuleSize()
			n++
		}
	}
	if n > 0 {
		return sum / float64(n)
	}
	return math.Hypot(tr.GetX()-tl.GetX(), tr.GetY()-tl.GetY()) / 14
}

func roundPoint(x, y float64) image.Point {
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}
