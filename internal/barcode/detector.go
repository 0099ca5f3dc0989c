package barcode

import (
	"context"
	"image"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// Detection is one located code after normalization.
type Detection struct {
	Polygon []image.Point
	Box     utils.Box
	// Text is the trimmed payload; empty unless Decoded.
	Text    string
	Decoded bool
}

// Detector wraps a Backend with multi-to-single fallback and result
// filtering.
type Detector struct {
	backend Backend
	logger  *slog.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithLogger sets the logger used for fallback and failure reports.
func WithLogger(l *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDetector returns a Detector over backend. A nil backend selects the
// gozxing backend with default options.
func NewDetector(backend Backend, opts ...DetectorOption) *Detector {
	if backend == nil {
		backend = NewBackend(Options{})
	}
	d := &Detector{backend: backend, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect returns the usable codes in img in backend order. "Nothing found"
// and "every path failed" both return an empty slice.
func (d *Detector) Detect(ctx context.Context, img image.Image) []Detection {
	if img == nil || img.Bounds().Empty() {
		return nil
	}

	var codes []RawCode
	res := d.backend.DetectMulti(ctx, img)
	switch res.Outcome {
	case OutcomeFound:
		codes = res.Codes
	case OutcomeEmpty:
		return nil
	case OutcomeUnsupported:
		d.logger.Debug("multi-code detection unavailable, trying single-code", "error", res.Err)
		single := d.backend.DetectSingle(ctx, img)
		switch single.Outcome {
		case OutcomeFound:
			codes = single.Codes[:1]
		case OutcomeUnsupported:
			d.logger.Warn("code detection failed", "multi_error", res.Err, "single_error", single.Err)
			return nil
		default:
			return nil
		}
	}

	out := make([]Detection, 0, len(codes))
	for _, c := range codes {
		det, ok := normalize(c)
		if !ok {
			d.logger.Debug("dropping unusable detection", "points", len(c.Polygon), "decoded", c.Decoded)
			continue
		}
		out = append(out, det)
	}
	return out
}

// Contents returns the decoded payloads found in img.
func (d *Detector) Contents(ctx context.Context, img image.Image) []string {
	var out []string
	for _, det := range d.Detect(ctx, img) {
		if det.Decoded {
			out = append(out, det.Text)
		}
	}
	return out
}

// normalize drops repeated points and rejects polygons with fewer than three
// distinct points, zero-area boxes and decoded text that trims to nothing.
func normalize(c RawCode) (Detection, bool) {
	pts := make([]image.Point, 0, len(c.Polygon))
	seen := make(map[image.Point]struct{}, len(c.Polygon))
	for _, p := range c.Polygon {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		pts = append(pts, p)
	}
	if len(pts) < 3 {
		return Detection{}, false
	}
	box := utils.BoundingBox(pts)
	if box.Degenerate() {
		return Detection{}, false
	}
	det := Detection{Polygon: pts, Box: box}
	if c.Decoded {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			return Detection{}, false
		}
		det.Text = text
		det.Decoded = true
	}
	return det, true
}
