package utils

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Box is the axis-aligned extent of a point set. Max values are inclusive
// (they are the largest coordinates present), matching how polygon corners
// are reported by detectors.
type Box struct {
	MinX int
	MinY int
	MaxX int
	MaxY int
}

// BoundingBox returns the axis-aligned bounding box for a set of points.
func BoundingBox(pts []image.Point) Box {
	if len(pts) == 0 {
		return Box{}
	}
	b := Box{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		if p.X < b.MinX {
			b.MinX = p.X
		}
		if p.Y < b.MinY {
			b.MinY = p.Y
		}
		if p.X > b.MaxX {
			b.MaxX = p.X
		}
		if p.Y > b.MaxY {
			b.MaxY = p.Y
		}
	}
	return b
}

// Width returns MaxX-MinX.
func (b Box) Width() int { return b.MaxX - b.MinX }

// Height returns MaxY-MinY.
func (b Box) Height() int { return b.MaxY - b.MinY }

// Degenerate reports whether the box has zero area.
func (b Box) Degenerate() bool { return b.Width() <= 0 || b.Height() <= 0 }

// PaddedRect expands the box by pad pixels on every side and clamps it to
// bounds. The result may be empty when the box lies outside bounds.
func (b Box) PaddedRect(pad int, bounds image.Rectangle) image.Rectangle {
	if pad < 0 {
		pad = 0
	}
	r := image.Rect(b.MinX-pad, b.MinY-pad, b.MaxX+pad, b.MaxY+pad)
	return r.Intersect(bounds)
}

// CropImageRect crops an image to the given rectangle. The returned image
// is a copy whose bounds start at the origin.
func CropImageRect(img image.Image, rect image.Rectangle) image.Image {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return imaging.New(0, 0, color.Transparent)
	}
	return imaging.Crop(img, rect)
}

// FlipHorizontal mirrors the image left to right.
func FlipHorizontal(img image.Image) image.Image { return imaging.FlipH(img) }

// CloneRGBA copies img into a new RGBA image whose bounds start at the origin.
func CloneRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// DrawRect outlines rect in dst. The stroke lies inside rect.
func DrawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	t := min(max(thickness, 1), (min(rect.Dx(), rect.Dy())+1)/2)
	src := image.NewUniform(col)
	for _, strip := range []image.Rectangle{
		{rect.Min, image.Pt(rect.Max.X, rect.Min.Y+t)},
		{image.Pt(rect.Min.X, rect.Max.Y-t), rect.Max},
		{rect.Min, image.Pt(rect.Min.X+t, rect.Max.Y)},
		{image.Pt(rect.Max.X-t, rect.Min.Y), rect.Max},
	} {
		draw.Draw(dst, strip, src, image.Point{}, draw.Over)
	}
}

// DrawPolygon draws connected line segments and closes the polygon.
func DrawPolygon(dst *image.RGBA, pts []image.Point, col color.Color, thickness int) {
	if len(pts) < 2 {
		return
	}
	for i := range pts {
		drawLine(dst, pts[i], pts[(i+1)%len(pts)], col, thickness)
	}
}

// DrawDisc fills a circle of the given radius centered on c.
func DrawDisc(dst *image.RGBA, c image.Point, radius int, col color.Color) {
	if radius < 1 {
		radius = 1
	}
	r2 := radius * radius
	for y := c.Y - radius; y <= c.Y+radius; y++ {
		for x := c.X - radius; x <= c.X+radius; x++ {
			dx, dy := x-c.X, y-c.Y
			if dx*dx+dy*dy > r2 {
				continue
			}
			if image.Pt(x, y).In(dst.Bounds()) {
				dst.Set(x, y, col)
			}
		}
	}
}

// DrawLabel writes text with its baseline-left corner at p using a fixed 7x13 face.
func DrawLabel(dst *image.RGBA, p image.Point, text string, col color.Color) {
	if text == "" {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(p.X, p.Y),
	}
	d.DrawString(text)
}

// drawLine walks from a to b with Bresenham's algorithm, stamping a square
// pen of the given thickness at every step.
func drawLine(dst *image.RGBA, a, b image.Point, col color.Color, thickness int) {
	pen := max(thickness, 1)
	off := (pen - 1) / 2
	src := image.NewUniform(col)
	stamp := func(p image.Point) {
		r := image.Rect(p.X-off, p.Y-off, p.X-off+pen, p.Y-off+pen).Intersect(dst.Bounds())
		if !r.Empty() {
			draw.Draw(dst, r, src, image.Point{}, draw.Over)
		}
	}

	d := b.Sub(a)
	step := image.Pt(sign(d.X), sign(d.Y))
	dx, dy := abs(d.X), -abs(d.Y)
	acc := dx + dy
	for p := a; ; {
		stamp(p)
		if p == b {
			return
		}
		e2 := 2 * acc
		if e2 >= dy {
			acc += dy
			p.X += step.X
		}
		if e2 <= dx {
			acc += dx
			p.Y += step.Y
		}
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
