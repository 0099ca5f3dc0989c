package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

type markKind int

const (
	markNew markKind = iota
	markDuplicate
	markFailed
)

type marker struct {
	kind    markKind
	polygon []image.Point
	box     image.Rectangle
	label   string
}

const maxLabelRunes = 32

// renderMarkers draws all markers for one frame on a copy of frame.
func (p *Pipeline) renderMarkers(frame image.Image, markers []marker) *image.RGBA {
	dst := utils.CloneRGBA(frame)
	for _, m := range markers {
		switch m.kind {
		case markNew:
			utils.DrawPolygon(dst, m.polygon, p.cfg.NewColor, 3)
			utils.DrawLabel(dst, labelOrigin(m.box), truncate(m.label, maxLabelRunes), p.cfg.NewColor)
		case markDuplicate:
			utils.DrawPolygon(dst, m.polygon, p.cfg.DuplicateColor, 3)
			for _, pt := range m.polygon {
				utils.DrawDisc(dst, pt, 5, p.cfg.DuplicateColor)
			}
		case markFailed:
			utils.DrawRect(dst, m.box, p.cfg.FailedColor, 2)
		}
	}
	return dst
}

// labelOrigin places text just above the box, or inside it at the top edge.
func labelOrigin(box image.Rectangle) image.Point {
	y := box.Min.Y - 4
	if y < 13 {
		y = box.Min.Y + 13
	}
	return image.Pt(box.Min.X, y)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}
