package enhance

import (
	"image"
	"math"
)

const bins = 256

// CLAHE applies contrast-limited adaptive histogram equalization. The image
// is split into a grid×grid set of tiles, each tile histogram is clipped at
// clipLimit times the uniform bin height with the excess spread evenly, and
// pixels are mapped by bilinear interpolation between the four nearest tile
// lookup tables.
func CLAHE(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	if grid < 1 {
		grid = 1
	}
	tilesX, tilesY := min(grid, w), min(grid, h)

	luts := make([][bins]uint8, tilesX*tilesY)
	for ty := range tilesY {
		y0, y1 := ty*h/tilesY, (ty+1)*h/tilesY
		for tx := range tilesX {
			x0, x1 := tx*w/tilesX, (tx+1)*w/tilesX
			luts[ty*tilesX+tx] = tileLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	tileW := float64(w) / float64(tilesX)
	tileH := float64(h) / float64(tilesY)
	for y := range h {
		fy := (float64(y)+0.5)/tileH - 0.5
		ty0 := int(math.Floor(fy))
		wy := fy - float64(ty0)
		ty1 := ty0 + 1
		ty0, ty1 = clampTile(ty0, tilesY), clampTile(ty1, tilesY)
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := range w {
			fx := (float64(x)+0.5)/tileW - 0.5
			tx0 := int(math.Floor(fx))
			wx := fx - float64(tx0)
			tx1 := tx0 + 1
			tx0, tx1 = clampTile(tx0, tilesX), clampTile(tx1, tilesX)

			v := row[x]
			top := (1-wx)*float64(luts[ty0*tilesX+tx0][v]) + wx*float64(luts[ty0*tilesX+tx1][v])
			bot := (1-wx)*float64(luts[ty1*tilesX+tx0][v]) + wx*float64(luts[ty1*tilesX+tx1][v])
			out.Pix[y*out.Stride+x] = saturate((1-wy)*top + wy*bot)
		}
	}
	return out
}

func clampTile(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// tileLUT builds the equalization table for the tile [x0,x1)×[y0,y1).
func tileLUT(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [bins]uint8 {
	var hist [bins]int
	for y := y0; y < y1; y++ {
		row := src.Pix[y*src.Stride:]
		for x := x0; x < x1; x++ {
			hist[row[x]]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	if clipLimit > 0 {
		limit := max(int(clipLimit*float64(area)/bins), 1)
		excess := 0
		for i := range hist {
			if hist[i] > limit {
				excess += hist[i] - limit
				hist[i] = limit
			}
		}
		inc, residual := excess/bins, excess%bins
		for i := range hist {
			hist[i] += inc
		}
		if residual > 0 {
			step := max(bins/residual, 1)
			for i := 0; i < bins && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}

	var lut [bins]uint8
	scale := float64(bins-1) / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = saturate(float64(sum) * scale)
	}
	return lut
}
