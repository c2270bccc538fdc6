package viz

import (
	"math"
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		for j := range c.Grid[i] {
			c.Grid[i][j] = 0x2800 // Empty braille char
		}
	}
	return c
}

// Set lights the sub-pixel (x, y). The canvas is Width*2 by Height*4
// sub-pixels.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}

	col := x / 2
	row := y / 4
	if col >= c.Width || row >= c.Height {
		return
	}

	subX := x % 2
	subY := y % 4

	c.Grid[row][col] |= rune(pixelMap[subY][subX])
}

// Clear resets the canvas
func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = 0x2800
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// Bounds is a data-space rectangle mapped onto the canvas.
type Bounds struct {
	MinX, MaxX, MinY, MaxY float64
}

// FitBounds returns the smallest rectangle holding every point, padded by 5%
// on each side. Degenerate extents are widened to one unit.
func FitBounds(xs, ys []float64) Bounds {
	b := Bounds{MinX: math.Inf(1), MaxX: math.Inf(-1), MinY: math.Inf(1), MaxY: math.Inf(-1)}
	for i := range xs {
		if i >= len(ys) || !finite(xs[i], ys[i]) {
			continue
		}
		b.MinX, b.MaxX = math.Min(b.MinX, xs[i]), math.Max(b.MaxX, xs[i])
		b.MinY, b.MaxY = math.Min(b.MinY, ys[i]), math.Max(b.MaxY, ys[i])
	}
	if math.IsInf(b.MinX, 1) {
		return Bounds{MinX: -1, MaxX: 1, MinY: -1, MaxY: 1}
	}
	pad := func(lo, hi float64) (float64, float64) {
		if hi-lo < 1e-12 {
			return lo - 0.5, hi + 0.5
		}
		d := 0.05 * (hi - lo)
		return lo - d, hi + d
	}
	b.MinX, b.MaxX = pad(b.MinX, b.MaxX)
	b.MinY, b.MaxY = pad(b.MinY, b.MaxY)
	return b
}

// Project maps a data point to sub-pixel coordinates, y growing upwards.
func (c *Canvas) Project(b Bounds, x, y float64) (int, int) {
	w, h := float64(c.Width*2-1), float64(c.Height*4-1)
	px := (x - b.MinX) / (b.MaxX - b.MinX) * w
	py := h - (y-b.MinY)/(b.MaxY-b.MinY)*h
	return int(math.Round(px)), int(math.Round(py))
}

// Polyline draws consecutive points of (xs[i], ys[i]) joined by lines.
// Non-finite points break the line.
func (c *Canvas) Polyline(b Bounds, xs, ys []float64) {
	for i := range xs {
		if i >= len(ys) {
			return
		}
		if !finite(xs[i], ys[i]) {
			continue
		}
		x1, y1 := c.Project(b, xs[i], ys[i])
		if i == 0 || !finite(xs[i-1], ys[i-1]) {
			c.Set(x1, y1)
			continue
		}
		x0, y0 := c.Project(b, xs[i-1], ys[i-1])
		c.DrawLine(x0, y0, x1, y1)
	}
}

// Marker draws a small cross centred on a data point.
func (c *Canvas) Marker(b Bounds, x, y float64) {
	px, py := c.Project(b, x, y)
	for d := -2; d <= 2; d++ {
		c.Set(px+d, py)
		c.Set(px, py+d)
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
