package viz

import (
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Braille cells hold 2x4 dots; pixelMap gives the bit of each dot.
//
//	1 4
//	2 5
//	3 6
//	7 8
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

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
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y) in dot coordinates. The canvas is Width*2
// dots wide and Height*4 dots tall.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
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

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Segment is one bone drawn from head to tail.
type Segment struct {
	Head, Tail mgl64.Vec3
}

// PoseCanvas draws bones seen from the front: world X to the right and world
// Z up. The drawing is scaled uniformly to fit the canvas.
func PoseCanvas(segments []Segment, w, h int) *Canvas {
	c := NewCanvas(w, h)
	if len(segments) == 0 {
		return c
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for _, s := range segments {
		for _, p := range []mgl64.Vec3{s.Head, s.Tail} {
			minX, maxX = math.Min(minX, p.X()), math.Max(maxX, p.X())
			minZ, maxZ = math.Min(minZ, p.Z()), math.Max(maxZ, p.Z())
		}
	}
	dotsW, dotsH := float64(w*2-1), float64(h*4-1)
	scale := math.Min(dotsW/math.Max(maxX-minX, 1e-9), dotsH/math.Max(maxZ-minZ, 1e-9))
	offX := (dotsW - (maxX-minX)*scale) / 2
	offZ := (dotsH - (maxZ-minZ)*scale) / 2

	project := func(p mgl64.Vec3) (int, int) {
		x := offX + (p.X()-minX)*scale
		y := dotsH - (offZ + (p.Z()-minZ)*scale)
		return int(math.Round(x)), int(math.Round(y))
	}
	for _, s := range segments {
		x0, y0 := project(s.Head)
		x1, y1 := project(s.Tail)
		c.DrawLine(x0, y0, x1, y1)
	}
	return c
}
