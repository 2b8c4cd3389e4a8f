// Package export renders bake results as standalone SVG files.
package export

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/san-kum/springmagic/internal/viz"
)

const background = "#0a0a0a"

// CanvasToSVG draws every lit braille dot of the canvas as a circle.
func CanvasToSVG(canvas *viz.Canvas, scale float64) string {
	if canvas == nil {
		return ""
	}
	if scale <= 0 {
		scale = 4
	}

	width := float64(canvas.Width) * scale * 2
	height := float64(canvas.Height) * scale * 4

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
<g fill="#00ff00">
`, width, height, width, height, background)

	bits := [4][2]int{
		{0x01, 0x08},
		{0x02, 0x10},
		{0x04, 0x20},
		{0x40, 0x80},
	}
	radius := scale * 0.4

	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			r := canvas.Grid[row][col]
			if r < 0x2800 {
				continue
			}
			pattern := int(r - 0x2800)
			baseX := float64(col) * scale * 2
			baseY := float64(row) * scale * 4
			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					if pattern&bits[dy][dx] == 0 {
						continue
					}
					cx := baseX + float64(dx)*scale + scale/2
					cy := baseY + float64(dy)*scale + scale/2
					fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, radius)
				}
			}
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// ChannelToSVG draws a key channel as a polyline. Frames run left to right.
// Fewer than two samples, or mismatched slices, give an empty string.
func ChannelToSVG(frames, values []float64, width, height int, stroke string) string {
	if len(frames) < 2 || len(frames) != len(values) {
		return ""
	}
	if stroke == "" {
		stroke = "#00ffff"
	}

	minX, maxX := frames[0], frames[0]
	minY, maxY := values[0], values[0]
	for i := range frames {
		minX, maxX = math.Min(minX, frames[i]), math.Max(maxX, frames[i])
		minY, maxY = math.Min(minY, values[i]), math.Max(maxY, values[i])
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, background, stroke)

	for i := range frames {
		x := (frames[i] - minX) / rangeX * float64(width)
		y := float64(height) - (values[i]-minY)/rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// WriteFile writes an SVG document, refusing empty ones.
func WriteFile(path, svg string) error {
	if svg == "" {
		return fmt.Errorf("export %s: nothing to draw", path)
	}
	return os.WriteFile(path, []byte(svg), 0644)
}

func Write(w io.Writer, svg string) error {
	_, err := io.WriteString(w, svg)
	return err
}
