package canvas

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rect is an axis-aligned bounding box with non-negative dimensions.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func rectFromDrag(from, to Point) Rect {
	return Rect{
		Left:   math.Min(from.X, to.X),
		Top:    math.Min(from.Y, to.Y),
		Width:  math.Abs(to.X - from.X),
		Height: math.Abs(to.Y - from.Y),
	}
}

func (r Rect) contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Left+r.Width && p.Y >= r.Top && p.Y <= r.Top+r.Height
}

// hit slop for thin strokes so a click near a line still erases it
const strokeSlop = 3.0

// pathString serializes points as a vector path description.
func pathString(points []Point) string {
	if len(points) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "M %g %g", points[0].X, points[0].Y)
	for _, p := range points[1:] {
		fmt.Fprintf(&b, " L %g %g", p.X, p.Y)
	}
	return b.String()
}

// parsePath is the inverse of pathString; malformed tokens are skipped.
func parsePath(path string) []Point {
	fields := strings.Fields(path)
	var out []Point
	for i := 0; i+2 < len(fields); i += 3 {
		if fields[i] != "M" && fields[i] != "L" {
			continue
		}
		x, errX := strconv.ParseFloat(fields[i+1], 64)
		y, errY := strconv.ParseFloat(fields[i+2], 64)
		if errX != nil || errY != nil {
			continue
		}
		out = append(out, Point{X: x, Y: y})
	}
	return out
}

func pathBounds(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{Left: minX, Top: minY, Width: maxX - minX, Height: maxY - minY}
}

func segmentDistance(p, a, b Point) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	apx, apy := p.X-a.X, p.Y-a.Y
	lenSq := abx*abx + aby*aby
	t := 0.0
	if lenSq > 0 {
		t = math.Max(0, math.Min(1, (apx*abx+apy*aby)/lenSq))
	}
	dx, dy := p.X-(a.X+t*abx), p.Y-(a.Y+t*aby)
	return math.Hypot(dx, dy)
}

func pathHit(p Point, points []Point, width float64) bool {
	slop := width/2 + strokeSlop
	if len(points) == 1 {
		return math.Hypot(p.X-points[0].X, p.Y-points[0].Y) <= slop
	}
	for i := 1; i < len(points); i++ {
		if segmentDistance(p, points[i-1], points[i]) <= slop {
			return true
		}
	}
	return false
}

// ellipseHit treats the circle shape as the ellipse inscribed in its
// bounding drag box.
func ellipseHit(p Point, box Rect) bool {
	rx, ry := box.Width/2, box.Height/2
	if rx <= 0 || ry <= 0 {
		return false
	}
	cx, cy := box.Left+rx, box.Top+ry
	nx, ny := (p.X-cx)/rx, (p.Y-cy)/ry
	return nx*nx+ny*ny <= 1
}

// triangleHit tests against the isosceles triangle inscribed in the box:
// apex at top-center, base along the bottom edge.
func triangleHit(p Point, box Rect) bool {
	a := Point{X: box.Left + box.Width/2, Y: box.Top}
	b := Point{X: box.Left, Y: box.Top + box.Height}
	c := Point{X: box.Left + box.Width, Y: box.Top + box.Height}
	d1 := cross(p, a, b)
	d2 := cross(p, b, c)
	d3 := cross(p, c, a)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

func cross(p, a, b Point) float64 {
	return (a.X-b.X)*(p.Y-b.Y) - (a.Y-b.Y)*(p.X-b.X)
}
