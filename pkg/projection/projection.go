// Package projection fits world-space zone geometry into the fixed view frame.
package projection

import (
	"math"
	"strconv"
	"strings"

	"github.com/sudorandom/ropt-live/pkg/model"
)

// Frame is the view rectangle in pixels. Geometry is fitted inside it minus
// Padding on every side.
type Frame struct {
	Width, Height, Padding float64
}

var DefaultFrame = Frame{Width: 960, Height: 560, Padding: 32}

type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// UnitBounds is used whenever there is nothing to measure.
var UnitBounds = Bounds{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}

// FixedBounds returns a configured world frame anchored at the origin.
func FixedBounds(width, height float64) Bounds {
	return Bounds{MinX: 0, MinY: 0, MaxX: width, MaxY: height}
}

// ComputeBounds returns the extent of every polygon vertex. An empty zone set
// (or one with no vertices) yields UnitBounds.
func ComputeBounds(zones []model.Zone) Bounds {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	seen := false
	for _, z := range zones {
		for _, p := range z.Polygon {
			seen = true
			minX = math.Min(minX, p.X)
			minY = math.Min(minY, p.Y)
			maxX = math.Max(maxX, p.X)
			maxY = math.Max(maxY, p.Y)
		}
	}
	if !seen {
		return UnitBounds
	}
	return Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Transform maps world (x, y) to view pixels:
// px = OffsetX + (x - MinX) * ScaleX, py = OffsetY + (y - MinY) * ScaleY.
type Transform struct {
	MinX, MinY       float64
	ScaleX, ScaleY   float64
	OffsetX, OffsetY float64
}

// Fit computes the transform for b inside f. With lockAspect the smaller of the
// two axis scales is used for both and the leftover space is split evenly on
// each side. Zero extents are treated as 1.
func Fit(b Bounds, f Frame, lockAspect bool) Transform {
	dx := b.MaxX - b.MinX
	if dx == 0 {
		dx = 1
	}
	dy := b.MaxY - b.MinY
	if dy == 0 {
		dy = 1
	}
	innerW := f.Width - f.Padding*2
	innerH := f.Height - f.Padding*2
	scaleX := innerW / dx
	scaleY := innerH / dy

	if !lockAspect {
		return Transform{
			MinX: b.MinX, MinY: b.MinY,
			ScaleX: scaleX, ScaleY: scaleY,
			OffsetX: f.Padding, OffsetY: f.Padding,
		}
	}

	scale := math.Min(scaleX, scaleY)
	extraX := (innerW - dx*scale) / 2
	extraY := (innerH - dy*scale) / 2
	return Transform{
		MinX: b.MinX, MinY: b.MinY,
		ScaleX: scale, ScaleY: scale,
		OffsetX: f.Padding + extraX, OffsetY: f.Padding + extraY,
	}
}

func (t Transform) Apply(p model.Point) model.Point {
	return model.Point{
		X: t.OffsetX + (p.X-t.MinX)*t.ScaleX,
		Y: t.OffsetY + (p.Y-t.MinY)*t.ScaleY,
	}
}

// ApplyAll projects every point of poly.
func (t Transform) ApplyAll(poly []model.Point) []model.Point {
	out := make([]model.Point, len(poly))
	for i, p := range poly {
		out[i] = t.Apply(p)
	}
	return out
}

// Centroid is the arithmetic mean of the vertices. Label anchors are computed
// on world vertices and then projected, never averaged after projection.
func Centroid(poly []model.Point) model.Point {
	if len(poly) == 0 {
		return model.Point{}
	}
	var sx, sy float64
	for _, p := range poly {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(poly))
	return model.Point{X: sx / n, Y: sy / n}
}

// FormatPoints renders points as "x.x,y.y x.x,y.y ...".
func FormatPoints(points []model.Point) string {
	var sb strings.Builder
	for i, p := range points {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(p.X, 'f', 1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(p.Y, 'f', 1, 64))
	}
	return sb.String()
}
