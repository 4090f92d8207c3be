package viewer

import (
	"image"
	"math"
	"sort"

	"github.com/sudorandom/ropt-live/pkg/model"
)

// rasterizeZone fills poly (view coordinates, multiplied by scale) into an
// alpha mask covering just the polygon's pixel bounds. It returns the mask
// and its top-left corner, or nil for polygons with no area.
func rasterizeZone(poly []model.Point, scale float64) (*image.RGBA, image.Point) {
	if len(poly) < 3 {
		return nil, image.Point{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	pts := make([]model.Point, len(poly))
	for i, p := range poly {
		pts[i] = model.Point{X: p.X * scale, Y: p.Y * scale}
		minX, maxX = math.Min(minX, pts[i].X), math.Max(maxX, pts[i].X)
		minY, maxY = math.Min(minY, pts[i].Y), math.Max(maxY, pts[i].Y)
	}
	origin := image.Pt(int(math.Floor(minX)), int(math.Floor(minY)))
	w := int(math.Ceil(maxX)) - origin.X + 1
	h := int(math.Ceil(maxY)) - origin.Y + 1
	if w <= 1 || h <= 1 {
		return nil, image.Point{}
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		// Sample at pixel centres.
		fy := float64(origin.Y+y) + 0.5
		var nodes []int
		for i := range pts {
			j := (i + 1) % len(pts)
			a, b := pts[i], pts[j]
			if (a.Y < fy && b.Y >= fy) || (b.Y < fy && a.Y >= fy) {
				x := a.X + (fy-a.Y)/(b.Y-a.Y)*(b.X-a.X)
				nodes = append(nodes, int(math.Round(x))-origin.X)
			}
		}
		sort.Ints(nodes)
		for i := 0; i+1 < len(nodes); i += 2 {
			xs, xe := max(nodes[i], 0), min(nodes[i+1], w)
			for x := xs; x < xe; x++ {
				off := y*img.Stride + x*4
				img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = 255, 255, 255, 255
			}
		}
	}
	return img, origin
}

// segmentDistance is the distance from p to the segment ab.
func segmentDistance(p, a, b model.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	if dx == 0 && dy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// nearPolyline reports whether p lies within tol of any segment of line.
func nearPolyline(p model.Point, line []model.Point, tol float64) bool {
	for i := 1; i < len(line); i++ {
		if segmentDistance(p, line[i-1], line[i]) <= tol {
			return true
		}
	}
	return false
}
