package sources

import (
	"fmt"
	"os"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/ropt-live/pkg/model"
)

// LoadZonesGeoJSON reads zones from a GeoJSON FeatureCollection file.
func LoadZonesGeoJSON(path string) ([]model.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	return ParseZonesGeoJSON(data)
}

// ParseZonesGeoJSON converts Polygon features (and the first polygon of a
// MultiPolygon) into zones. The zone id comes from the zone_id, id or name
// property, in that order, then the feature id. Only the outer ring is used
// and a closing vertex equal to the first is dropped.
func ParseZonesGeoJSON(data []byte) ([]model.Zone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse zones geojson: %w", err)
	}
	var zones []model.Zone
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		var rings [][][]float64
		switch {
		case f.Geometry.IsPolygon():
			rings = f.Geometry.Polygon
		case f.Geometry.IsMultiPolygon() && len(f.Geometry.MultiPolygon) > 0:
			rings = f.Geometry.MultiPolygon[0]
		default:
			continue
		}
		if len(rings) == 0 {
			continue
		}
		poly := ringToPolygon(rings[0])
		if len(poly) < 3 {
			continue
		}
		zones = append(zones, model.Zone{ID: featureZoneID(f, i), Polygon: poly})
	}
	return zones, nil
}

func ringToPolygon(ring [][]float64) []model.Point {
	pts := make([]model.Point, 0, len(ring))
	for _, c := range ring {
		if len(c) < 2 {
			continue
		}
		pts = append(pts, model.Point{X: c[0], Y: c[1]})
	}
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	return pts
}

func featureZoneID(f *geojson.Feature, i int) string {
	for _, key := range []string{"zone_id", "id", "name"} {
		if v, ok := f.Properties[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return fmt.Sprintf("zone-%d", i)
}

// ZonesToGeoJSON renders zones as a FeatureCollection with closed rings and a
// zone_id property.
func ZonesToGeoJSON(zones []model.Zone) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, z := range zones {
		if len(z.Polygon) == 0 {
			continue
		}
		ring := make([][]float64, 0, len(z.Polygon)+1)
		for _, p := range z.Polygon {
			ring = append(ring, []float64{p.X, p.Y})
		}
		if z.Polygon[0] != z.Polygon[len(z.Polygon)-1] {
			ring = append(ring, []float64{z.Polygon[0].X, z.Polygon[0].Y})
		}
		f := geojson.NewPolygonFeature([][][]float64{ring})
		f.SetProperty("zone_id", z.ID)
		fc.AddFeature(f)
	}
	return fc.MarshalJSON()
}
