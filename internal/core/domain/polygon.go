package domain

import (
	"encoding/json"
	"fmt"

	geojson "github.com/paulmach/go.geojson"
)

// Polygon is a polygon geometry. The first ring is the outer boundary; drawn
// field boundaries never carry holes.
type Polygon struct {
	Rings []Ring
}

// NewPolygon builds a polygon from its outer ring.
func NewPolygon(outer Ring) Polygon {
	return Polygon{Rings: []Ring{outer}}
}

// Outer returns the outer ring, or nil for an empty polygon.
func (p Polygon) Outer() Ring {
	if len(p.Rings) == 0 {
		return nil
	}
	return p.Rings[0]
}

// IsEmpty reports whether the polygon has no positions at all.
func (p Polygon) IsEmpty() bool {
	return len(p.Outer()) == 0
}

// Coordinates returns the GeoJSON coordinate array.
func (p Polygon) Coordinates() [][][]float64 {
	out := make([][][]float64, 0, len(p.Rings))
	for _, ring := range p.Rings {
		r := make([][]float64, 0, len(ring))
		for _, pos := range ring {
			r = append(r, []float64{pos[0], pos[1]})
		}
		out = append(out, r)
	}
	return out
}

// PolygonFromCoordinates converts a GeoJSON coordinate array into a Polygon.
func PolygonFromCoordinates(coords [][][]float64) (Polygon, error) {
	rings := make([]Ring, 0, len(coords))
	for i, rc := range coords {
		ring := make(Ring, 0, len(rc))
		for j, c := range rc {
			if len(c) < 2 {
				return Polygon{}, fmt.Errorf("%w: ring %d position %d has %d values", ErrInvalidGeometry, i, j, len(c))
			}
			ring = append(ring, Position{c[0], c[1]})
		}
		rings = append(rings, ring)
	}
	return Polygon{Rings: rings}, nil
}

// Feature returns the polygon as a GeoJSON Polygon Feature.
func (p Polygon) Feature() *geojson.Feature {
	f := geojson.NewPolygonFeature(p.Coordinates())
	f.Properties = map[string]interface{}{}
	return f
}

// PolygonFromFeature extracts the polygon geometry of a GeoJSON Feature.
func PolygonFromFeature(f *geojson.Feature) (Polygon, error) {
	if f == nil || f.Geometry == nil {
		return Polygon{}, fmt.Errorf("%w: feature has no geometry", ErrInvalidGeometry)
	}
	if !f.Geometry.IsPolygon() {
		return Polygon{}, fmt.Errorf("%w: expected Polygon, got %s", ErrInvalidGeometry, f.Geometry.Type)
	}
	return PolygonFromCoordinates(f.Geometry.Polygon)
}

// MarshalJSON encodes the polygon as a GeoJSON Polygon Feature.
func (p Polygon) MarshalJSON() ([]byte, error) {
	return p.Feature().MarshalJSON()
}

// UnmarshalJSON accepts either a Polygon Feature or a bare Polygon geometry.
func (p *Polygon) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		poly, err := PolygonFromFeature(f)
		if err != nil {
			return err
		}
		*p = poly
	case "Polygon":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		poly, err := PolygonFromCoordinates(g.Polygon)
		if err != nil {
			return err
		}
		*p = poly
	default:
		return fmt.Errorf("%w: unsupported GeoJSON type %q", ErrInvalidGeometry, probe.Type)
	}
	return nil
}
