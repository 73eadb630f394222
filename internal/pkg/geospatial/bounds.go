package geospatial

import (
	"fmt"
	"math"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// RingBounds returns the bounds of ring. Empty rings and invalid positions are errors.
func RingBounds(ring domain.Ring) (domain.Bounds, error) {
	if len(ring) == 0 {
		return domain.Bounds{}, fmt.Errorf("%w: empty ring", domain.ErrInvalidGeometry)
	}
	var b domain.Bounds
	for i, p := range ring {
		if !p.Valid() {
			return domain.Bounds{}, fmt.Errorf("%w: position %d (%v, %v) out of range", domain.ErrInvalidGeometry, i, p.Lon(), p.Lat())
		}
		if i == 0 {
			b = domain.BoundsAt(p)
			continue
		}
		b = b.Extend(p)
	}
	return b, nil
}

// PolygonBounds returns the bounds of the outer ring of p.
func PolygonBounds(p domain.Polygon) (domain.Bounds, error) {
	return RingBounds(p.Outer())
}

// UnionBounds progressively extends one box across every polygon.
func UnionBounds(polys []domain.Polygon) (domain.Bounds, error) {
	if len(polys) == 0 {
		return domain.Bounds{}, fmt.Errorf("%w: no polygons", domain.ErrInvalidGeometry)
	}
	var out domain.Bounds
	for i, p := range polys {
		b, err := PolygonBounds(p)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("polygon %d: %w", i, err)
		}
		if i == 0 {
			out = b
			continue
		}
		out = out.Union(b)
	}
	return out, nil
}

// RawBounds computes best-effort bounds straight from the coordinates of every
// ring, skipping positions that are not finite or out of range. ok is false
// when no usable position exists.
func RawBounds(polys ...domain.Polygon) (b domain.Bounds, ok bool) {
	for _, poly := range polys {
		for _, ring := range poly.Rings {
			for _, p := range ring {
				if !p.Valid() {
					continue
				}
				if !ok {
					b, ok = domain.BoundsAt(p), true
					continue
				}
				b = b.Extend(p)
			}
		}
	}
	return b, ok
}

// ExpandToMinimum widens b around its center when it spans less than
// minMeters in both directions, so a single point can still be framed.
func ExpandToMinimum(b domain.Bounds, minMeters float64) domain.Bounds {
	if minMeters <= 0 {
		return b
	}
	sw, ne := b.SouthWest(), b.NorthEast()
	height := Haversine(sw.Lat, sw.Lon, ne.Lat, sw.Lon)
	width := Haversine(sw.Lat, sw.Lon, sw.Lat, ne.Lon)
	if height >= minMeters || width >= minMeters {
		return b
	}
	c := b.Center()
	minLat, minLon, maxLat, maxLon := BoundingBox(c.Lat, c.Lon, minMeters/2)
	return domain.Bounds{
		MinLat: clamp(minLat, -90, 90),
		MinLon: clamp(minLon, -180, 180),
		MaxLat: clamp(maxLat, -90, 90),
		MaxLon: clamp(maxLon, -180, 180),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
