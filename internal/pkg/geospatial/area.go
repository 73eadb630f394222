package geospatial

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/golang/geo/s2"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// Equirectangular meters per degree at the equator.
const (
	metersPerDegreeLon = 111319.9
	metersPerDegreeLat = 110540.0
)

// wgs84EquatorialRadius is the sphere radius used for geodesic area.
const wgs84EquatorialRadius = 6378137.0

// AreaFunc computes the area of a ring in square meters.
type AreaFunc func(ring domain.Ring) (float64, error)

// AreaCalculator computes ring areas with a swappable primary method and the
// planar shoelace method as fallback.
type AreaCalculator struct {
	geodesic AreaFunc
}

// NewAreaCalculator creates an AreaCalculator. A nil geodesic function means
// every computation uses the fallback.
func NewAreaCalculator(geodesic AreaFunc) *AreaCalculator {
	return &AreaCalculator{geodesic: geodesic}
}

// DefaultAreaCalculator uses the s2 geodesic area as primary method.
var DefaultAreaCalculator = NewAreaCalculator(GeodesicArea)

// ComputeArea returns the ring area in square meters using DefaultAreaCalculator.
func ComputeArea(ring domain.Ring) float64 {
	return DefaultAreaCalculator.ComputeArea(ring)
}

// SquareMetersToHectares converts an area in square meters to hectares.
func SquareMetersToHectares(m2 float64) float64 {
	return m2 / 10000
}

// ComputeArea returns the ring area in square meters. Rings with fewer than
// three points yield 0. It never fails: if the primary method is missing or
// errors, the shoelace fallback is used.
func (c *AreaCalculator) ComputeArea(ring domain.Ring) float64 {
	if len(ring) < 3 {
		return 0
	}
	if c == nil || c.geodesic == nil {
		return ShoelaceArea(ring)
	}
	area, err := c.primary(ring)
	if err != nil {
		slog.Debug("geodesic area unavailable, using planar fallback", "error", err)
		return ShoelaceArea(ring)
	}
	return area
}

func (c *AreaCalculator) primary(ring domain.Ring) (area float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geodesic area panicked: %v", r)
		}
	}()
	area, err = c.geodesic(ring)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(area) || math.IsInf(area, 0) || area < 0 {
		return 0, fmt.Errorf("geodesic area returned %v", area)
	}
	return area, nil
}

// ShoelaceArea projects the ring with an equirectangular approximation and
// applies the shoelace formula. Non-finite input yields 0.
func ShoelaceArea(ring domain.Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		xi, yi := ring[i].Lon()*metersPerDegreeLon, ring[i].Lat()*metersPerDegreeLat
		xj, yj := ring[j].Lon()*metersPerDegreeLon, ring[j].Lat()*metersPerDegreeLat
		sum += xi*yj - xj*yi
	}
	area := math.Abs(sum) / 2
	if math.IsNaN(area) || math.IsInf(area, 0) {
		return 0
	}
	return area
}

// GeodesicArea computes the area enclosed by the ring on the WGS 84 sphere.
// The smaller of the two regions bounded by the ring is measured, so winding
// order does not matter.
func GeodesicArea(ring domain.Ring) (float64, error) {
	open := ring.Open()
	if len(open) < 3 {
		return 0, fmt.Errorf("%w: ring has %d vertices", domain.ErrInvalidGeometry, len(open))
	}

	pts := make([]s2.Point, 0, len(open))
	for i, p := range open {
		if !p.Valid() {
			return 0, fmt.Errorf("%w: position %d out of range", domain.ErrInvalidGeometry, i)
		}
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat(), p.Lon())))
	}

	loop := s2.LoopFromPoints(pts)
	if err := loop.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
	}
	loop.Normalize()

	return loop.Area() * wgs84EquatorialRadius * wgs84EquatorialRadius, nil
}
