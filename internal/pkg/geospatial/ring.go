package geospatial

import (
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// EnsureClosedRing returns a copy of ring whose last position equals the
// first, appending the first position when needed. The input is not modified.
func EnsureClosedRing(ring domain.Ring) domain.Ring {
	out := ring.Clone()
	if len(out) == 0 || out.Closed() {
		return out
	}
	return append(out, out[0])
}

// ValidateRing checks that ring is usable as a field boundary: closed, at
// least three distinct finite in-range positions, and not self-intersecting.
func ValidateRing(ring domain.Ring) error {
	if !ring.Closed() {
		return fmt.Errorf("%w: ring is not closed", domain.ErrInvalidGeometry)
	}
	if n := ring.Open().DistinctCount(); n < 3 {
		return fmt.Errorf("%w: ring has %d distinct positions, need at least 3", domain.ErrInvalidGeometry, n)
	}

	flat := make([]float64, 0, len(ring)*2)
	for i, p := range ring {
		if !p.Valid() {
			return fmt.Errorf("%w: position %d (%v, %v) out of range", domain.ErrInvalidGeometry, i, p.Lon(), p.Lat())
		}
		flat = append(flat, p.Lon(), p.Lat())
	}

	ls := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	poly := geom.NewPolygon([]geom.LineString{ls})
	if err := poly.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
	}
	return nil
}
