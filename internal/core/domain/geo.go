package domain

import "math"

// Position is a single [lon, lat] coordinate in WGS 84 degrees, in GeoJSON order.
type Position [2]float64

// Lon returns the longitude component.
func (p Position) Lon() float64 { return p[0] }

// Lat returns the latitude component.
func (p Position) Lat() float64 { return p[1] }

// Valid reports whether both components are finite and inside the geographic ranges.
func (p Position) Valid() bool {
	lon, lat := p[0], p[1]
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Ring is an ordered sequence of positions describing one polygon boundary.
type Ring []Position

// Closed reports whether the first and last positions are identical.
func (r Ring) Closed() bool {
	return len(r) > 1 && r[0] == r[len(r)-1]
}

// Clone returns a copy that shares no backing array with r.
func (r Ring) Clone() Ring {
	if r == nil {
		return nil
	}
	out := make(Ring, len(r))
	copy(out, r)
	return out
}

// Open returns the ring without its closing position.
func (r Ring) Open() Ring {
	if r.Closed() {
		return r[:len(r)-1]
	}
	return r
}

// DistinctCount returns the number of distinct positions in the ring.
func (r Ring) DistinctCount() int {
	seen := make(map[Position]struct{}, len(r))
	for _, p := range r {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundsAt returns the zero-size bounds covering a single position.
func BoundsAt(p Position) Bounds {
	return Bounds{MinLat: p.Lat(), MinLon: p.Lon(), MaxLat: p.Lat(), MaxLon: p.Lon()}
}

// SouthWest returns the south-west corner.
func (b Bounds) SouthWest() GeoPoint { return GeoPoint{Lat: b.MinLat, Lon: b.MinLon} }

// NorthEast returns the north-east corner.
func (b Bounds) NorthEast() GeoPoint { return GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon} }

// Center returns the midpoint of the box.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Extend grows the box to include p.
func (b Bounds) Extend(p Position) Bounds {
	b.MinLat = math.Min(b.MinLat, p.Lat())
	b.MinLon = math.Min(b.MinLon, p.Lon())
	b.MaxLat = math.Max(b.MaxLat, p.Lat())
	b.MaxLon = math.Max(b.MaxLon, p.Lon())
	return b
}

// Union returns the smallest box covering both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MinLon: math.Min(b.MinLon, o.MinLon),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
	}
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p Position) bool {
	return p.Lat() >= b.MinLat && p.Lat() <= b.MaxLat &&
		p.Lon() >= b.MinLon && p.Lon() <= b.MaxLon
}

// IsPoint reports whether the box has neither width nor height.
func (b Bounds) IsPoint() bool {
	return b.MinLat == b.MaxLat && b.MinLon == b.MaxLon
}

// IsValid reports whether both corners are valid positions and correctly ordered.
func (b Bounds) IsValid() bool {
	sw := Position{b.MinLon, b.MinLat}
	ne := Position{b.MaxLon, b.MaxLat}
	return sw.Valid() && ne.Valid() && b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}
