package domain

import "time"

// DrawingMode is the state of a drawing session.
type DrawingMode int

const (
	DrawingModeIdle DrawingMode = iota
	DrawingModeDrawing
	DrawingModeCommitted
)

func (m DrawingMode) String() string {
	switch m {
	case DrawingModeDrawing:
		return "drawing"
	case DrawingModeCommitted:
		return "committed"
	default:
		return "idle"
	}
}

// ShapeKind names the geometry type of a layer on the drawing surface.
type ShapeKind string

const (
	ShapePolygon   ShapeKind = "Polygon"
	ShapeRectangle ShapeKind = "Rectangle"
	ShapeLine      ShapeKind = "Line"
	ShapeMarker    ShapeKind = "Marker"
	ShapeCircle    ShapeKind = "Circle"
)

// Polygonal reports whether the kind describes an area.
func (k ShapeKind) Polygonal() bool {
	return k == ShapePolygon || k == ShapeRectangle
}

// Shape is a layer on the drawing surface. ID is its identity for the lifetime
// of the surface.
type Shape struct {
	ID    string    `json:"id"`
	Kind  ShapeKind `json:"kind"`
	Rings []Ring    `json:"rings"`
}

// OuterRing returns the first ring of the shape.
func (s Shape) OuterRing() Ring {
	if len(s.Rings) == 0 {
		return nil
	}
	return s.Rings[0]
}

// SurfaceEvent names a notification raised by the drawing surface.
type SurfaceEvent string

const (
	EventShapeCreated SurfaceEvent = "pm:create"
	EventShapeEdited  SurfaceEvent = "pm:edit"
	EventShapeRemoved SurfaceEvent = "pm:remove"
	EventDrawStart    SurfaceEvent = "pm:drawstart"
	EventDrawEnd      SurfaceEvent = "pm:drawend"
)

// DrawOptions configures the interactive draw tool.
type DrawOptions struct {
	AllowSelfIntersection bool    `json:"allowSelfIntersection"`
	Snapping              bool    `json:"snappable"`
	SnapToleranceMeters   float64 `json:"snapDistance"`
	ContinueDrawing       bool    `json:"continueDrawing"`
}

// PathStyle is the stroke and fill applied to drawn shapes.
type PathStyle struct {
	Color       string  `json:"color"`
	Weight      int     `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

// DefaultPathStyle is the farm-boundary style used while drawing.
var DefaultPathStyle = PathStyle{
	Color:       "#059669",
	Weight:      3,
	Opacity:     0.8,
	FillColor:   "#059669",
	FillOpacity: 0.2,
}

// DrawingSession is a snapshot of the drawing session state.
type DrawingSession struct {
	Mode          DrawingMode `json:"mode"`
	ActiveShapeID string      `json:"active_shape_id,omitempty"`
	ActivePolygon *Polygon    `json:"active_polygon,omitempty"`
}

// PolygonDrawn carries the latest state of the active drawn polygon.
type PolygonDrawn struct {
	ShapeID         string    `json:"shape_id"`
	Geometry        Polygon   `json:"geometry"`
	AreaHectares    float64   `json:"area_hectares"`
	PerimeterMeters float64   `json:"perimeter_meters"`
	DrawnAt         time.Time `json:"drawn_at"`
}

// PolygonCleared reports that the active drawn polygon was removed.
type PolygonCleared struct {
	ShapeID   string    `json:"shape_id"`
	ClearedAt time.Time `json:"cleared_at"`
}
