package domain

import "time"

// FieldStatus is the planting state of a field.
type FieldStatus string

const (
	FieldStatusUnplanted FieldStatus = "unplanted"
	FieldStatusActive    FieldStatus = "active"
)

// Valid reports whether s is a known status.
func (s FieldStatus) Valid() bool {
	return s == FieldStatusUnplanted || s == FieldStatusActive
}

// Display colours for field overlays.
const (
	ColorSelected  = "#2E7D32"
	ColorActive    = "#4CAF50"
	ColorUnplanted = "#FFC107"
)

// Field is a farm field boundary owned by the geo service.
type Field struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	AreaHectares float64     `json:"area"`
	Status       FieldStatus `json:"field_status"`
	Boundary     Polygon     `json:"geo_json"`
	CreatedAt    time.Time   `json:"created_at,omitempty"`
}

// Color returns the overlay colour for the field given the selected field ID.
func (f Field) Color(selectedID string) string {
	if selectedID != "" && f.ID == selectedID {
		return ColorSelected
	}
	if f.Status == FieldStatusActive {
		return ColorActive
	}
	return ColorUnplanted
}

// CreateFieldInput is the payload for creating a field.
type CreateFieldInput struct {
	Name     string      `json:"name"`
	Status   FieldStatus `json:"field_status"`
	Geometry Polygon     `json:"geo_json"`
}
