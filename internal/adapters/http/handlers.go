package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
	"github.com/samirrijal/fieldmap/internal/pkg/geospatial"
)

// FieldResponse is a field with its overlay colour.
type FieldResponse struct {
	domain.Field
	Color string `json:"color"`
}

// BoundsResponse is a bounding box with its corners and center.
type BoundsResponse struct {
	SouthWest domain.GeoPoint `json:"south_west"`
	NorthEast domain.GeoPoint `json:"north_east"`
	Center    domain.GeoPoint `json:"center"`
}

func newBoundsResponse(b domain.Bounds) BoundsResponse {
	return BoundsResponse{SouthWest: b.SouthWest(), NorthEast: b.NorthEast(), Center: b.Center()}
}

// MeasureRequest is the body of the geometry measure endpoint.
type MeasureRequest struct {
	Geometry domain.Polygon `json:"geo_json"`
}

// MeasureResponse reports the metrics of a polygon.
type MeasureResponse struct {
	AreaHectares    float64        `json:"area_hectares"`
	PerimeterMeters float64        `json:"perimeter_meters"`
	Bounds          BoundsResponse `json:"bounds"`
	Geometry        domain.Polygon `json:"geo_json"`
}

// ListFieldsHandler returns all fields, coloured against the optional
// selected query parameter.
func ListFieldsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fields, err := deps.Fields.List(c.UserContext())
		if err != nil {
			return errFromDomain(c, err, "list fields")
		}

		offset, limit := parsePage(c)
		total := len(fields)
		fields = page(fields, offset, limit)

		selected := c.Query("selected")
		data := make([]FieldResponse, 0, len(fields))
		for _, f := range fields {
			data = append(data, FieldResponse{Field: f, Color: usecases.FieldColor(f, selected)})
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: data, Pagination: pg})
	}
}

// GetFieldHandler returns a single field by ID.
func GetFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "field id is required")
		}
		field, err := deps.Fields.GetByID(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err, "get field")
		}
		return c.JSON(FieldResponse{Field: *field, Color: usecases.FieldColor(*field, c.Query("selected"))})
	}
}

// CreateFieldHandler validates and creates a field.
func CreateFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in domain.CreateFieldInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}

		field, err := deps.creator().Create(c.UserContext(), in)
		if err != nil {
			return errFromDomain(c, err, "create field")
		}

		c.Location("/v1/fields/" + field.ID)
		return c.Status(fiber.StatusCreated).JSON(FieldResponse{Field: *field, Color: field.Color("")})
	}
}

// DeleteFieldHandler removes a field.
func DeleteFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "field id is required")
		}
		if err := deps.Fields.Delete(c.UserContext(), id); err != nil {
			return errFromDomain(c, err, "delete field")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// FieldsBoundsHandler returns the bounds covering every field.
func FieldsBoundsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := deps.Fields.AllBounds(c.UserContext())
		if err != nil {
			return errFromDomain(c, err, "compute field bounds")
		}
		return c.JSON(newBoundsResponse(b))
	}
}

// MeasureHandler closes a polygon ring and reports its area, perimeter and
// bounds without storing anything.
func MeasureHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req MeasureRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}
		if req.Geometry.IsEmpty() {
			return errBadRequest(c, "geo_json is required")
		}

		ring := geospatial.EnsureClosedRing(req.Geometry.Outer())
		if err := geospatial.ValidateRing(ring); err != nil {
			return errFromDomain(c, err, "measure geometry")
		}
		b, err := geospatial.RingBounds(ring)
		if err != nil {
			return errFromDomain(c, err, "measure geometry")
		}

		return c.JSON(MeasureResponse{
			AreaHectares:    geospatial.SquareMetersToHectares(geospatial.ComputeArea(ring)),
			PerimeterMeters: geospatial.Perimeter(ring),
			Bounds:          newBoundsResponse(b),
			Geometry:        domain.NewPolygon(ring),
		})
	}
}

// ---- Legacy /geo/polygons surface ----

// LegacyListPolygonsHandler returns the bare field array the old clients expect.
func LegacyListPolygonsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fields, err := deps.Fields.List(c.UserContext())
		if err != nil {
			return legacyFromDomain(c, err, "list polygons")
		}
		if fields == nil {
			fields = []domain.Field{}
		}
		return c.JSON(fields)
	}
}

// LegacyGetPolygonHandler returns one field.
func LegacyGetPolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		field, err := deps.Fields.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return legacyFromDomain(c, err, "get polygon")
		}
		return c.JSON(field)
	}
}

// LegacyCreatePolygonHandler creates a field and answers {message, data}.
func LegacyCreatePolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in domain.CreateFieldInput
		if err := c.BodyParser(&in); err != nil {
			return legacyError(c, fiber.StatusBadRequest, "invalid request body")
		}
		field, err := deps.creator().Create(c.UserContext(), in)
		if err != nil {
			return legacyFromDomain(c, err, "create polygon")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": "Polygon created",
			"data":    field,
		})
	}
}

// LegacyDeletePolygonHandler removes a field.
func LegacyDeletePolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Fields.Delete(c.UserContext(), c.Params("id")); err != nil {
			return legacyFromDomain(c, err, "delete polygon")
		}
		return c.JSON(fiber.Map{"message": "Polygon deleted"})
	}
}
