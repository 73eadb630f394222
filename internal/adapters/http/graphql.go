package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
	"github.com/samirrijal/fieldmap/internal/pkg/geospatial"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"south_west": &graphql.Field{Type: geoPointType},
			"north_east": &graphql.Field{Type: geoPointType},
			"center":     &graphql.Field{Type: geoPointType},
		},
	})

	fieldType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Field",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"name":         &graphql.Field{Type: graphql.String},
			"area":         &graphql.Field{Type: graphql.Float},
			"field_status": &graphql.Field{Type: graphql.String},
			"color":        &graphql.Field{Type: graphql.String},
			"created_at":   &graphql.Field{Type: graphql.String},
			"coordinates": &graphql.Field{
				Type:        graphql.NewList(graphql.NewList(graphql.NewList(graphql.Float))),
				Description: "Polygon rings as [lon, lat] positions",
			},
			"bounds": &graphql.Field{Type: boundsType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"fields": &graphql.Field{
				Type:        graphql.NewList(fieldType),
				Description: "List all fields",
				Args: graphql.FieldConfigArgument{
					"selected": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					selected, _ := p.Args["selected"].(string)
					fields, err := deps.Fields.List(p.Context)
					if err != nil {
						return nil, err
					}
					result := make([]map[string]interface{}, 0, len(fields))
					for _, f := range fields {
						result = append(result, fieldToMap(f, selected))
					}
					return result, nil
				},
			},
			"field": &graphql.Field{
				Type:        fieldType,
				Description: "Get a field by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					f, err := deps.Fields.GetByID(p.Context, id)
					if errors.Is(err, domain.ErrNotFound) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return fieldToMap(*f, ""), nil
				},
			},
			"fieldsBounds": &graphql.Field{
				Type:        boundsType,
				Description: "Bounds covering every field",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					b, err := deps.Fields.AllBounds(p.Context)
					if errors.Is(err, domain.ErrNoFields) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return boundsToMap(b), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func fieldToMap(f domain.Field, selected string) map[string]interface{} {
	m := map[string]interface{}{
		"id":           f.ID,
		"name":         f.Name,
		"area":         f.AreaHectares,
		"field_status": string(f.Status),
		"color":        usecases.FieldColor(f, selected),
		"coordinates":  f.Boundary.Coordinates(),
	}
	if !f.CreatedAt.IsZero() {
		m["created_at"] = f.CreatedAt.UTC().Format(time.RFC3339)
	}
	if b, ok := geospatial.RawBounds(f.Boundary); ok {
		m["bounds"] = boundsToMap(b)
	}
	return m
}

func boundsToMap(b domain.Bounds) map[string]interface{} {
	point := func(p domain.GeoPoint) map[string]interface{} {
		return map[string]interface{}{"lat": p.Lat, "lon": p.Lon}
	}
	return map[string]interface{}{
		"south_west": point(b.SouthWest()),
		"north_east": point(b.NorthEast()),
		"center":     point(b.Center()),
	}
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
