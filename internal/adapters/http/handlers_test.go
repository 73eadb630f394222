package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/fieldmap/internal/adapters/http"
	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
)

// ---- Mock repositories ----

type mockFieldRepo struct {
	mu        sync.Mutex
	created   []domain.Field
	createFn  func(ctx context.Context, f *domain.Field) error
	getByIDFn func(ctx context.Context, id string) (*domain.Field, error)
	listFn    func(ctx context.Context) ([]domain.Field, error)
	deleteFn  func(ctx context.Context, id string) error
}

func (m *mockFieldRepo) Create(ctx context.Context, f *domain.Field) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, f); err != nil {
			return err
		}
	} else {
		f.ID = "f-new"
	}
	m.mu.Lock()
	m.created = append(m.created, *f)
	m.mu.Unlock()
	return nil
}
func (m *mockFieldRepo) GetByID(ctx context.Context, id string) (*domain.Field, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}
func (m *mockFieldRepo) List(ctx context.Context) ([]domain.Field, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}
func (m *mockFieldRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockCreator struct {
	createFn func(ctx context.Context, in domain.CreateFieldInput) (*domain.Field, error)
}

func (m *mockCreator) Create(ctx context.Context, in domain.CreateFieldInput) (*domain.Field, error) {
	return m.createFn(ctx, in)
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	d := &handler.Dependencies{
		Fields: usecases.NewFieldService(&mockFieldRepo{}, nil, nil),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func withRepo(repo *mockFieldRepo) func(*handler.Dependencies) {
	return func(d *handler.Dependencies) {
		d.Fields = usecases.NewFieldService(repo, nil, nil)
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

// squareRing returns an open ring of about side meters near Bilbao.
func squareRing(lon, lat, side float64) domain.Ring {
	dLat := side / 111320.0
	dLon := side / 81100.0
	return domain.Ring{{lon, lat}, {lon + dLon, lat}, {lon + dLon, lat + dLat}, {lon, lat + dLat}}
}

func makeField(id string, status domain.FieldStatus, lon, lat float64) domain.Field {
	ring := squareRing(lon, lat, 100)
	return domain.Field{
		ID:           id,
		Name:         "Field " + id,
		AreaHectares: 1,
		Status:       status,
		Boundary:     domain.NewPolygon(append(ring, ring[0])),
	}
}

// polygonJSON renders an open ring as a bare GeoJSON Polygon geometry.
func polygonJSON(ring domain.Ring) string {
	parts := make([]string, 0, len(ring))
	for _, p := range ring {
		parts = append(parts, fmt.Sprintf("[%f,%f]", p[0], p[1]))
	}
	return `{"type":"Polygon","coordinates":[[` + strings.Join(parts, ",") + `]]}`
}

func newJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---- Field handler tests ----

func TestListFields_Success(t *testing.T) {
	repo := &mockFieldRepo{
		listFn: func(ctx context.Context) ([]domain.Field, error) {
			return []domain.Field{
				makeField("f1", domain.FieldStatusActive, -2.93, 43.26),
				makeField("f2", domain.FieldStatusUnplanted, -2.92, 43.27),
			}, nil
		},
	}
	app := setupApp(makeDeps(withRepo(repo)))

	req := httptest.NewRequest("GET", "/v1/fields?selected=f2", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []handler.FieldResponse `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 2 {
		t.Errorf("expected total 2, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(result.Data))
	}
	if result.Data[0].Color != domain.ColorActive {
		t.Errorf("expected active colour for f1, got %s", result.Data[0].Color)
	}
	if result.Data[1].Color != domain.ColorSelected {
		t.Errorf("expected selected colour for f2, got %s", result.Data[1].Color)
	}
	if n := len(result.Data[0].Boundary.Outer()); n != 5 {
		t.Errorf("expected 5-position boundary, got %d", n)
	}
}

func TestListFields_Pagination(t *testing.T) {
	fields := make([]domain.Field, 5)
	for i := range fields {
		fields[i] = makeField(fmt.Sprintf("f%d", i), domain.FieldStatusActive, -2.9+float64(i)*0.01, 43.2)
	}
	app := setupApp(makeDeps(withRepo(&mockFieldRepo{
		listFn: func(ctx context.Context) ([]domain.Field, error) { return fields, nil },
	})))

	req := httptest.NewRequest("GET", "/v1/fields?offset=2&limit=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []handler.FieldResponse `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Pagination.Total != 5 {
		t.Errorf("expected total 5, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 2 || result.Data[0].ID != "f2" {
		t.Errorf("expected page starting at f2, got %+v", result.Data)
	}

	link := resp.Header.Get("Link")
	for _, rel := range []string{`rel="first"`, `rel="prev"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(link, rel) {
			t.Errorf("expected %s in Link header, got %s", rel, link)
		}
	}
}

func TestListFields_RepoError(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockFieldRepo{
		listFn: func(ctx context.Context) ([]domain.Field, error) { return nil, errors.New("db down") },
	})))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/fields", nil), -1)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	var apiErr handler.APIError
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "internal_error" {
		t.Errorf("expected internal_error, got %s", apiErr.Code)
	}
	if apiErr.RequestID == "" {
		t.Error("expected request id in error")
	}
}

func TestGetField_Success(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockFieldRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Field, error) {
			f := makeField(id, domain.FieldStatusUnplanted, -2.93, 43.26)
			return &f, nil
		},
	})))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/fields/f9", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var f handler.FieldResponse
	json.NewDecoder(resp.Body).Decode(&f)
	if f.ID != "f9" || f.Status != domain.FieldStatusUnplanted {
		t.Errorf("unexpected field %+v", f.Field)
	}
	if f.Color != domain.ColorUnplanted {
		t.Errorf("expected unplanted colour, got %s", f.Color)
	}
}

func TestGetField_NotFound(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/fields/missing", nil), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var apiErr handler.APIError
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "not_found" {
		t.Errorf("expected not_found, got %s", apiErr.Code)
	}
}

func TestCreateField_Success(t *testing.T) {
	repo := &mockFieldRepo{}
	app := setupApp(makeDeps(withRepo(repo)))

	body := `{"name":"North paddock","field_status":"active","geo_json":` + polygonJSON(squareRing(-2.93, 43.26, 100)) + `}`
	resp, err := app.Test(newJSONRequest("POST", "/v1/fields", body), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/fields/f-new" {
		t.Errorf("expected Location /v1/fields/f-new, got %q", loc)
	}

	var f handler.FieldResponse
	json.NewDecoder(resp.Body).Decode(&f)
	if f.Name != "North paddock" {
		t.Errorf("expected name North paddock, got %q", f.Name)
	}
	if math.Abs(f.AreaHectares-1) > 0.05 {
		t.Errorf("expected about 1 ha, got %f", f.AreaHectares)
	}
	if n := len(f.Boundary.Outer()); n != 5 {
		t.Errorf("expected closed 5-position ring, got %d", n)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 persisted field, got %d", len(repo.created))
	}
}

func TestCreateField_Invalid(t *testing.T) {
	ring := polygonJSON(squareRing(-2.93, 43.26, 100))
	bowtie := polygonJSON(domain.Ring{{0, 0}, {1, 1}, {1, 0}, {0, 1}})

	tests := []struct {
		name string
		body string
		want int
		code string
	}{
		{"malformed", `{"name":`, 400, "bad_request"},
		{"short name", `{"name":"A","geo_json":` + ring + `}`, 422, "invalid_field"},
		{"bad status", `{"name":"North","field_status":"fallow","geo_json":` + ring + `}`, 422, "invalid_field"},
		{"no geometry", `{"name":"North"}`, 422, "invalid_field"},
		{"self-intersecting", `{"name":"North","geo_json":` + bowtie + `}`, 422, "invalid_field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockFieldRepo{}
			app := setupApp(makeDeps(withRepo(repo)))

			resp, _ := app.Test(newJSONRequest("POST", "/v1/fields", tt.body), -1)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
			var apiErr handler.APIError
			json.NewDecoder(resp.Body).Decode(&apiErr)
			if apiErr.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, apiErr.Code)
			}
			if len(repo.created) != 0 {
				t.Error("invalid field must not be persisted")
			}
		})
	}
}

func TestCreateField_UsesCreator(t *testing.T) {
	var got domain.CreateFieldInput
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Creator = &mockCreator{createFn: func(ctx context.Context, in domain.CreateFieldInput) (*domain.Field, error) {
			got = in
			f := makeField("wf-1", domain.FieldStatusActive, -2.93, 43.26)
			return &f, nil
		}}
	})
	app := setupApp(deps)

	body := `{"name":"Orchard","geo_json":` + polygonJSON(squareRing(-2.93, 43.26, 50)) + `}`
	resp, _ := app.Test(newJSONRequest("POST", "/v1/fields", body), -1)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if got.Name != "Orchard" {
		t.Errorf("creator got name %q", got.Name)
	}
	if resp.Header.Get("Location") != "/v1/fields/wf-1" {
		t.Errorf("unexpected Location %q", resp.Header.Get("Location"))
	}
}

func TestDeleteField(t *testing.T) {
	var deleted string
	app := setupApp(makeDeps(withRepo(&mockFieldRepo{
		deleteFn: func(ctx context.Context, id string) error {
			if id == "missing" {
				return domain.ErrNotFound
			}
			deleted = id
			return nil
		},
	})))

	resp, _ := app.Test(httptest.NewRequest("DELETE", "/v1/fields/f1", nil), -1)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if deleted != "f1" {
		t.Errorf("expected f1 deleted, got %q", deleted)
	}

	resp, _ = app.Test(httptest.NewRequest("DELETE", "/v1/fields/missing", nil), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestFieldsBounds(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockFieldRepo{
		listFn: func(ctx context.Context) ([]domain.Field, error) {
			return []domain.Field{
				makeField("f1", domain.FieldStatusActive, -2.95, 43.25),
				makeField("f2", domain.FieldStatusActive, -2.90, 43.30),
			}, nil
		},
	})))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/fields/bounds", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var b handler.BoundsResponse
	json.NewDecoder(resp.Body).Decode(&b)
	if b.SouthWest.Lat != 43.25 || b.SouthWest.Lon != -2.95 {
		t.Errorf("unexpected south-west %+v", b.SouthWest)
	}
	if b.NorthEast.Lat <= 43.30 || b.NorthEast.Lon <= -2.90 {
		t.Errorf("unexpected north-east %+v", b.NorthEast)
	}
	if b.Center.Lat <= b.SouthWest.Lat || b.Center.Lat >= b.NorthEast.Lat {
		t.Errorf("center %+v outside bounds", b.Center)
	}
}

func TestFieldsBounds_NoFields(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/fields/bounds", nil), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// ---- Geometry measure tests ----

func TestMeasure_Success(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{"geo_json":` + polygonJSON(squareRing(-2.93, 43.26, 100)) + `}`
	resp, _ := app.Test(newJSONRequest("POST", "/v1/geometry/measure", body), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var m handler.MeasureResponse
	json.NewDecoder(resp.Body).Decode(&m)
	if math.Abs(m.AreaHectares-1) > 0.05 {
		t.Errorf("expected about 1 ha, got %f", m.AreaHectares)
	}
	if math.Abs(m.PerimeterMeters-400) > 10 {
		t.Errorf("expected about 400 m perimeter, got %f", m.PerimeterMeters)
	}
	if n := len(m.Geometry.Outer()); n != 5 {
		t.Errorf("expected closed ring, got %d positions", n)
	}
}

func TestMeasure_Invalid(t *testing.T) {
	app := setupApp(makeDeps())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing geometry", `{}`, 400},
		{"too few positions", `{"geo_json":` + polygonJSON(domain.Ring{{0, 0}, {1, 1}}) + `}`, 422},
		{"self-intersecting", `{"geo_json":` + polygonJSON(domain.Ring{{0, 0}, {1, 1}, {1, 0}, {0, 1}}) + `}`, 422},
		{"wrong type", `{"geo_json":{"type":"Point","coordinates":[0,0]}}`, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := app.Test(newJSONRequest("POST", "/v1/geometry/measure", tt.body), -1)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

// ---- GraphQL tests ----

func TestGraphQL_Fields(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockFieldRepo{
		listFn: func(ctx context.Context) ([]domain.Field, error) {
			return []domain.Field{makeField("f1", domain.FieldStatusActive, -2.93, 43.26)}, nil
		},
	})))

	body := `{"query":"{ fields(selected: \"f1\") { id color field_status bounds { center { lat lon } } } }"}`
	resp, _ := app.Test(newJSONRequest("POST", "/graphql", body), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Fields []struct {
				ID     string `json:"id"`
				Color  string `json:"color"`
				Status string `json:"field_status"`
				Bounds struct {
					Center struct {
						Lat float64 `json:"lat"`
					} `json:"center"`
				} `json:"bounds"`
			} `json:"fields"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if len(result.Data.Fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(result.Data.Fields))
	}
	f := result.Data.Fields[0]
	if f.ID != "f1" || f.Color != domain.ColorSelected || f.Status != "active" {
		t.Errorf("unexpected field %+v", f)
	}
	if f.Bounds.Center.Lat < 43.26 || f.Bounds.Center.Lat > 43.27 {
		t.Errorf("unexpected center lat %f", f.Bounds.Center.Lat)
	}
}

func TestGraphQL_FieldNotFound(t *testing.T) {
	app := setupApp(makeDeps())

	body := `{"query":"{ field(id: \"nope\") { id } fieldsBounds { center { lat } } }"}`
	resp, _ := app.Test(newJSONRequest("POST", "/graphql", body), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Field        *struct{ ID string } `json:"field"`
			FieldsBounds *struct{}            `json:"fieldsBounds"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if result.Data.Field != nil || result.Data.FieldsBounds != nil {
		t.Errorf("expected null field and bounds, got %+v", result.Data)
	}
}

// ---- Legacy /geo/polygons tests ----

func TestLegacyPolygons_Deprecated(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockFieldRepo{
		listFn: func(ctx context.Context) ([]domain.Field, error) {
			return []domain.Field{makeField("f1", domain.FieldStatusActive, -2.93, 43.26)}, nil
		},
	})))

	resp, _ := app.Test(httptest.NewRequest("GET", "/geo/polygons", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if !strings.Contains(resp.Header.Get("Link"), "/v1/fields") {
		t.Errorf("expected successor link, got %q", resp.Header.Get("Link"))
	}

	var fields []domain.Field
	json.NewDecoder(resp.Body).Decode(&fields)
	if len(fields) != 1 || fields[0].ID != "f1" {
		t.Errorf("expected bare array with f1, got %+v", fields)
	}
}

func TestLegacyPolygons_ByIDDeprecated(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/geo/polygons/abc-123", nil), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header on parameterised route")
	}
	var body struct {
		Message string `json:"message"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Message != "polygon not found" {
		t.Errorf("unexpected message %q", body.Message)
	}
}

func TestLegacyCreatePolygon(t *testing.T) {
	app := setupApp(makeDeps(withRepo(&mockFieldRepo{})))

	body := `{"name":"South","field_status":"unplanted","geo_json":{"type":"Feature","properties":{},"geometry":` +
		polygonJSON(squareRing(-2.93, 43.26, 80)) + `}}`
	resp, _ := app.Test(newJSONRequest("POST", "/geo/polygons", body), -1)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var out struct {
		Message string       `json:"message"`
		Data    domain.Field `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Message != "Polygon created" || out.Data.ID != "f-new" {
		t.Errorf("unexpected response %+v", out)
	}

	resp, _ = app.Test(newJSONRequest("POST", "/geo/polygons", `{"name":"S"}`), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var errBody struct {
		Message string `json:"message"`
	}
	json.NewDecoder(resp.Body).Decode(&errBody)
	if !strings.HasPrefix(errBody.Message, "name must be") {
		t.Errorf("expected bare validation message, got %q", errBody.Message)
	}
}

// ---- Health ----

func TestReady_NothingConfigured(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Checks["nats"] != "not configured" {
		t.Errorf("expected nats not configured, got %q", out.Checks["nats"])
	}
}

func TestWebSocketRoutes_RequireUpgrade(t *testing.T) {
	app := setupApp(makeDeps())

	for _, path := range []string{"/ws/map", "/ws/events"} {
		resp, _ := app.Test(httptest.NewRequest("GET", path, nil), -1)
		if resp.StatusCode != fiber.StatusUpgradeRequired {
			t.Errorf("%s: expected 426, got %d", path, resp.StatusCode)
		}
	}
}

// ---- X-API-Version header ----

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	v := resp.Header.Get("X-API-Version")
	if v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

// TestAccessLogMiddleware verifies structured access logging is emitted.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()

	// Register middleware
	app.Use(handler.AccessLogMiddleware())

	// Simple test route
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	// Make request
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	// Verify response body
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}

// ---- Caching headers ----

func TestCacheControlAndETag(t *testing.T) {
	repo := &mockFieldRepo{
		listFn: func(ctx context.Context) ([]domain.Field, error) {
			return []domain.Field{makeField("f1", domain.FieldStatusActive, -2.93, 43.26)}, nil
		},
	}
	app := setupApp(makeDeps(withRepo(repo)))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/fields", nil), -1)
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=30" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
	etag := resp.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak ETag, got %q", etag)
	}

	req := httptest.NewRequest("GET", "/v1/fields", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != fiber.StatusNotModified {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/geo/polygons", nil), -1)
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("legacy list: unexpected Cache-Control %q", cc)
	}
}
