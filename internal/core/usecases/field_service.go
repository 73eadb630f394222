package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/pkg/geospatial"
	"github.com/samirrijal/fieldmap/internal/pkg/metrics"
)

var fieldTracer = otel.Tracer("github.com/samirrijal/fieldmap/usecases/fields")

const (
	cacheKeyAllFields = "fields:all"
	cacheKeyFieldByID = "fields:id:"

	minFieldNameLen = 2
	maxFieldNameLen = 50
)

// FieldService handles field-related business logic.
type FieldService struct {
	fields    ports.FieldRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
	area      *geospatial.AreaCalculator
	now       func() time.Time
}

// NewFieldService creates a new FieldService. cache and publisher may be nil.
func NewFieldService(fields ports.FieldRepository, cache ports.CacheService, publisher ports.EventPublisher) *FieldService {
	return &FieldService{
		fields:    fields,
		cache:     cache,
		publisher: publisher,
		area:      geospatial.DefaultAreaCalculator,
		now:       time.Now,
	}
}

// List returns every field.
func (s *FieldService) List(ctx context.Context) ([]domain.Field, error) {
	ctx, span := fieldTracer.Start(ctx, "fields.list")
	defer span.End()

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKeyAllFields); err == nil {
			var fields []domain.Field
			if err := json.Unmarshal(data, &fields); err == nil {
				metrics.CacheHits.WithLabelValues("fields_list").Inc()
				return fields, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("fields_list").Inc()
	}

	fields, err := s.fields.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Cache for 5 minutes
	if s.cache != nil {
		if data, err := json.Marshal(fields); err == nil {
			_ = s.cache.Set(ctx, cacheKeyAllFields, data, 300)
		}
	}

	return fields, nil
}

// GetByID returns a single field.
func (s *FieldService) GetByID(ctx context.Context, id string) (*domain.Field, error) {
	cacheKey := cacheKeyFieldByID + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var field domain.Field
			if err := json.Unmarshal(data, &field); err == nil {
				metrics.CacheHits.WithLabelValues("fields_get").Inc()
				return &field, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("fields_get").Inc()
	}

	field, err := s.fields.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(field); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600) // 10 min for single field
		}
	}

	return field, nil
}

// Prepare validates in and builds the field to persist: the name is trimmed,
// the status defaults to active, the boundary ring is closed and checked, and
// the area is computed.
func (s *FieldService) Prepare(in domain.CreateFieldInput) (*domain.Field, error) {
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < minFieldNameLen || n > maxFieldNameLen {
		return nil, fmt.Errorf("%w: name must be %d-%d characters", domain.ErrInvalidField, minFieldNameLen, maxFieldNameLen)
	}

	status := in.Status
	if status == "" {
		status = domain.FieldStatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidField, status)
	}

	if in.Geometry.IsEmpty() {
		return nil, fmt.Errorf("%w: boundary is required", domain.ErrInvalidField)
	}
	ring := geospatial.EnsureClosedRing(in.Geometry.Outer())
	if err := geospatial.ValidateRing(ring); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidField, err)
	}

	return &domain.Field{
		Name:         name,
		Status:       status,
		Boundary:     domain.NewPolygon(ring),
		AreaHectares: geospatial.SquareMetersToHectares(s.area.ComputeArea(ring)),
		CreatedAt:    s.now().UTC(),
	}, nil
}

// Persist stores a prepared field and invalidates the list cache.
func (s *FieldService) Persist(ctx context.Context, field *domain.Field) error {
	if err := s.fields.Create(ctx, field); err != nil {
		return fmt.Errorf("create field: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, cacheKeyAllFields)
	}
	metrics.FieldsCreated.WithLabelValues(string(field.Status)).Inc()
	return nil
}

// PublishCreated announces a stored field.
func (s *FieldService) PublishCreated(ctx context.Context, field *domain.Field) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishFieldCreated(ctx, field)
}

// Create validates, stores and announces a new field. Publishing is
// best-effort; the field is returned even when it fails.
func (s *FieldService) Create(ctx context.Context, in domain.CreateFieldInput) (*domain.Field, error) {
	ctx, span := fieldTracer.Start(ctx, "fields.create")
	defer span.End()

	field, err := s.Prepare(in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.Persist(ctx, field); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("field_id", field.ID),
		attribute.Float64("area_ha", field.AreaHectares),
	)

	if err := s.PublishCreated(ctx, field); err != nil {
		slog.WarnContext(ctx, "publish field created failed", "field_id", field.ID, "error", err)
	}
	return field, nil
}

// CreateFromDrawing creates a field from the latest drawn polygon of a
// drawing session.
func (s *FieldService) CreateFromDrawing(ctx context.Context, name string, status domain.FieldStatus, drawn domain.PolygonDrawn) (*domain.Field, error) {
	return s.Create(ctx, domain.CreateFieldInput{
		Name:     name,
		Status:   status,
		Geometry: drawn.Geometry,
	})
}

// Delete removes a field.
func (s *FieldService) Delete(ctx context.Context, id string) error {
	if err := s.Discard(ctx, id); err != nil {
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishFieldDeleted(ctx, id); err != nil {
			slog.WarnContext(ctx, "publish field deleted failed", "field_id", id, "error", err)
		}
	}
	return nil
}

// Discard removes a field and invalidates its cache entries without
// announcing it. Used to roll back a field that was never published.
func (s *FieldService) Discard(ctx context.Context, id string) error {
	if err := s.fields.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, cacheKeyAllFields)
		_ = s.cache.Delete(ctx, cacheKeyFieldByID+id)
	}
	return nil
}

// AllBounds returns the bounds covering every field.
func (s *FieldService) AllBounds(ctx context.Context) (domain.Bounds, error) {
	fields, err := s.List(ctx)
	if err != nil {
		return domain.Bounds{}, err
	}
	if len(fields) == 0 {
		return domain.Bounds{}, domain.ErrNoFields
	}
	polys := make([]domain.Polygon, 0, len(fields))
	for _, f := range fields {
		polys = append(polys, f.Boundary)
	}
	return geospatial.UnionBounds(polys)
}
