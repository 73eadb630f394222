package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
)

const publishTimeout = 5 * time.Second

// MapSessionDeps wires a MapSession.
type MapSessionDeps struct {
	Fields    ports.FieldCreator
	Publisher ports.EventPublisher
	Drawing   DrawingConfig
	Viewport  ViewportConfig
	Logger    *slog.Logger
}

// MapSession is one connected map view: a drawing session, a viewport
// controller and a selection follower over the same surface. Drawn polygons
// are forwarded to the event publisher and to the host callbacks.
type MapSession struct {
	ID        string
	Drawing   *DrawingSessionManager
	Viewport  *ViewportController
	Selection *SelectionFollower

	surface   ports.MapSurface
	fields    ports.FieldCreator
	publisher ports.EventPublisher
	logger    *slog.Logger

	mu        sync.Mutex
	host      DrawingCallbacks
	lastDrawn *domain.PolygonDrawn
	closeOnce sync.Once
}

// NewMapSession creates a session over surface. An empty id gets a random one.
func NewMapSession(id string, surface ports.MapSurface, deps MapSessionDeps) *MapSession {
	if id == "" {
		id = uuid.NewString()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	s := &MapSession{
		ID:        id,
		surface:   surface,
		fields:    deps.Fields,
		publisher: deps.Publisher,
		logger:    logger,
	}
	s.Drawing = NewDrawingSessionManager(surface, deps.Drawing, logger)
	s.Viewport = NewViewportController(surface, deps.Viewport, logger)
	s.Selection = NewSelectionFollower(s.Viewport, logger)

	s.Drawing.SetCallbacks(DrawingCallbacks{
		OnPolygonDrawn:      s.onPolygonDrawn,
		OnPolygonCleared:    s.onPolygonCleared,
		OnDrawingModeChange: s.onDrawingModeChange,
	})
	return s
}

// SetCallbacks sets the host callbacks that receive the forwarded events.
func (s *MapSession) SetCallbacks(cb DrawingCallbacks) {
	s.mu.Lock()
	s.host = cb
	s.mu.Unlock()
}

// LastDrawn returns the latest state of the drawn polygon, if any.
func (s *MapSession) LastDrawn() (domain.PolygonDrawn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastDrawn == nil {
		return domain.PolygonDrawn{}, false
	}
	return *s.lastDrawn, true
}

// CommitDrawing creates a field from the drawn polygon, then ends the drawing
// session and removes the drawn shape. On failure the drawing is kept so the
// host can retry.
func (s *MapSession) CommitDrawing(ctx context.Context, name string, status domain.FieldStatus) (*domain.Field, error) {
	drawn, ok := s.LastDrawn()
	if !ok {
		return nil, domain.ErrNoDrawing
	}
	if s.fields == nil {
		return nil, fmt.Errorf("commit drawing: no field creator configured")
	}

	field, err := s.fields.Create(ctx, domain.CreateFieldInput{
		Name:     name,
		Status:   status,
		Geometry: drawn.Geometry,
	})
	if err != nil {
		return nil, fmt.Errorf("commit drawing: %w", err)
	}

	s.Drawing.Cancel()
	if err := guardSurface("remove drawn layer", func() error {
		s.surface.RemoveLayer(drawn.ShapeID)
		return nil
	}); err != nil {
		s.logger.Warn("drawn shape not removed", "shape_id", drawn.ShapeID, "error", err)
	}

	s.mu.Lock()
	s.lastDrawn = nil
	s.mu.Unlock()

	s.logger.Info("drawing committed", "field_id", field.ID, "area_ha", field.AreaHectares)
	return field, nil
}

// Close releases the drawing session and the viewport controller.
func (s *MapSession) Close() {
	s.closeOnce.Do(func() {
		s.Drawing.Close()
		s.Viewport.Close()
	})
}

func (s *MapSession) onPolygonDrawn(ev domain.PolygonDrawn) {
	s.mu.Lock()
	s.lastDrawn = &ev
	cb := s.host.OnPolygonDrawn
	s.mu.Unlock()

	if s.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.publisher.PublishPolygonDrawn(ctx, s.ID, &ev); err != nil {
			s.logger.Warn("publish polygon drawn failed", "error", err)
		}
		cancel()
	}
	if cb != nil {
		cb(ev)
	}
}

func (s *MapSession) onPolygonCleared(ev domain.PolygonCleared) {
	s.mu.Lock()
	s.lastDrawn = nil
	cb := s.host.OnPolygonCleared
	s.mu.Unlock()

	if s.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.publisher.PublishPolygonCleared(ctx, s.ID, &ev); err != nil {
			s.logger.Warn("publish polygon cleared failed", "error", err)
		}
		cancel()
	}
	if cb != nil {
		cb(ev)
	}
}

func (s *MapSession) onDrawingModeChange(drawing bool) {
	s.mu.Lock()
	cb := s.host.OnDrawingModeChange
	s.mu.Unlock()
	if cb != nil {
		cb(drawing)
	}
}
