package usecases_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
)

// --- Fake map surface ---

type fitCall struct {
	bounds domain.Bounds
	opts   domain.FitOptions
}

type fakeSurface struct {
	mu          sync.Mutex
	handlers    map[domain.SurfaceEvent]map[int]func(domain.Shape)
	nextHandler int
	layers      []domain.Shape

	enableErr   error
	enablePanic bool
	flyErr      error
	flyPanic    bool
	fitErr      error
	// onEnable runs after a successful EnableDraw, before it returns.
	onEnable func()

	enableCalls  int
	disableCalls int
	drawKind     domain.ShapeKind
	drawOpts     domain.DrawOptions
	styleCalls   int
	style        domain.PathStyle
	removed      []string
	flyCalls     []fitCall
	fitCalls     []fitCall
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{handlers: make(map[domain.SurfaceEvent]map[int]func(domain.Shape))}
}

func (f *fakeSurface) On(ev domain.SurfaceEvent, h func(domain.Shape)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[ev] == nil {
		f.handlers[ev] = make(map[int]func(domain.Shape))
	}
	id := f.nextHandler
	f.nextHandler++
	f.handlers[ev][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[ev], id)
	}
}

func (f *fakeSurface) emit(ev domain.SurfaceEvent, s domain.Shape) {
	f.mu.Lock()
	hs := make([]func(domain.Shape), 0, len(f.handlers[ev]))
	for _, h := range f.handlers[ev] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(s)
	}
}

func (f *fakeSurface) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

func (f *fakeSurface) EnableDraw(kind domain.ShapeKind, opts domain.DrawOptions) error {
	f.mu.Lock()
	f.enableCalls++
	if f.enablePanic {
		f.mu.Unlock()
		panic("map not mounted")
	}
	if f.enableErr != nil {
		err := f.enableErr
		f.mu.Unlock()
		return err
	}
	f.drawKind = kind
	f.drawOpts = opts
	hook := f.onEnable
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeSurface) DisableDraw() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disableCalls++
}

func (f *fakeSurface) SetPathStyle(style domain.PathStyle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.styleCalls++
	f.style = style
}

func (f *fakeSurface) Layers() []domain.Shape {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Shape, len(f.layers))
	copy(out, f.layers)
	return out
}

func (f *fakeSurface) addLayer(s domain.Shape) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layers = append(f.layers, s)
}

// RemoveLayer drops the layer and raises the remove event, like the real surface.
func (f *fakeSurface) RemoveLayer(id string) {
	f.mu.Lock()
	var removed *domain.Shape
	for i, s := range f.layers {
		if s.ID == id {
			s := s
			removed = &s
			f.layers = append(f.layers[:i], f.layers[i+1:]...)
			break
		}
	}
	f.removed = append(f.removed, id)
	f.mu.Unlock()
	if removed != nil {
		f.emit(domain.EventShapeRemoved, *removed)
	}
}

func (f *fakeSurface) FlyToBounds(b domain.Bounds, opts domain.FitOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flyPanic {
		panic("bad latlng")
	}
	if f.flyErr != nil {
		return f.flyErr
	}
	f.flyCalls = append(f.flyCalls, fitCall{b, opts})
	return nil
}

func (f *fakeSurface) FitBounds(b domain.Bounds, opts domain.FitOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fitErr != nil {
		return f.fitErr
	}
	f.fitCalls = append(f.fitCalls, fitCall{b, opts})
	return nil
}

func (f *fakeSurface) counts() (enable, disable, fly, fit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enableCalls, f.disableCalls, len(f.flyCalls), len(f.fitCalls)
}

// --- Drawing callback recorder ---

type drawRecorder struct {
	mu      sync.Mutex
	drawn   []domain.PolygonDrawn
	cleared []domain.PolygonCleared
	modes   []bool
}

func (r *drawRecorder) callbacks() usecases.DrawingCallbacks {
	return usecases.DrawingCallbacks{
		OnPolygonDrawn: func(ev domain.PolygonDrawn) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.drawn = append(r.drawn, ev)
		},
		OnPolygonCleared: func(ev domain.PolygonCleared) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.cleared = append(r.cleared, ev)
		},
		OnDrawingModeChange: func(drawing bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.modes = append(r.modes, drawing)
		},
	}
}

func (r *drawRecorder) drawnEvents() []domain.PolygonDrawn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PolygonDrawn, len(r.drawn))
	copy(out, r.drawn)
	return out
}

func (r *drawRecorder) clearedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cleared)
}

func (r *drawRecorder) modeChanges() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.modes))
	copy(out, r.modes)
	return out
}

// --- Mock FieldRepository ---

type mockFieldRepo struct {
	createFn  func(ctx context.Context, field *domain.Field) error
	getByIDFn func(ctx context.Context, id string) (*domain.Field, error)
	listFn    func(ctx context.Context) ([]domain.Field, error)
	deleteFn  func(ctx context.Context, id string) error
}

func (m *mockFieldRepo) Create(ctx context.Context, field *domain.Field) error {
	if m.createFn != nil {
		return m.createFn(ctx, field)
	}
	field.ID = "generated"
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

// --- Mock CacheService ---

type mockCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (c *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, domain.ErrNotFound
}

func (c *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu         sync.Mutex
	drawn      []string
	cleared    []string
	created    []string
	deleted    []string
	createdErr error
	drawnFn    func(sessionID string, ev *domain.PolygonDrawn) error
}

func (p *mockPublisher) PublishPolygonDrawn(ctx context.Context, sessionID string, ev *domain.PolygonDrawn) error {
	p.mu.Lock()
	p.drawn = append(p.drawn, sessionID)
	fn := p.drawnFn
	p.mu.Unlock()
	if fn != nil {
		return fn(sessionID, ev)
	}
	return nil
}

func (p *mockPublisher) PublishPolygonCleared(ctx context.Context, sessionID string, ev *domain.PolygonCleared) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, sessionID)
	return nil
}

func (p *mockPublisher) PublishFieldCreated(ctx context.Context, field *domain.Field) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, field.ID)
	return p.createdErr
}

func (p *mockPublisher) PublishFieldDeleted(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

// --- Helpers ---

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// square returns an open ring of about side meters near Bilbao.
func square(lon, lat, side float64) domain.Ring {
	dLat := side / 111320.0
	dLon := side / 81100.0
	return domain.Ring{{lon, lat}, {lon + dLon, lat}, {lon + dLon, lat + dLat}, {lon, lat + dLat}}
}

func polygonShape(id string, ring domain.Ring) domain.Shape {
	return domain.Shape{ID: id, Kind: domain.ShapePolygon, Rings: []domain.Ring{ring}}
}

func testField(id string, ring domain.Ring) domain.Field {
	closed := append(ring.Clone(), ring[0])
	return domain.Field{
		ID:       id,
		Name:     "Field " + id,
		Status:   domain.FieldStatusActive,
		Boundary: domain.NewPolygon(closed),
	}
}
