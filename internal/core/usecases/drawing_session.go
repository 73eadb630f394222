package usecases

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/pkg/geospatial"
	"github.com/samirrijal/fieldmap/internal/pkg/metrics"
)

// Detection sources for a finished shape.
const (
	sourceEvent = "event"
	sourcePoll  = "poll"
)

// DrawingCallbacks receives the polygon lifecycle of a drawing session. Nil
// entries are skipped.
type DrawingCallbacks struct {
	OnPolygonDrawn      func(domain.PolygonDrawn)
	OnPolygonCleared    func(domain.PolygonCleared)
	OnDrawingModeChange func(drawing bool)
}

// DrawingConfig tunes a DrawingSessionManager.
type DrawingConfig struct {
	// PollInterval is how often the surface layers are scanned for a finished
	// shape whose finish event was missed.
	PollInterval        time.Duration
	SnapToleranceMeters float64
	// DrawEndSettle delays the mode-change notification after draw end.
	DrawEndSettle time.Duration
	Style         domain.PathStyle
	// Area computes polygon areas; nil uses geospatial.DefaultAreaCalculator.
	Area *geospatial.AreaCalculator
}

// DefaultDrawingConfig returns the stock farm-boundary drawing setup.
func DefaultDrawingConfig() DrawingConfig {
	return DrawingConfig{
		PollInterval:        500 * time.Millisecond,
		SnapToleranceMeters: 15,
		DrawEndSettle:       100 * time.Millisecond,
		Style:               domain.DefaultPathStyle,
	}
}

// DrawingSessionManager turns the raw, unreliable event stream of a drawing
// surface into one de-duplicated polygon lifecycle: Idle, Drawing, Committed.
//
// Finish notifications come from two places, the surface's create event and a
// poll of its layers while Drawing. Both go through the same transition and
// each shape ID is committed at most once. Edits to the committed shape
// re-emit PolygonDrawn with the new geometry.
type DrawingSessionManager struct {
	surface ports.DrawSurface
	cfg     DrawingConfig
	area    *geospatial.AreaCalculator
	logger  *slog.Logger
	now     func() time.Time

	// opMu serialises host operations. Surface event handlers never take it.
	opMu sync.Mutex

	mu         sync.Mutex
	mode       domain.DrawingMode
	toolActive bool
	baseline   map[string]struct{}
	committed  map[string]struct{}
	activeID   string
	active     *domain.Polygon
	callbacks  DrawingCallbacks
	pollStop   chan struct{}
	settle     *time.Timer
	offs       []func()
	closed     bool
}

// NewDrawingSessionManager subscribes to the surface events and applies the
// path style. Close must be called before the surface is torn down.
func NewDrawingSessionManager(surface ports.DrawSurface, cfg DrawingConfig, logger *slog.Logger) *DrawingSessionManager {
	def := DefaultDrawingConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.DrawEndSettle < 0 {
		cfg.DrawEndSettle = def.DrawEndSettle
	}
	if cfg.Style == (domain.PathStyle{}) {
		cfg.Style = def.Style
	}
	area := cfg.Area
	if area == nil {
		area = geospatial.DefaultAreaCalculator
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &DrawingSessionManager{
		surface:   surface,
		cfg:       cfg,
		area:      area,
		logger:    logger.With("component", "drawing"),
		now:       time.Now,
		mode:      domain.DrawingModeIdle,
		committed: make(map[string]struct{}),
	}

	if err := guardSurface("set path style", func() error {
		surface.SetPathStyle(cfg.Style)
		return nil
	}); err != nil {
		m.logger.Warn("path style not applied", "error", err)
	}

	m.subscribe(domain.EventShapeCreated, func(s domain.Shape) { m.handleFinished(s, sourceEvent) })
	m.subscribe(domain.EventShapeEdited, m.handleEdited)
	m.subscribe(domain.EventShapeRemoved, m.handleRemoved)
	m.subscribe(domain.EventDrawStart, func(domain.Shape) { m.logger.Debug("draw started") })
	m.subscribe(domain.EventDrawEnd, func(domain.Shape) { m.handleDrawEnd() })

	return m
}

func (m *DrawingSessionManager) subscribe(ev domain.SurfaceEvent, fn func(domain.Shape)) {
	var off func()
	err := guardSurface("subscribe "+string(ev), func() error {
		off = m.surface.On(ev, fn)
		return nil
	})
	if err != nil {
		m.logger.Error("surface subscription failed", "event", ev, "error", err)
		return
	}
	if off != nil {
		m.offs = append(m.offs, off)
	}
}

// SetCallbacks replaces the callback table. Emissions always use the table
// current at emission time.
func (m *DrawingSessionManager) SetCallbacks(cb DrawingCallbacks) {
	m.mu.Lock()
	m.callbacks = cb
	m.mu.Unlock()
}

// Mode returns the current session state.
func (m *DrawingSessionManager) Mode() domain.DrawingMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Session returns a snapshot of the session state.
func (m *DrawingSessionManager) Session() domain.DrawingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := domain.DrawingSession{Mode: m.mode, ActiveShapeID: m.activeID}
	if m.active != nil {
		p := domain.Polygon{Rings: []domain.Ring{m.active.Outer().Clone()}}
		s.ActivePolygon = &p
	}
	return s
}

// EnableDrawing activates the polygon draw tool and starts watching for a
// finished shape. When activation fails the state is left unchanged and the
// error is returned; the host has to call EnableDrawing again.
//
// The session is Drawing before the tool is activated, so a shape finished
// while activation is still in progress is committed by its create event.
func (m *DrawingSessionManager) EnableDrawing() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrClosed
	}
	if m.mode == domain.DrawingModeDrawing {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	baseline := make(map[string]struct{})
	for _, s := range m.layers() {
		baseline[s.ID] = struct{}{}
	}

	m.mu.Lock()
	m.stopPollLocked()
	prev := m.mode
	m.mode = domain.DrawingModeDrawing
	m.baseline = baseline
	m.mu.Unlock()

	opts := domain.DrawOptions{
		AllowSelfIntersection: false,
		Snapping:              true,
		SnapToleranceMeters:   m.cfg.SnapToleranceMeters,
		ContinueDrawing:       false,
	}
	if err := guardSurface("enable draw", func() error {
		return m.surface.EnableDraw(domain.ShapePolygon, opts)
	}); err != nil {
		m.mu.Lock()
		if m.mode == domain.DrawingModeDrawing {
			m.mode = prev
		}
		m.mu.Unlock()
		metrics.DrawActivationFailures.Inc()
		m.logger.Error("draw tool activation failed", "error", err)
		return fmt.Errorf("enable drawing: %w", err)
	}

	m.mu.Lock()
	m.toolActive = true
	if m.mode != domain.DrawingModeDrawing {
		// A shape was finished during activation.
		m.mu.Unlock()
		m.logger.Info("drawing enabled", "baseline_layers", len(baseline), "finished_during_activation", true)
		return nil
	}
	stop := make(chan struct{})
	m.pollStop = stop
	m.mu.Unlock()

	go m.poll(stop)

	m.logger.Info("drawing enabled", "baseline_layers", len(baseline))
	return nil
}

// DisableDrawing stops accepting new input. The drawn shape stays on the
// surface and edits to it are still reported.
func (m *DrawingSessionManager) DisableDrawing() {
	m.deactivate(false)
}

// Cancel stops drawing and forgets the active shape. The shape itself is left
// on the surface for the host to keep or discard.
func (m *DrawingSessionManager) Cancel() {
	m.deactivate(true)
}

func (m *DrawingSessionManager) deactivate(forget bool) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.stopPollLocked()
	wasActive := m.toolActive
	m.toolActive = false
	prev := m.mode
	m.mode = domain.DrawingModeIdle
	if forget {
		m.activeID = ""
		m.active = nil
	}
	m.mu.Unlock()

	if wasActive {
		m.disableTool()
	}
	if prev != domain.DrawingModeIdle {
		m.logger.Info("drawing disabled", "from", prev.String(), "forget", forget)
	}
}

// Close stops the poll, cancels pending notifications and unsubscribes every
// surface listener. It is safe to call more than once.
func (m *DrawingSessionManager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopPollLocked()
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
	wasActive := m.toolActive
	m.toolActive = false
	m.mode = domain.DrawingModeIdle
	offs := m.offs
	m.offs = nil
	m.mu.Unlock()

	for _, off := range offs {
		_ = guardSurface("unsubscribe", func() error {
			off()
			return nil
		})
	}
	if wasActive {
		m.disableTool()
	}
}

func (m *DrawingSessionManager) handleFinished(shape domain.Shape, source string) {
	if shape.ID == "" || !shape.Kind.Polygonal() {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, dup := m.committed[shape.ID]; dup {
		m.mu.Unlock()
		metrics.DuplicateFinishEvents.Inc()
		m.logger.Debug("ignoring repeated finish", "shape_id", shape.ID, "source", source)
		return
	}
	if m.mode != domain.DrawingModeDrawing {
		m.mu.Unlock()
		return
	}

	ring := geospatial.EnsureClosedRing(shape.OuterRing())
	poly := domain.NewPolygon(ring)
	m.committed[shape.ID] = struct{}{}
	m.activeID = shape.ID
	m.active = &poly
	m.mode = domain.DrawingModeCommitted
	m.stopPollLocked()
	m.mu.Unlock()

	m.discardOthers(shape.ID)

	ev := m.drawnEvent(shape.ID, ring)
	metrics.PolygonsDrawn.WithLabelValues(source).Inc()
	m.logger.Info("polygon drawn",
		"shape_id", shape.ID,
		"source", source,
		"points", len(ring),
		"area_ha", ev.AreaHectares,
	)
	m.emitDrawn(ev)
}

func (m *DrawingSessionManager) handleEdited(shape domain.Shape) {
	m.mu.Lock()
	if m.closed || shape.ID == "" || shape.ID != m.activeID {
		m.mu.Unlock()
		return
	}
	ring := geospatial.EnsureClosedRing(shape.OuterRing())
	poly := domain.NewPolygon(ring)
	m.active = &poly
	m.mu.Unlock()

	ev := m.drawnEvent(shape.ID, ring)
	m.logger.Debug("polygon edited", "shape_id", shape.ID, "area_ha", ev.AreaHectares)
	m.emitDrawn(ev)
}

func (m *DrawingSessionManager) handleRemoved(shape domain.Shape) {
	m.mu.Lock()
	if m.closed || shape.ID == "" || shape.ID != m.activeID {
		m.mu.Unlock()
		return
	}
	m.activeID = ""
	m.active = nil
	if m.mode == domain.DrawingModeCommitted {
		m.mode = domain.DrawingModeIdle
	}
	cb := m.callbacks.OnPolygonCleared
	m.mu.Unlock()

	metrics.PolygonsCleared.Inc()
	m.logger.Info("polygon cleared", "shape_id", shape.ID)
	if cb != nil {
		ev := domain.PolygonCleared{ShapeID: shape.ID, ClearedAt: m.now()}
		m.invoke("polygon cleared", func() { cb(ev) })
	}
}

func (m *DrawingSessionManager) handleDrawEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.settle != nil {
		m.settle.Stop()
	}
	m.settle = time.AfterFunc(m.cfg.DrawEndSettle, func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		cb := m.callbacks.OnDrawingModeChange
		m.mu.Unlock()
		if cb != nil {
			m.invoke("drawing mode change", func() { cb(false) })
		}
	})
}

// poll runs while the session is Drawing and commits any new polygon layer
// that was not announced by a create event.
func (m *DrawingSessionManager) poll(stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.pollStop != stop || m.mode != domain.DrawingModeDrawing {
			m.mu.Unlock()
			return
		}
		baseline := m.baseline
		m.mu.Unlock()

		for _, s := range m.layers() {
			if !s.Kind.Polygonal() {
				continue
			}
			if _, known := baseline[s.ID]; known {
				continue
			}
			if m.isCommitted(s.ID) {
				continue
			}
			m.logger.Warn("finish event missed, recovered by poll", "shape_id", s.ID)
			m.handleFinished(s, sourcePoll)
			return
		}
	}
}

func (m *DrawingSessionManager) isCommitted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.committed[id]
	return ok
}

// stopPollLocked ends the poll goroutine of the current session. m.mu must be held.
func (m *DrawingSessionManager) stopPollLocked() {
	if m.pollStop != nil {
		close(m.pollStop)
		m.pollStop = nil
	}
}

// discardOthers removes every polygon layer except keep. Only one farm
// boundary is drawn at a time.
func (m *DrawingSessionManager) discardOthers(keep string) {
	for _, s := range m.layers() {
		if s.ID == keep || !s.Kind.Polygonal() {
			continue
		}
		id := s.ID
		if err := guardSurface("remove layer", func() error {
			m.surface.RemoveLayer(id)
			return nil
		}); err != nil {
			m.logger.Warn("could not discard polygon", "shape_id", id, "error", err)
		}
	}
}

func (m *DrawingSessionManager) layers() []domain.Shape {
	var out []domain.Shape
	if err := guardSurface("list layers", func() error {
		out = m.surface.Layers()
		return nil
	}); err != nil {
		m.logger.Warn("listing surface layers failed", "error", err)
		return nil
	}
	return out
}

func (m *DrawingSessionManager) disableTool() {
	if err := guardSurface("disable draw", func() error {
		m.surface.DisableDraw()
		return nil
	}); err != nil {
		m.logger.Warn("draw tool deactivation failed", "error", err)
	}
}

func (m *DrawingSessionManager) drawnEvent(id string, ring domain.Ring) domain.PolygonDrawn {
	return domain.PolygonDrawn{
		ShapeID:         id,
		Geometry:        domain.NewPolygon(ring),
		AreaHectares:    geospatial.SquareMetersToHectares(m.area.ComputeArea(ring)),
		PerimeterMeters: geospatial.Perimeter(ring),
		DrawnAt:         m.now(),
	}
}

func (m *DrawingSessionManager) emitDrawn(ev domain.PolygonDrawn) {
	m.mu.Lock()
	cb := m.callbacks.OnPolygonDrawn
	m.mu.Unlock()
	if cb != nil {
		m.invoke("polygon drawn", func() { cb(ev) })
	}
}

func (m *DrawingSessionManager) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}
