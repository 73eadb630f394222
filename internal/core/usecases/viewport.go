package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/pkg/geospatial"
	"github.com/samirrijal/fieldmap/internal/pkg/metrics"
)

var viewportTracer = otel.Tracer("github.com/samirrijal/fieldmap/usecases/viewport")

// ViewportConfig tunes a ViewportController.
type ViewportConfig struct {
	// CompletionGrace bounds how long past the animation duration a camera
	// completion notification is awaited.
	CompletionGrace time.Duration
	// MinSpanMeters widens degenerate bounds, such as a single point, so they
	// can still be framed.
	MinSpanMeters float64
}

// DefaultViewportConfig returns the stock controller settings.
func DefaultViewportConfig() ViewportConfig {
	return ViewportConfig{
		CompletionGrace: 250 * time.Millisecond,
		MinSpanMeters:   50,
	}
}

type pendingTransition struct {
	id      uint64
	target  domain.TransitionTarget
	started time.Time
	timer   *time.Timer
	stop    chan struct{}
	done    chan error
}

// ViewportController drives camera transitions to one field or to all
// fields. Only the latest request completes normally; older in-flight
// requests are settled with ErrTransitionSuperseded.
type ViewportController struct {
	camera   ports.Camera
	notifier ports.AnimationNotifier
	cfg      ViewportConfig
	logger   *slog.Logger

	// moveMu is held from the start of a request until its camera call has
	// been issued, so camera moves are never interleaved.
	moveMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending *pendingTransition
	closed  bool
}

// NewViewportController creates a controller for camera. If camera also
// implements ports.AnimationNotifier its completion signal replaces the timer.
func NewViewportController(camera ports.Camera, cfg ViewportConfig, logger *slog.Logger) *ViewportController {
	if cfg.CompletionGrace <= 0 {
		cfg.CompletionGrace = DefaultViewportConfig().CompletionGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &ViewportController{
		camera: camera,
		cfg:    cfg,
		logger: logger.With("component", "viewport"),
	}
	if n, ok := camera.(ports.AnimationNotifier); ok {
		c.notifier = n
	}
	return c
}

// TransitionToField frames a single field. It returns when the animation has
// completed, immediately for non-animated transitions, ErrTransitionSuperseded
// when a newer request replaced it, ErrTransitionCancelled after
// CancelTransition, or ctx.Err().
func (c *ViewportController) TransitionToField(ctx context.Context, field domain.Field, opts domain.TransitionOptions) error {
	b, err := geospatial.PolygonBounds(field.Boundary)
	req := domain.TransitionRequest{
		Target:  domain.TargetSingleField,
		FieldID: field.ID,
		Bounds:  b,
		Options: opts,
	}
	return c.run(ctx, req, err, []domain.Polygon{field.Boundary})
}

// TransitionToAllFields frames the union of every field boundary. An empty
// field list is rejected with ErrNoFields and leaves any in-flight transition
// untouched.
func (c *ViewportController) TransitionToAllFields(ctx context.Context, fields []domain.Field, opts domain.TransitionOptions) error {
	if len(fields) == 0 {
		return fmt.Errorf("transition to all fields: %w", domain.ErrNoFields)
	}
	polys := make([]domain.Polygon, 0, len(fields))
	for _, f := range fields {
		polys = append(polys, f.Boundary)
	}
	b, err := geospatial.UnionBounds(polys)
	req := domain.TransitionRequest{
		Target:  domain.TargetAllFields,
		Bounds:  b,
		Options: opts,
	}
	return c.run(ctx, req, err, polys)
}

// CancelTransition settles the in-flight transition with
// ErrTransitionCancelled without moving the camera.
func (c *ViewportController) CancelTransition() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.settleLocked(c.pending, domain.ErrTransitionCancelled)
	}
}

// IsTransitioning reports whether a transition has not yet completed.
func (c *ViewportController) IsTransitioning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Close cancels any pending transition. Later requests return ErrClosed.
func (c *ViewportController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.pending != nil {
		c.settleLocked(c.pending, domain.ErrTransitionCancelled)
	}
}

func (c *ViewportController) run(ctx context.Context, req domain.TransitionRequest, boundsErr error, raw []domain.Polygon) error {
	ctx, span := viewportTracer.Start(ctx, "viewport.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", req.Target.String()),
		attribute.String("field_id", req.FieldID),
		attribute.Bool("animate", req.Options.Animate),
		attribute.Int64("duration_ms", req.Options.Duration.Milliseconds()),
	)

	c.moveMu.Lock()
	p, err := c.begin(req)
	if err != nil {
		c.moveMu.Unlock()
		return err
	}

	fit := domain.FitOptions{
		PaddingPx: req.Options.PaddingPx,
		MaxZoom:   req.Options.MaxZoom,
		Duration:  req.Options.Duration,
	}
	animated := req.Options.Animate && req.Options.Duration > 0

	moveErr := boundsErr
	var notify <-chan struct{}
	if moveErr == nil {
		b := geospatial.ExpandToMinimum(req.Bounds, c.cfg.MinSpanMeters)
		switch {
		case !animated:
			fit.Duration = 0
			moveErr = guardSurface("fit bounds", func() error { return c.camera.FitBounds(b, fit) })
		case c.notifier != nil:
			moveErr = guardSurface("fly to bounds", func() error {
				ch, err := c.notifier.FlyToBoundsNotify(b, fit)
				notify = ch
				return err
			})
		default:
			moveErr = guardSurface("fly to bounds", func() error { return c.camera.FlyToBounds(b, fit) })
		}
	}

	if moveErr != nil {
		c.fallback(req, raw, moveErr)
		span.SetAttributes(attribute.Bool("fallback", true))
		c.finish(p, nil)
		c.moveMu.Unlock()
		return nil
	}
	if !animated {
		c.finish(p, nil)
		c.moveMu.Unlock()
		return nil
	}

	c.arm(p, req.Options.Duration, notify)
	c.moveMu.Unlock()

	select {
	case err := <-p.done:
		if err != nil {
			span.SetAttributes(attribute.String("outcome", err.Error()))
		}
		return err
	case <-ctx.Done():
		c.finish(p, ctx.Err())
		return ctx.Err()
	}
}

// begin registers req as the in-flight transition, superseding the previous one.
func (c *ViewportController) begin(req domain.TransitionRequest) (*pendingTransition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, domain.ErrClosed
	}
	if c.pending != nil {
		metrics.TransitionsSuperseded.Inc()
		c.logger.Debug("transition superseded", "id", c.pending.id, "target", c.pending.target.String())
		c.settleLocked(c.pending, domain.ErrTransitionSuperseded)
	}
	c.seq++
	p := &pendingTransition{
		id:      c.seq,
		target:  req.Target,
		started: time.Now(),
		stop:    make(chan struct{}),
		done:    make(chan error, 1),
	}
	c.pending = p
	metrics.TransitionsStarted.WithLabelValues(req.Target.String()).Inc()
	return p, nil
}

// arm starts the completion signal for p: the camera notification when
// available, otherwise a timer matched to the animation duration.
func (c *ViewportController) arm(p *pendingTransition, d time.Duration, notify <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != p {
		return
	}
	if notify == nil {
		p.timer = time.AfterFunc(d, func() { c.finish(p, nil) })
		return
	}

	bound := d + c.cfg.CompletionGrace
	go func() {
		t := time.NewTimer(bound)
		defer t.Stop()
		select {
		case <-notify:
			c.finish(p, nil)
		case <-t.C:
			c.logger.Warn("camera completion not signalled, settling by timer", "id", p.id, "after", bound)
			c.finish(p, nil)
		case <-p.stop:
		}
	}()
}

func (c *ViewportController) finish(p *pendingTransition, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != p {
		return
	}
	c.settleLocked(p, err)
	if err == nil {
		metrics.TransitionDuration.WithLabelValues(p.target.String()).Observe(time.Since(p.started).Seconds())
	}
}

// settleLocked resolves p exactly once. c.mu must be held and p must be pending.
func (c *ViewportController) settleLocked(p *pendingTransition, err error) {
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.stop)
	p.done <- err
	c.pending = nil
}

// fallback frames best-effort bounds taken straight from the raw coordinates
// with no animation.
func (c *ViewportController) fallback(req domain.TransitionRequest, raw []domain.Polygon, cause error) {
	metrics.TransitionFallbacks.Inc()
	c.logger.Warn("transition failed, falling back to instant fit",
		"target", req.Target.String(),
		"field_id", req.FieldID,
		"error", cause,
	)

	b, ok := geospatial.RawBounds(raw...)
	if !ok {
		c.logger.Error("no usable coordinates for fallback fit", "target", req.Target.String())
		return
	}
	b = geospatial.ExpandToMinimum(b, c.cfg.MinSpanMeters)
	fit := domain.FitOptions{PaddingPx: req.Options.PaddingPx, MaxZoom: req.Options.MaxZoom}
	if err := guardSurface("fallback fit", func() error { return c.camera.FitBounds(b, fit) }); err != nil {
		c.logger.Error("fallback fit failed", "error", err)
	}
}

// guardSurface calls fn, turning a panic from the injected surface into an error.
func guardSurface(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: surface panicked: %v", op, r)
		}
	}()
	return fn()
}
