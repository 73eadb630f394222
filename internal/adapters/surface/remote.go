// Package surface bridges a map view running in a websocket client to the
// ports.MapSurface used by the drawing and viewport components.
package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
)

// Conn is the write side of a client connection.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Options configures a Remote.
type Options struct {
	// AckTimeout bounds how long EnableDraw waits for the client.
	AckTimeout time.Duration
	// MoveEndEvents is set when the client reports the end of camera
	// animations with a moveend message.
	MoveEndEvents bool
	Logger        *slog.Logger
}

// Remote is a map surface whose view lives in a websocket client. Commands
// are written to the client; events and layer snapshots come back through
// Dispatch. Layers is served from a local mirror of the client's layers.
type Remote struct {
	conn   Conn
	opts   Options
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[domain.SurfaceEvent]map[uint64]func(domain.Shape)
	nextID   uint64
	layers   map[string]domain.Shape
	order    []string
	refs     map[string]string
	acks     map[string]chan error
	moves    map[string]chan struct{}
	closed   bool
}

// New creates a Remote writing to conn.
func New(conn Conn, opts Options) *Remote {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		conn:     conn,
		opts:     opts,
		logger:   logger.With("component", "remote_surface"),
		handlers: make(map[domain.SurfaceEvent]map[uint64]func(domain.Shape)),
		layers:   make(map[string]domain.Shape),
		refs:     make(map[string]string),
		acks:     make(map[string]chan error),
		moves:    make(map[string]chan struct{}),
	}
}

// Surface returns r as a ports.MapSurface, with completion notification when
// the client reports moveend.
func (r *Remote) Surface() ports.MapSurface {
	if r.opts.MoveEndEvents {
		return &NotifyingRemote{Remote: r}
	}
	return r
}

// Send writes v to the client. Safe for concurrent use. Once Close has run it
// returns domain.ErrClosed without touching the connection.
func (r *Remote) Send(v interface{}) error {
	return r.WithWriteLock(func() error { return r.conn.WriteJSON(v) })
}

// WithWriteLock runs fn holding the connection write lock, for writes such
// as pings that bypass Send. fn is not run after Close.
func (r *Remote) WithWriteLock(fn func() error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.isClosed() {
		return domain.ErrClosed
	}
	return fn()
}

func (r *Remote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Remote) command(cmd Command) error {
	cmd.Type = "command"
	return r.Send(cmd)
}

// On registers handler for ev.
func (r *Remote) On(ev domain.SurfaceEvent, handler func(domain.Shape)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[ev] == nil {
		r.handlers[ev] = make(map[uint64]func(domain.Shape))
	}
	id := r.nextID
	r.nextID++
	r.handlers[ev][id] = handler
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers[ev], id)
	}
}

// EnableDraw asks the client to start the draw tool and waits for its ack.
func (r *Remote) EnableDraw(kind domain.ShapeKind, opts domain.DrawOptions) error {
	id := uuid.NewString()
	ch := make(chan error, 1)
	r.mu.Lock()
	r.acks[id] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.acks, id)
		r.mu.Unlock()
	}()

	if err := r.command(Command{ID: id, Op: OpEnableDraw, Kind: kind, Draw: &opts}); err != nil {
		return fmt.Errorf("send enable draw: %w", err)
	}

	t := time.NewTimer(r.opts.AckTimeout)
	defer t.Stop()
	select {
	case err := <-ch:
		return err
	case <-t.C:
		return fmt.Errorf("enable draw: no ack within %s", r.opts.AckTimeout)
	}
}

// DisableDraw stops the client draw tool.
func (r *Remote) DisableDraw() {
	if err := r.command(Command{Op: OpDisableDraw}); err != nil {
		r.logger.Warn("disable draw not sent", "error", err)
	}
}

// SetPathStyle sets the style of drawn shapes.
func (r *Remote) SetPathStyle(style domain.PathStyle) {
	if err := r.command(Command{Op: OpSetPathStyle, Style: &style}); err != nil {
		r.logger.Warn("path style not sent", "error", err)
	}
}

// Layers returns the mirrored client layers in the order they appeared.
func (r *Remote) Layers() []domain.Shape {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Shape, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.layers[id])
	}
	return out
}

// RemoveLayer removes a layer locally and on the client.
func (r *Remote) RemoveLayer(id string) {
	r.mu.Lock()
	r.dropLayerLocked(id)
	r.mu.Unlock()
	if err := r.command(Command{Op: OpRemoveLayer, LayerID: id}); err != nil {
		r.logger.Warn("remove layer not sent", "layer_id", id, "error", err)
	}
}

// FlyToBounds starts an animated fit on the client.
func (r *Remote) FlyToBounds(b domain.Bounds, opts domain.FitOptions) error {
	return r.command(Command{Op: OpFlyToBounds, Bounds: boundsParam(b), Fit: fitParams(opts, true)})
}

// FitBounds frames b on the client without animation.
func (r *Remote) FitBounds(b domain.Bounds, opts domain.FitOptions) error {
	return r.command(Command{Op: OpFitBounds, Bounds: boundsParam(b), Fit: fitParams(opts, false)})
}

// Dispatch applies one message from the client.
func (r *Remote) Dispatch(data []byte) error {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode surface message: %w", err)
	}

	switch msg.Type {
	case TypeAck:
		r.mu.Lock()
		ch, ok := r.acks[msg.ID]
		delete(r.acks, msg.ID)
		r.mu.Unlock()
		if ok {
			var err error
			if msg.Error != "" {
				err = errors.New(msg.Error)
			}
			ch <- err
		}
	case TypeMoveEnd:
		r.mu.Lock()
		ch, ok := r.moves[msg.ID]
		delete(r.moves, msg.ID)
		r.mu.Unlock()
		if ok {
			close(ch)
		}
	case TypeLayers:
		r.syncLayers(msg.Layers)
	case TypeEvent:
		return r.dispatchEvent(msg.Event, msg.Shape)
	default:
		return fmt.Errorf("unknown surface message type %q", msg.Type)
	}
	return nil
}

func (r *Remote) dispatchEvent(ev domain.SurfaceEvent, sm *ShapeMessage) error {
	var shape domain.Shape
	if sm != nil {
		shape = r.resolve(*sm)
	}

	r.mu.Lock()
	switch ev {
	case domain.EventShapeCreated, domain.EventShapeEdited:
		if shape.ID == "" {
			r.mu.Unlock()
			return fmt.Errorf("%s without shape", ev)
		}
		r.putLayerLocked(shape)
	case domain.EventShapeRemoved:
		r.dropLayerLocked(shape.ID)
	case domain.EventDrawStart, domain.EventDrawEnd:
	default:
		r.mu.Unlock()
		return fmt.Errorf("unknown surface event %q", ev)
	}
	hs := make([]func(domain.Shape), 0, len(r.handlers[ev]))
	for _, h := range r.handlers[ev] {
		hs = append(hs, h)
	}
	r.mu.Unlock()

	for _, h := range hs {
		h(shape)
	}
	return nil
}

// resolve turns a client shape into a domain shape, assigning an ID when the
// client has none.
func (r *Remote) resolve(sm ShapeMessage) domain.Shape {
	shape := domain.Shape{ID: sm.ID, Kind: sm.Kind, Rings: sm.Rings}
	if shape.ID != "" {
		return shape
	}

	r.mu.Lock()
	id, known := r.refs[sm.Ref]
	if !known {
		id = uuid.NewString()
		if sm.Ref != "" {
			r.refs[sm.Ref] = id
		}
	}
	r.mu.Unlock()

	shape.ID = id
	if !known && sm.Ref != "" {
		if err := r.command(Command{Op: OpAssignID, LayerID: id, Ref: sm.Ref}); err != nil {
			r.logger.Warn("layer id not sent", "ref", sm.Ref, "error", err)
		}
	}
	return shape
}

func (r *Remote) syncLayers(layers []ShapeMessage) {
	shapes := make([]domain.Shape, 0, len(layers))
	for _, sm := range layers {
		shapes = append(shapes, r.resolve(sm))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = make(map[string]domain.Shape, len(shapes))
	r.order = r.order[:0]
	for _, s := range shapes {
		r.putLayerLocked(s)
	}
}

func (r *Remote) putLayerLocked(s domain.Shape) {
	if _, ok := r.layers[s.ID]; !ok {
		r.order = append(r.order, s.ID)
	}
	r.layers[s.ID] = s
}

func (r *Remote) dropLayerLocked(id string) {
	if _, ok := r.layers[id]; !ok {
		return
	}
	delete(r.layers, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for ref, v := range r.refs {
		if v == id {
			delete(r.refs, ref)
		}
	}
}

// Close fails pending acks and stops further writes. It waits for a write in
// progress, so the connection may be released once Close returns.
func (r *Remote) Close() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.acks {
		ch <- domain.ErrClosed
		delete(r.acks, id)
	}
	r.moves = make(map[string]chan struct{})
}

// NotifyingRemote is a Remote whose client reports animation completion.
type NotifyingRemote struct {
	*Remote
}

// FlyToBoundsNotify starts an animated fit and returns a channel closed when
// the client reports moveend for it.
func (n *NotifyingRemote) FlyToBoundsNotify(b domain.Bounds, opts domain.FitOptions) (<-chan struct{}, error) {
	id := uuid.NewString()
	ch := make(chan struct{})
	n.mu.Lock()
	n.moves[id] = ch
	n.mu.Unlock()

	fit := fitParams(opts, true)
	fit.Notify = true
	if err := n.command(Command{ID: id, Op: OpFlyToBounds, Bounds: boundsParam(b), Fit: fit}); err != nil {
		n.mu.Lock()
		delete(n.moves, id)
		n.mu.Unlock()
		return nil, err
	}
	return ch, nil
}
