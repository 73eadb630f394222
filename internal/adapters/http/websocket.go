package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/fieldmap/internal/adapters/surface"
	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
	"github.com/samirrijal/fieldmap/internal/pkg/metrics"
)

const (
	wsPingInterval = 30 * time.Second
	wsOpTimeout    = 15 * time.Second
)

// mapMessage is a host request from a map client. Surface messages (events,
// acks, layer snapshots) share the connection and are routed to the bridge.
type mapMessage struct {
	Type    string             `json:"type"`
	ID      string             `json:"id,omitempty"`
	Name    string             `json:"name,omitempty"`
	Status  domain.FieldStatus `json:"field_status,omitempty"`
	FieldID string             `json:"field_id,omitempty"`
	Auto    bool               `json:"auto,omitempty"`
}

// mapReply is sent to a map client.
type mapReply struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Op      string      `json:"op,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Drawing *bool       `json:"drawing,omitempty"`
}

// mapConn is the part of a websocket connection a map session uses.
type mapConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
}

// mapSessionParams are the per-connection settings of a map session.
type mapSessionParams struct {
	ID      string
	MoveEnd bool
	Logger  *slog.Logger
}

// MapSessionHandler returns a handler that runs one map session per
// connection. The client map acts as the drawing surface and camera; host
// operations arrive as typed messages:
//
//	{"type":"enable_drawing"} {"type":"disable_drawing"} {"type":"cancel_drawing"}
//	{"type":"commit","name":"North","field_status":"active"}
//	{"type":"select","field_id":"...","auto":false}
//	{"type":"frame_field","field_id":"..."} {"type":"frame_all"} {"type":"cancel_transition"}
func MapSessionHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		runMapSession(c, deps, mapSessionParams{
			ID:      c.Query("session"),
			MoveEnd: c.Query("moveend") == "1",
			Logger:  slog.Default().With("remote_addr", c.RemoteAddr().String()),
		})
	}
}

// runMapSession serves a map session on c until reading fails. It returns
// only after every goroutine writing to c has finished, since the connection
// is reused once the handler returns.
func runMapSession(c mapConn, deps *Dependencies, p mapSessionParams) {
	metrics.ActiveWebSockets.Inc()
	metrics.ActiveMapSessions.Inc()
	defer metrics.ActiveWebSockets.Dec()
	defer metrics.ActiveMapSessions.Dec()

	h := newMapSessionHost(c, deps, p)
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		h.handle(data)
	}
	h.close()
}

// mapSessionHost executes host operations for one map session.
type mapSessionHost struct {
	deps    *Dependencies
	remote  *surface.Remote
	session *usecases.MapSession
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	// ops carries drawing operations to a single worker so they run in
	// order, off the read loop, and the acks they wait for can still be read.
	ops chan mapMessage
	wg  sync.WaitGroup

	mu       sync.Mutex
	selected string
	closing  bool
}

func newMapSessionHost(c mapConn, deps *Dependencies, p mapSessionParams) *mapSessionHost {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	remote := surface.New(c, surface.Options{
		MoveEndEvents: p.MoveEnd,
		Logger:        logger,
	})

	sessDeps := deps.MapSession
	if sessDeps.Fields == nil {
		sessDeps.Fields = deps.creator()
	}
	sessDeps.Logger = logger
	session := usecases.NewMapSession(p.ID, remote.Surface(), sessDeps)

	ctx, cancel := context.WithCancel(context.Background())
	h := &mapSessionHost{
		deps:    deps,
		remote:  remote,
		session: session,
		logger:  logger.With("session_id", session.ID),
		ctx:     ctx,
		cancel:  cancel,
		ops:     make(chan mapMessage, 16),
	}

	session.SetCallbacks(usecases.DrawingCallbacks{
		OnPolygonDrawn: func(ev domain.PolygonDrawn) {
			h.send(mapReply{Type: "polygon_drawn", Data: ev})
		},
		OnPolygonCleared: func(ev domain.PolygonCleared) {
			h.send(mapReply{Type: "polygon_cleared", Data: ev})
		},
		OnDrawingModeChange: func(drawing bool) {
			h.send(mapReply{Type: "drawing_mode", Drawing: &drawing})
		},
	})
	h.send(mapReply{Type: "session", ID: session.ID})
	h.logger.Info("map session opened")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for m := range h.ops {
			h.drawingOp(ctx, m)
		}
	}()

	if deps.Events != nil {
		err := deps.Events.SubscribeFieldEvents(ctx, func(_ context.Context, subject string, _ []byte) error {
			h.send(mapReply{Type: "fields_changed", Op: subject})
			h.spawn(func() { h.refollow(ctx) })
			return nil
		})
		if err != nil {
			h.logger.Warn("field event subscription failed", "error", err)
		}
	}

	h.spawn(func() { keepAlive(c, remote, wsPingInterval, ctx.Done()) })
	return h
}

func (h *mapSessionHost) send(r mapReply) {
	if err := h.remote.Send(r); err != nil {
		h.logger.Debug("ws write failed", "type", r.Type, "error", err)
	}
}

// spawn runs fn on a goroutine that close waits for. It reports false once
// the session is closing.
func (h *mapSessionHost) spawn(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
	return true
}

// handle applies one client message. It is called from the read loop only.
func (h *mapSessionHost) handle(data []byte) {
	var m mapMessage
	if err := json.Unmarshal(data, &m); err != nil {
		h.send(mapReply{Type: "error", Error: "invalid JSON"})
		return
	}

	if surface.Handles(m.Type) {
		if err := h.remote.Dispatch(data); err != nil {
			h.send(mapReply{Type: "error", Op: m.Type, Error: err.Error()})
		}
		return
	}

	switch m.Type {
	case "enable_drawing", "disable_drawing", "cancel_drawing", "commit":
		select {
		case h.ops <- m:
		default:
			h.send(mapReply{Type: "result", ID: m.ID, Op: m.Type, Error: "too many pending operations"})
		}
	case "select", "frame_field", "frame_all":
		// Transitions run concurrently so a newer one can supersede
		// an older one still animating.
		h.spawn(func() { h.transition(h.ctx, m) })
	case "cancel_transition":
		h.session.Viewport.CancelTransition()
		h.send(mapReply{Type: "result", ID: m.ID, Op: m.Type})
	default:
		h.send(mapReply{Type: "error", Error: "unknown message type: " + m.Type})
	}
}

// close stops the session. Pending operations are cancelled, writes are
// refused, and close returns once every session goroutine has exited.
func (h *mapSessionHost) close() {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.cancel()
	h.remote.Close()
	close(h.ops)
	h.wg.Wait()
	h.session.Close()
	h.logger.Info("map session closed")
}

func (h *mapSessionHost) drawingOp(ctx context.Context, m mapMessage) {
	reply := mapReply{Type: "result", ID: m.ID, Op: m.Type}
	switch m.Type {
	case "enable_drawing":
		if err := h.session.Drawing.EnableDrawing(); err != nil {
			reply.Error = err.Error()
		}
	case "disable_drawing":
		h.session.Drawing.DisableDrawing()
	case "cancel_drawing":
		h.session.Drawing.Cancel()
	case "commit":
		opCtx, cancel := context.WithTimeout(ctx, wsOpTimeout)
		field, err := h.session.CommitDrawing(opCtx, m.Name, m.Status)
		cancel()
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Data = FieldResponse{Field: *field, Color: field.Color("")}
		}
	}
	h.send(reply)
}

func (h *mapSessionHost) transition(ctx context.Context, m mapMessage) {
	reply := mapReply{Type: "result", ID: m.ID, Op: m.Type}
	if err := h.runTransition(ctx, m); err != nil {
		reply.Error = err.Error()
	}
	h.send(reply)
}

func (h *mapSessionHost) runTransition(ctx context.Context, m mapMessage) error {
	switch m.Type {
	case "select":
		h.mu.Lock()
		h.selected = m.FieldID
		h.mu.Unlock()
		fields, err := h.deps.Fields.List(ctx)
		if err != nil {
			return err
		}
		return h.session.Selection.Follow(ctx, fields, m.FieldID, m.Auto)
	case "frame_field":
		field, err := h.deps.Fields.GetByID(ctx, m.FieldID)
		if err != nil {
			return err
		}
		err = h.session.Viewport.TransitionToField(ctx, *field, h.deps.transitionOptions())
		return ignoreSuperseded(err)
	case "frame_all":
		fields, err := h.deps.Fields.List(ctx)
		if err != nil {
			return err
		}
		err = h.session.Viewport.TransitionToAllFields(ctx, fields, h.deps.transitionOptions())
		return ignoreSuperseded(err)
	}
	return nil
}

// refollow re-applies the current selection after the field list changed.
func (h *mapSessionHost) refollow(ctx context.Context) {
	h.mu.Lock()
	selected := h.selected
	h.mu.Unlock()

	fields, err := h.deps.Fields.List(ctx)
	if err != nil {
		h.logger.Warn("refresh fields failed", "error", err)
		return
	}
	if err := h.session.Selection.Follow(ctx, fields, selected, false); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("follow after field change failed", "error", err)
	}
}

func ignoreSuperseded(err error) error {
	if errors.Is(err, domain.ErrTransitionSuperseded) || errors.Is(err, domain.ErrTransitionCancelled) {
		return nil
	}
	return err
}

// pinger is the part of a websocket connection used for keep-alive.
type pinger interface {
	WriteMessage(messageType int, data []byte) error
}

// keepAlive pings the client every interval until done is closed or a ping
// fails. Writes go through the remote's lock.
func keepAlive(c pinger, remote *surface.Remote, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := remote.WithWriteLock(func() error { return c.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// eventsMessage is sent from client to subscribe/unsubscribe to event feeds.
type eventsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "fields" | "drawing" (default: fields)
	Session string `json:"session"` // map session ID, required for "drawing"
}

// relayedEvent wraps an event for /ws/events clients.
type relayedEvent struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// EventsHandler returns a handler that upgrades to WebSocket and relays field
// and drawing events to connected clients.
// Clients send JSON: {"action":"subscribe","channel":"drawing","session":"..."}
// Every client starts subscribed to the fields channel.
func EventsHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		logger := slog.Default().With("remote_addr", c.RemoteAddr().String())
		logger.Info("ws events client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		if deps.Events == nil {
			_ = c.WriteJSON(map[string]string{"error": "event feed not configured"})
			return
		}

		var (
			mu     sync.Mutex
			closed bool
		)
		// Helper: thread-safe write, refused once the handler is returning
		write := func(fn func() error) error {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return domain.ErrClosed
			}
			return fn()
		}
		writeJSON := func(v interface{}) error {
			return write(func() error { return c.WriteJSON(v) })
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		subs := make(map[string]context.CancelFunc) // key -> cancel

		relay := func(ctx context.Context, subject string, data []byte) error {
			return writeJSON(relayedEvent{Subject: subject, Data: json.RawMessage(data)})
		}

		subscribe := func(m eventsMessage) (string, error) {
			key := m.Channel
			if m.Channel == "drawing" {
				key = "drawing:" + m.Session
			}
			if _, exists := subs[key]; exists {
				return key, errAlreadySubscribed
			}
			subCtx, subCancel := context.WithCancel(ctx)
			var err error
			switch m.Channel {
			case "fields":
				err = deps.Events.SubscribeFieldEvents(subCtx, relay)
			case "drawing":
				err = deps.Events.SubscribeDrawingEvents(subCtx, m.Session, relay)
			default:
				err = errors.New("unknown channel: " + m.Channel)
			}
			if err != nil {
				subCancel()
				return key, err
			}
			subs[key] = subCancel
			return key, nil
		}

		// Auto-subscribe to field events by default
		if _, err := subscribe(eventsMessage{Channel: "fields"}); err != nil {
			logger.Error("ws default subscribe failed", "error", err)
			return
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := write(func() error { return c.WriteMessage(websocket.PingMessage, nil) }); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read client messages for subscribe/unsubscribe
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m eventsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if m.Channel == "" {
				m.Channel = "fields"
			}
			if m.Channel == "drawing" && m.Session == "" {
				_ = writeJSON(map[string]string{"error": "session is required for the drawing channel"})
				continue
			}

			switch m.Action {
			case "subscribe":
				key, err := subscribe(m)
				switch {
				case errors.Is(err, errAlreadySubscribed):
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": key})
				case err != nil:
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
				default:
					_ = writeJSON(map[string]string{"status": "subscribed", "channel": key})
				}

			case "unsubscribe":
				key := m.Channel
				if m.Channel == "drawing" {
					key = "drawing:" + m.Session
				}
				if stop, exists := subs[key]; exists {
					stop()
					delete(subs, key)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": key})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + key})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		cancel()
		mu.Lock()
		closed = true
		mu.Unlock()
		logger.Info("ws events client disconnected")
	}
}

var errAlreadySubscribed = errors.New("already subscribed")
