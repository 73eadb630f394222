package surface_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/fieldmap/internal/adapters/surface"
	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
)

// --- Mock Conn ---

type mockConn struct {
	mu       sync.Mutex
	commands []surface.Command
	onWrite  func(cmd surface.Command)
	writeErr error
}

func (m *mockConn) WriteJSON(v interface{}) error {
	cmd, ok := v.(surface.Command)
	m.mu.Lock()
	if m.writeErr != nil {
		m.mu.Unlock()
		return m.writeErr
	}
	if ok {
		m.commands = append(m.commands, cmd)
	}
	fn := m.onWrite
	m.mu.Unlock()
	if ok && fn != nil {
		fn(cmd)
	}
	return nil
}

func (m *mockConn) last() surface.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		return surface.Command{}
	}
	return m.commands[len(m.commands)-1]
}

func (m *mockConn) ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.commands))
	for _, c := range m.commands {
		out = append(out, c.Op)
	}
	return out
}

func dispatch(t *testing.T, r *surface.Remote, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := r.Dispatch(data); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

// dispatchAsync is dispatch for use off the test goroutine.
func dispatchAsync(r *surface.Remote, v interface{}) {
	data, _ := json.Marshal(v)
	_ = r.Dispatch(data)
}

var square = []domain.Ring{{{-2.93, 43.26}, {-2.92, 43.26}, {-2.92, 43.27}, {-2.93, 43.27}}}

func TestRemote_EnableDrawWaitsForAck(t *testing.T) {
	conn := &mockConn{}
	r := surface.New(conn, surface.Options{AckTimeout: time.Second})
	conn.onWrite = func(cmd surface.Command) {
		if cmd.Op == surface.OpEnableDraw {
			go dispatchAsync(r, map[string]string{"type": "ack", "id": cmd.ID})
		}
	}

	err := r.EnableDraw(domain.ShapePolygon, domain.DrawOptions{Snapping: true, SnapToleranceMeters: 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmd := conn.last()
	if cmd.Type != "command" || cmd.Kind != domain.ShapePolygon || cmd.Draw == nil || cmd.Draw.SnapToleranceMeters != 15 {
		t.Errorf("unexpected command: %+v", cmd)
	}
}

func TestRemote_EnableDrawClientError(t *testing.T) {
	conn := &mockConn{}
	r := surface.New(conn, surface.Options{AckTimeout: time.Second})
	conn.onWrite = func(cmd surface.Command) {
		go dispatchAsync(r, map[string]string{"type": "ack", "id": cmd.ID, "error": "map not ready"})
	}

	err := r.EnableDraw(domain.ShapePolygon, domain.DrawOptions{})
	if err == nil || err.Error() != "map not ready" {
		t.Errorf("expected client error, got %v", err)
	}
}

func TestRemote_EnableDrawTimeout(t *testing.T) {
	r := surface.New(&mockConn{}, surface.Options{AckTimeout: 20 * time.Millisecond})
	if err := r.EnableDraw(domain.ShapePolygon, domain.DrawOptions{}); err == nil {
		t.Error("expected timeout error")
	}
}

func TestRemote_EventsMirrorLayers(t *testing.T) {
	r := surface.New(&mockConn{}, surface.Options{})

	var created []domain.Shape
	off := r.On(domain.EventShapeCreated, func(s domain.Shape) { created = append(created, s) })

	dispatch(t, r, map[string]interface{}{
		"type":  "event",
		"event": "pm:create",
		"shape": surface.ShapeMessage{ID: "a", Kind: domain.ShapePolygon, Rings: square},
	})
	if len(created) != 1 || created[0].ID != "a" || len(created[0].OuterRing()) != 4 {
		t.Fatalf("unexpected created shapes: %+v", created)
	}
	if layers := r.Layers(); len(layers) != 1 || layers[0].ID != "a" {
		t.Errorf("expected mirrored layer, got %+v", layers)
	}

	dispatch(t, r, map[string]interface{}{
		"type":  "event",
		"event": "pm:remove",
		"shape": surface.ShapeMessage{ID: "a", Kind: domain.ShapePolygon},
	})
	if len(r.Layers()) != 0 {
		t.Error("expected layer dropped on remove")
	}

	off()
	dispatch(t, r, map[string]interface{}{
		"type":  "event",
		"event": "pm:create",
		"shape": surface.ShapeMessage{ID: "b", Kind: domain.ShapePolygon, Rings: square},
	})
	if len(created) != 1 {
		t.Error("handler called after off")
	}
}

func TestRemote_AssignsIDForRef(t *testing.T) {
	conn := &mockConn{}
	r := surface.New(conn, surface.Options{})

	var ids []string
	r.On(domain.EventShapeCreated, func(s domain.Shape) { ids = append(ids, s.ID) })
	r.On(domain.EventShapeEdited, func(s domain.Shape) { ids = append(ids, s.ID) })

	dispatch(t, r, map[string]interface{}{
		"type":  "event",
		"event": "pm:create",
		"shape": surface.ShapeMessage{Ref: "42", Kind: domain.ShapePolygon, Rings: square},
	})
	dispatch(t, r, map[string]interface{}{
		"type":  "event",
		"event": "pm:edit",
		"shape": surface.ShapeMessage{Ref: "42", Kind: domain.ShapePolygon, Rings: square},
	})

	if len(ids) != 2 || ids[0] == "" || ids[0] != ids[1] {
		t.Fatalf("expected one stable assigned ID, got %v", ids)
	}
	cmd := conn.last()
	if cmd.Op != surface.OpAssignID || cmd.LayerID != ids[0] || cmd.Ref != "42" {
		t.Errorf("expected assign_id command, got %+v", cmd)
	}
}

func TestRemote_LayerSnapshot(t *testing.T) {
	r := surface.New(&mockConn{}, surface.Options{})
	dispatch(t, r, map[string]interface{}{
		"type": "layers",
		"layers": []surface.ShapeMessage{
			{ID: "a", Kind: domain.ShapePolygon, Rings: square},
			{ID: "b", Kind: domain.ShapeMarker},
		},
	})
	layers := r.Layers()
	if len(layers) != 2 || layers[0].ID != "a" || layers[1].ID != "b" {
		t.Errorf("unexpected layers: %+v", layers)
	}
}

func TestRemote_RejectsUnknownMessages(t *testing.T) {
	r := surface.New(&mockConn{}, surface.Options{})
	if err := r.Dispatch([]byte(`{"type":"bogus"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if err := r.Dispatch([]byte(`{"type":"event","event":"pm:unknown"}`)); err == nil {
		t.Error("expected error for unknown event")
	}
	if err := r.Dispatch([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestRemote_CameraCommands(t *testing.T) {
	conn := &mockConn{}
	r := surface.New(conn, surface.Options{})
	b := domain.Bounds{MinLat: 43.2, MinLon: -2.95, MaxLat: 43.3, MaxLon: -2.9}

	if err := r.FlyToBounds(b, domain.FitOptions{PaddingPx: 20, MaxZoom: 18, Duration: 800 * time.Millisecond}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmd := conn.last()
	if cmd.Bounds == nil || cmd.Bounds[0] != [2]float64{43.2, -2.95} || cmd.Bounds[1] != [2]float64{43.3, -2.9} {
		t.Errorf("unexpected bounds: %+v", cmd.Bounds)
	}
	if cmd.Fit == nil || cmd.Fit.Duration != 0.8 || !cmd.Fit.Animate || cmd.Fit.Padding != 20 {
		t.Errorf("unexpected fit: %+v", cmd.Fit)
	}

	_ = r.FitBounds(b, domain.FitOptions{})
	if c := conn.last(); c.Op != surface.OpFitBounds || c.Fit.Animate {
		t.Errorf("expected instant fit, got %+v", c)
	}
}

func TestRemote_NotifyOnMoveEnd(t *testing.T) {
	conn := &mockConn{}
	r := surface.New(conn, surface.Options{MoveEndEvents: true})

	n, ok := r.Surface().(ports.AnimationNotifier)
	if !ok {
		t.Fatal("expected notifier surface")
	}
	done, err := n.FlyToBoundsNotify(domain.Bounds{MinLat: 1, MinLon: 1, MaxLat: 2, MaxLon: 2}, domain.FitOptions{Duration: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmd := conn.last()
	if !cmd.Fit.Notify {
		t.Error("expected notify flag")
	}

	dispatch(t, r, map[string]string{"type": "moveend", "id": cmd.ID})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected completion signal")
	}

	if _, ok := surface.New(conn, surface.Options{}).Surface().(ports.AnimationNotifier); ok {
		t.Error("plain remote must not advertise notifications")
	}
}

func TestRemote_Close(t *testing.T) {
	conn := &mockConn{}
	r := surface.New(conn, surface.Options{AckTimeout: time.Second})
	conn.onWrite = func(cmd surface.Command) {
		if cmd.Op == surface.OpEnableDraw {
			go r.Close()
		}
	}

	err := r.EnableDraw(domain.ShapePolygon, domain.DrawOptions{})
	if !errors.Is(err, domain.ErrClosed) {
		t.Errorf("expected ErrClosed for pending ack, got %v", err)
	}
	if err := r.FlyToBounds(domain.Bounds{}, domain.FitOptions{}); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	before := len(conn.ops())
	r.DisableDraw()
	if len(conn.ops()) != before {
		t.Error("expected no commands after close")
	}
}

func TestRemote_NoWritesAfterClose(t *testing.T) {
	conn := &mockConn{}
	r := surface.New(conn, surface.Options{})

	if err := r.Send(map[string]string{"type": "session"}); err != nil {
		t.Fatalf("send before close: %v", err)
	}
	r.Close()

	if err := r.Send(map[string]string{"type": "session"}); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("expected ErrClosed from Send, got %v", err)
	}
	ran := false
	err := r.WithWriteLock(func() error {
		ran = true
		return nil
	})
	if !errors.Is(err, domain.ErrClosed) {
		t.Errorf("expected ErrClosed from WithWriteLock, got %v", err)
	}
	if ran {
		t.Error("write ran after close")
	}
}

func TestRemote_CloseWaitsForWriteInProgress(t *testing.T) {
	conn := &mockConn{}
	r := surface.New(conn, surface.Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.WithWriteLock(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a write was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the write finished")
	}
}
