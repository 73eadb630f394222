package surface

import "github.com/samirrijal/fieldmap/internal/core/domain"

// Inbound message types handled by Remote.Dispatch.
const (
	TypeEvent   = "event"
	TypeAck     = "ack"
	TypeMoveEnd = "moveend"
	TypeLayers  = "layers"
)

// Command ops sent to the client.
const (
	OpEnableDraw   = "enable_draw"
	OpDisableDraw  = "disable_draw"
	OpSetPathStyle = "set_path_style"
	OpRemoveLayer  = "remove_layer"
	OpAssignID     = "assign_id"
	OpFlyToBounds  = "fly_to_bounds"
	OpFitBounds    = "fit_bounds"
)

// Handles reports whether messages of type typ belong to the surface bridge.
func Handles(typ string) bool {
	switch typ {
	case TypeEvent, TypeAck, TypeMoveEnd, TypeLayers:
		return true
	}
	return false
}

// ShapeMessage is a layer as reported by the client. Ref is a client-local
// handle used when the client has no stable ID for the layer yet.
type ShapeMessage struct {
	ID    string           `json:"id,omitempty"`
	Ref   string           `json:"ref,omitempty"`
	Kind  domain.ShapeKind `json:"kind"`
	Rings []domain.Ring    `json:"rings"`
}

type inbound struct {
	Type   string              `json:"type"`
	ID     string              `json:"id,omitempty"`
	Event  domain.SurfaceEvent `json:"event,omitempty"`
	Shape  *ShapeMessage       `json:"shape,omitempty"`
	Layers []ShapeMessage      `json:"layers,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Command is a surface instruction sent to the client.
type Command struct {
	Type    string              `json:"type"`
	ID      string              `json:"id,omitempty"`
	Op      string              `json:"op"`
	Kind    domain.ShapeKind    `json:"kind,omitempty"`
	Draw    *domain.DrawOptions `json:"draw,omitempty"`
	Style   *domain.PathStyle   `json:"style,omitempty"`
	LayerID string              `json:"layer_id,omitempty"`
	Ref     string              `json:"ref,omitempty"`
	// Bounds is [[south, west], [north, east]].
	Bounds *[2][2]float64 `json:"bounds,omitempty"`
	Fit    *FitParams     `json:"fit,omitempty"`
}

// FitParams mirrors the client's fit options. Duration is in seconds.
type FitParams struct {
	Padding  int     `json:"padding"`
	MaxZoom  int     `json:"maxZoom"`
	Duration float64 `json:"duration"`
	Animate  bool    `json:"animate"`
	Notify   bool    `json:"notify,omitempty"`
}

func boundsParam(b domain.Bounds) *[2][2]float64 {
	return &[2][2]float64{{b.MinLat, b.MinLon}, {b.MaxLat, b.MaxLon}}
}

func fitParams(opts domain.FitOptions, animate bool) *FitParams {
	return &FitParams{
		Padding:  opts.PaddingPx,
		MaxZoom:  opts.MaxZoom,
		Duration: opts.Duration.Seconds(),
		Animate:  animate,
	}
}
