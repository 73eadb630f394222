package ports

import "github.com/samirrijal/fieldmap/internal/core/domain"

// DrawSurface is the interactive drawing layer of a map view. The host owns it;
// components that subscribe must release their listeners before it goes away.
type DrawSurface interface {
	// On registers handler for event and returns a function removing it.
	On(event domain.SurfaceEvent, handler func(domain.Shape)) (off func())
	EnableDraw(kind domain.ShapeKind, opts domain.DrawOptions) error
	DisableDraw()
	SetPathStyle(style domain.PathStyle)
	Layers() []domain.Shape
	RemoveLayer(id string)
}

// Camera moves the map view.
type Camera interface {
	// FlyToBounds starts an animated fit. It returns once the animation has
	// been issued, not when it finishes.
	FlyToBounds(b domain.Bounds, opts domain.FitOptions) error
	// FitBounds frames b immediately.
	FitBounds(b domain.Bounds, opts domain.FitOptions) error
}

// AnimationNotifier is implemented by cameras that can report when an animated
// fit has actually finished.
type AnimationNotifier interface {
	FlyToBoundsNotify(b domain.Bounds, opts domain.FitOptions) (<-chan struct{}, error)
}

// MapSurface is a map view with both drawing and camera capabilities.
type MapSurface interface {
	DrawSurface
	Camera
}
