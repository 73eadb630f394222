package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// Transitioner moves the camera to fields. Implemented by ViewportController.
type Transitioner interface {
	TransitionToField(ctx context.Context, field domain.Field, opts domain.TransitionOptions) error
	TransitionToAllFields(ctx context.Context, fields []domain.Field, opts domain.TransitionOptions) error
}

// Framing used when following the field selection.
var (
	SelectedFieldOptions = domain.TransitionOptions{
		Duration:  800 * time.Millisecond,
		PaddingPx: 30,
		MaxZoom:   16,
		Animate:   true,
	}
	InitialSelectionDuration = 1200 * time.Millisecond
	AllFieldsOptions         = domain.TransitionOptions{
		Duration:  800 * time.Millisecond,
		PaddingPx: 20,
		MaxZoom:   14,
		Animate:   true,
	}
)

// SelectionFollower keeps the camera on the selected field, or on all fields
// when nothing is selected.
type SelectionFollower struct {
	viewport Transitioner
	logger   *slog.Logger

	mu           sync.Mutex
	prevSelected string
	prevCount    int
	initialized  bool
}

// NewSelectionFollower creates a SelectionFollower.
func NewSelectionFollower(viewport Transitioner, logger *slog.Logger) *SelectionFollower {
	if logger == nil {
		logger = slog.Default()
	}
	return &SelectionFollower{viewport: viewport, logger: logger.With("component", "selection")}
}

// Follow reacts to a selection or field list change. Nothing happens when
// neither the selected ID nor the field count changed. autoSelecting marks a
// selection made by the host on first load, which gets a slower transition.
// A transition replaced by a newer one is not an error.
func (f *SelectionFollower) Follow(ctx context.Context, fields []domain.Field, selectedID string, autoSelecting bool) error {
	f.mu.Lock()
	if f.prevSelected == selectedID && f.prevCount == len(fields) {
		f.mu.Unlock()
		return nil
	}
	initialLoad := !f.initialized && autoSelecting
	f.prevSelected = selectedID
	f.prevCount = len(fields)
	f.mu.Unlock()

	var err error
	switch {
	case selectedID != "":
		field, ok := findField(fields, selectedID)
		if !ok {
			f.logger.Warn("selected field not in list", "field_id", selectedID)
			return domain.ErrNotFound
		}
		opts := SelectedFieldOptions
		if initialLoad {
			opts.Duration = InitialSelectionDuration
		}
		err = f.viewport.TransitionToField(ctx, field, opts)
	case len(fields) > 0:
		err = f.viewport.TransitionToAllFields(ctx, fields, AllFieldsOptions)
	default:
		return nil
	}

	if errors.Is(err, domain.ErrTransitionSuperseded) || errors.Is(err, domain.ErrTransitionCancelled) {
		err = nil
	}
	if err == nil {
		f.mu.Lock()
		f.initialized = true
		f.mu.Unlock()
	}
	return err
}

// FieldColor returns the overlay colour for field given the selected field ID.
func FieldColor(field domain.Field, selectedID string) string {
	return field.Color(selectedID)
}

func findField(fields []domain.Field, id string) (domain.Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return domain.Field{}, false
}
