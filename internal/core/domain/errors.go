package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a field does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidField is returned when field input fails validation.
	ErrInvalidField = errors.New("invalid field")

	// ErrInvalidGeometry is returned for malformed or unusable polygon geometry.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrNoFields is returned when an operation needs at least one field.
	ErrNoFields = errors.New("no fields")

	// ErrNoDrawing is returned when a drawn polygon is required but none exists.
	ErrNoDrawing = errors.New("no drawn polygon")

	// ErrTransitionSuperseded settles a transition replaced by a newer request.
	ErrTransitionSuperseded = errors.New("transition superseded")

	// ErrTransitionCancelled settles a transition stopped by CancelTransition or Close.
	ErrTransitionCancelled = errors.New("transition cancelled")

	// ErrClosed is returned by components used after Close.
	ErrClosed = errors.New("closed")
)

// Reason returns the message of err without the leading "<sentinel>: " added
// when err wraps sentinel.
func Reason(err error, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
