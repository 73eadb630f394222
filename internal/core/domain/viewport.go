package domain

import "time"

// TransitionTarget says what a camera transition frames.
type TransitionTarget int

const (
	TargetSingleField TransitionTarget = iota
	TargetAllFields
)

func (t TransitionTarget) String() string {
	if t == TargetAllFields {
		return "all_fields"
	}
	return "single_field"
}

// TransitionOptions controls a camera transition.
type TransitionOptions struct {
	Duration  time.Duration `json:"duration"`
	PaddingPx int           `json:"padding"`
	MaxZoom   int           `json:"max_zoom"`
	Animate   bool          `json:"animate"`
}

// DefaultTransitionOptions returns the stock animated transition.
func DefaultTransitionOptions() TransitionOptions {
	return TransitionOptions{
		Duration:  800 * time.Millisecond,
		PaddingPx: 20,
		MaxZoom:   18,
		Animate:   true,
	}
}

// TransitionRequest is one camera move. A newer request supersedes an older one.
type TransitionRequest struct {
	Target  TransitionTarget
	FieldID string
	Bounds  Bounds
	Options TransitionOptions
}

// FitOptions is what the camera receives for a bounds fit.
type FitOptions struct {
	PaddingPx int           `json:"padding"`
	MaxZoom   int           `json:"maxZoom"`
	Duration  time.Duration `json:"duration"`
}
