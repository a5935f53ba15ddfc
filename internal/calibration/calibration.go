// Package calibration derives a distance-compensating scale factor from the
// apparent size of the hand at a known distance from the camera.
//
// The wrist to middle-finger-base span is measured over a short window of
// frames. A hand close to the camera has a large span and gets a small scale
// factor; a distant hand gets a large one, so the same physical motion maps to
// the same screen motion at any depth.
package calibration

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/mudra/internal/detector"
)

var (
	// ErrInsufficientSamples is returned when a window holds fewer usable
	// frames than Config.MinSamples.
	ErrInsufficientSamples = errors.New("calibration: not enough frames with a visible hand")
	// ErrTimeout is returned when a window runs out of frames or time before
	// collecting enough usable frames.
	ErrTimeout = errors.New("calibration: timed out waiting for a visible hand")
	// ErrCancelled is returned when a pending calibration is abandoned.
	ErrCancelled = errors.New("calibration: cancelled")
)

// Config controls calibration.
type Config struct {
	// TargetReferenceDistance is the expected wrist to middle-base span, in
	// normalized units, of a hand at the nominal distance (~30cm).
	TargetReferenceDistance float64
	// MinSamples is the number of usable frames required.
	MinSamples int
	// MaxFrames bounds how many frames a Window observes before giving up.
	MaxFrames int
	// Timeout bounds how long a Window waits before giving up.
	Timeout time.Duration
	// MinScale and MaxScale bound the resulting factor. Zero disables a bound.
	MinScale float64
	MaxScale float64
}

// DefaultConfig returns the calibration settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		TargetReferenceDistance: 0.15,
		MinSamples:              5,
		MaxFrames:               90,
		Timeout:                 5 * time.Second,
		MinScale:                0.5,
		MaxScale:                2.0,
	}
}

// State is the result of a calibration.
type State struct {
	ScaleFactor       float64 `json:"scale_factor"`
	ReferenceDistance float64 `json:"reference_distance"`
	Calibrated        bool    `json:"calibrated"`
}

// DefaultState is the uncalibrated state: a neutral scale factor.
func DefaultState() State {
	return State{ScaleFactor: 1.0}
}

// usableSpan returns the palm span of hand and whether the frame counts
// toward a calibration window.
func usableSpan(hand *detector.HandLandmarks) (float64, bool) {
	if hand == nil {
		return 0, false
	}
	span := hand.PalmSpan()
	if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return 0, false
	}
	return span, true
}

// fromSpans builds a State from the spans of the usable frames.
func fromSpans(spans []float64, cfg Config) State {
	ref := stat.Mean(spans, nil)
	scale := cfg.TargetReferenceDistance / ref
	if cfg.MinScale > 0 && scale < cfg.MinScale {
		scale = cfg.MinScale
	}
	if cfg.MaxScale > 0 && scale > cfg.MaxScale {
		scale = cfg.MaxScale
	}
	return State{
		ScaleFactor:       scale,
		ReferenceDistance: ref,
		Calibrated:        true,
	}
}

// Calibrate computes a State from a complete window of observations.
// Frames without a hand are discarded and do not count toward MinSamples.
func Calibrate(window []*detector.HandLandmarks, cfg Config) (State, error) {
	spans := make([]float64, 0, len(window))
	for _, hand := range window {
		if span, ok := usableSpan(hand); ok {
			spans = append(spans, span)
		}
	}

	need := cfg.MinSamples
	if need < 1 {
		need = 1
	}
	if len(spans) < need {
		return State{}, ErrInsufficientSamples
	}
	return fromSpans(spans, cfg), nil
}
