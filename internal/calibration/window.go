package calibration

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Window accumulates a calibration across successive pipeline passes so the
// frame loop never blocks waiting for a hand.
type Window struct {
	cfg     Config
	started time.Time
	frames  int
	spans   []float64
}

// NewWindow starts a window at the given frame time.
func NewWindow(cfg Config, start time.Time) *Window {
	need := cfg.MinSamples
	if need < 1 {
		need = 1
	}
	cfg.MinSamples = need
	return &Window{
		cfg:     cfg,
		started: start,
		spans:   make([]float64, 0, need),
	}
}

// Observe feeds one frame. It reports done once the window has either
// produced a State or failed; err is ErrTimeout on failure.
func (w *Window) Observe(hand *detector.HandLandmarks, now time.Time) (State, bool, error) {
	w.frames++

	if span, ok := usableSpan(hand); ok {
		w.spans = append(w.spans, span)
		if len(w.spans) >= w.cfg.MinSamples {
			return fromSpans(w.spans, w.cfg), true, nil
		}
	}

	if w.cfg.MaxFrames > 0 && w.frames >= w.cfg.MaxFrames {
		return State{}, true, ErrTimeout
	}
	if w.cfg.Timeout > 0 && now.Sub(w.started) >= w.cfg.Timeout {
		return State{}, true, ErrTimeout
	}
	return State{}, false, nil
}

// Progress returns the usable frames collected and the number required.
func (w *Window) Progress() (collected, required int) {
	return len(w.spans), w.cfg.MinSamples
}
