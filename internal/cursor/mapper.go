// Package cursor maps a tracked hand landmark into screen space and smooths
// the result across frames with a simple moving average.
package cursor

import (
	"errors"
	"math"

	"github.com/ayusman/mudra/internal/detector"
)

// ErrInvalidScreen is returned for a screen with a non-positive dimension.
var ErrInvalidScreen = errors.New("cursor: screen dimensions must be positive")

// ScreenPoint is a pixel position on the target display.
type ScreenPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Config controls the mapping from normalized landmark space to pixels.
type Config struct {
	ScreenWidth  int
	ScreenHeight int
	// Mirror reflects x so on-screen motion follows a mirrored preview.
	Mirror bool
	// Margin is the fraction of the frame on each side that lies outside the
	// active zone. The central (1 - 2*Margin) of the frame spans the whole
	// screen, so the cursor reaches the edges without the hand leaving view.
	Margin float64
	// WindowSize is the moving-average window, in frames.
	WindowSize int
	// Landmark is the tracked landmark id; the wrist by default.
	Landmark int
}

// DefaultConfig returns a mapping for the given screen with the defaults of
// the original tuning: wrist tracking, 10% margins, five-frame smoothing.
func DefaultConfig(width, height int) Config {
	return Config{
		ScreenWidth:  width,
		ScreenHeight: height,
		Margin:       0.1,
		WindowSize:   5,
		Landmark:     detector.Wrist,
	}
}

// Mapper converts observations into smoothed screen points. It owns its
// SmoothingBuffer and is not safe for concurrent use; the session controller
// serializes access.
type Mapper struct {
	cfg    Config
	buffer *SmoothingBuffer
}

// NewMapper creates a Mapper.
func NewMapper(cfg Config) (*Mapper, error) {
	if cfg.ScreenWidth <= 0 || cfg.ScreenHeight <= 0 {
		return nil, ErrInvalidScreen
	}
	if cfg.Margin < 0 || cfg.Margin >= 0.5 {
		cfg.Margin = 0
	}
	if cfg.Landmark < 0 || cfg.Landmark >= detector.NumLandmarks {
		cfg.Landmark = detector.Wrist
	}
	return &Mapper{
		cfg:    cfg,
		buffer: NewSmoothingBuffer(cfg.WindowSize),
	}, nil
}

// Map projects the tracked landmark of hand into screen space, pushes it into
// the smoothing buffer and returns the smoothed position. When hand is nil,
// or its tracked landmark or the projection is not finite, it returns false
// and leaves the buffer untouched.
func (m *Mapper) Map(hand *detector.HandLandmarks, sensitivity, scale float64) (ScreenPoint, bool) {
	if hand == nil {
		return ScreenPoint{}, false
	}
	lm := hand.Points[m.cfg.Landmark]
	if !finite(lm.X) || !finite(lm.Y) {
		return ScreenPoint{}, false
	}
	p := m.Project(lm, sensitivity, scale)
	if !finite(p.X) || !finite(p.Y) {
		return ScreenPoint{}, false
	}

	m.buffer.Push(p)

	mean, _ := m.buffer.Mean()
	return m.round(mean), true
}

// Project maps one normalized landmark position to unrounded pixel space
// without touching the smoothing buffer.
func (m *Mapper) Project(p detector.Point3D, sensitivity, scale float64) Point {
	x, y := p.X, p.Y
	if m.cfg.Mirror {
		x = 1 - x
	}

	gain := sensitivity * scale
	x = m.axis(x, gain)
	y = m.axis(y, gain)

	w := float64(m.cfg.ScreenWidth)
	h := float64(m.cfg.ScreenHeight)
	return Point{
		X: clamp(x*w, 0, w-1),
		Y: clamp(y*h, 0, h-1),
	}
}

// axis remaps one normalized coordinate through the active zone and scales
// it about the screen centre.
func (m *Mapper) axis(v, gain float64) float64 {
	margin := m.cfg.Margin
	v = (v - margin) / (1 - 2*margin)
	v = (v-0.5)*gain + 0.5
	return clamp(v, 0, 1)
}

func (m *Mapper) round(p Point) ScreenPoint {
	return ScreenPoint{
		X: int(clamp(math.Round(p.X), 0, float64(m.cfg.ScreenWidth-1))),
		Y: int(clamp(math.Round(p.Y), 0, float64(m.cfg.ScreenHeight-1))),
	}
}

// Buffer exposes the smoothing buffer for inspection.
func (m *Mapper) Buffer() *SmoothingBuffer {
	return m.buffer
}

// SetWindowSize changes the smoothing window, keeping recent history.
func (m *Mapper) SetWindowSize(n int) {
	m.cfg.WindowSize = n
	m.buffer.Resize(n)
}

// SetMirror toggles mirroring.
func (m *Mapper) SetMirror(mirror bool) {
	m.cfg.Mirror = mirror
}

// Config returns the active configuration.
func (m *Mapper) Config() Config {
	return m.cfg
}

// Reset clears smoothing history.
func (m *Mapper) Reset() {
	m.buffer.Reset()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
