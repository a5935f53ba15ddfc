// Package gesture recognizes the click gestures: pinch distances between
// fingertip landmarks run through a threshold state machine with hysteresis
// and debounce.
package gesture

import (
	"math"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Kind identifies a click gesture.
type Kind int

const (
	// SingleClick is the thumb tip touching the middle fingertip.
	SingleClick Kind = iota
	// DoubleClick is the thumb tip touching the index fingertip.
	DoubleClick
)

// Kinds lists every gesture kind in evaluation order.
var Kinds = [...]Kind{SingleClick, DoubleClick}

func (k Kind) String() string {
	switch k {
	case SingleClick:
		return "single_click"
	case DoubleClick:
		return "double_click"
	default:
		return "unknown"
	}
}

// Pair returns the two landmark ids whose distance drives the gesture.
func (k Kind) Pair() (int, int) {
	if k == DoubleClick {
		return detector.ThumbTip, detector.IndexTip
	}
	return detector.ThumbTip, detector.MiddleTip
}

// Phase is a gesture's state machine phase.
type Phase int

const (
	Idle Phase = iota
	Armed
	Fired
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	default:
		return "unknown"
	}
}

// Thresholds configures one gesture kind. Distances are in calibration-scaled
// normalized units; Open must exceed Close.
type Thresholds struct {
	Close    float64
	Open     float64
	Debounce time.Duration
}

// Event is an emitted click.
type Event struct {
	Kind     Kind      `json:"kind"`
	At       time.Time `json:"at"`
	Distance float64   `json:"distance"`
}

// Machine tracks the phase of one gesture kind.
type Machine struct {
	kind     Kind
	th       Thresholds
	phase    Phase
	lastFire time.Time
}

// NewMachine creates an idle machine.
func NewMachine(kind Kind, th Thresholds) *Machine {
	return &Machine{kind: kind, th: th}
}

// Step advances the machine with this frame's distance and reports whether
// the gesture fires. Pass +Inf when no hand is observed.
//
// Idle arms when the distance drops below Close and fires on that same step.
// A fired gesture returns to Idle only on a frame where the distance is above
// Open and at least Debounce has passed since it fired.
func (m *Machine) Step(distance float64, now time.Time) bool {
	switch m.phase {
	case Idle:
		if distance < m.th.Close {
			m.phase = Armed
		}
	case Fired:
		if distance > m.th.Open && now.Sub(m.lastFire) >= m.th.Debounce {
			m.phase = Idle
		}
		return false
	}

	if m.phase == Armed {
		m.phase = Fired
		m.lastFire = now
		return true
	}
	return false
}

// Kind returns the gesture kind.
func (m *Machine) Kind() Kind { return m.kind }

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// LastFire returns when the gesture last fired; zero if never.
func (m *Machine) LastFire() time.Time { return m.lastFire }

// Thresholds returns the active thresholds.
func (m *Machine) Thresholds() Thresholds { return m.th }

// SetThresholds replaces the thresholds without touching the phase.
func (m *Machine) SetThresholds(th Thresholds) { m.th = th }

// Reset returns the machine to Idle and forgets the last fire time.
func (m *Machine) Reset() {
	m.phase = Idle
	m.lastFire = time.Time{}
}

// Config holds thresholds for both gesture kinds.
type Config struct {
	Single Thresholds
	Double Thresholds
}

// DefaultConfig returns the default click thresholds.
func DefaultConfig() Config {
	return Config{
		Single: Thresholds{Close: 0.05, Open: 0.08, Debounce: 400 * time.Millisecond},
		Double: Thresholds{Close: 0.05, Open: 0.08, Debounce: 500 * time.Millisecond},
	}
}

// For returns the thresholds of kind k.
func (c Config) For(k Kind) Thresholds {
	if k == DoubleClick {
		return c.Double
	}
	return c.Single
}

// Detector evaluates both gesture kinds on each observation.
type Detector struct {
	machines [len(Kinds)]*Machine
}

// NewDetector creates a Detector with all gestures idle.
func NewDetector(cfg Config) *Detector {
	d := &Detector{}
	for i, k := range Kinds {
		d.machines[i] = NewMachine(k, cfg.For(k))
	}
	return d
}

// Detect steps every gesture with the pinch distances of hand, multiplied by
// the calibration scale factor, and returns the gestures that fired. A nil
// hand counts as an infinite distance for every gesture.
func (d *Detector) Detect(hand *detector.HandLandmarks, scale float64, now time.Time) []Event {
	var events []Event
	for _, m := range d.machines {
		dist := PinchDistance(hand, m.kind, scale)
		if m.Step(dist, now) {
			events = append(events, Event{Kind: m.kind, At: now, Distance: dist})
		}
	}
	return events
}

// PinchDistance returns the calibration-scaled pinch distance of kind k, or
// +Inf when there is no hand.
func PinchDistance(hand *detector.HandLandmarks, k Kind, scale float64) float64 {
	if hand == nil {
		return math.Inf(1)
	}
	a, b := k.Pair()
	return hand.Distance(a, b) * scale
}

// Machine returns the machine of kind k, or nil for an unknown kind.
func (d *Detector) Machine(k Kind) *Machine {
	for _, m := range d.machines {
		if m.kind == k {
			return m
		}
	}
	return nil
}

// Phases returns the current phase of each gesture.
func (d *Detector) Phases() map[Kind]Phase {
	phases := make(map[Kind]Phase, len(d.machines))
	for _, m := range d.machines {
		phases[m.kind] = m.phase
	}
	return phases
}

// SetConfig replaces thresholds for all kinds, keeping phases.
func (d *Detector) SetConfig(cfg Config) {
	for _, m := range d.machines {
		m.SetThresholds(cfg.For(m.kind))
	}
}

// Reset returns every gesture to Idle.
func (d *Detector) Reset() {
	for _, m := range d.machines {
		m.Reset()
	}
}
