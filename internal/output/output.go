// Package output delivers cursor events to the platform: pointer warps and
// synthesized clicks.
package output

import (
	"errors"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/gesture"
)

// ErrFailsafe is returned once the platform failsafe has tripped. Drivers
// refuse every event until they are reset.
var ErrFailsafe = errors.New("output: failsafe triggered, automated control aborted")

// Kind is the type of an output event.
type Kind string

const (
	CursorMove  Kind = "cursor_move"
	ClickSingle Kind = "click_single"
	ClickDouble Kind = "click_double"
)

// Event is one instruction for the platform layer.
type Event struct {
	Kind  Kind               `json:"kind"`
	Point cursor.ScreenPoint `json:"point"`
	At    time.Time          `json:"at"`
}

// ClickKind maps a gesture to its click event kind.
func ClickKind(k gesture.Kind) Kind {
	if k == gesture.DoubleClick {
		return ClickDouble
	}
	return ClickSingle
}

// Dispatcher consumes output events.
type Dispatcher interface {
	Dispatch(ev Event) error
}

// DispatcherFunc adapts a function to a Dispatcher.
type DispatcherFunc func(ev Event) error

// Dispatch calls f(ev).
func (f DispatcherFunc) Dispatch(ev Event) error { return f(ev) }

// Multi fans events out to several dispatchers. Every dispatcher sees every
// event; errors are joined.
type Multi []Dispatcher

// Dispatch sends ev to each dispatcher in order.
func (m Multi) Dispatch(ev Event) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Dispatcher = DispatcherFunc(func(Event) error { return nil })

// Recorder keeps dispatched events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Dispatch records ev and returns the configured error, if any. Events are
// recorded even when an error is returned.
func (r *Recorder) Dispatch(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

// SetError makes subsequent dispatches fail with err.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Clicks returns only the recorded click events.
func (r *Recorder) Clicks() []Event {
	var clicks []Event
	for _, ev := range r.Events() {
		if ev.Kind != CursorMove {
			clicks = append(clicks, ev)
		}
	}
	return clicks
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
