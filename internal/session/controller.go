// Package session owns the per-session tracking state and runs one pipeline
// pass per observed frame: calibration, cursor mapping, gesture detection and
// event dispatch.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/output"
)

// Sensitivity bounds.
const (
	MinSensitivity     = 0.5
	MaxSensitivity     = 3.0
	DefaultSensitivity = 1.0
)

// ErrDispatch wraps failures of the output dispatcher. The frame has already
// been applied to the session state when it is returned.
var ErrDispatch = errors.New("session: dispatch failed")

// Config configures a Controller.
type Config struct {
	Mapper      cursor.Config
	Gestures    gesture.Config
	Calibration calibration.Config
	Sensitivity float64
}

// DefaultConfig returns the default session configuration for a screen.
func DefaultConfig(width, height int) Config {
	return Config{
		Mapper:      cursor.DefaultConfig(width, height),
		Gestures:    gesture.DefaultConfig(),
		Calibration: calibration.DefaultConfig(),
		Sensitivity: DefaultSensitivity,
	}
}

// FrameEvent is the outcome of one pipeline pass.
type FrameEvent struct {
	At time.Time `json:"at"`
	// Skipped is set when the session was stopped or paused and the frame
	// was ignored.
	Skipped     bool                `json:"skipped"`
	HandPresent bool                `json:"hand_present"`
	Cursor      *cursor.ScreenPoint `json:"cursor,omitempty"`
	Clicks      []gesture.Event     `json:"clicks,omitempty"`
	Calibration *CalibrationResult  `json:"calibration,omitempty"`
}

// CalibrationResult reports the end of a calibration window.
type CalibrationResult struct {
	State calibration.State `json:"state"`
	Err   error             `json:"-"`
	At    time.Time         `json:"at"`
}

// State is a point-in-time snapshot of a Controller.
type State struct {
	Running              bool                `json:"running"`
	Paused               bool                `json:"paused"`
	Sensitivity          float64             `json:"sensitivity"`
	Calibration          calibration.State   `json:"calibration"`
	CalibrationPending   bool                `json:"calibration_pending"`
	CalibrationCollected int                 `json:"calibration_collected"`
	CalibrationRequired  int                 `json:"calibration_required"`
	BufferLen            int                 `json:"buffer_len"`
	Gestures             map[string]string   `json:"gestures"`
	Cursor               *cursor.ScreenPoint `json:"cursor,omitempty"`
	Frames               uint64              `json:"frames"`
	Clicks               uint64              `json:"clicks"`
	StartedAt            time.Time           `json:"started_at"`
}

// Controller runs the tracking pipeline for one user. All methods are safe
// for concurrent use; ProcessFrame holds the lock for a full pass so user
// actions land between frames.
type Controller struct {
	mu         sync.Mutex
	cfg        Config
	dispatcher output.Dispatcher
	mapper     *cursor.Mapper
	gestures   *gesture.Detector

	running     bool
	paused      bool
	sensitivity float64
	calib       calibration.State
	startedAt   time.Time
	lastCursor  *cursor.ScreenPoint
	frames      uint64
	clicks      uint64

	calibPending bool
	window       *calibration.Window
	waiters      []chan CalibrationResult
	listeners    []func(CalibrationResult)
}

// New creates a stopped Controller. A nil dispatcher discards events.
func New(cfg Config, d output.Dispatcher) (*Controller, error) {
	mapper, err := cursor.NewMapper(cfg.Mapper)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = output.Discard
	}
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = DefaultSensitivity
	}
	return &Controller{
		cfg:         cfg,
		dispatcher:  d,
		mapper:      mapper,
		gestures:    gesture.NewDetector(cfg.Gestures),
		sensitivity: clampSensitivity(cfg.Sensitivity),
		calib:       calibration.DefaultState(),
	}, nil
}

// ProcessFrame runs one pipeline pass for the observation hand (nil when no
// hand was detected) taken at now.
//
// When the session is stopped or paused the frame is skipped and no state
// changes. Otherwise a pending calibration is fed first, then the cursor is
// mapped and gestures are evaluated, and finally the cursor move and any
// clicks are dispatched in that order. Dispatch failures are returned
// wrapped in ErrDispatch; the session state has advanced regardless.
func (c *Controller) ProcessFrame(hand *detector.HandLandmarks, now time.Time) (FrameEvent, error) {
	c.mu.Lock()

	ev := FrameEvent{At: now, HandPresent: hand != nil}
	if !c.running || c.paused {
		c.mu.Unlock()
		ev.Skipped = true
		return ev, nil
	}
	c.frames++

	var notify []func(CalibrationResult)
	if c.calibPending {
		if res, done := c.feedCalibration(hand, now); done {
			ev.Calibration = &res
			notify = append(notify, c.listeners...)
		}
	}

	scale := c.calib.ScaleFactor
	if p, ok := c.mapper.Map(hand, c.sensitivity, scale); ok {
		ev.Cursor = &p
		c.lastCursor = &p
	}
	ev.Clicks = c.gestures.Detect(hand, scale, now)
	c.clicks += uint64(len(ev.Clicks))

	err := c.dispatch(ev)
	c.mu.Unlock()

	if ev.Calibration != nil {
		for _, fn := range notify {
			fn(*ev.Calibration)
		}
	}
	if err != nil {
		return ev, fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	return ev, nil
}

func (c *Controller) dispatch(ev FrameEvent) error {
	var errs []error
	if ev.Cursor != nil {
		if err := c.dispatcher.Dispatch(output.Event{Kind: output.CursorMove, Point: *ev.Cursor, At: ev.At}); err != nil {
			errs = append(errs, err)
		}
	}
	for _, click := range ev.Clicks {
		out := output.Event{Kind: output.ClickKind(click.Kind), At: click.At}
		if c.lastCursor != nil {
			out.Point = *c.lastCursor
		}
		if err := c.dispatcher.Dispatch(out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// feedCalibration must be called with c.mu held.
func (c *Controller) feedCalibration(hand *detector.HandLandmarks, now time.Time) (CalibrationResult, bool) {
	if c.window == nil {
		c.window = calibration.NewWindow(c.cfg.Calibration, now)
	}
	st, done, err := c.window.Observe(hand, now)
	if !done {
		return CalibrationResult{}, false
	}
	if err == nil {
		c.calib = st
	}
	res := CalibrationResult{State: c.calib, Err: err, At: now}
	c.finishCalibration(res)
	return res, true
}

// finishCalibration must be called with c.mu held.
func (c *Controller) finishCalibration(res CalibrationResult) {
	c.calibPending = false
	c.window = nil
	for _, w := range c.waiters {
		w <- res
	}
	c.waiters = nil
}

// Start begins a fresh session: smoothing history and gesture state are
// cleared, the session runs and is not paused. The calibration is kept.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mapper.Reset()
	c.gestures.Reset()
	c.lastCursor = nil
	c.frames = 0
	c.clicks = 0
	c.running = true
	c.paused = false
	c.startedAt = time.Now()
}

// Stop ends the session. It waits for an in-flight pass and cancels a
// pending calibration. Stopping a stopped session is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false
	c.paused = false
	if c.calibPending {
		c.finishCalibration(CalibrationResult{State: c.calib, Err: calibration.ErrCancelled})
	}
}

// Pause freezes the session. Frames are skipped and no state is cleared.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.paused = true
	}
}

// Resume continues a paused session from the frozen state.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// SetSensitivity sets the cursor gain, clamped to [MinSensitivity,
// MaxSensitivity], and returns the value in effect.
func (c *Controller) SetSensitivity(v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sensitivity = clampSensitivity(v)
	return c.sensitivity
}

// Sensitivity returns the current cursor gain.
func (c *Controller) Sensitivity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sensitivity
}

func clampSensitivity(v float64) float64 {
	if math.IsNaN(v) || v < MinSensitivity {
		return MinSensitivity
	}
	if v > MaxSensitivity {
		return MaxSensitivity
	}
	return v
}

// RequestCalibration starts a calibration window that is filled by the
// following frames. It reports false when one is already pending.
func (c *Controller) RequestCalibration() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestLocked()
}

func (c *Controller) requestLocked() bool {
	if c.calibPending {
		return false
	}
	c.calibPending = true
	c.window = nil
	return true
}

// Calibrate requests a calibration, joining a pending one, and waits for its
// outcome or for ctx to end. On failure the previous calibration stays in
// effect and the error is calibration.ErrTimeout or ErrCancelled.
func (c *Controller) Calibrate(ctx context.Context) (calibration.State, error) {
	ch := make(chan CalibrationResult, 1)

	c.mu.Lock()
	c.requestLocked()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res.State, res.Err
	case <-ctx.Done():
		c.mu.Lock()
		for i, w := range c.waiters {
			if w == ch {
				c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		return calibration.State{}, ctx.Err()
	}
}

// CalibrationPending reports whether a calibration window is open.
func (c *Controller) CalibrationPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calibPending
}

// OnCalibration registers fn to be called after every finished calibration
// window, outside the controller lock.
func (c *Controller) OnCalibration(fn func(CalibrationResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Calibration returns the calibration in effect.
func (c *Controller) Calibration() calibration.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calib
}

// ApplyTuning swaps gesture thresholds, the smoothing window, mirroring and
// calibration settings between frames. Screen size and sensitivity are kept.
func (c *Controller) ApplyTuning(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gestures.SetConfig(cfg.Gestures)
	c.mapper.SetWindowSize(cfg.Mapper.WindowSize)
	c.mapper.SetMirror(cfg.Mapper.Mirror)
	c.cfg.Gestures = cfg.Gestures
	c.cfg.Calibration = cfg.Calibration
	c.cfg.Mapper.WindowSize = cfg.Mapper.WindowSize
	c.cfg.Mapper.Mirror = cfg.Mapper.Mirror
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Running:            c.running,
		Paused:             c.paused,
		Sensitivity:        c.sensitivity,
		Calibration:        c.calib,
		CalibrationPending: c.calibPending,
		BufferLen:          c.mapper.Buffer().Len(),
		Gestures:           make(map[string]string, len(gesture.Kinds)),
		Frames:             c.frames,
		Clicks:             c.clicks,
		StartedAt:          c.startedAt,
	}
	if c.calibPending {
		st.CalibrationRequired = c.cfg.Calibration.MinSamples
		if c.window != nil {
			st.CalibrationCollected, st.CalibrationRequired = c.window.Progress()
		}
	}
	for k, p := range c.gestures.Phases() {
		st.Gestures[k.String()] = p.String()
	}
	if c.lastCursor != nil {
		p := *c.lastCursor
		st.Cursor = &p
	}
	return st
}
