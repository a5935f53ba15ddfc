// Package app wires the camera, landmark detector, session controller and
// output drivers into the running mudra application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/output"
	"github.com/ayusman/mudra/internal/output/robotgo"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds the collaborators of an App. Only Settings is required.
type Config struct {
	Settings *config.Config
	// Store journals sessions and persists settings. Optional.
	Store *store.Store
	// Camera defaults to the configured device.
	Camera capture.Camera
	// Detector defaults to MediaPipe, falling back to the mock detector.
	Detector detector.Detector
	// Driver overrides the configured pointer driver.
	Driver output.Dispatcher
	// Outputs receive every dispatched event after the driver.
	Outputs []output.Dispatcher
}

// App runs the frame loop and exposes the user actions.
type App struct {
	store      *store.Store
	journal    *store.Journal
	camera     capture.Camera
	detector   detector.Detector
	gate       *capture.IdleGate
	controller *session.Controller
	driver     output.Dispatcher
	robot      *robotgo.Driver
	screenW    int
	screenH    int

	cfgMu    sync.RWMutex
	settings *config.Config

	// mu serializes StartTracking and StopTracking. The frame loop never
	// takes it.
	mu        sync.Mutex
	stopCh    chan struct{}
	done      chan struct{}
	sessionID string

	listenMu   sync.RWMutex
	onTracking []func(running bool)
	onClick    []func(output.Event)
}

// New creates a stopped App.
func New(cfg Config) (*App, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.DefaultConfig()
	}

	a := &App{
		store:    cfg.Store,
		camera:   cfg.Camera,
		detector: cfg.Detector,
		driver:   cfg.Driver,
		settings: settings,
		gate:     capture.NewIdleGate(settings.Idle()),
	}

	if a.driver == nil {
		driver, robot, err := buildDriver(settings)
		if err != nil {
			return nil, err
		}
		a.driver, a.robot = driver, robot
	}

	a.screenW, a.screenH = settings.ScreenSize(0, 0)
	if a.screenW <= 0 || a.screenH <= 0 {
		a.screenW, a.screenH = settings.ScreenSize(robotgo.ScreenSize())
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(settings.CameraOptions())
	}

	if a.detector == nil {
		if mp, err := detector.NewMediaPipeDetector(settings.DetectorOptions()); err == nil {
			a.detector = mp
			log.Println("Using MediaPipe hand detection")
		} else {
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			a.detector = detector.NewMockDetector()
		}
	}

	outputs := output.Multi{a.driver, output.DispatcherFunc(a.notifyClick)}
	if a.store != nil {
		a.journal = store.NewJournal(a.store)
		outputs = append(outputs, a.journal)

		if n, err := a.store.Sessions().CloseDangling(time.Now()); err != nil {
			log.Printf("Failed to close dangling sessions: %v", err)
		} else if n > 0 {
			log.Printf("Closed %d session(s) left open by an earlier run", n)
		}
		if keep := settings.Store.Retention.Duration; keep > 0 {
			if n, err := a.store.Sessions().Prune(time.Now().Add(-keep)); err != nil {
				log.Printf("Failed to prune session history: %v", err)
			} else if n > 0 {
				log.Printf("Pruned %d session(s) older than %s", n, keep)
			}
		}
	}
	outputs = append(outputs, cfg.Outputs...)

	sessCfg := settings.Session(a.screenW, a.screenH)
	if a.store != nil {
		sessCfg.Sensitivity = a.store.Settings().Float(store.SettingSensitivity, sessCfg.Sensitivity)
	}

	controller, err := session.New(sessCfg, outputs)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.controller = controller
	a.controller.OnCalibration(logCalibration)

	return a, nil
}

// buildDriver creates the pointer driver named by the configuration.
func buildDriver(settings *config.Config) (output.Dispatcher, *robotgo.Driver, error) {
	out := settings.Output
	switch out.Driver {
	case config.DriverRobotgo:
		r := robotgo.New(nil, out.FailsafeMargin)
		return r, r, nil

	case config.DriverPlugin:
		mgr := plugin.NewManager(out.PluginDir)
		if err := mgr.Discover(); err != nil {
			return nil, nil, fmt.Errorf("discover plugins: %w", err)
		}
		for _, problem := range mgr.Problems() {
			log.Printf("Skipping plugin %v", problem)
		}
		p, err := mgr.PointerDriver(out.Plugin)
		if err != nil {
			return nil, nil, fmt.Errorf("pointer plugin: %w", err)
		}
		log.Printf("Using pointer plugin %s %s", p.Manifest.Name, p.Manifest.Version)
		return output.NewPlugin(plugin.Open(p, out.PluginTimeout.Duration), p.Manifest.Name), nil, nil

	case config.DriverNone:
		return output.Discard, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown output driver %q", out.Driver)
	}
}

func logCalibration(res session.CalibrationResult) {
	if res.Err != nil {
		log.Printf("Calibration failed: %v", res.Err)
		return
	}
	log.Printf("Calibrated: scale factor %.3f (reference distance %.4f)",
		res.State.ScaleFactor, res.State.ReferenceDistance)
}

// StartTracking opens the camera, begins a fresh session and starts the
// frame loop. Starting a running app is a no-op.
func (a *App) StartTracking() error {
	if err := a.start(); err != nil {
		return err
	}
	a.notifyTracking(true)
	return nil
}

func (a *App) start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	if err := a.beginSession(); err != nil {
		a.camera.Close()
		return err
	}
	if a.robot != nil {
		a.robot.Reset()
	}

	a.controller.Start()
	a.gate.Wake(time.Now())
	a.camera.SetFPS(a.fps(false))

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.stopCh, a.done)

	log.Println("Tracking started")
	return nil
}

// StopTracking stops the frame loop, ends the session and releases the
// camera. Stopping a stopped app is a no-op.
func (a *App) StopTracking() error {
	return a.stopTracking(nil)
}

// stopTracking stops the frame loop that owns loop. A nil loop stops
// whichever one is running; a loop that has already been replaced is left
// alone.
func (a *App) stopTracking(loop <-chan struct{}) error {
	stopped, err := a.stop(loop)
	if stopped {
		a.notifyTracking(false)
	}
	return err
}

func (a *App) stop(loop <-chan struct{}) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh == nil || (loop != nil && loop != a.stopCh) {
		return false, nil
	}
	close(a.stopCh)
	<-a.done
	a.stopCh = nil
	a.done = nil

	a.controller.Stop()

	var errs []error
	if err := a.endSession(a.controller.Snapshot()); err != nil {
		errs = append(errs, err)
	}
	if err := a.camera.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close camera: %w", err))
	}

	log.Println("Tracking stopped")
	return true, errors.Join(errs...)
}

func (a *App) beginSession() error {
	if a.store == nil {
		return nil
	}
	sess := &store.Session{
		Sensitivity: a.controller.Sensitivity(),
		ScaleFactor: a.controller.Calibration().ScaleFactor,
	}
	if err := a.store.Sessions().Create(sess); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	a.sessionID = sess.ID
	a.journal.SetSession(sess.ID)
	return nil
}

func (a *App) endSession(st session.State) error {
	if a.store == nil || a.sessionID == "" {
		return nil
	}
	id := a.sessionID
	a.sessionID = ""
	a.journal.SetSession("")

	err := a.store.Sessions().End(id, time.Now(), int64(st.Frames), int64(st.Clicks), st.Calibration.ScaleFactor)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Running reports whether the frame loop is running.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopCh != nil
}

// SessionID returns the journal id of the current session, or "" when
// stopped or running without a store.
func (a *App) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Pause freezes tracking without stopping the camera.
func (a *App) Pause() {
	a.controller.Pause()
}

// Resume continues a paused session.
func (a *App) Resume() {
	a.controller.Resume()
}

// SetSensitivity applies the cursor gain and stores it for the next run.
func (a *App) SetSensitivity(v float64) (float64, error) {
	v = a.controller.SetSensitivity(v)
	if a.store == nil {
		return v, nil
	}
	if err := a.store.Settings().SetFloat(store.SettingSensitivity, v); err != nil {
		return v, fmt.Errorf("save sensitivity: %w", err)
	}
	return v, nil
}

// Calibrate runs a calibration window over the next frames and waits for
// its outcome.
func (a *App) Calibrate(ctx context.Context) (calibration.State, error) {
	return a.controller.Calibrate(ctx)
}

// RequestCalibration starts a calibration window without waiting.
func (a *App) RequestCalibration() bool {
	return a.controller.RequestCalibration()
}

// Snapshot returns the session state.
func (a *App) Snapshot() session.State {
	return a.controller.Snapshot()
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Settings returns the configuration in effect.
func (a *App) Settings() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.settings
}

// ApplyConfig applies a reloaded configuration between frames: gesture
// thresholds, smoothing, calibration, pacing and idling. Camera, screen and
// driver changes take effect on the next run.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	prev := a.settings
	a.settings = cfg
	a.cfgMu.Unlock()

	a.controller.ApplyTuning(cfg.Session(a.screenW, a.screenH))
	a.gate.SetConfig(cfg.Idle())

	if prev.Output.Driver != cfg.Output.Driver || prev.Camera.Device != cfg.Camera.Device {
		log.Println("Output driver or camera changed; restart mudra to apply")
	}
	log.Println("Configuration reloaded")
}

// OnTracking registers fn to be called when tracking starts or stops,
// including a failsafe stop.
func (a *App) OnTracking(fn func(running bool)) {
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	a.onTracking = append(a.onTracking, fn)
}

// OnClick registers fn to be called for every dispatched click. It runs on
// the frame loop and must not call back into the App.
func (a *App) OnClick(fn func(output.Event)) {
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	a.onClick = append(a.onClick, fn)
}

// OnCalibration registers fn to be called after every calibration window.
func (a *App) OnCalibration(fn func(session.CalibrationResult)) {
	a.controller.OnCalibration(fn)
}

func (a *App) notifyTracking(running bool) {
	a.listenMu.RLock()
	fns := append([]func(bool)(nil), a.onTracking...)
	a.listenMu.RUnlock()
	for _, fn := range fns {
		fn(running)
	}
}

func (a *App) notifyClick(ev output.Event) error {
	if ev.Kind == output.CursorMove {
		return nil
	}
	a.listenMu.RLock()
	defer a.listenMu.RUnlock()
	for _, fn := range a.onClick {
		fn(ev)
	}
	return nil
}

// Close stops tracking and releases the detector and the pointer driver.
func (a *App) Close() error {
	var errs []error
	if err := a.StopTracking(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := a.driver.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close driver: %w", err))
		}
	}
	if err := a.detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	if err := a.gate.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
