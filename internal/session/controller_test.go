package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/output"
)

var t0 = time.Unix(1700000000, 0)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

type frame struct {
	hand *detector.HandLandmarks
	at   time.Time
}

func palm() *detector.HandLandmarks {
	h := detector.OpenPalmLandmarks()
	return &h
}

func middlePinch() *detector.HandLandmarks {
	h := detector.MiddlePinchLandmarks()
	return &h
}

func indexPinch() *detector.HandLandmarks {
	h := detector.IndexPinchLandmarks()
	return &h
}

func newController(t *testing.T, d output.Dispatcher) *Controller {
	t.Helper()
	c, err := New(DefaultConfig(1920, 1080), d)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func run(t *testing.T, c *Controller, frames []frame) {
	t.Helper()
	for i, f := range frames {
		if _, err := c.ProcessFrame(f.hand, f.at); err != nil {
			t.Fatalf("frame %d: ProcessFrame() error = %v", i, err)
		}
	}
}

func TestNew_InvalidScreen(t *testing.T) {
	if _, err := New(DefaultConfig(0, 0), nil); err == nil {
		t.Error("expected error for an empty screen")
	}
}

func TestProcessFrame_SkippedWhenStopped(t *testing.T) {
	rec := output.NewRecorder()
	c := newController(t, rec)

	ev, err := c.ProcessFrame(middlePinch(), at(0))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if !ev.Skipped {
		t.Error("frame before Start should be skipped")
	}
	if len(rec.Events()) != 0 {
		t.Errorf("stopped session dispatched %v", rec.Events())
	}
	if st := c.Snapshot(); st.Frames != 0 || st.BufferLen != 0 {
		t.Errorf("stopped session changed state: %+v", st)
	}
}

func TestProcessFrame_DispatchOrder(t *testing.T) {
	rec := output.NewRecorder()
	c := newController(t, rec)
	c.Start()

	run(t, c, []frame{{palm(), at(0)}})
	ev, err := c.ProcessFrame(middlePinch(), at(100))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	if ev.Cursor == nil || len(ev.Clicks) != 1 {
		t.Fatalf("FrameEvent = %+v, want a cursor and one click", ev)
	}

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("dispatched %d events, want 3", len(events))
	}
	if events[1].Kind != output.CursorMove || events[2].Kind != output.ClickSingle {
		t.Errorf("order = %s, %s; want cursor move then click", events[1].Kind, events[2].Kind)
	}
	if events[2].Point != *ev.Cursor {
		t.Errorf("click at %+v, want cursor position %+v", events[2].Point, *ev.Cursor)
	}
	if !events[2].At.Equal(at(100)) {
		t.Errorf("click time = %v, want %v", events[2].At, at(100))
	}
}

func TestPauseResume_IdenticalEvents(t *testing.T) {
	frames := []frame{
		{palm(), at(0)},
		{middlePinch(), at(100)},
		{palm(), at(200)},
		{palm(), at(700)},
		{middlePinch(), at(800)},
		{indexPinch(), at(900)},
		{nil, at(1000)},
		{palm(), at(1500)},
		{indexPinch(), at(1600)},
	}

	straight := output.NewRecorder()
	a := newController(t, straight)
	a.Start()
	run(t, a, frames)

	paused := output.NewRecorder()
	b := newController(t, paused)
	b.Start()
	run(t, b, frames[:3])

	b.Pause()
	for i, f := range []frame{{middlePinch(), at(300)}, {indexPinch(), at(400)}, {nil, at(500)}} {
		ev, err := b.ProcessFrame(f.hand, f.at)
		if err != nil || !ev.Skipped {
			t.Fatalf("paused frame %d: skipped=%v err=%v", i, ev.Skipped, err)
		}
	}
	b.Resume()
	run(t, b, frames[3:])

	if len(straight.Clicks()) != 4 {
		t.Fatalf("reference run produced %d clicks, want 4", len(straight.Clicks()))
	}
	if diff := cmp.Diff(straight.Events(), paused.Events()); diff != "" {
		t.Errorf("pause/resume changed the event stream (-straight +paused):\n%s", diff)
	}

	sa, sb := a.Snapshot(), b.Snapshot()
	if diff := cmp.Diff(sa, sb, cmpIgnoreStart); diff != "" {
		t.Errorf("pause/resume changed the final state (-straight +paused):\n%s", diff)
	}
}

var cmpIgnoreStart = cmp.FilterPath(func(p cmp.Path) bool {
	return p.String() == "StartedAt"
}, cmp.Ignore())

func TestPause_FreezesState(t *testing.T) {
	c := newController(t, nil)
	c.Start()
	run(t, c, []frame{{palm(), at(0)}, {middlePinch(), at(100)}})

	c.Pause()
	before := c.Snapshot()
	if !before.Paused {
		t.Fatal("Snapshot().Paused = false")
	}
	run(t, c, []frame{{palm(), at(200)}, {nil, at(300)}})

	if diff := cmp.Diff(before, c.Snapshot()); diff != "" {
		t.Errorf("paused frames changed state (-before +after):\n%s", diff)
	}
}

func TestSetSensitivity_Clamps(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{5.0, 3.0},
		{0.1, 0.5},
		{1.7, 1.7},
		{3.0, 3.0},
		{-2, 0.5},
		{math.NaN(), 0.5},
	}

	c := newController(t, nil)
	for _, tt := range tests {
		if got := c.SetSensitivity(tt.in); got != tt.want {
			t.Errorf("SetSensitivity(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got := c.Sensitivity(); got != tt.want {
			t.Errorf("Sensitivity() after %v = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProcessFrame_NoHandLeavesStateUnchanged(t *testing.T) {
	rec := output.NewRecorder()
	c := newController(t, rec)
	c.Start()
	run(t, c, []frame{{palm(), at(0)}, {middlePinch(), at(100)}})

	before := c.Snapshot()
	dispatched := len(rec.Events())

	ev, err := c.ProcessFrame(nil, at(200))
	if err != nil {
		t.Fatalf("ProcessFrame(nil) error = %v", err)
	}
	if ev.HandPresent || ev.Cursor != nil || len(ev.Clicks) != 0 {
		t.Errorf("no-hand FrameEvent = %+v", ev)
	}

	after := c.Snapshot()
	if after.BufferLen != before.BufferLen {
		t.Errorf("BufferLen %d -> %d", before.BufferLen, after.BufferLen)
	}
	if diff := cmp.Diff(before.Gestures, after.Gestures); diff != "" {
		t.Errorf("gesture phases changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(before.Cursor, after.Cursor); diff != "" {
		t.Errorf("cursor changed (-before +after):\n%s", diff)
	}
	if len(rec.Events()) != dispatched {
		t.Errorf("no-hand frame dispatched %v", rec.Events()[dispatched:])
	}
}

func TestProcessFrame_DispatchError(t *testing.T) {
	rec := output.NewRecorder()
	boom := errors.New("boom")
	rec.SetError(boom)

	c := newController(t, rec)
	c.Start()

	_, err := c.ProcessFrame(palm(), at(0))
	if !errors.Is(err, ErrDispatch) || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want ErrDispatch wrapping boom", err)
	}
	if st := c.Snapshot(); st.Frames != 1 || st.BufferLen != 1 {
		t.Errorf("state did not advance: %+v", st)
	}
}

func TestStart_ResetsSession(t *testing.T) {
	c := newController(t, nil)
	c.Start()
	run(t, c, []frame{{palm(), at(0)}, {middlePinch(), at(100)}})

	if st := c.Snapshot(); st.Gestures["single_click"] != "fired" {
		t.Fatalf("Gestures = %v, want single click fired", st.Gestures)
	}

	c.Stop()
	c.Start()
	st := c.Snapshot()
	if st.BufferLen != 0 || st.Frames != 0 || st.Cursor != nil {
		t.Errorf("Start() did not clear the session: %+v", st)
	}
	for k, p := range st.Gestures {
		if p != "idle" {
			t.Errorf("gesture %s = %s after Start, want idle", k, p)
		}
	}
}

// closeHand is a hand whose wrist to middle-base span is 0.2.
func closeHand() *detector.HandLandmarks {
	h := detector.OpenPalmLandmarks()
	h.Points[detector.MiddleMCP] = detector.Point3D{X: 0.5, Y: 0.45}
	return &h
}

func TestCalibration_AcrossFrames(t *testing.T) {
	c := newController(t, nil)
	c.Start()

	var (
		mu      sync.Mutex
		results []CalibrationResult
	)
	c.OnCalibration(func(r CalibrationResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})

	if !c.RequestCalibration() {
		t.Fatal("RequestCalibration() = false")
	}
	if c.RequestCalibration() {
		t.Error("second RequestCalibration() should join the pending one")
	}

	frames := []*detector.HandLandmarks{closeHand(), nil, closeHand(), closeHand(), nil, closeHand()}
	for i, h := range frames {
		ev, err := c.ProcessFrame(h, at(i*33))
		if err != nil {
			t.Fatal(err)
		}
		if ev.Calibration != nil {
			t.Fatalf("frame %d finished calibration early", i)
		}
	}
	if st := c.Snapshot(); !st.CalibrationPending || st.CalibrationCollected != 4 || st.CalibrationRequired != 5 {
		t.Errorf("progress = %d/%d pending=%v", st.CalibrationCollected, st.CalibrationRequired, st.CalibrationPending)
	}

	ev, err := c.ProcessFrame(closeHand(), at(200))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Calibration == nil || ev.Calibration.Err != nil {
		t.Fatalf("calibration result = %+v", ev.Calibration)
	}

	got := c.Calibration()
	if math.Abs(got.ScaleFactor-0.75) > 1e-9 || !got.Calibrated {
		t.Errorf("Calibration() = %+v, want scale 0.75", got)
	}
	if c.Snapshot().CalibrationPending {
		t.Error("calibration still pending")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || results[0].Err != nil {
		t.Errorf("OnCalibration saw %+v, want one success", results)
	}
}

func TestCalibration_TimeoutKeepsState(t *testing.T) {
	c := newController(t, nil)
	c.Start()
	c.RequestCalibration()

	var last FrameEvent
	for i := 0; i < calibration.DefaultConfig().MaxFrames; i++ {
		ev, err := c.ProcessFrame(nil, at(i))
		if err != nil {
			t.Fatal(err)
		}
		last = ev
	}

	if last.Calibration == nil || !errors.Is(last.Calibration.Err, calibration.ErrTimeout) {
		t.Fatalf("last frame calibration = %+v, want ErrTimeout", last.Calibration)
	}
	if diff := cmp.Diff(calibration.DefaultState(), c.Calibration()); diff != "" {
		t.Errorf("failed calibration changed state (-want +got):\n%s", diff)
	}
}

func TestCalibrate_Blocking(t *testing.T) {
	c := newController(t, nil)
	c.Start()

	type outcome struct {
		st  calibration.State
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		st, err := c.Calibrate(context.Background())
		done <- outcome{st, err}
	}()

	for i := 0; ; i++ {
		select {
		case o := <-done:
			if o.err != nil {
				t.Fatalf("Calibrate() error = %v", o.err)
			}
			if math.Abs(o.st.ScaleFactor-0.75) > 1e-9 {
				t.Errorf("ScaleFactor = %v, want 0.75", o.st.ScaleFactor)
			}
			return
		default:
		}
		if i > 2000 {
			t.Fatal("Calibrate() did not return")
		}
		if _, err := c.ProcessFrame(closeHand(), at(i)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCalibrate_ContextAndStop(t *testing.T) {
	c := newController(t, nil)
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Calibrate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Calibrate(cancelled) error = %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := c.Calibrate(context.Background())
		errc <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(c.waitersSnapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Calibrate() never registered")
		}
		time.Sleep(time.Millisecond)
	}

	c.Stop()
	select {
	case err := <-errc:
		if !errors.Is(err, calibration.ErrCancelled) {
			t.Errorf("Calibrate() after Stop error = %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not release Calibrate()")
	}
}

func (c *Controller) waitersSnapshot() []chan CalibrationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chan CalibrationResult(nil), c.waiters...)
}

func TestApplyTuning(t *testing.T) {
	c := newController(t, nil)
	c.Start()
	run(t, c, []frame{{palm(), at(0)}, {palm(), at(33)}, {palm(), at(66)}})

	cfg := DefaultConfig(1920, 1080)
	cfg.Mapper.WindowSize = 1
	cfg.Gestures.Single.Close = 0.001
	c.ApplyTuning(cfg)

	if st := c.Snapshot(); st.BufferLen != 1 {
		t.Errorf("BufferLen = %d after shrinking the window, want 1", st.BufferLen)
	}

	ev, err := c.ProcessFrame(middlePinch(), at(100))
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Clicks) != 0 {
		t.Errorf("tightened threshold still fired %v", ev.Clicks)
	}
}

func TestController_ConcurrentUse(t *testing.T) {
	c := newController(t, output.NewRecorder())
	c.Start()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		hands := []*detector.HandLandmarks{palm(), middlePinch(), nil, indexPinch()}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			c.ProcessFrame(hands[i%len(hands)], at(i*10))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.SetSensitivity(0.5 + float64(i%5)*0.5)
			c.Pause()
			_ = c.Snapshot()
			c.Resume()
			c.RequestCalibration()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
	c.Stop()

	if c.Snapshot().Running {
		t.Error("Running after Stop()")
	}
}
