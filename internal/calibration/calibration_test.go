package calibration

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

const epsilon = 1e-9

// handWithSpan returns an open palm whose wrist to middle-base span is d.
func handWithSpan(d float64) *detector.HandLandmarks {
	hand := detector.OpenPalmLandmarks()
	wrist := hand.Points[detector.Wrist]
	hand.Points[detector.MiddleMCP] = detector.Point3D{X: wrist.X, Y: wrist.Y - d}
	return &hand
}

func repeat(hand *detector.HandLandmarks, n int) []*detector.HandLandmarks {
	window := make([]*detector.HandLandmarks, n)
	for i := range window {
		window[i] = hand
	}
	return window
}

func TestCalibrate_Deterministic(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		d    float64
	}{
		{"nominal distance", 0.15},
		{"closer hand", 0.20},
		{"farther hand", 0.10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := Calibrate(repeat(handWithSpan(tt.d), 5), cfg)
			if err != nil {
				t.Fatalf("Calibrate() error = %v", err)
			}

			want := cfg.TargetReferenceDistance / tt.d
			if math.Abs(state.ScaleFactor-want) > epsilon {
				t.Errorf("ScaleFactor = %f, want %f", state.ScaleFactor, want)
			}
			if math.Abs(state.ReferenceDistance-tt.d) > epsilon {
				t.Errorf("ReferenceDistance = %f, want %f", state.ReferenceDistance, tt.d)
			}
			if !state.Calibrated {
				t.Error("expected Calibrated to be true")
			}
		})
	}
}

func TestCalibrate_CloserHandGetsSmallerScale(t *testing.T) {
	cfg := DefaultConfig()

	near, err := Calibrate(repeat(handWithSpan(0.25), 5), cfg)
	if err != nil {
		t.Fatal(err)
	}
	far, err := Calibrate(repeat(handWithSpan(0.10), 5), cfg)
	if err != nil {
		t.Fatal(err)
	}

	if near.ScaleFactor >= far.ScaleFactor {
		t.Errorf("near scale %f should be smaller than far scale %f", near.ScaleFactor, far.ScaleFactor)
	}
}

func TestCalibrate_AveragesSpans(t *testing.T) {
	window := []*detector.HandLandmarks{
		handWithSpan(0.10), handWithSpan(0.20), handWithSpan(0.15), handWithSpan(0.12), handWithSpan(0.18),
	}

	state, err := Calibrate(window, DefaultConfig())
	if err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}
	if math.Abs(state.ReferenceDistance-0.15) > epsilon {
		t.Errorf("ReferenceDistance = %f, want 0.15", state.ReferenceDistance)
	}
}

func TestCalibrate_DiscardsMissingHands(t *testing.T) {
	hand := handWithSpan(0.15)
	window := []*detector.HandLandmarks{hand, nil, hand, nil, hand, hand}

	if _, err := Calibrate(window, DefaultConfig()); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples with 4 usable frames, got %v", err)
	}

	window = append(window, nil, hand)
	if _, err := Calibrate(window, DefaultConfig()); err != nil {
		t.Fatalf("expected success with 5 usable frames, got %v", err)
	}
}

func TestCalibrate_DiscardsDegenerateSpan(t *testing.T) {
	hand := handWithSpan(0)
	if _, err := Calibrate(repeat(hand, 10), DefaultConfig()); !errors.Is(err, ErrInsufficientSamples) {
		t.Errorf("expected ErrInsufficientSamples for zero span, got %v", err)
	}
}

func TestCalibrate_ClampsScale(t *testing.T) {
	cfg := DefaultConfig()

	tiny, err := Calibrate(repeat(handWithSpan(0.01), 5), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tiny.ScaleFactor != cfg.MaxScale {
		t.Errorf("ScaleFactor = %f, want clamp to %f", tiny.ScaleFactor, cfg.MaxScale)
	}

	huge, err := Calibrate(repeat(handWithSpan(0.9), 5), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if huge.ScaleFactor != cfg.MinScale {
		t.Errorf("ScaleFactor = %f, want clamp to %f", huge.ScaleFactor, cfg.MinScale)
	}

	cfg.MinScale, cfg.MaxScale = 0, 0
	unbounded, err := Calibrate(repeat(handWithSpan(0.01), 5), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(unbounded.ScaleFactor-15) > epsilon {
		t.Errorf("ScaleFactor = %f, want 15 with bounds disabled", unbounded.ScaleFactor)
	}
}

func TestDefaultState(t *testing.T) {
	s := DefaultState()
	if s.ScaleFactor != 1.0 || s.Calibrated {
		t.Errorf("unexpected default state: %+v", s)
	}
}

func TestWindow_CompletesAfterMinSamples(t *testing.T) {
	cfg := DefaultConfig()
	start := time.Unix(1000, 0)
	w := NewWindow(cfg, start)
	hand := handWithSpan(0.10)

	for i := 0; i < cfg.MinSamples-1; i++ {
		_, done, err := w.Observe(hand, start.Add(time.Duration(i)*33*time.Millisecond))
		if done || err != nil {
			t.Fatalf("frame %d: window finished early (done=%v err=%v)", i, done, err)
		}
	}

	state, done, err := w.Observe(hand, start.Add(200*time.Millisecond))
	if !done || err != nil {
		t.Fatalf("expected completion, got done=%v err=%v", done, err)
	}
	if math.Abs(state.ScaleFactor-1.5) > epsilon {
		t.Errorf("ScaleFactor = %f, want 1.5", state.ScaleFactor)
	}
}

func TestWindow_NoHandFramesDoNotCount(t *testing.T) {
	cfg := DefaultConfig()
	start := time.Unix(1000, 0)
	w := NewWindow(cfg, start)

	for i := 0; i < 10; i++ {
		if _, done, _ := w.Observe(nil, start.Add(time.Duration(i)*time.Millisecond)); done {
			t.Fatal("window should not finish on no-hand frames alone")
		}
	}

	collected, required := w.Progress()
	if collected != 0 || required != cfg.MinSamples {
		t.Errorf("Progress() = %d/%d, want 0/%d", collected, required, cfg.MinSamples)
	}
}

func TestWindow_Timeouts(t *testing.T) {
	start := time.Unix(1000, 0)

	t.Run("frame budget", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxFrames = 3
		cfg.Timeout = 0
		w := NewWindow(cfg, start)

		var err error
		var done bool
		for i := 0; i < 3; i++ {
			_, done, err = w.Observe(nil, start)
		}
		if !done || !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout after frame budget, got done=%v err=%v", done, err)
		}
	})

	t.Run("wall clock", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxFrames = 0
		cfg.Timeout = time.Second
		w := NewWindow(cfg, start)

		if _, done, _ := w.Observe(nil, start.Add(500*time.Millisecond)); done {
			t.Fatal("window finished before timeout")
		}
		_, done, err := w.Observe(handWithSpan(0.15), start.Add(time.Second))
		if !done || !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout at deadline, got done=%v err=%v", done, err)
		}
	})
}
