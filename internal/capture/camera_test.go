package capture

import (
	"errors"
	"testing"
)

func TestOptions_Defaults(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{"zero", Options{}, Options{FPS: DefaultFPS, Width: DefaultWidth, Height: DefaultHeight}},
		{"negative", Options{FPS: -3, Width: -1}, Options{FPS: DefaultFPS, Width: DefaultWidth, Height: DefaultHeight}},
		{"explicit", Options{Device: 2, FPS: 15, Width: 1280, Height: 720}, Options{Device: 2, FPS: 15, Width: 1280, Height: 720}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.withDefaults(); got != tt.want {
				t.Errorf("withDefaults() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewCamera_Closed(t *testing.T) {
	cam := NewCamera(Options{FPS: 15})

	if cam.FPS() != 15 {
		t.Errorf("FPS() = %d, want 15", cam.FPS())
	}
	if cam.IsOpen() {
		t.Error("new camera reports open")
	}
	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("Close() on closed camera = %v", err)
	}
}

func TestCamera_SetFPSIgnoresNonPositive(t *testing.T) {
	cam := NewCamera(Options{})

	for _, step := range []struct{ set, want int }{{10, 10}, {1, 1}, {0, 1}, {-5, 1}} {
		cam.SetFPS(step.set)
		if got := cam.FPS(); got != step.want {
			t.Errorf("after SetFPS(%d) FPS() = %d, want %d", step.set, got, step.want)
		}
	}
}

func TestCamera_Device(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping device test in short mode")
	}

	cam := NewCamera(Options{})
	if err := cam.Open(); err != nil {
		t.Skipf("no camera available: %v", err)
	}
	if !cam.IsOpen() {
		t.Error("IsOpen() = false after Open()")
	}
	if err := cam.Open(); err != nil {
		t.Errorf("second Open() = %v", err)
	}

	frame, err := cam.ReadFrame()
	if err != nil {
		t.Errorf("ReadFrame() error = %v", err)
	} else {
		t.Logf("captured %dx%d", frame.Cols(), frame.Rows())
		frame.Close()
	}

	if err := cam.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if cam.IsOpen() {
		t.Error("IsOpen() = true after Close()")
	}
}
