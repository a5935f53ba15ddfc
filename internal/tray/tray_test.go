package tray

import (
	"testing"
	"time"
)

func TestTray_Toggle(t *testing.T) {
	var got []bool
	tr := New(1.0, Handlers{Toggle: func(enabled bool) { got = append(got, enabled) }})

	if tr.IsEnabled() {
		t.Fatal("tray should start stopped")
	}
	tr.toggle()
	tr.toggle()

	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("toggle callbacks = %v, want [true false]", got)
	}
	if tr.IsEnabled() {
		t.Error("expected stopped after two toggles")
	}

	tr.SetEnabled(true)
	if !tr.IsEnabled() || len(got) != 2 {
		t.Error("SetEnabled should update state without the callback")
	}
}

func TestTray_Sensitivity(t *testing.T) {
	var requested []float64
	tr := New(2.9, Handlers{Sensitivity: func(v float64) float64 {
		requested = append(requested, v)
		return min(v, 3.0)
	}})

	tr.nudge(SensitivityStep)
	if tr.Sensitivity() != 3.0 {
		t.Errorf("sensitivity = %v, want the clamped 3.0", tr.Sensitivity())
	}
	tr.nudge(-SensitivityStep)
	if tr.Sensitivity() != 2.75 {
		t.Errorf("sensitivity = %v, want 2.75", tr.Sensitivity())
	}
	if len(requested) != 2 || requested[0] != 3.15 {
		t.Errorf("requested = %v", requested)
	}
}

func TestTray_StatusLines(t *testing.T) {
	tr := New(1.0, Handlers{})

	if tr.Status() != "Not calibrated" || tr.LastEvent() != "Last: none" {
		t.Errorf("initial lines = %q, %q", tr.Status(), tr.LastEvent())
	}

	tr.SetStatus("Calibrated (scale 1.00)")
	tr.SetLastEvent("single_click", time.Date(2026, 1, 2, 9, 5, 7, 0, time.Local))
	if tr.Status() != "Calibrated (scale 1.00)" {
		t.Errorf("Status() = %q", tr.Status())
	}
	if want := "Last: single_click at 09:05:07"; tr.LastEvent() != want {
		t.Errorf("LastEvent() = %q, want %q", tr.LastEvent(), want)
	}

	tr.SetLastEvent("", time.Time{})
	if tr.LastEvent() != "Last: none" {
		t.Errorf("LastEvent() = %q after reset", tr.LastEvent())
	}
}

func TestTray_NilHandlers(t *testing.T) {
	tr := New(1.0, Handlers{})
	tr.toggle()
	tr.nudge(SensitivityStep)
	call(tr.h.Calibrate)

	if tr.Sensitivity() != 1.0 {
		t.Errorf("sensitivity changed without a handler: %v", tr.Sensitivity())
	}
	if !tr.IsEnabled() {
		t.Error("toggle without a handler should still flip the state")
	}
}
