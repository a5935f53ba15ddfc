package app

import (
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/output"
	"github.com/ayusman/mudra/internal/store"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_TrackingJournalsSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)
	h := newHarness(t, testSettings(t), s)

	var states []bool
	h.app.OnTracking(func(running bool) { states = append(states, running) })

	h.detector.SetScript([][]detector.HandLandmarks{
		{detector.OpenPalmLandmarks()},
		{detector.MiddlePinchLandmarks()},
	})
	h.detector.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})

	if err := h.app.StartTracking(); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	if err := h.app.StartTracking(); err != nil {
		t.Fatalf("second StartTracking() error = %v", err)
	}
	id := h.app.SessionID()
	if id == "" {
		t.Fatal("no journal session while running")
	}

	waitFor(t, "a click", func() bool { return len(h.driver.Clicks()) > 0 })

	if err := h.app.StopTracking(); err != nil {
		t.Fatalf("StopTracking() error = %v", err)
	}
	if h.camera.IsOpen() {
		t.Error("camera left open after stop")
	}

	sess, err := s.Sessions().GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.Active() || sess.Clicks != 1 || sess.Frames < 2 {
		t.Errorf("session = %+v, want ended with 1 click", sess)
	}

	events, err := s.Events().ListBySession(id)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(events) != 1 || events[0].Kind != store.EventClickSingle {
		t.Errorf("journaled events = %+v, want one single click", events)
	}

	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("tracking notifications = %v, want [true false]", states)
	}
}

func TestApp_FailsafeStopsTracking(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)
	h := newHarness(t, testSettings(t), s)

	stopped := make(chan struct{})
	h.app.OnTracking(func(running bool) {
		if !running {
			close(stopped)
		}
	})

	h.detector.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	h.driver.SetError(output.ErrFailsafe)

	if err := h.app.StartTracking(); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("failsafe did not stop tracking")
	}

	if h.app.Running() {
		t.Error("app still running after failsafe")
	}
	sessions, err := s.Sessions().List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].Active() {
		t.Errorf("sessions = %+v, want one ended session", sessions)
	}
}

func TestApp_StaleLoopStopLeavesNewSessionRunning(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t, testSettings(t), newTestStore(t))

	if err := h.app.StartTracking(); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	h.app.mu.Lock()
	first := h.app.stopCh
	h.app.mu.Unlock()
	firstID := h.app.SessionID()

	// The user restarts before a failsafe stop for the first loop lands.
	if err := h.app.StopTracking(); err != nil {
		t.Fatalf("StopTracking() error = %v", err)
	}
	if err := h.app.StartTracking(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	secondID := h.app.SessionID()
	if secondID == "" || secondID == firstID {
		t.Fatalf("session ids = %q then %q, want a new session", firstID, secondID)
	}

	if err := h.app.stopTracking(first); err != nil {
		t.Fatalf("stopTracking(stale) error = %v", err)
	}
	if !h.app.Running() || h.app.SessionID() != secondID {
		t.Error("stale stop ended the new session")
	}
	if !h.camera.IsOpen() {
		t.Error("stale stop closed the camera")
	}

	h.app.mu.Lock()
	current := h.app.stopCh
	h.app.mu.Unlock()
	if err := h.app.stopTracking(current); err != nil {
		t.Fatalf("stopTracking(current) error = %v", err)
	}
	if h.app.Running() {
		t.Error("stop of the current loop left the app running")
	}
}
