// Package tray provides the system tray menu for mudra.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

// SensitivityStep is the change applied by the sensitivity menu items.
const SensitivityStep = 0.25

// Handlers are the menu actions. Nil handlers are ignored.
type Handlers struct {
	// Toggle receives the tracking state the user asked for.
	Toggle    func(enabled bool)
	Calibrate func()
	// Sensitivity receives the requested value and returns the value in
	// effect, which the menu then shows.
	Sensitivity func(requested float64) float64
	Dashboard   func()
	Quit        func()
}

// Tray is the tray icon and its menu.
type Tray struct {
	h Handlers

	mu          sync.Mutex
	enabled     bool
	sensitivity float64
	status      string
	last        string
	items       *menu
}

type menu struct {
	toggle, sensitivity, status, last *systray.MenuItem
}

// New creates a Tray showing tracking stopped at sensitivity.
func New(sensitivity float64, h Handlers) *Tray {
	return &Tray{
		h:           h,
		sensitivity: sensitivity,
		status:      "Not calibrated",
		last:        "Last: none",
	}
}

// Run shows the tray and blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.build, func() {})
}

// Quit removes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) build() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra hand-gesture cursor")

	t.mu.Lock()
	m := &menu{}
	m.toggle = systray.AddMenuItem(toggleTitle(t.enabled), "Start or stop cursor tracking")
	calibrate := systray.AddMenuItem("Calibrate", "Hold an open hand in view to calibrate distance")
	systray.AddSeparator()
	m.sensitivity = label(sensitivityTitle(t.sensitivity))
	faster := systray.AddMenuItem("Increase sensitivity", "Move the cursor further per hand movement")
	slower := systray.AddMenuItem("Decrease sensitivity", "Move the cursor less per hand movement")
	systray.AddSeparator()
	m.status = label(t.status)
	m.last = label(t.last)
	systray.AddSeparator()
	dashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Quit Mudra")
	t.items = m
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-m.toggle.ClickedCh:
				t.toggle()
			case <-calibrate.ClickedCh:
				call(t.h.Calibrate)
			case <-faster.ClickedCh:
				t.nudge(SensitivityStep)
			case <-slower.ClickedCh:
				t.nudge(-SensitivityStep)
			case <-dashboard.ClickedCh:
				call(t.h.Dashboard)
			case <-quit.ClickedCh:
				call(t.h.Quit)
				systray.Quit()
				return
			}
		}
	}()
}

// label adds a disabled, display-only item.
func label(title string) *systray.MenuItem {
	item := systray.AddMenuItem(title, "")
	item.Disable()
	return item
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Tracking"
	}
	return "○ Stopped"
}

func sensitivityTitle(v float64) string {
	return fmt.Sprintf("Sensitivity: %.2f", v)
}

func lastTitle(name string, at time.Time) string {
	if name == "" {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %s at %s", name, at.Format("15:04:05"))
}

// toggle flips the shown state and reports the new one.
func (t *Tray) toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.redrawLocked()
	t.mu.Unlock()

	if t.h.Toggle != nil {
		t.h.Toggle(enabled)
	}
}

// nudge requests the current sensitivity plus delta.
func (t *Tray) nudge(delta float64) {
	if t.h.Sensitivity == nil {
		return
	}
	t.mu.Lock()
	requested := t.sensitivity + delta
	t.mu.Unlock()

	t.SetSensitivity(t.h.Sensitivity(requested))
}

// redrawLocked pushes the state into the menu once it exists.
func (t *Tray) redrawLocked() {
	if t.items == nil {
		return
	}
	t.items.toggle.SetTitle(toggleTitle(t.enabled))
	t.items.sensitivity.SetTitle(sensitivityTitle(t.sensitivity))
	t.items.status.SetTitle(t.status)
	t.items.last.SetTitle(t.last)
}

func (t *Tray) update(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn()
	t.redrawLocked()
}

// SetEnabled shows the tracking state without calling Toggle.
func (t *Tray) SetEnabled(enabled bool) {
	t.update(func() { t.enabled = enabled })
}

// SetSensitivity shows v as the sensitivity.
func (t *Tray) SetSensitivity(v float64) {
	t.update(func() { t.sensitivity = v })
}

// SetStatus sets the calibration status line.
func (t *Tray) SetStatus(status string) {
	t.update(func() { t.status = status })
}

// SetLastEvent shows the most recent click.
func (t *Tray) SetLastEvent(name string, at time.Time) {
	t.update(func() { t.last = lastTitle(name, at) })
}

// IsEnabled reports the shown tracking state.
func (t *Tray) IsEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Sensitivity returns the shown sensitivity.
func (t *Tray) Sensitivity() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sensitivity
}

// Status returns the calibration status line.
func (t *Tray) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// LastEvent returns the last click line.
func (t *Tray) LastEvent() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
