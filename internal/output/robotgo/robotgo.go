// Package robotgo drives the local pointer through go-vgo/robotgo.
package robotgo

import (
	"sync"

	rg "github.com/go-vgo/robotgo"

	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/output"
)

// DefaultFailsafeMargin is the distance in pixels from a screen corner inside
// which the real pointer trips the failsafe.
const DefaultFailsafeMargin = 5

// Pointer is the platform pointer used by Driver.
type Pointer interface {
	Move(x, y int)
	Click(double bool)
	Location() (x, y int)
	ScreenSize() (w, h int)
}

type systemPointer struct{}

func (systemPointer) Move(x, y int)          { rg.Move(x, y) }
func (systemPointer) Click(double bool)      { rg.Click("left", double) }
func (systemPointer) Location() (int, int)   { return rg.Location() }
func (systemPointer) ScreenSize() (int, int) { return rg.GetScreenSize() }

// SystemPointer returns the robotgo-backed platform pointer.
func SystemPointer() Pointer {
	return systemPointer{}
}

// ScreenSize reports the primary display size.
func ScreenSize() (int, int) {
	return rg.GetScreenSize()
}

// Driver drives the local pointer.
//
// Before every event it checks where the real pointer is. If the user has
// shoved it into a screen corner the driver latches output.ErrFailsafe and
// refuses all events until Reset. A corner position the driver itself moved
// to does not count.
type Driver struct {
	mu      sync.Mutex
	pointer Pointer
	margin  int
	tripped bool

	last  cursor.ScreenPoint
	moved bool
}

// New creates a driver. A nil pointer uses the system pointer; a negative
// margin disables the failsafe.
func New(p Pointer, failsafeMargin int) *Driver {
	if p == nil {
		p = SystemPointer()
	}
	return &Driver{pointer: p, margin: failsafeMargin}
}

// Dispatch performs ev on the platform pointer.
func (d *Driver) Dispatch(ev output.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tripped {
		return output.ErrFailsafe
	}
	if d.userInCorner() {
		d.tripped = true
		return output.ErrFailsafe
	}

	switch ev.Kind {
	case output.CursorMove:
		d.pointer.Move(ev.Point.X, ev.Point.Y)
		d.last, d.moved = ev.Point, true
	case output.ClickSingle:
		d.pointer.Click(false)
	case output.ClickDouble:
		d.pointer.Click(true)
	}
	return nil
}

// userInCorner reports whether the pointer sits in a corner somewhere other
// than where the last CursorMove put it.
func (d *Driver) userInCorner() bool {
	if d.margin < 0 {
		return false
	}
	w, h := d.pointer.ScreenSize()
	if w <= 0 || h <= 0 {
		return false
	}
	x, y := d.pointer.Location()
	nearX := x <= d.margin || x >= w-1-d.margin
	nearY := y <= d.margin || y >= h-1-d.margin
	if !nearX || !nearY {
		return false
	}
	return !d.moved || x != d.last.X || y != d.last.Y
}

// Tripped reports whether the failsafe has latched.
func (d *Driver) Tripped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tripped
}

// Reset re-arms the driver after a failsafe.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tripped = false
}
