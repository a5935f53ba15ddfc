package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	blurKernel    = 21
	diffThreshold = 25
)

// IdleConfig configures an IdleGate.
type IdleConfig struct {
	// After is how long without a hand before the gate goes idle. Zero
	// disables idling.
	After time.Duration
	// MotionPercent is the share of changed pixels, in percent, that wakes
	// an idle gate.
	MotionPercent float64
}

// DefaultIdleConfig idles after 2 s and wakes on a 1 % pixel change.
func DefaultIdleConfig() IdleConfig {
	return IdleConfig{After: 2 * time.Second, MotionPercent: 1.0}
}

// IdleGate decides which frames go to the landmark detector. While a hand
// was seen recently every frame passes. Once idle, only frames that differ
// from the previous one pass, and the frame loop may run slower.
type IdleGate struct {
	mu       sync.Mutex
	cfg      IdleConfig
	lastHand time.Time
	idle     bool
	prev     gocv.Mat
	hasPrev  bool
	closed   bool
}

// NewIdleGate creates an active gate.
func NewIdleGate(cfg IdleConfig) *IdleGate {
	return &IdleGate{cfg: cfg, prev: gocv.NewMat()}
}

// Pass reports whether frame should be sent to the detector.
func (g *IdleGate) Pass(frame *gocv.Mat, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.After <= 0 {
		return true
	}
	if !g.idle {
		if g.lastHand.IsZero() {
			g.lastHand = now
		}
		if now.Sub(g.lastHand) < g.cfg.After {
			return true
		}
		g.idle = true
		g.hasPrev = false
	}

	moved, _ := g.motionLocked(frame)
	return moved
}

// Observe records whether the detector found a hand. A hand wakes the gate.
func (g *IdleGate) Observe(handPresent bool, now time.Time) {
	if !handPresent {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastHand = now
	g.idle = false
}

// Wake forces the gate active as if a hand had just been seen.
func (g *IdleGate) Wake(now time.Time) {
	g.Observe(true, now)
}

// Idle reports whether the gate is idle.
func (g *IdleGate) Idle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idle
}

// SetConfig replaces the gate settings.
func (g *IdleGate) SetConfig(cfg IdleConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
	if cfg.After <= 0 {
		g.idle = false
	}
}

// motionLocked compares frame against the previous idle frame using a
// blurred grayscale difference and returns whether the changed share of
// pixels exceeds the threshold. The first frame only sets the baseline.
func (g *IdleGate) motionLocked(frame *gocv.Mat) (bool, float64) {
	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurKernel, Y: blurKernel}, 0, 0, gocv.BorderDefault)

	if !g.hasPrev || g.prev.Rows() != blurred.Rows() || g.prev.Cols() != blurred.Cols() {
		blurred.CopyTo(&g.prev)
		g.hasPrev = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, diffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100.0
	blurred.CopyTo(&g.prev)

	return changed > g.cfg.MotionPercent, changed
}

// Close releases the baseline frame. Closing twice is a no-op.
func (g *IdleGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.hasPrev = false
	return g.prev.Close()
}
