package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEndOfFrames is returned by a non-looping MockCamera after its last frame.
var ErrEndOfFrames = errors.New("no more frames")

// MockCamera replays a fixed frame sequence. It can also simulate a device
// that drops frames.
type MockCamera struct {
	mu sync.Mutex

	frames []*gocv.Mat
	next   int
	loop   bool

	fps    int
	open   bool
	opens  int
	reads  int
	faults int
}

// NewMockCamera plays frames in order, starting over when loop is set.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop, fps: DefaultFPS}
}

// Open rewinds playback.
func (c *MockCamera) Open() error {
	c.mu.Lock()
	c.open, c.next = true, 0
	c.opens++
	c.mu.Unlock()
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}

// ReadFrame returns a clone of the next frame.
func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.open:
		return nil, ErrCameraNotOpen
	case c.faults > 0:
		c.faults--
		return nil, ErrNoFrame
	case len(c.frames) == 0:
		return nil, ErrNoFrame
	}

	if c.next == len(c.frames) {
		if !c.loop {
			return nil, ErrEndOfFrames
		}
		c.next = 0
	}
	frame := c.frames[c.next].Clone()
	c.next++
	c.reads++
	return &frame, nil
}

// DropFrames makes the next n reads fail with ErrNoFrame.
func (c *MockCamera) DropFrames(n int) {
	c.mu.Lock()
	c.faults = n
	c.mu.Unlock()
}

// SetFrames replaces the sequence and rewinds.
func (c *MockCamera) SetFrames(frames []*gocv.Mat) {
	c.mu.Lock()
	c.frames, c.next = frames, 0
	c.mu.Unlock()
}

func (c *MockCamera) SetFPS(fps int) {
	if fps > 0 {
		c.mu.Lock()
		c.fps = fps
		c.mu.Unlock()
	}
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Opens reports how many times the camera was opened.
func (c *MockCamera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Reads reports how many frames were delivered.
func (c *MockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
