// Package capture provides camera capture using GoCV (OpenCV) and the idle
// gate that throttles the frame loop while no hand is in view.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoFrame is returned when the device yields no image.
	ErrNoFrame = errors.New("camera returned no frame")
)

// Camera is a source of video frames.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes it.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Options selects a device and its capture format. Zero fields take the
// defaults.
type Options struct {
	Device int
	FPS    int
	Width  int
	Height int
}

func (o Options) withDefaults() Options {
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	return o
}

// reopenAfter is the number of consecutive failed reads after which the
// device is reopened.
const reopenAfter = 30

// deviceCamera captures from a camera device using GoCV.
type deviceCamera struct {
	mu      sync.Mutex
	opts    Options
	capture *gocv.VideoCapture
	// lost is set while a dropped device is being reopened.
	lost     bool
	failures int
}

// NewCamera creates a Camera for a capture device.
func NewCamera(opts Options) Camera {
	return &deviceCamera{opts: opts.withDefaults()}
}

// Open opens the device. Opening an open camera is a no-op.
func (c *deviceCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}
	return c.openLocked()
}

func (c *deviceCamera) openLocked() error {
	capture, err := gocv.OpenVideoCapture(c.opts.Device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.opts.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open camera %d: device unavailable", c.opts.Device)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.opts.FPS))

	c.capture = capture
	c.lost = false
	c.failures = 0
	return nil
}

// Close releases the device. Closing a closed camera is a no-op.
func (c *deviceCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lost = false
	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame grabs the next frame. After reopenAfter consecutive failures,
// such as a webcam that was unplugged, the device is closed and reopened;
// reads keep returning ErrNoFrame until it comes back.
func (c *deviceCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil && !c.lost {
		return nil, ErrCameraNotOpen
	}

	if c.capture != nil {
		mat := gocv.NewMat()
		if ok := c.capture.Read(&mat); ok && !mat.Empty() {
			c.failures = 0
			return &mat, nil
		}
		mat.Close()
	}

	c.failures++
	if c.failures < reopenAfter {
		return nil, ErrNoFrame
	}

	c.failures = 0
	if c.capture != nil {
		c.capture.Close()
		c.capture = nil
	}
	c.lost = true
	if err := c.openLocked(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	return nil, ErrNoFrame
}

// SetFPS changes the capture rate. Values less than or equal to 0 are ignored.
func (c *deviceCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.opts.FPS = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *deviceCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.FPS
}

func (c *deviceCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil || c.lost
}
