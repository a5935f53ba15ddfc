package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results, either with a fixed set
// of hands or a script consumed one frame at a time.
type MockDetector struct {
	mu     sync.Mutex
	hands  []HandLandmarks
	script [][]HandLandmarks
	err    error
	calls  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetScript queues per-frame results. Once the script is exhausted Detect
// falls back to the hands set with SetHands.
func (m *MockDetector) SetScript(frames [][]HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = frames
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next scripted result, the pre-configured hands, or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next, nil
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// OpenPalmLandmarks returns a right hand held open, palm to the camera, with
// the wrist near the centre of the frame. Thumb, index and middle tips are
// far apart, so no click gesture is active.
func OpenPalmLandmarks() HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.65, Z: 0.0}

	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.60, Z: 0.02}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.55, Z: 0.03}
	landmarks.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.50, Z: 0.03}
	landmarks.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.45, Z: 0.03}

	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.53, Z: 0.0}
	landmarks.Points[IndexPIP] = Point3D{X: 0.57, Y: 0.40, Z: 0.0}
	landmarks.Points[IndexDIP] = Point3D{X: 0.58, Y: 0.30, Z: 0.0}
	landmarks.Points[IndexTip] = Point3D{X: 0.58, Y: 0.20, Z: 0.0}

	// Wrist to middle MCP spans 0.15, the nominal span at ~30cm.
	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.50, Z: 0.0}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.37, Z: 0.0}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.25, Z: 0.0}
	landmarks.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.13, Z: 0.0}

	landmarks.Points[RingMCP] = Point3D{X: 0.45, Y: 0.53, Z: 0.0}
	landmarks.Points[RingPIP] = Point3D{X: 0.43, Y: 0.40, Z: 0.0}
	landmarks.Points[RingDIP] = Point3D{X: 0.42, Y: 0.30, Z: 0.0}
	landmarks.Points[RingTip] = Point3D{X: 0.42, Y: 0.20, Z: 0.0}

	landmarks.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.55, Z: 0.0}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.37, Y: 0.45, Z: 0.0}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.35, Y: 0.35, Z: 0.0}
	landmarks.Points[PinkyTip] = Point3D{X: 0.34, Y: 0.27, Z: 0.0}

	return landmarks
}

// MiddlePinchLandmarks returns an open palm with the thumb tip touching the
// middle fingertip (the single-click gesture).
func MiddlePinchLandmarks() HandLandmarks {
	landmarks := OpenPalmLandmarks()
	landmarks.Points[MiddleDIP] = Point3D{X: 0.54, Y: 0.36, Z: -0.02}
	landmarks.Points[MiddleTip] = Point3D{X: 0.56, Y: 0.40, Z: -0.03}
	landmarks.Points[ThumbIP] = Point3D{X: 0.60, Y: 0.45, Z: -0.01}
	landmarks.Points[ThumbTip] = Point3D{X: 0.57, Y: 0.41, Z: -0.03}
	return landmarks
}

// IndexPinchLandmarks returns an open palm with the thumb tip touching the
// index fingertip (the double-click gesture).
func IndexPinchLandmarks() HandLandmarks {
	landmarks := OpenPalmLandmarks()
	landmarks.Points[IndexDIP] = Point3D{X: 0.60, Y: 0.35, Z: -0.02}
	landmarks.Points[IndexTip] = Point3D{X: 0.63, Y: 0.39, Z: -0.03}
	landmarks.Points[ThumbIP] = Point3D{X: 0.66, Y: 0.45, Z: -0.01}
	landmarks.Points[ThumbTip] = Point3D{X: 0.64, Y: 0.40, Z: -0.03}
	return landmarks
}
