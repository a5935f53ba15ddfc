// Package detector provides hand landmark types and the landmark provider interface.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a landmark position. X and Y are normalized to [0,1] within the
// frame; Z is model-defined depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks is one observation of a single hand: the 21 landmarks of the
// MediaPipe hand model. A nil *HandLandmarks means no hand in the frame.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Distance2D returns the planar Euclidean distance between two points,
// ignoring depth.
func Distance2D(a, b Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Distance returns the planar distance between two landmarks of the hand.
// Out-of-range ids and a nil hand yield +Inf.
func (h *HandLandmarks) Distance(i, j int) float64 {
	if h == nil || i < 0 || j < 0 || i >= NumLandmarks || j >= NumLandmarks {
		return math.Inf(1)
	}
	return Distance2D(h.Points[i], h.Points[j])
}

// PalmSpan returns the wrist to middle-finger-base distance, which shrinks as
// the hand moves away from the camera.
func (h *HandLandmarks) PalmSpan() float64 {
	return h.Distance(Wrist, MiddleMCP)
}

// Translate returns a copy of the hand shifted by (dx, dy) in normalized units.
func (h HandLandmarks) Translate(dx, dy float64) HandLandmarks {
	for i := range h.Points {
		h.Points[i].X += dx
		h.Points[i].Y += dy
	}
	return h
}
