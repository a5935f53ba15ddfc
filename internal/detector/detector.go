package detector

import (
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// Detector produces hand landmarks for video frames.
type Detector interface {
	// Detect returns the hands found in frame, possibly none.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)
	Close() error
}

// Config configures a landmark service.
type Config struct {
	// MaxHands caps the hands reported per frame. The cursor follows one
	// hand, so the default is 1.
	MaxHands        int
	MinConfidence   float64
	MinTrackingConf float64

	// ScriptPath is the landmark service script. Empty searches the default
	// locations.
	ScriptPath string

	// JPEGQuality is the encoding quality of frames sent to the service.
	JPEGQuality int

	// Timeout bounds a single frame round trip. A service that misses it is
	// restarted on the next frame.
	Timeout time.Duration
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		MaxHands:        1,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		JPEGQuality:     80,
		Timeout:         2 * time.Second,
	}
}

// Observe runs d on frame and selects the hand to track, or nil when no
// suitable hand is in view. See Select.
func Observe(d Detector, frame *gocv.Mat, prefer string) (*HandLandmarks, error) {
	hands, err := d.Detect(frame)
	if err != nil {
		return nil, err
	}
	return Select(hands, prefer), nil
}

// Select returns the highest scoring hand, ties going to the earlier one.
// A non-empty prefer ("left" or "right") restricts the choice to hands of
// that handedness.
func Select(hands []HandLandmarks, prefer string) *HandLandmarks {
	var best *HandLandmarks
	for i := range hands {
		h := &hands[i]
		if prefer != "" && !strings.EqualFold(h.Handedness, prefer) {
			continue
		}
		if best == nil || h.Score > best.Score {
			best = h
		}
	}
	if best == nil {
		return nil
	}
	hand := *best
	return &hand
}
