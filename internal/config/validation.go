package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/ayusman/mudra/internal/detector"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validate checks the configuration and returns ValidationErrors listing
// every problem, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Camera.Device < 0 {
		add("camera.device", "must not be negative")
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 120 {
		add("camera.fps", "must be in (0, 120], got %d", c.Camera.FPS)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		add("camera.width", "capture size must not be negative")
	}
	if c.Camera.IdleFPS < 0 || c.Camera.IdleFPS > c.Camera.FPS {
		add("camera.idle_fps", "must be in [0, fps], got %d", c.Camera.IdleFPS)
	}
	if c.Camera.IdleAfter.Duration < 0 {
		add("camera.idle_after", "must not be negative")
	}
	if c.Camera.MotionThreshold < 0 || c.Camera.MotionThreshold > 100 {
		add("camera.motion_threshold", "must be a percentage, got %g", c.Camera.MotionThreshold)
	}

	if v := c.Detector.MinDetectionConfidence; v < 0 || v > 1 {
		add("detector.min_detection_confidence", "must be in [0, 1], got %g", v)
	}
	if v := c.Detector.MinTrackingConfidence; v < 0 || v > 1 {
		add("detector.min_tracking_confidence", "must be in [0, 1], got %g", v)
	}
	switch strings.ToLower(c.Detector.Hand) {
	case "", "left", "right":
	default:
		add("detector.hand", "must be left, right or empty, got %q", c.Detector.Hand)
	}
	if c.Detector.JPEGQuality < 1 || c.Detector.JPEGQuality > 100 {
		add("detector.jpeg_quality", "must be in [1, 100], got %d", c.Detector.JPEGQuality)
	}
	if c.Detector.Timeout.Duration <= 0 {
		add("detector.timeout", "must be positive")
	}

	if c.Screen.Width < 0 || c.Screen.Height < 0 {
		add("screen", "dimensions must not be negative")
	}

	if c.Tracking.Sensitivity < 0.5 || c.Tracking.Sensitivity > 3.0 {
		add("tracking.sensitivity", "must be in [0.5, 3.0], got %g", c.Tracking.Sensitivity)
	}
	if c.Tracking.SmoothingWindow < 1 {
		add("tracking.smoothing_window", "must be at least 1, got %d", c.Tracking.SmoothingWindow)
	}
	if c.Tracking.Margin < 0 || c.Tracking.Margin >= 0.5 {
		add("tracking.margin", "must be in [0, 0.5), got %g", c.Tracking.Margin)
	}
	if c.Tracking.Landmark < 0 || c.Tracking.Landmark >= detector.NumLandmarks {
		add("tracking.landmark", "must be a landmark id in [0, %d), got %d", detector.NumLandmarks, c.Tracking.Landmark)
	}

	validateThresholds(&errs, "gestures.single", c.Gestures.Single)
	validateThresholds(&errs, "gestures.double", c.Gestures.Double)

	cal := c.Calibration
	if cal.TargetDistance <= 0 {
		add("calibration.target_distance", "must be positive")
	}
	if cal.MinSamples < 1 {
		add("calibration.min_samples", "must be at least 1")
	}
	if cal.MaxFrames != 0 && cal.MaxFrames < cal.MinSamples {
		add("calibration.max_frames", "must be at least min_samples (%d)", cal.MinSamples)
	}
	if cal.Timeout.Duration < 0 {
		add("calibration.timeout", "must not be negative")
	}
	if cal.MinScale < 0 || cal.MaxScale < 0 || (cal.MinScale > 0 && cal.MaxScale > 0 && cal.MinScale > cal.MaxScale) {
		add("calibration.min_scale", "scale bounds must be non-negative with min <= max")
	}

	switch c.Output.Driver {
	case DriverRobotgo, DriverPlugin, DriverNone:
	default:
		add("output.driver", "unknown driver %q (want %s, %s or %s)", c.Output.Driver, DriverRobotgo, DriverPlugin, DriverNone)
	}
	if c.Output.PluginTimeout.Duration < 0 {
		add("output.plugin_timeout", "must not be negative")
	}

	if c.Server.Enabled {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			add("server.addr", "invalid address %q: %v", c.Server.Addr, err)
		}
	}

	if c.Store.Path == "" {
		add("store.path", "is required")
	}
	if c.Store.Retention.Duration < 0 {
		add("store.retention", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateThresholds(errs *ValidationErrors, field string, t ThresholdConfig) {
	if t.Close <= 0 {
		*errs = append(*errs, ValidationError{Field: field + ".close", Message: "must be positive"})
	}
	if t.Open <= t.Close {
		*errs = append(*errs, ValidationError{
			Field:   field + ".open",
			Message: fmt.Sprintf("must exceed close (%g), got %g", t.Close, t.Open),
		})
	}
	if t.Debounce.Duration < 0 {
		*errs = append(*errs, ValidationError{Field: field + ".debounce", Message: "must not be negative"})
	}
}
