// Package config handles configuration loading, validation and hot reload for
// mudra.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	// Camera selects and paces the video source.
	Camera CameraConfig `toml:"camera" json:"camera" yaml:"camera"`

	// Detector configures the landmark service.
	Detector DetectorConfig `toml:"detector" json:"detector" yaml:"detector"`

	// Screen overrides the detected display size.
	Screen ScreenConfig `toml:"screen" json:"screen" yaml:"screen"`

	// Tracking tunes cursor mapping and smoothing.
	Tracking TrackingConfig `toml:"tracking" json:"tracking" yaml:"tracking"`

	// Gestures holds click thresholds.
	Gestures GesturesConfig `toml:"gestures" json:"gestures" yaml:"gestures"`

	// Calibration tunes the calibration window.
	Calibration CalibrationConfig `toml:"calibration" json:"calibration" yaml:"calibration"`

	// Output selects the pointer driver.
	Output OutputConfig `toml:"output" json:"output" yaml:"output"`

	// Server configures the local HTTP API.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// Store configures the session journal.
	Store StoreConfig `toml:"store" json:"store" yaml:"store"`
}

// CameraConfig selects and paces the camera.
type CameraConfig struct {
	Device int `toml:"device" json:"device" yaml:"device"`
	FPS    int `toml:"fps" json:"fps" yaml:"fps"`
	Width  int `toml:"width" json:"width" yaml:"width"`
	Height int `toml:"height" json:"height" yaml:"height"`
	// IdleFPS is the frame rate while no hand is in view. Zero disables
	// idling.
	IdleFPS   int      `toml:"idle_fps" json:"idle_fps" yaml:"idle_fps"`
	IdleAfter Duration `toml:"idle_after" json:"idle_after" yaml:"idle_after"`
	// MotionThreshold is the percentage of changed pixels that wakes an
	// idle camera.
	MotionThreshold float64 `toml:"motion_threshold" json:"motion_threshold" yaml:"motion_threshold"`
}

// DetectorConfig configures the MediaPipe landmark service.
type DetectorConfig struct {
	// Script is the path to the landmark service; empty searches the
	// default locations.
	Script                 string  `toml:"script" json:"script" yaml:"script"`
	MinDetectionConfidence float64 `toml:"min_detection_confidence" json:"min_detection_confidence" yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `toml:"min_tracking_confidence" json:"min_tracking_confidence" yaml:"min_tracking_confidence"`
	// Hand restricts tracking to "left" or "right" hands; empty tracks the
	// most confident hand.
	Hand        string   `toml:"hand" json:"hand" yaml:"hand"`
	JPEGQuality int      `toml:"jpeg_quality" json:"jpeg_quality" yaml:"jpeg_quality"`
	Timeout     Duration `toml:"timeout" json:"timeout" yaml:"timeout"`
}

// ScreenConfig overrides the display size. Zero means detect.
type ScreenConfig struct {
	Width  int `toml:"width" json:"width" yaml:"width"`
	Height int `toml:"height" json:"height" yaml:"height"`
}

// TrackingConfig tunes the cursor.
type TrackingConfig struct {
	Sensitivity     float64 `toml:"sensitivity" json:"sensitivity" yaml:"sensitivity"`
	SmoothingWindow int     `toml:"smoothing_window" json:"smoothing_window" yaml:"smoothing_window"`
	Mirror          bool    `toml:"mirror" json:"mirror" yaml:"mirror"`
	Margin          float64 `toml:"margin" json:"margin" yaml:"margin"`
	// Landmark is the tracked landmark id (0 is the wrist).
	Landmark int `toml:"landmark" json:"landmark" yaml:"landmark"`
}

// GesturesConfig holds thresholds per click kind.
type GesturesConfig struct {
	Single ThresholdConfig `toml:"single" json:"single" yaml:"single"`
	Double ThresholdConfig `toml:"double" json:"double" yaml:"double"`
}

// ThresholdConfig is the hysteresis band and debounce of one gesture.
type ThresholdConfig struct {
	Close    float64  `toml:"close" json:"close" yaml:"close"`
	Open     float64  `toml:"open" json:"open" yaml:"open"`
	Debounce Duration `toml:"debounce" json:"debounce" yaml:"debounce"`
}

// CalibrationConfig tunes calibration.
type CalibrationConfig struct {
	TargetDistance float64  `toml:"target_distance" json:"target_distance" yaml:"target_distance"`
	MinSamples     int      `toml:"min_samples" json:"min_samples" yaml:"min_samples"`
	MaxFrames      int      `toml:"max_frames" json:"max_frames" yaml:"max_frames"`
	Timeout        Duration `toml:"timeout" json:"timeout" yaml:"timeout"`
	MinScale       float64  `toml:"min_scale" json:"min_scale" yaml:"min_scale"`
	MaxScale       float64  `toml:"max_scale" json:"max_scale" yaml:"max_scale"`
}

// Pointer drivers.
const (
	DriverRobotgo = "robotgo"
	DriverPlugin  = "plugin"
	DriverNone    = "none"
)

// OutputConfig selects the pointer driver.
type OutputConfig struct {
	Driver string `toml:"driver" json:"driver" yaml:"driver"`
	// Plugin names the driver plugin; empty picks the first suitable one.
	Plugin         string   `toml:"plugin" json:"plugin" yaml:"plugin"`
	PluginDir      string   `toml:"plugin_dir" json:"plugin_dir" yaml:"plugin_dir"`
	PluginTimeout  Duration `toml:"plugin_timeout" json:"plugin_timeout" yaml:"plugin_timeout"`
	FailsafeMargin int      `toml:"failsafe_margin" json:"failsafe_margin" yaml:"failsafe_margin"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" json:"addr" yaml:"addr"`
}

// StoreConfig configures the SQLite journal.
type StoreConfig struct {
	Path string `toml:"path" json:"path" yaml:"path"`
	// Retention is how long ended sessions are kept. Zero keeps them
	// forever.
	Retention Duration `toml:"retention" json:"retention" yaml:"retention"`
}

// Duration is a time.Duration written as a string such as "400ms".
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration {
	return Duration{d}
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML accepts a duration string or an integer millisecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		ms, err := strconv.Atoi(value.Value)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalYAML formats the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// DefaultConfig returns a configuration with all defaults.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Camera: CameraConfig{
			Device:          0,
			FPS:             30,
			Width:           640,
			Height:          480,
			IdleFPS:         5,
			IdleAfter:       D(2 * time.Second),
			MotionThreshold: 1.0,
		},
		Detector: DetectorConfig{
			MinDetectionConfidence: 0.7,
			MinTrackingConfidence:  0.5,
			JPEGQuality:            80,
			Timeout:                D(2 * time.Second),
		},
		Tracking: TrackingConfig{
			Sensitivity:     1.0,
			SmoothingWindow: 5,
			Mirror:          true,
			Margin:          0.1,
			Landmark:        0,
		},
		Gestures: GesturesConfig{
			Single: ThresholdConfig{Close: 0.05, Open: 0.08, Debounce: D(400 * time.Millisecond)},
			Double: ThresholdConfig{Close: 0.05, Open: 0.08, Debounce: D(500 * time.Millisecond)},
		},
		Calibration: CalibrationConfig{
			TargetDistance: 0.15,
			MinSamples:     5,
			MaxFrames:      90,
			Timeout:        D(5 * time.Second),
			MinScale:       0.5,
			MaxScale:       2.0,
		},
		Output: OutputConfig{
			Driver:         DriverRobotgo,
			PluginDir:      filepath.Join(dir, "plugins"),
			PluginTimeout:  D(time.Second),
			FailsafeMargin: 5,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
		},
		Store: StoreConfig{
			Path:      filepath.Join(dir, "mudra.db"),
			Retention: D(90 * 24 * time.Hour),
		},
	}
}

// Dir returns the mudra data directory, ~/.mudra unless MUDRA_DATA_DIR is
// set.
func Dir() string {
	if dir := os.Getenv("MUDRA_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mudra"
	}
	return filepath.Join(home, ".mudra")
}

// Path returns the default configuration file path.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// ApplyEnvOverrides applies MUDRA_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MUDRA_CAMERA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Camera.Device = n
		}
	}
	if v := os.Getenv("MUDRA_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MUDRA_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("MUDRA_OUTPUT_DRIVER"); v != "" {
		c.Output.Driver = v
	}
}
