package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/session"
)

// Load reads the configuration at path over the defaults. A missing file
// yields the defaults. The format follows the extension: .toml, .json,
// .yaml or .yml; anything else is read as TOML. Environment overrides are
// applied and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}
	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension, creating
// the directory if needed.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ScreenSize returns the configured screen size, falling back to the given
// detected size for unset dimensions.
func (c *Config) ScreenSize(detectedW, detectedH int) (int, int) {
	w, h := c.Screen.Width, c.Screen.Height
	if w <= 0 {
		w = detectedW
	}
	if h <= 0 {
		h = detectedH
	}
	return w, h
}

// Session builds the session controller configuration for a screen.
func (c *Config) Session(width, height int) session.Config {
	return session.Config{
		Mapper: cursor.Config{
			ScreenWidth:  width,
			ScreenHeight: height,
			Mirror:       c.Tracking.Mirror,
			Margin:       c.Tracking.Margin,
			WindowSize:   c.Tracking.SmoothingWindow,
			Landmark:     c.Tracking.Landmark,
		},
		Gestures: gesture.Config{
			Single: c.Gestures.Single.thresholds(),
			Double: c.Gestures.Double.thresholds(),
		},
		Calibration: calibration.Config{
			TargetReferenceDistance: c.Calibration.TargetDistance,
			MinSamples:              c.Calibration.MinSamples,
			MaxFrames:               c.Calibration.MaxFrames,
			Timeout:                 c.Calibration.Timeout.Duration,
			MinScale:                c.Calibration.MinScale,
			MaxScale:                c.Calibration.MaxScale,
		},
		Sensitivity: c.Tracking.Sensitivity,
	}
}

// DetectorOptions builds the landmark detector configuration.
func (c *Config) DetectorOptions() detector.Config {
	opts := detector.DefaultConfig()
	opts.MinConfidence = c.Detector.MinDetectionConfidence
	opts.MinTrackingConf = c.Detector.MinTrackingConfidence
	opts.ScriptPath = c.Detector.Script
	opts.JPEGQuality = c.Detector.JPEGQuality
	opts.Timeout = c.Detector.Timeout.Duration
	return opts
}

// CameraOptions builds the capture device options.
func (c *Config) CameraOptions() capture.Options {
	return capture.Options{
		Device: c.Camera.Device,
		FPS:    c.Camera.FPS,
		Width:  c.Camera.Width,
		Height: c.Camera.Height,
	}
}

// Idle builds the idle gate configuration. Idling is off when idle_fps is
// zero.
func (c *Config) Idle() capture.IdleConfig {
	if c.Camera.IdleFPS <= 0 {
		return capture.IdleConfig{}
	}
	return capture.IdleConfig{
		After:         c.Camera.IdleAfter.Duration,
		MotionPercent: c.Camera.MotionThreshold,
	}
}

func (t ThresholdConfig) thresholds() gesture.Thresholds {
	return gesture.Thresholds{Close: t.Close, Open: t.Open, Debounce: t.Debounce.Duration}
}
