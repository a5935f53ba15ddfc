// Package plugin discovers and runs out-of-process pointer drivers. A driver
// reads JSON requests from stdin, one per line, and answers each with one
// JSON response line on stdout. A persistent driver stays up for the whole
// tracking session; any other driver is started once per request.
package plugin

import "encoding/json"

// Actions understood by pointer drivers.
const (
	ActionMove        = "move"
	ActionClick       = "click"
	ActionDoubleClick = "double-click"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	Platforms    []string        `json:"platforms,omitempty"`
	// Persistent drivers serve many requests from one process.
	Persistent   bool            `json:"persistent,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request is sent to a driver for one pointer event.
type Request struct {
	Action string          `json:"action"`
	X      int             `json:"x"`
	Y      int             `json:"y"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is the driver's answer.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

func knownAction(action string) bool {
	switch action {
	case ActionMove, ActionClick, ActionDoubleClick:
		return true
	}
	return false
}

// Supports reports whether the plugin declares action.
func (p *Plugin) Supports(action string) bool {
	for _, a := range p.Manifest.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// RunsOn reports whether the plugin runs on goos. A manifest without
// platforms runs everywhere.
func (p *Plugin) RunsOn(goos string) bool {
	if len(p.Manifest.Platforms) == 0 {
		return true
	}
	for _, platform := range p.Manifest.Platforms {
		if platform == goos {
			return true
		}
	}
	return false
}
