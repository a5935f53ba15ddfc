package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/plugin"
)

// Plugin sends events to an out-of-process pointer driver.
type Plugin struct {
	runner plugin.Runner
	name   string
}

// NewPlugin creates a dispatcher that sends requests through runner to the
// driver called name.
func NewPlugin(runner plugin.Runner, name string) *Plugin {
	return &Plugin{runner: runner, name: name}
}

// Name returns the driver name.
func (p *Plugin) Name() string {
	return p.name
}

// Dispatch translates ev into a driver request and sends it.
func (p *Plugin) Dispatch(ev Event) error {
	req := &plugin.Request{X: ev.Point.X, Y: ev.Point.Y}
	switch ev.Kind {
	case CursorMove:
		req.Action = plugin.ActionMove
	case ClickSingle:
		req.Action = plugin.ActionClick
	case ClickDouble:
		req.Action = plugin.ActionDoubleClick
	default:
		return fmt.Errorf("output: unknown event kind %q", ev.Kind)
	}

	resp, err := p.runner.Do(context.Background(), req)
	if err != nil {
		return fmt.Errorf("output: %s %s: %w", p.name, req.Action, err)
	}
	if !resp.Success {
		return fmt.Errorf("output: %s %s: %w", p.name, req.Action, errors.New(resp.Error))
	}
	return nil
}

// Close stops the driver.
func (p *Plugin) Close() error {
	return p.runner.Close()
}
