package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrTimeout is returned when a driver does not answer in time.
var ErrTimeout = errors.New("plugin execution timeout")

// Executor starts a driver for every request.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an Executor. A non-positive timeout means one second.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Executor{timeout: timeout}
}

// Timeout returns the per-request timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs plugin with req as its only input line and reads the answer
// from its output. It gives up after the executor timeout or when ctx ends.
func (e *Executor) Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error) {
	line, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	name := plugin.Manifest.Name

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, plugin.Executable)
	cmd.Dir = plugin.Path
	cmd.Stdin = bytes.NewReader(line)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	// Children of a killed driver may hold its output open.
	cmd.WaitDelay = e.timeout

	runErr := cmd.Run()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w after %s (%s)", ErrTimeout, e.timeout, name)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case runErr != nil:
		return nil, withStderr(fmt.Errorf("plugin %s: %w", name, runErr), stderr.String())
	}
	return decodeResponse(name, stdout.Bytes())
}
