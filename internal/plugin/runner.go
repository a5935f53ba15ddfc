package plugin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by a Runner after Close.
	ErrClosed = errors.New("plugin runner closed")
	// ErrExited is returned when a persistent driver exits while a request
	// is outstanding.
	ErrExited = errors.New("plugin exited")
)

// Runner sends requests to one driver plugin.
type Runner interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// Open returns a Runner for p: a resident process when the manifest asks
// for one, otherwise one process per request.
func Open(p *Plugin, timeout time.Duration) Runner {
	if p.Manifest.Persistent {
		return NewProcess(p, timeout)
	}
	return &oneShot{executor: NewExecutor(timeout), plugin: p}
}

type oneShot struct {
	executor *Executor
	plugin   *Plugin
}

func (o *oneShot) Do(ctx context.Context, req *Request) (*Response, error) {
	return o.executor.Execute(ctx, o.plugin, req)
}

func (o *oneShot) Close() error { return nil }

// Process keeps a persistent driver running and exchanges one line per
// request with it. The process is started on the first request and
// restarted on the request after a failure. A timed out or cancelled
// request kills the process so a late answer can never be taken for the
// next request's.
type Process struct {
	plugin  *Plugin
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	done   chan struct{}
	quit   chan struct{}
	stderr *lockedBuffer
}

// NewProcess creates a stopped Process. A non-positive timeout means one
// second.
func NewProcess(p *Plugin, timeout time.Duration) *Process {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Process{plugin: p, timeout: timeout}
}

// Running reports whether the driver process is up.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

func (p *Process) startLocked() error {
	cmd := exec.Command(p.plugin.Executable)
	cmd.Dir = p.plugin.Path
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("plugin %s: stdin: %w", p.plugin.Manifest.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("plugin %s: stdout: %w", p.plugin.Manifest.Name, err)
	}
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = p.timeout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("plugin %s: start: %w", p.plugin.Manifest.Name, err)
	}

	lines := make(chan []byte)
	done := make(chan struct{})
	quit := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			select {
			case lines <- append([]byte(nil), sc.Bytes()...):
			case <-quit:
				return
			}
		}
	}()

	p.cmd, p.stdin, p.stderr = cmd, stdin, stderr
	p.lines, p.done, p.quit = lines, done, quit
	return nil
}

// stopLocked kills the process and waits for it.
func (p *Process) stopLocked() {
	if p.cmd == nil {
		return
	}
	close(p.quit)
	p.stdin.Close()
	p.cmd.Process.Kill()
	p.cmd.Wait()
	p.cmd, p.stdin = nil, nil
}

// Do sends req and waits for the answer, at most the process timeout.
func (p *Process) Do(ctx context.Context, req *Request) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := p.plugin.Manifest.Name
	if p.closed {
		return nil, ErrClosed
	}
	if p.cmd == nil {
		if err := p.startLocked(); err != nil {
			return nil, err
		}
	}

	data, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	if _, err := p.stdin.Write(data); err != nil {
		p.stopLocked()
		return nil, fmt.Errorf("plugin %s: write request: %w", name, err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case line := <-p.lines:
		resp, err := decodeResponse(name, line)
		if err != nil {
			p.stopLocked()
		}
		return resp, err
	case <-p.done:
		stderr := p.stderr.String()
		p.stopLocked()
		return nil, withStderr(fmt.Errorf("%w (%s)", ErrExited, name), stderr)
	case <-timer.C:
		p.stopLocked()
		return nil, fmt.Errorf("%w after %s (%s)", ErrTimeout, p.timeout, name)
	case <-ctx.Done():
		p.stopLocked()
		return nil, ctx.Err()
	}
}

// Close closes the driver's stdin, gives it the timeout to exit and kills
// it otherwise. Later requests fail with ErrClosed.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.cmd == nil {
		return nil
	}

	p.stdin.Close()
	select {
	case <-p.done:
	case <-time.After(p.timeout):
	}
	p.stopLocked()
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
