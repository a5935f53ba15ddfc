// Package main provides a pointer driver plugin.
// It moves the pointer and synthesizes left clicks with xdotool on Linux and
// cliclick on macOS. It serves requests line by line, so one process can
// drive a whole tracking session.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action string          `json:"action"`
	X      int             `json:"x"`
	Y      int             `json:"y"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// backend turns a pointer action into a command line.
type backend interface {
	move(x, y int) []string
	click(x, y int, double bool) []string
}

type xdotool struct{}

func (xdotool) move(x, y int) []string {
	return []string{"xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y)}
}

func (xdotool) click(x, y int, double bool) []string {
	args := []string{"xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y), "click"}
	if double {
		args = append(args, "--repeat", "2")
	}
	return append(args, "1")
}

type cliclick struct{}

func (cliclick) move(x, y int) []string {
	return []string{"cliclick", fmt.Sprintf("m:%d,%d", x, y)}
}

func (cliclick) click(x, y int, double bool) []string {
	verb := "c"
	if double {
		verb = "dc"
	}
	return []string{"cliclick", fmt.Sprintf("%s:%d,%d", verb, x, y)}
}

func main() {
	var b backend
	switch runtime.GOOS {
	case "linux":
		b = xdotool{}
	case "darwin":
		b = cliclick{}
	}

	// One request per line until stdin closes. A one-shot run sees a
	// single line.
	out := json.NewEncoder(os.Stdout)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out.Encode(handle(b, sc.Bytes()))
	}
}

func handle(b backend, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(fmt.Sprintf("failed to decode request: %v", err))
	}
	if b == nil {
		return errorResponse(fmt.Sprintf("unsupported platform: %s", runtime.GOOS))
	}

	var args []string
	switch req.Action {
	case "move":
		args = b.move(req.X, req.Y)
	case "click":
		args = b.click(req.X, req.Y, false)
	case "double-click":
		args = b.click(req.X, req.Y, true)
	default:
		return errorResponse(fmt.Sprintf("unknown action: %s", req.Action))
	}

	if err := run(args); err != nil {
		return errorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
	}
	return Response{Success: true}
}

func run(args []string) error {
	output, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func errorResponse(msg string) Response {
	return Response{Success: false, Error: msg}
}
