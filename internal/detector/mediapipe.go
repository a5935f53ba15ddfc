package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrServiceNotFound is returned when the landmark service script cannot
	// be located.
	ErrServiceNotFound = errors.New("mediapipe_service.py not found")
	// ErrServiceTimeout is returned when the service does not answer a frame
	// in time.
	ErrServiceTimeout = errors.New("landmark service timed out")
)

// idleShutdown stops a service that has not seen a frame for this long.
const idleShutdown = 30 * time.Second

// MediaPipeDetector runs hand detection in a Python MediaPipe helper.
//
// Each request is a 4-byte big-endian length and a JPEG frame written to the
// helper's stdin. Each response is one JSON line on stdout:
//
//	{"hands":[{"points":[{"x":..,"y":..,"z":..}, ...],"handedness":"Right","score":0.9}]}
//
// The helper starts on the first frame, restarts after a failure and stops
// after idleShutdown without frames.
type MediaPipeDetector struct {
	config Config
	script string

	mu   sync.Mutex
	svc  *service
	idle *time.Timer
}

// service is one running helper process.
type service struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan []byte
	done  chan struct{}
}

// NewMediaPipeDetector locates the service script. No process is started
// until the first Detect.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := config.ScriptPath
	switch {
	case script == "":
		if script = findMediaPipeScript(); script == "" {
			return nil, ErrServiceNotFound
		}
	default:
		if _, err := os.Stat(script); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, script)
		}
	}

	defaults := DefaultConfig()
	if config.MaxHands <= 0 {
		config.MaxHands = defaults.MaxHands
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = defaults.JPEGQuality
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &MediaPipeDetector{config: config, script: script}, nil
}

// Detect sends frame to the helper and waits for its answer.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{int(gocv.IMWriteJpegQuality), d.config.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.svc == nil {
		svc, err := d.start()
		if err != nil {
			return nil, err
		}
		d.svc = svc
	}

	line, err := d.svc.roundTrip(buf.GetBytes(), d.config.Timeout)
	if err != nil {
		d.stopLocked()
		return nil, err
	}
	d.touchLocked()
	return decodeHands(line, d.config.MaxHands)
}

// Close stops the helper.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *MediaPipeDetector) start() (*service, error) {
	python := findVenvPython()
	if python == "" {
		python = "python3"
	}

	cmd := exec.Command(python, d.script,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("landmark service stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("landmark service stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start landmark service: %w", err)
	}

	svc := &service{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan []byte),
		done:  make(chan struct{}),
	}
	go svc.read(stdout)
	return svc, nil
}

// read forwards response lines until the helper's stdout closes.
func (s *service) read(r io.Reader) {
	defer close(s.done)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			return
		}
		select {
		case s.lines <- line:
		case <-time.After(idleShutdown):
			// Nobody is waiting for this answer; the helper is out of step.
			return
		}
	}
}

func (s *service) roundTrip(frame []byte, timeout time.Duration) ([]byte, error) {
	if err := writeFrame(s.stdin, frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-s.lines:
		return line, nil
	case <-s.done:
		return nil, errors.New("landmark service exited")
	case <-timer.C:
		return nil, ErrServiceTimeout
	}
}

func (s *service) stop() error {
	s.stdin.Close()
	select {
	case <-s.done:
	case <-time.After(time.Second):
		s.cmd.Process.Kill()
	}
	return s.cmd.Wait()
}

func (d *MediaPipeDetector) stopLocked() error {
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	if d.svc == nil {
		return nil
	}
	err := d.svc.stop()
	d.svc = nil
	return err
}

func (d *MediaPipeDetector) touchLocked() {
	if d.idle != nil {
		d.idle.Reset(idleShutdown)
		return
	}
	d.idle = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.stopLocked()
	})
}

// writeFrame writes one length-prefixed frame.
func writeFrame(w io.Writer, data []byte) error {
	msg := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(msg, uint32(len(data)))
	copy(msg[4:], data)
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// wireHand is a hand as the service reports it.
type wireHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

// decodeHands parses one response line, keeping at most maxHands hands.
// Hands reporting fewer than NumLandmarks points are dropped.
func decodeHands(line []byte, maxHands int) ([]HandLandmarks, error) {
	var resp struct {
		Hands []wireHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse landmark response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("landmark service: %s", resp.Error)
	}

	hands := make([]HandLandmarks, 0, len(resp.Hands))
	for _, w := range resp.Hands {
		if len(w.Points) < NumLandmarks {
			continue
		}
		h := HandLandmarks{Handedness: w.Handedness, Score: w.Score}
		copy(h.Points[:], w.Points)
		hands = append(hands, h)
		if maxHands > 0 && len(hands) == maxHands {
			break
		}
	}
	return hands, nil
}

func findMediaPipeScript() string {
	const rel = "scripts/mediapipe_service.py"
	return firstExisting(searchPaths(rel, rel, "../"+rel))
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	const rel = "venv/bin/python"
	return firstExisting(searchPaths(rel, rel, "../"+rel, "../../"+rel))
}

// searchPaths lists the working directory candidates, then rel next to the
// executable and in ~/.mudra.
func searchPaths(rel string, local ...string) []string {
	paths := append([]string(nil), local...)
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mudra", rel))
	}
	return paths
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}
