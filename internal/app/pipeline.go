package app

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/output"
)

// runPipeline is the frame loop. Each tick reads one frame, runs the
// landmark detector unless the idle gate holds the frame back, and feeds
// the first hand to the session controller. The loop slows to the idle
// frame rate while no hand is in view.
//
// A failsafe error from the pointer driver stops tracking, unless the user
// has restarted it with a new loop in the meantime.
func (a *App) runPipeline(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	idle := false
	fps := a.fps(idle)
	ticker := time.NewTicker(frameInterval(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			err := a.step(time.Now())
			if errors.Is(err, output.ErrFailsafe) {
				log.Printf("Failsafe triggered, stopping tracking: %v", err)
				go func() {
					if err := a.stopTracking(stopCh); err != nil {
						log.Printf("Error stopping after failsafe: %v", err)
					}
				}()
				return
			}
			if err != nil {
				log.Printf("Frame error: %v", err)
			}

			if now := a.gate.Idle(); now != idle {
				idle = now
				if idle {
					log.Println("No hand in view, idling")
				} else {
					log.Println("Hand in view, tracking")
				}
			}
			if next := a.fps(idle); next != fps {
				fps = next
				a.camera.SetFPS(fps)
				ticker.Reset(frameInterval(fps))
			}
		}
	}
}

// step processes one camera frame.
func (a *App) step(now time.Time) error {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	defer frame.Close()

	if a.controller.CalibrationPending() {
		a.gate.Wake(now)
	}
	if !a.gate.Pass(frame, now) {
		return nil
	}

	hand, err := detector.Observe(a.detector, frame, a.Settings().Detector.Hand)
	if err != nil {
		return fmt.Errorf("detect hands: %w", err)
	}
	a.gate.Observe(hand != nil, now)

	_, err = a.controller.ProcessFrame(hand, now)
	return err
}

// fps returns the configured frame rate for the active or idle loop.
func (a *App) fps(idle bool) int {
	cfg := a.Settings()
	if idle && cfg.Camera.IdleFPS > 0 {
		return cfg.Camera.IdleFPS
	}
	return cfg.Camera.FPS
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(fps)
}
