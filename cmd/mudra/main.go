// Command mudra moves the mouse pointer with hand gestures seen by a webcam.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/output"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

// calibrateSlack is added to the calibration timeout for the HTTP handler.
const calibrateSlack = 2 * time.Second

func main() {
	configPath := flag.String("config", config.Path(), "path to the configuration file (.toml, .yaml or .json)")
	noTray := flag.Bool("no-tray", false, "run without the system tray")
	webDir := flag.String("web", "", "directory with dashboard assets (default: search common locations)")
	autoStart := flag.Bool("start", false, "start tracking immediately")
	flag.Parse()

	fmt.Println("Mudra - Hand Gesture Cursor")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(config.Dir(), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	hub := server.NewHub()

	a, err := app.New(app.Config{
		Settings: cfg,
		Store:    st,
		Outputs:  []output.Dispatcher{hub},
	})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	watcher := config.NewWatcher(*configPath, cfg)
	watcher.OnChange(a.ApplyConfig)
	if err := watcher.Start(); err != nil {
		log.Printf("Config hot reload disabled: %v", err)
	} else {
		defer watcher.Close()
		go func() {
			for err := range watcher.Errors() {
				log.Printf("Config error: %v", err)
			}
		}()
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		dir := *webDir
		if dir == "" {
			dir = findWebDir()
		}
		if dir != "" {
			fmt.Printf("Serving static files from: %s\n", dir)
		}

		srv = server.New(server.Config{
			StaticDir:        dir,
			Store:            st,
			Tracker:          a,
			Hub:              hub,
			CalibrateTimeout: cfg.Calibration.Timeout.Duration + calibrateSlack,
		})
		go func() {
			fmt.Printf("Starting server on %s\n", cfg.Server.Addr)
			if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
				log.Printf("Server failed: %v", err)
			}
		}()
	}

	var t *tray.Tray
	if !*noTray {
		t = newTray(a, cfg.Server.Addr, srv != nil)
	}

	a.OnCalibration(func(res session.CalibrationResult) {
		hub.PublishCalibration(res)
		if t != nil {
			t.SetStatus(calibrationStatus(res))
		}
	})

	if *autoStart {
		if err := a.StartTracking(); err != nil {
			log.Printf("Failed to start tracking: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if t != nil {
		go func() {
			<-sigChan
			t.Quit()
		}()
		t.Run()
	} else {
		<-sigChan
	}

	fmt.Println("Shutting down...")
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}
	if err := a.StopTracking(); err != nil {
		log.Printf("Stop tracking: %v", err)
	}
}

func newTray(a *app.App, addr string, serving bool) *tray.Tray {
	var t *tray.Tray
	t = tray.New(a.Snapshot().Sensitivity, tray.Handlers{
		Toggle: func(enabled bool) {
			var err error
			if enabled {
				err = a.StartTracking()
			} else {
				err = a.StopTracking()
			}
			if err != nil {
				log.Printf("Toggle tracking: %v", err)
				t.SetEnabled(a.Running())
			}
		},
		Calibrate: func() {
			if !a.RequestCalibration() {
				t.SetStatus("Start tracking to calibrate")
				return
			}
			t.SetStatus("Calibrating...")
		},
		Sensitivity: func(v float64) float64 {
			got, err := a.SetSensitivity(v)
			if err != nil {
				log.Printf("Save sensitivity: %v", err)
			}
			return got
		},
		Dashboard: func() {
			if !serving {
				log.Println("Dashboard unavailable: server disabled")
				return
			}
			openBrowser(dashboardURL(addr))
		},
	})

	a.OnTracking(t.SetEnabled)
	a.OnClick(func(ev output.Event) {
		t.SetLastEvent(string(ev.Kind), ev.At)
	})
	return t
}

func calibrationStatus(res session.CalibrationResult) string {
	if res.Err != nil {
		if errors.Is(res.Err, calibration.ErrCancelled) {
			return "Calibration cancelled"
		}
		return "Calibration failed"
	}
	return fmt.Sprintf("Calibrated (scale %.2f)", res.State.ScaleFactor)
}
