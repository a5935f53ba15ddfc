// Package api provides the HTTP handlers for controlling and inspecting a
// mudra tracking session.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/session"
)

// Tracker is the user action surface of the running application.
type Tracker interface {
	StartTracking() error
	StopTracking() error
	Pause()
	Resume()
	// SetSensitivity applies and persists the cursor gain and returns the
	// value in effect.
	SetSensitivity(v float64) (float64, error)
	Calibrate(ctx context.Context) (calibration.State, error)
	Snapshot() session.State
	// SessionID returns the journal id of the current session, if any.
	SessionID() string
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// queryLimit parses the limit query parameter.
func queryLimit(r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
