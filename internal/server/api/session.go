package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/session"
)

// DefaultCalibrateTimeout bounds how long a calibrate request waits.
const DefaultCalibrateTimeout = 10 * time.Second

// SessionHandler handles /api/session and its actions.
type SessionHandler struct {
	tracker          Tracker
	calibrateTimeout time.Duration
}

// NewSessionHandler creates a SessionHandler. A non-positive timeout uses
// DefaultCalibrateTimeout.
func NewSessionHandler(t Tracker, calibrateTimeout time.Duration) *SessionHandler {
	if calibrateTimeout <= 0 {
		calibrateTimeout = DefaultCalibrateTimeout
	}
	return &SessionHandler{tracker: t, calibrateTimeout: calibrateTimeout}
}

type sessionResponse struct {
	SessionID string        `json:"session_id,omitempty"`
	State     session.State `json:"state"`
}

type sensitivityRequest struct {
	Value *float64 `json:"value"`
}

type sensitivityResponse struct {
	Sensitivity float64 `json:"sensitivity"`
}

type calibrateResponse struct {
	Calibration calibration.State `json:"calibration"`
}

// ServeHTTP routes /api/session and /api/session/{action}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/session"), "/")

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.status(w)
		return
	}

	if action == "sensitivity" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		h.setSensitivity(w, r)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	switch action {
	case "start":
		if err := h.tracker.StartTracking(); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to start session: "+err.Error())
			return
		}
		h.status(w)
	case "stop":
		if err := h.tracker.StopTracking(); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to stop session: "+err.Error())
			return
		}
		h.status(w)
	case "pause":
		h.tracker.Pause()
		h.status(w)
	case "resume":
		h.tracker.Resume()
		h.status(w)
	case "calibrate":
		h.calibrate(w, r)
	default:
		writeError(w, http.StatusNotFound, "unknown session action")
	}
}

func (h *SessionHandler) status(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: h.tracker.SessionID(),
		State:     h.tracker.Snapshot(),
	})
}

// setSensitivity handles PUT /api/session/sensitivity.
func (h *SessionHandler) setSensitivity(w http.ResponseWriter, r *http.Request) {
	var req sensitivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Value == nil || math.IsNaN(*req.Value) || math.IsInf(*req.Value, 0) {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	v, err := h.tracker.SetSensitivity(*req.Value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save sensitivity")
		return
	}
	writeJSON(w, http.StatusOK, sensitivityResponse{Sensitivity: v})
}

// calibrate handles POST /api/session/calibrate. It waits for the
// calibration window to finish.
func (h *SessionHandler) calibrate(w http.ResponseWriter, r *http.Request) {
	st := h.tracker.Snapshot()
	if !st.Running || st.Paused {
		writeError(w, http.StatusConflict, "session is not running")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.calibrateTimeout)
	defer cancel()

	state, err := h.tracker.Calibrate(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, calibrateResponse{Calibration: state})
	case errors.Is(err, calibration.ErrInsufficientSamples), errors.Is(err, calibration.ErrTimeout):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, calibration.ErrCancelled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "calibration did not finish in time")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
