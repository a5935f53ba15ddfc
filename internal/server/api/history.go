package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/store"
)

// HistoryHandler serves the session journal: /api/sessions,
// /api/sessions/{id}, /api/sessions/{id}/events and /api/events.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a HistoryHandler backed by s.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

type sessionDetail struct {
	*store.Session
	Counts map[string]int `json:"counts"`
}

// ServeHTTP implements the http.Handler interface.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/events" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.recentEvents(w, r)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.listSessions(w, r)
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.getSession(w, parts[0])
		case http.MethodDelete:
			h.deleteSession(w, parts[0])
		default:
			methodNotAllowed(w)
		}
	case len(parts) == 2 && parts[1] == "events":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.sessionEvents(w, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *HistoryHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 20)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *HistoryHandler) getSession(w http.ResponseWriter, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	counts, err := h.store.Events().CountBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count events")
		return
	}
	writeJSON(w, http.StatusOK, sessionDetail{Session: sess, Counts: counts})
}

func (h *HistoryHandler) deleteSession(w http.ResponseWriter, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) sessionEvents(w http.ResponseWriter, id string) {
	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	events, err := h.store.Events().ListBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

func (h *HistoryHandler) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 50)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	events, err := h.store.Events().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

func nonNil(events []*store.Event) []*store.Event {
	if events == nil {
		return []*store.Event{}
	}
	return events
}
