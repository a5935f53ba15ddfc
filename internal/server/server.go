// Package server provides the local HTTP server for mudra: session control,
// settings, the event journal and a live WebSocket event feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds the server configuration. Routes whose collaborator is nil
// are not mounted.
type Config struct {
	StaticDir string
	Store     *store.Store
	Tracker   api.Tracker
	Hub       *Hub
	// CalibrateTimeout bounds POST /api/session/calibrate.
	CalibrateTimeout time.Duration
}

// Server is the dashboard and API server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	start   time.Time

	mu   sync.Mutex
	http *http.Server
}

// New creates a Server with its routes mounted.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.routes()
	s.handler = logMutations(s.mux)
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	mount := func(h http.Handler, patterns ...string) {
		for _, p := range patterns {
			s.mux.Handle(p, h)
		}
	}

	if s.config.Tracker != nil {
		mount(api.NewSessionHandler(s.config.Tracker, s.config.CalibrateTimeout), "/api/session", "/api/session/")
	}
	if s.config.Store != nil {
		mount(api.NewSettingsHandler(s.config.Store), "/api/settings", "/api/settings/")
		mount(api.NewHistoryHandler(s.config.Store), "/api/sessions", "/api/sessions/", "/api/events")
	}
	if s.config.Hub != nil {
		s.mux.Handle("/api/ws", s.config.Hub)
	}
	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Running   *bool  `json:"running,omitempty"`
	Paused    *bool  `json:"paused,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Clients   *int   `json:"clients,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	}
	if t := s.config.Tracker; t != nil {
		st := t.Snapshot()
		resp.Running, resp.Paused = &st.Running, &st.Paused
		resp.SessionID = t.SessionID()
	}
	if s.config.Hub != nil {
		n := s.config.Hub.Clients()
		resp.Clients = &n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Failed to encode health response: %v", err)
	}
}

// ListenAndServe listens on addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes live feed connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.Hub != nil {
		s.config.Hub.Close()
	}
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// logMutations logs every request that is not a GET with its status and
// duration. GETs pass through untouched so WebSocket upgrades keep their
// hijackable writer.
func logMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
