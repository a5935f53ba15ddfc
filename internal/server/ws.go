package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/output"
	"github.com/ayusman/mudra/internal/session"
)

const (
	writeWait  = time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message types on the live feed.
const (
	MessageEvent       = "event"
	MessageCalibration = "calibration"
)

// Message is one frame of the live feed.
type Message struct {
	Type        string              `json:"type"`
	Event       *output.Event       `json:"event,omitempty"`
	Calibration *CalibrationMessage `json:"calibration,omitempty"`
}

// CalibrationMessage reports a finished calibration window.
type CalibrationMessage struct {
	ScaleFactor       float64   `json:"scale_factor"`
	ReferenceDistance float64   `json:"reference_distance"`
	Calibrated        bool      `json:"calibrated"`
	Error             string    `json:"error,omitempty"`
	At                time.Time `json:"at"`
}

type client struct {
	conn       *websocket.Conn
	send       chan []byte
	clicksOnly bool
}

// Hub broadcasts dispatched events to WebSocket clients. It implements
// output.Dispatcher. Clients that fall behind are disconnected; a slow
// client never blocks dispatch.
//
// Connect with ?clicks=1 to receive clicks and calibration results only.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		clicksOnly: r.URL.Query().Get("clicks") == "1",
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	go h.writeLoop(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// unregister must be the only place a client's send channel is closed.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.unregister(c)
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// Dispatch broadcasts ev to connected clients.
func (h *Hub) Dispatch(ev output.Event) error {
	msg, err := json.Marshal(Message{Type: MessageEvent, Event: &ev})
	if err != nil {
		return err
	}
	h.broadcast(msg, ev.Kind != output.CursorMove)
	return nil
}

// PublishCalibration broadcasts a calibration outcome.
func (h *Hub) PublishCalibration(res session.CalibrationResult) {
	cm := &CalibrationMessage{
		ScaleFactor:       res.State.ScaleFactor,
		ReferenceDistance: res.State.ReferenceDistance,
		Calibrated:        res.State.Calibrated,
		At:                res.At,
	}
	if res.Err != nil {
		cm.Error = res.Err.Error()
	}
	msg, err := json.Marshal(Message{Type: MessageCalibration, Calibration: cm})
	if err != nil {
		log.Printf("Failed to encode calibration message: %v", err)
		return
	}
	h.broadcast(msg, true)
}

func (h *Hub) broadcast(msg []byte, important bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if c.clicksOnly && !important {
			continue
		}
		select {
		case c.send <- msg:
		default:
			log.Printf("Dropping slow websocket client %s", c.conn.RemoteAddr())
			h.dropLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}
