package store

import (
	"sync"

	"github.com/ayusman/mudra/internal/output"
)

// Journal records dispatched clicks for the current session. It implements
// output.Dispatcher; cursor moves are ignored.
type Journal struct {
	events *EventRepository

	mu        sync.Mutex
	sessionID string
}

// NewJournal creates a Journal writing to s.
func NewJournal(s *Store) *Journal {
	return &Journal{events: s.Events()}
}

// SetSession directs subsequent events to sessionID. An empty ID disables
// recording.
func (j *Journal) SetSession(sessionID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sessionID = sessionID
}

// Session returns the current session ID.
func (j *Journal) Session() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

// Dispatch stores click events.
func (j *Journal) Dispatch(ev output.Event) error {
	var kind string
	switch ev.Kind {
	case output.ClickSingle:
		kind = EventClickSingle
	case output.ClickDouble:
		kind = EventClickDouble
	default:
		return nil
	}

	id := j.Session()
	if id == "" {
		return nil
	}
	return j.events.Create(&Event{SessionID: id, Kind: kind, X: ev.Point.X, Y: ev.Point.Y, At: ev.At})
}
