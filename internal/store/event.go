package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event kinds stored in the journal.
const (
	EventClickSingle = "click_single"
	EventClickDouble = "click_double"
)

// Event is a dispatched click.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	At        time.Time `json:"at"`
}

// EventRepository provides access to click events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create inserts an event, assigning an ID when unset.
func (r *EventRepository) Create(ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	ev.At = ev.At.UTC()

	_, err := r.db.Exec(
		`INSERT INTO events (id, session_id, kind, x, y, at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.Kind, ev.X, ev.Y, ev.At,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListBySession returns a session's events in order.
func (r *EventRepository) ListBySession(sessionID string) ([]*Event, error) {
	return r.query(
		`SELECT id, session_id, kind, x, y, at FROM events WHERE session_id = ? ORDER BY at, rowid`,
		sessionID,
	)
}

// Recent returns the latest events across sessions, newest first.
func (r *EventRepository) Recent(limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(
		`SELECT id, session_id, kind, x, y, at FROM events ORDER BY at DESC, rowid DESC LIMIT ?`,
		limit,
	)
}

// CountBySession returns the number of events per kind for a session.
func (r *EventRepository) CountBySession(sessionID string) (map[string]int, error) {
	rows, err := r.db.Query(`SELECT kind, COUNT(*) FROM events WHERE session_id = ? GROUP BY kind`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func (r *EventRepository) query(q string, args ...any) ([]*Event, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Kind, &ev.X, &ev.Y, &ev.At); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
