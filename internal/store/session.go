package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is one tracking session.
type Session struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Sensitivity float64    `json:"sensitivity"`
	ScaleFactor float64    `json:"scale_factor"`
	Frames      int64      `json:"frames"`
	Clicks      int64      `json:"clicks"`
}

// Active reports whether the session has not ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// SessionRepository provides access to sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, started_at, ended_at, sensitivity, scale_factor, frames, clicks`

// Create inserts a session, assigning an ID and start time when unset.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	sess.StartedAt = sess.StartedAt.UTC()
	if sess.ScaleFactor == 0 {
		sess.ScaleFactor = 1
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, sensitivity, scale_factor, frames, clicks)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StartedAt, sess.Sensitivity, sess.ScaleFactor, sess.Frames, sess.Clicks,
	)
	return err
}

// End closes a session and records its final counters.
func (r *SessionRepository) End(id string, endedAt time.Time, frames, clicks int64, scale float64) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, frames = ?, clicks = ?, scale_factor = ? WHERE id = ?`,
		endedAt.UTC(), frames, clicks, scale, id,
	)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// GetByID retrieves a session.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions first. A non-positive limit returns
// all sessions.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Delete removes a session and its events.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// CloseDangling ends sessions left open by an unclean shutdown and returns
// how many were closed.
func (r *SessionRepository) CloseDangling(at time.Time) (int64, error) {
	result, err := r.db.Exec(`UPDATE sessions SET ended_at = ? WHERE ended_at IS NULL`, at.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Prune deletes ended sessions that started before cutoff, with their
// events, and returns how many were removed. Open sessions are kept.
func (r *SessionRepository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE ended_at IS NOT NULL AND started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime
	if err := s.Scan(&sess.ID, &sess.StartedAt, &ended, &sess.Sensitivity, &sess.ScaleFactor, &sess.Frames, &sess.Clicks); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}

func expectOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
