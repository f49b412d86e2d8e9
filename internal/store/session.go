package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/clonepages/dbopen"
)

// Session is one row of the sessions table.
type Session struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// CreateSession inserts a new session in state IDLE.
func (s *Store) CreateSession(ctx context.Context, id string) (*Session, error) {
	now := time.Now().UnixMilli()
	sess := &Session{ID: id, State: "IDLE", CreatedAt: now, UpdatedAt: now}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO sessions (id, url, state, last_error, created_at, updated_at)
		VALUES (?, '', ?, '', ?, ?)`,
		sess.ID, sess.State, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// SetLoading records a submitted URL and clears the last error.
func (s *Store) SetLoading(ctx context.Context, id, url string) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		UPDATE sessions SET url = ?, state = 'LOADING', last_error = '', updated_at = ?
		WHERE id = ?`, url, time.Now().UnixMilli(), id)
	return err
}

// SetState records a state change. lastErr replaces the stored error.
func (s *Store) SetState(ctx context.Context, id, state, lastErr string) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		UPDATE sessions SET state = ?, last_error = ?, updated_at = ?
		WHERE id = ?`, state, lastErr, time.Now().UnixMilli(), id)
	return err
}

// GetSession returns the session or nil when it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, url, state, last_error, created_at, updated_at
		FROM sessions WHERE id = ?`, id).Scan(
		&sess.ID, &sess.URL, &sess.State, &sess.LastError, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, url, state, last_error, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.URL, &sess.State, &sess.LastError, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session with its journal and exports.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, s.DB, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}
