package store

import (
	"context"
	"time"

	"github.com/hazyhaar/clonepages/dbopen"
)

// Export records one exported document.
type Export struct {
	SessionID string `json:"session_id"`
	SHA256    string `json:"sha256"`
	Size      int    `json:"size"`
	At        int64  `json:"at"`
}

// RecordExport stores an export record.
func (s *Store) RecordExport(ctx context.Context, e Export) error {
	if e.At == 0 {
		e.At = time.Now().UnixMilli()
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO exports (session_id, html_sha256, size, at) VALUES (?,?,?,?)`,
		e.SessionID, e.SHA256, e.Size, e.At)
	return err
}

// Exports lists the exports of a session, oldest first.
func (s *Store) Exports(ctx context.Context, sessionID string) ([]Export, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT html_sha256, size, at FROM exports WHERE session_id = ? ORDER BY at, rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Export
	for rows.Next() {
		e := Export{SessionID: sessionID}
		if err := rows.Scan(&e.SHA256, &e.Size, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
