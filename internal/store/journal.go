package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/clonepages/dbopen"
	"github.com/hazyhaar/clonepages/update"
)

// JournalEntry is one applied, missed or rejected update.
type JournalEntry struct {
	SessionID string               `json:"session_id"`
	Seq       int64                `json:"seq"`
	URL       string               `json:"url"`
	Update    update.ElementUpdate `json:"update"`
	Outcome   update.Outcome       `json:"outcome"`
	Detail    string               `json:"detail,omitempty"`
	At        int64                `json:"at"`
}

// AppendUpdate journals r with the next sequence number of the session.
func (s *Store) AppendUpdate(ctx context.Context, sessionID, url string, r update.Result) (int64, error) {
	meta, err := json.Marshal(r.Update.Metadata)
	if err != nil {
		return 0, fmt.Errorf("store: append update: metadata: %w", err)
	}
	if r.Update.Metadata == nil {
		meta = []byte("{}")
	}

	var seq int64
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM update_journal WHERE session_id = ?`,
			sessionID).Scan(&seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO update_journal
				(session_id, seq, url, xpath, type, property, value, metadata, outcome, detail, at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			sessionID, seq, url, r.Update.XPath, string(r.Update.Type), r.Update.Property,
			r.Update.Value, string(meta), string(r.Outcome), r.Detail, time.Now().UnixMilli())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: append update %s: %w", sessionID, err)
	}
	return seq, nil
}

// Journal returns the journal of a session in sequence order.
func (s *Store) Journal(ctx context.Context, sessionID string) ([]JournalEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT seq, url, xpath, type, property, value, metadata, outcome, detail, at
		FROM update_journal WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: journal %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		e := JournalEntry{SessionID: sessionID}
		var typ, outcome, meta string
		if err := rows.Scan(&e.Seq, &e.URL, &e.Update.XPath, &typ, &e.Update.Property,
			&e.Update.Value, &meta, &outcome, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("store: journal %s: %w", sessionID, err)
		}
		e.Update.Type = update.Type(typ)
		e.Outcome = update.Outcome(outcome)
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &e.Update.Metadata); err != nil {
				return nil, fmt.Errorf("store: journal %s seq %d: metadata: %w", sessionID, e.Seq, err)
			}
		}
		if len(e.Update.Metadata) == 0 {
			e.Update.Metadata = nil
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
