package session

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/clonepages/internal/store"
	"github.com/hazyhaar/clonepages/section"
	"github.com/hazyhaar/clonepages/sink"
)

// Bundle is an exported session document.
type Bundle struct {
	HTML     string
	Sections []section.Entry
	Journal  []store.JournalEntry
}

// Snapshot captures the current document of a READY session. Sections
// are listed first so their assigned ids are part of the HTML.
func (m *Manager) Snapshot(ctx context.Context, s *Session) (Bundle, error) {
	var b Bundle
	var err error
	if b.Sections, err = s.Editor.Sections(ctx); err != nil {
		return Bundle{}, err
	}
	if b.HTML, err = s.Editor.HTML(ctx); err != nil {
		return Bundle{}, err
	}
	if m.cfg.Store != nil {
		if b.Journal, err = m.cfg.Store.Journal(ctx, s.ID); err != nil {
			return Bundle{}, fmt.Errorf("session: journal: %w", err)
		}
	}
	return b, nil
}

// Export writes the session document as a zip archive holding
// index.html, sections.json and, with a store, journal.json. An export
// event carrying the sha256 of index.html is emitted.
func (m *Manager) Export(ctx context.Context, s *Session) ([]byte, error) {
	b, err := m.Snapshot(ctx, s)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	now := time.Now().UTC()
	put := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if err := put("index.html", []byte(b.HTML)); err != nil {
		return nil, fmt.Errorf("session: export: %w", err)
	}
	sections, err := json.MarshalIndent(b.Sections, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("session: export: %w", err)
	}
	if err := put("sections.json", sections); err != nil {
		return nil, fmt.Errorf("session: export: %w", err)
	}
	if b.Journal != nil {
		journal, err := json.MarshalIndent(b.Journal, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("session: export: %w", err)
		}
		if err := put("journal.json", journal); err != nil {
			return nil, fmt.Errorf("session: export: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("session: export: %w", err)
	}

	sum := sha256.Sum256([]byte(b.HTML))
	if err := m.events.Emit(ctx, sink.Event{
		Kind:      sink.KindExport,
		SessionID: s.ID,
		URL:       s.Editor.URL(),
		Size:      len(b.HTML),
		Hash:      hex.EncodeToString(sum[:]),
		At:        now,
	}); err != nil {
		m.cfg.Logger.Warn("session: export event", "session", s.ID, "error", err)
	}
	return buf.Bytes(), nil
}

// Journal returns the persisted update journal of a session. Without a
// store it is empty.
func (m *Manager) Journal(ctx context.Context, id string) ([]store.JournalEntry, error) {
	if m.cfg.Store == nil {
		return nil, nil
	}
	return m.cfg.Store.Journal(ctx, id)
}
