package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/clonepages/editor"
	"github.com/hazyhaar/clonepages/kit"
	"github.com/hazyhaar/clonepages/locator"
	"github.com/hazyhaar/clonepages/shield"
	"github.com/hazyhaar/clonepages/transport"
	"github.com/hazyhaar/clonepages/update"
)

type loadRequest struct {
	URL string `json:"url"`
}

type selectRequest struct {
	XPath string `json:"xpath"`
}

type updatesRequest struct {
	Updates []update.ElementUpdate `json:"updates"`
}

// RegisterHTTP mounts the session API on r. create wraps the route that
// creates sessions, typically a rate limiter.
func (m *Manager) RegisterHTTP(r chi.Router, create ...func(http.Handler) http.Handler) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": m.count()})
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.With(create...).Post("/", m.handleCreate)
		r.Get("/", m.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", m.withSession(m.handleStatus))
			r.Delete("/", m.handleDelete)
			r.Post("/load", m.withSession(m.handleLoad))
			r.Get("/sections", m.withSession(m.handleSections))
			r.Post("/select", m.withSession(m.handleSelect))
			r.Post("/updates", m.withSession(m.handleUpdates))
			r.Get("/html", m.withSession(m.handleHTML))
			r.Get("/export", m.withSession(m.handleExport))
			r.Get("/journal", m.withSession(m.handleJournal))
		})
	})

	r.Get("/ws/frame/{id}", m.handleAttach)
}

func (m *Manager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *Session)

func (m *Manager) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		ctx := kit.WithTransport(kit.WithSessionID(r.Context(), s.ID), "http")
		h(w, r.WithContext(ctx), s)
	}
}

func (m *Manager) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	s, err := m.Open(r.Context(), req.URL)
	if s == nil {
		writeError(w, statusOf(err), err)
		return
	}
	if err != nil {
		writeJSON(w, statusOf(err), map[string]any{"error": err.Error(), "session": s.Status()})
		return
	}
	writeJSON(w, http.StatusCreated, s.Status())
}

func (m *Manager) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.List())
}

func (m *Manager) handleStatus(w http.ResponseWriter, _ *http.Request, s *Session) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (m *Manager) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := m.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) handleLoad(w http.ResponseWriter, r *http.Request, s *Session) {
	var req loadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	if err := m.Load(r.Context(), s, req.URL); err != nil {
		writeJSON(w, statusOf(err), map[string]any{"error": err.Error(), "session": s.Status()})
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (m *Manager) handleSections(w http.ResponseWriter, r *http.Request, s *Session) {
	entries, err := s.Editor.Sections(r.Context())
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (m *Manager) handleSelect(w http.ResponseWriter, r *http.Request, s *Session) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	el, err := s.Editor.Select(r.Context(), req.XPath)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

func (m *Manager) handleUpdates(w http.ResponseWriter, r *http.Request, s *Session) {
	var req updatesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Editor.Apply(r.Context(), req.Updates...); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(update.Compact(req.Updates))})
}

func (m *Manager) handleHTML(w http.ResponseWriter, r *http.Request, s *Session) {
	doc, err := s.Editor.HTML(r.Context())
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

func (m *Manager) handleExport(w http.ResponseWriter, r *http.Request, s *Session) {
	data, err := m.Export(r.Context(), s)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, s.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (m *Manager) handleJournal(w http.ResponseWriter, r *http.Request, s *Session) {
	entries, err := m.Journal(r.Context(), s.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleAttach lets a remote editor drive the frame of a session. The
// handshake is refused for origins outside the editor allow list.
func (m *Manager) handleAttach(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := m.Get(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	conn, err := transport.Accept(w, r, m.policy)
	if err != nil {
		shield.GetLogger(r.Context()).Warn("session: attach refused", "session", id, "error", err)
		return
	}
	if err := m.Attach(r.Context(), id, conn); err != nil {
		m.cfg.Logger.Debug("session: attach ended", "session", id, "error", err)
	}
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, locator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrCloneFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, update.ErrInvalidProperty), errors.Is(err, update.ErrUnrecognizedType):
		return http.StatusBadRequest
	case errors.Is(err, transport.ErrCommsTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
