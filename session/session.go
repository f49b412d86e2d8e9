// Package session runs clone sessions. Each session pairs a frame.Host,
// which owns the cloned document, with an editor.Editor that drives it
// over an in-memory transport. The Manager exposes sessions over HTTP,
// websocket and MCP.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/clonepages/editor"
	"github.com/hazyhaar/clonepages/frame"
	"github.com/hazyhaar/clonepages/idgen"
	"github.com/hazyhaar/clonepages/internal/store"
	"github.com/hazyhaar/clonepages/render"
	"github.com/hazyhaar/clonepages/sink"
	"github.com/hazyhaar/clonepages/transport"
)

// ErrNotFound means no live session has the given id.
var ErrNotFound = errors.New("session: not found")

// Config configures a Manager.
type Config struct {
	Loader render.Loader
	// Store persists sessions and receives events. Optional.
	Store *store.Store
	// Sink receives frame events in addition to Store.
	Sink sink.Sink
	// Origin is the editor origin, the trust anchor for frame messages.
	Origin string
	// EditorOrigins may attach to a frame over websocket.
	EditorOrigins []string
	LoadTimeout   time.Duration
	ReplyTimeout  time.Duration
	Measure       frame.MeasureFunc
	IDs           idgen.Generator
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.Origin == "" {
		c.Origin = "http://localhost"
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = frame.DefaultLoadTimeout
	}
	if c.IDs == nil {
		c.IDs = idgen.Default
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is one live clone session.
type Session struct {
	ID      string
	Host    *frame.Host
	Editor  *editor.Editor
	Created time.Time
	cancel  context.CancelFunc
}

// Status is the externally visible state of a session.
type Status struct {
	ID      string              `json:"id"`
	State   editor.State        `json:"state"`
	URL     string              `json:"url,omitempty"`
	Error   string              `json:"error,omitempty"`
	Dropped transport.DropStats `json:"dropped"`
}

// Status reports the session state.
func (s *Session) Status() Status {
	st := Status{
		ID:      s.ID,
		State:   s.Editor.State(),
		URL:     s.Editor.URL(),
		Dropped: s.Editor.Stats(),
	}
	if err := s.Editor.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Manager owns the live sessions.
type Manager struct {
	cfg    Config
	events sink.Sink
	policy transport.OriginPolicy

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a Manager. Sessions live until deleted or Close.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	var sinks []sink.Sink
	if cfg.Store != nil {
		sinks = append(sinks, cfg.Store)
	}
	if cfg.Sink != nil {
		sinks = append(sinks, cfg.Sink)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		events:   sink.NewRouter(cfg.Logger, sinks...),
		policy:   transport.AllowList(append([]string{cfg.Origin}, cfg.EditorOrigins...)...),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create starts an IDLE session.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := m.cfg.IDs()
	if m.cfg.Store != nil {
		if _, err := m.cfg.Store.CreateSession(ctx, id); err != nil {
			return nil, fmt.Errorf("session: create: %w", err)
		}
	}
	log := m.cfg.Logger.With("session", id)

	edEnd, frameEnd := transport.Pipe(m.cfg.Origin, m.cfg.Origin)
	host := frame.New(frame.Config{
		SessionID:   id,
		Loader:      m.cfg.Loader,
		Policy:      m.policy,
		LoadTimeout: m.cfg.LoadTimeout,
		Measure:     m.cfg.Measure,
		Sink:        m.events,
		Logger:      log,
	})
	ed := editor.New(edEnd, editor.Config{
		SessionID:    id,
		Origin:       m.cfg.Origin,
		ReplyTimeout: m.cfg.ReplyTimeout,
		Logger:       log,
	})

	sctx, cancel := context.WithCancel(m.ctx)
	s := &Session{ID: id, Host: host, Editor: ed, Created: time.Now().UTC(), cancel: cancel}
	go func() {
		if err := host.Serve(sctx, frameEnd); err != nil && sctx.Err() == nil {
			log.Warn("session: frame stopped", "error", err)
		}
	}()
	go func() {
		if err := ed.Run(sctx); err != nil && sctx.Err() == nil {
			log.Warn("session: editor stopped", "error", err)
		}
	}()

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	log.Info("session: created")
	return s, nil
}

// Open creates a session and loads pageURL. On clone failure the session
// is kept, IDLE, and the error wraps editor.ErrCloneFailure.
func (m *Manager) Open(ctx context.Context, pageURL string) (*Session, error) {
	s, err := m.Create(ctx)
	if err != nil {
		return nil, err
	}
	return s, m.Load(ctx, s, pageURL)
}

// Load submits pageURL and waits until the frame is READY or reports a
// clone failure. Earlier selections and xpaths are invalidated.
func (m *Manager) Load(ctx context.Context, s *Session, pageURL string) error {
	if m.cfg.Store != nil {
		if err := m.cfg.Store.SetLoading(ctx, s.ID, pageURL); err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}
	if err := s.Editor.Submit(ctx, pageURL); err != nil {
		return err
	}
	// The frame reports CLONE_ERROR at LoadTimeout; the margin covers
	// delivery.
	wctx, cancel := context.WithTimeout(ctx, m.cfg.LoadTimeout+5*time.Second)
	defer cancel()
	return s.Editor.Wait(wctx)
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns the status of every live session, oldest first.
func (m *Manager) List() []Status {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(live, func(a, b *Session) int { return a.Created.Compare(b.Created) })
	out := make([]Status, len(live))
	for i, s := range live {
		out[i] = s.Status()
	}
	return out
}

// Delete stops a session and removes its records.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.cancel()
	s.Editor.Close()
	if m.cfg.Store != nil {
		if err := m.cfg.Store.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("session: delete: %w", err)
		}
	}
	m.cfg.Logger.Info("session: deleted", "session", id)
	return nil
}

// Attach serves an external editor connection on the frame of session
// id until the connection closes.
func (m *Manager) Attach(ctx context.Context, id string, conn transport.Conn) error {
	s, err := m.Get(id)
	if err != nil {
		conn.Close()
		return err
	}
	return s.Host.Serve(ctx, conn)
}

// Policy is the origin policy applied to frame connections.
func (m *Manager) Policy() transport.OriginPolicy { return m.policy }

// Close stops every session.
func (m *Manager) Close() error {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Editor.Close()
		delete(m.sessions, id)
	}
	return nil
}
