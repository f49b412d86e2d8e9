// Package editor is the controlling side of a clone session. An Editor
// drives a frame over a transport connection and tracks the session
// state: IDLE, LOADING after a URL is submitted, READY once the frame
// reports the page rendered.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/clonepages/frame"
	"github.com/hazyhaar/clonepages/locator"
	"github.com/hazyhaar/clonepages/section"
	"github.com/hazyhaar/clonepages/selection"
	"github.com/hazyhaar/clonepages/transport"
	"github.com/hazyhaar/clonepages/update"
)

// State is the session state.
type State string

const (
	StateIdle    State = "IDLE"
	StateLoading State = "LOADING"
	StateReady   State = "READY"
)

var (
	// ErrCloneFailure means the frame could not render the requested URL.
	// The session is back to IDLE and a new URL can be submitted.
	ErrCloneFailure = errors.New("editor: clone failed")

	// ErrNotReady rejects commands that need a rendered page.
	ErrNotReady = errors.New("editor: frame not ready")
)

// feedback strips markup from frame-provided text before it is shown.
var feedback = bluemonday.StrictPolicy()

// Config configures an Editor.
type Config struct {
	SessionID string
	// Origin is the editor's own origin. Frame messages must come from
	// it. Ignored when Policy is set.
	Origin       string
	Policy       transport.OriginPolicy
	ReplyTimeout time.Duration
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Policy == nil {
		c.Policy = transport.SameOrigin(c.Origin)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Editor is the client of one frame.
type Editor struct {
	cfg Config
	ep  *transport.Endpoint

	mu       sync.Mutex
	state    State
	url      string
	err      error
	selected *selection.SelectedElement
	changed  chan struct{}
}

// New creates an Editor speaking over conn. Call Run to start receiving.
func New(conn transport.Conn, cfg Config) *Editor {
	cfg.defaults()
	e := &Editor{
		cfg:     cfg,
		state:   StateIdle,
		changed: make(chan struct{}),
	}
	e.ep = transport.NewEndpoint(conn, transport.Config{
		Source:       transport.SourceEditor,
		Peer:         transport.SourceFrame,
		Policy:       cfg.Policy,
		ReplyTimeout: cfg.ReplyTimeout,
		Logger:       cfg.Logger,
	})
	e.ep.Handle(transport.TypeFrameReady, e.onReady)
	e.ep.Handle(transport.TypeCloneError, e.onCloneError)
	return e
}

// Run receives frame messages until ctx is done or the connection closes.
func (e *Editor) Run(ctx context.Context) error { return e.ep.Run(ctx) }

// Close closes the connection.
func (e *Editor) Close() error { return e.ep.Close() }

// Stats returns the counters of dropped inbound messages.
func (e *Editor) Stats() transport.DropStats { return e.ep.Stats() }

// setLocked moves to s and wakes Wait. Callers hold mu.
func (e *Editor) setLocked(s State) {
	if e.state != s {
		e.cfg.Logger.Debug("editor: state", "session", e.cfg.SessionID, "from", e.state, "to", s)
	}
	e.state = s
	close(e.changed)
	e.changed = make(chan struct{})
}

// Submit asks the frame to load pageURL. Any previous page and
// selection are discarded: xpaths resolved before do not carry over.
func (e *Editor) Submit(ctx context.Context, pageURL string) error {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return errors.New("editor: empty url")
	}
	e.mu.Lock()
	e.url = pageURL
	e.err = nil
	e.selected = nil
	e.setLocked(StateLoading)
	e.mu.Unlock()

	if err := e.ep.SendEnvelope(ctx, transport.Envelope{Type: transport.TypeLoadURL, URL: pageURL}); err != nil {
		e.mu.Lock()
		if e.url == pageURL && e.state == StateLoading {
			e.err = err
			e.setLocked(StateIdle)
		}
		e.mu.Unlock()
		return fmt.Errorf("editor: submit: %w", err)
	}
	return nil
}

func (e *Editor) onReady(_ context.Context, msg transport.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateLoading || (msg.URL != "" && msg.URL != e.url) {
		e.cfg.Logger.Debug("editor: ignored frame ready", "state", e.state, "url", msg.URL)
		return
	}
	e.setLocked(StateReady)
}

func (e *Editor) onCloneError(_ context.Context, msg transport.Message) {
	text := strings.TrimSpace(feedback.Sanitize(msg.Error))
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateLoading || (msg.URL != "" && msg.URL != e.url) {
		e.cfg.Logger.Debug("editor: ignored clone error", "state", e.state, "url", msg.URL)
		return
	}
	e.err = fmt.Errorf("%w: %s: %s", ErrCloneFailure, e.url, text)
	e.setLocked(StateIdle)
}

// Wait blocks while the session is LOADING. It returns nil once READY and
// an error wrapping ErrCloneFailure when the load failed.
func (e *Editor) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		state, err, ch := e.state, e.err, e.changed
		e.mu.Unlock()

		switch state {
		case StateReady:
			return nil
		case StateIdle:
			if err == nil {
				return ErrNotReady
			}
			return err
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the current state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// URL returns the last submitted URL.
func (e *Editor) URL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}

// Err returns the failure that sent the session back to IDLE, if any.
func (e *Editor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Selected returns the current selection or nil.
func (e *Editor) Selected() *selection.SelectedElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

func (e *Editor) ready() error {
	if e.State() != StateReady {
		return ErrNotReady
	}
	return nil
}

// Apply validates updates, then sends them in order. Consecutive writes
// to the same property collapse to the last one. Nothing is sent if any
// update is rejected.
func (e *Editor) Apply(ctx context.Context, updates ...update.ElementUpdate) error {
	if err := e.ready(); err != nil {
		return err
	}
	if i, err := update.ValidateAll(updates); err != nil {
		return fmt.Errorf("editor: update %d: %w", i, err)
	}
	for _, u := range update.Compact(updates) {
		if err := e.ep.Send(ctx, transport.TypeApplyUpdate, u); err != nil {
			return fmt.Errorf("editor: apply: %w", err)
		}
	}
	return nil
}

// HTML returns the frame's current document. On timeout it returns ""
// and an error wrapping transport.ErrCommsTimeout.
func (e *Editor) HTML(ctx context.Context) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	msg, err := e.ep.Request(ctx, transport.TypeGetHTML, nil, 0)
	if err != nil {
		return "", err
	}
	if msg.Error != "" {
		return "", fmt.Errorf("editor: html: %s", msg.Error)
	}
	var res frame.HTMLResult
	if err := msg.DecodePayload(&res); err != nil {
		return "", err
	}
	return res.HTML, nil
}

// Sections lists the sections detected in the frame document.
func (e *Editor) Sections(ctx context.Context) ([]section.Entry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	msg, err := e.ep.Request(ctx, transport.TypeListSections, nil, 0)
	if err != nil {
		return nil, err
	}
	if msg.Error != "" {
		return nil, fmt.Errorf("editor: sections: %s", msg.Error)
	}
	var res frame.SectionsResult
	if err := msg.DecodePayload(&res); err != nil {
		return nil, err
	}
	return res.Sections, nil
}

// Select snapshots the element at xpath and makes it the current
// selection. A stale xpath yields an error wrapping locator.ErrNotFound.
func (e *Editor) Select(ctx context.Context, xpath string) (selection.SelectedElement, error) {
	if err := e.ready(); err != nil {
		return selection.SelectedElement{}, err
	}
	msg, err := e.ep.Request(ctx, transport.TypeSelectElement, frame.SelectRequest{XPath: xpath}, 0)
	if err != nil {
		return selection.SelectedElement{}, err
	}
	var res frame.SelectResult
	if len(msg.Payload) > 0 {
		if err := msg.DecodePayload(&res); err != nil {
			return selection.SelectedElement{}, err
		}
	}
	switch {
	case res.Missed:
		return selection.SelectedElement{}, fmt.Errorf("editor: select %s: %w", xpath, locator.ErrNotFound)
	case msg.Error == frame.ErrNotLoaded.Error():
		return selection.SelectedElement{}, fmt.Errorf("editor: select %s: %w", xpath, ErrNotReady)
	case msg.Error != "":
		return selection.SelectedElement{}, fmt.Errorf("editor: select %s: %s", xpath, msg.Error)
	case res.Element == nil:
		return selection.SelectedElement{}, fmt.Errorf("editor: select %s: empty reply", xpath)
	}

	e.mu.Lock()
	if e.state == StateReady {
		e.selected = res.Element
	}
	e.mu.Unlock()
	return *res.Element, nil
}
