// Package frame hosts the cloned document. A Host loads a page through a
// render.Loader, keeps the parsed document and answers editor commands
// received over one or more transport connections.
package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/clonepages/dom"
	"github.com/hazyhaar/clonepages/locator"
	"github.com/hazyhaar/clonepages/render"
	"github.com/hazyhaar/clonepages/section"
	"github.com/hazyhaar/clonepages/selection"
	"github.com/hazyhaar/clonepages/sink"
	"github.com/hazyhaar/clonepages/transport"
	"github.com/hazyhaar/clonepages/update"
)

// DefaultLoadTimeout bounds one page load.
const DefaultLoadTimeout = 30 * time.Second

var (
	// ErrNotLoaded is returned while no document is loaded.
	ErrNotLoaded = errors.New("frame: no document loaded")

	errSuperseded = errors.New("frame: load superseded")
)

// MeasureFunc reports the rendered box of the element at xpath in the
// given serialised document.
type MeasureFunc func(ctx context.Context, document, xpath string) (selection.Rect, error)

// Config configures a Host.
type Config struct {
	SessionID string
	Loader    render.Loader
	// Policy filters the origins allowed to send commands.
	Policy      transport.OriginPolicy
	LoadTimeout time.Duration
	// Measure is optional. Without it selections carry a zero rect.
	Measure MeasureFunc
	Sink    sink.Sink
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = DefaultLoadTimeout
	}
	if c.Sink == nil {
		c.Sink = sink.Discard
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Host owns one cloned document. All reads and mutations of the document
// are serialised by mu.
type Host struct {
	cfg Config

	mu  sync.Mutex
	doc *dom.Document
	url string
	gen uint64

	epMu      sync.Mutex
	endpoints map[*transport.Endpoint]struct{}
}

// New creates a Host with no document.
func New(cfg Config) *Host {
	cfg.defaults()
	return &Host{cfg: cfg, endpoints: make(map[*transport.Endpoint]struct{})}
}

// Serve attaches conn and processes editor commands until ctx is done or
// the connection closes. conn is closed on return.
func (h *Host) Serve(ctx context.Context, conn transport.Conn) error {
	ep := transport.NewEndpoint(conn, transport.Config{
		Source: transport.SourceFrame,
		Peer:   transport.SourceEditor,
		Policy: h.cfg.Policy,
		Logger: h.cfg.Logger,
	})
	ep.Handle(transport.TypeLoadURL, func(ctx context.Context, msg transport.Message) {
		go func() { _ = h.Load(ctx, msg.URL) }()
	})
	ep.Handle(transport.TypeApplyUpdate, func(ctx context.Context, msg transport.Message) {
		var u update.ElementUpdate
		if err := msg.DecodePayload(&u); err != nil {
			h.cfg.Logger.Debug("frame: bad update payload", "error", err)
			return
		}
		h.Apply(ctx, u)
	})
	ep.Handle(transport.TypeGetHTML, func(ctx context.Context, msg transport.Message) {
		doc, err := h.HTML()
		h.reply(ctx, ep, msg, transport.TypeHTMLResult, HTMLResult{HTML: doc}, err)
	})
	ep.Handle(transport.TypeListSections, func(ctx context.Context, msg transport.Message) {
		entries, err := h.Sections(ctx)
		h.reply(ctx, ep, msg, transport.TypeSectionsResult, SectionsResult{Sections: entries}, err)
	})
	ep.Handle(transport.TypeSelectElement, func(ctx context.Context, msg transport.Message) {
		var req SelectRequest
		if err := msg.DecodePayload(&req); err != nil {
			h.reply(ctx, ep, msg, transport.TypeElementSelected, SelectResult{}, err)
			return
		}
		el, err := h.Select(ctx, req.XPath, req.SkipSection)
		res := SelectResult{Missed: errors.Is(err, locator.ErrNotFound)}
		if err == nil {
			res.Element = &el
		}
		h.reply(ctx, ep, msg, transport.TypeElementSelected, res, err)
	})

	h.epMu.Lock()
	h.endpoints[ep] = struct{}{}
	h.epMu.Unlock()
	defer func() {
		h.epMu.Lock()
		delete(h.endpoints, ep)
		h.epMu.Unlock()
		ep.Close()
	}()

	h.cfg.Logger.Debug("frame: editor attached", "session", h.cfg.SessionID, "origin", conn.PeerOrigin())
	return ep.Run(ctx)
}

func (h *Host) reply(ctx context.Context, ep *transport.Endpoint, req transport.Message, t transport.MessageType, payload any, err error) {
	env, perr := transport.Envelope{Type: t, ReplyTo: req.ID}.WithPayload(payload)
	if perr != nil {
		h.cfg.Logger.Warn("frame: encode reply", "type", t, "error", perr)
		return
	}
	if err != nil {
		env.Error = err.Error()
	}
	if serr := ep.SendEnvelope(ctx, env); serr != nil {
		h.cfg.Logger.Debug("frame: reply not sent", "type", t, "error", serr)
	}
}

// broadcast sends env to every attached editor. Delivery is best effort.
func (h *Host) broadcast(ctx context.Context, env transport.Envelope) {
	h.epMu.Lock()
	eps := make([]*transport.Endpoint, 0, len(h.endpoints))
	for ep := range h.endpoints {
		eps = append(eps, ep)
	}
	h.epMu.Unlock()

	for _, ep := range eps {
		if err := ep.SendEnvelope(ctx, env); err != nil {
			h.cfg.Logger.Debug("frame: broadcast failed", "type", env.Type, "error", err)
		}
	}
}

func (h *Host) emit(ctx context.Context, ev sink.Event) {
	ev.SessionID = h.cfg.SessionID
	ev.At = time.Now().UTC()
	if err := h.cfg.Sink.Emit(ctx, ev); err != nil {
		h.cfg.Logger.Warn("frame: emit event", "kind", ev.Kind, "error", err)
	}
}

// Load replaces the document with the page at pageURL. The previous
// document is discarded as soon as the load starts, so locators resolved
// against it miss from then on. Attached editors receive FRAME_READY on
// success or CLONE_ERROR on failure. A load overtaken by a newer one
// reports nothing.
func (h *Host) Load(ctx context.Context, pageURL string) error {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.doc = nil
	h.url = pageURL
	h.mu.Unlock()

	title, err := h.load(ctx, pageURL, gen)
	switch {
	case errors.Is(err, errSuperseded):
		h.cfg.Logger.Debug("frame: load superseded", "url", pageURL)
		return err
	case err != nil:
		h.cfg.Logger.Warn("frame: clone failed", "session", h.cfg.SessionID, "url", pageURL, "error", err)
		h.emit(ctx, sink.Event{Kind: sink.KindCloneError, URL: pageURL, Detail: err.Error()})
		h.broadcast(ctx, transport.Envelope{Type: transport.TypeCloneError, Error: err.Error(), URL: pageURL})
		return err
	}

	h.cfg.Logger.Info("frame: ready", "session", h.cfg.SessionID, "url", pageURL)
	h.emit(ctx, sink.Event{Kind: sink.KindFrameReady, URL: pageURL})
	env, perr := transport.Envelope{Type: transport.TypeFrameReady, URL: pageURL}.WithPayload(Ready{URL: pageURL, Title: title})
	if perr == nil {
		h.broadcast(ctx, env)
	}
	return nil
}

func (h *Host) load(ctx context.Context, pageURL string, gen uint64) (string, error) {
	if h.cfg.Loader == nil {
		return "", fmt.Errorf("frame: load %s: no loader configured", pageURL)
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.LoadTimeout)
	defer cancel()

	body, err := h.cfg.Loader.Load(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("frame: load %s: %w", pageURL, err)
	}
	doc, err := dom.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("frame: load %s: %w", pageURL, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		return "", errSuperseded
	}
	h.doc = doc
	return title(doc), nil
}

func title(doc *dom.Document) string {
	if t := doc.ByTag("title"); len(t) > 0 {
		return strings.TrimSpace(dom.TextContent(t[0]))
	}
	return ""
}

// Apply performs one update against the current document. Misses and
// rejections are recovered here: they are logged and journalled, never
// returned up the message loop.
func (h *Host) Apply(ctx context.Context, u update.ElementUpdate) update.Result {
	h.mu.Lock()
	err := update.Apply(h.doc, u)
	h.mu.Unlock()

	res := update.Result{Update: u, Outcome: update.OutcomeOf(err)}
	if err != nil {
		res.Detail = err.Error()
	}
	switch res.Outcome {
	case update.OutcomeMiss:
		h.cfg.Logger.Debug("frame: update dropped", "xpath", u.XPath, "type", u.Type, "error", err)
	case update.OutcomeRejected:
		h.cfg.Logger.Info("frame: update rejected", "xpath", u.XPath, "type", u.Type, "error", err)
	}
	h.emit(ctx, sink.Event{Kind: sink.KindUpdate, URL: h.URL(), Update: &u, Outcome: res.Outcome, Detail: res.Detail})
	return res
}

// HTML serialises the current document.
func (h *Host) HTML() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.doc == nil {
		return "", ErrNotLoaded
	}
	return h.doc.Render()
}

// Sections lists the detected sections of the current document. Kept
// sections receive ids as a side effect.
func (h *Host) Sections(ctx context.Context) ([]section.Entry, error) {
	h.mu.Lock()
	if h.doc == nil {
		h.mu.Unlock()
		return nil, ErrNotLoaded
	}
	entries := section.AllSections(h.doc)
	pageURL := h.url
	h.mu.Unlock()

	h.emit(ctx, sink.Event{Kind: sink.KindSections, URL: pageURL, Sections: entries})
	return entries, nil
}

// Select snapshots the element at xpath.
func (h *Host) Select(ctx context.Context, xpath string, skipSection bool) (selection.SelectedElement, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.doc == nil {
		return selection.SelectedElement{}, ErrNotLoaded
	}
	opts := selection.Options{SkipSection: skipSection, Logger: h.cfg.Logger}
	if h.cfg.Measure != nil {
		markup, err := h.doc.Render()
		if err == nil {
			opts.Measurer = boundMeasurer{fn: h.cfg.Measure, document: markup}
		}
	}
	return selection.At(ctx, h.doc, xpath, opts)
}

// URL returns the address of the current or loading page.
func (h *Host) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Loaded reports whether a document is available.
func (h *Host) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc != nil
}

type boundMeasurer struct {
	fn       MeasureFunc
	document string
}

func (m boundMeasurer) Measure(ctx context.Context, xpath string) (selection.Rect, error) {
	return m.fn(ctx, m.document, xpath)
}
