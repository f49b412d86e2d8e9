// Package sink defines output backends for clone session events.
package sink

import (
	"context"
	"time"

	"github.com/hazyhaar/clonepages/section"
	"github.com/hazyhaar/clonepages/update"
)

// Kind names an event.
type Kind string

const (
	KindCloneError Kind = "clone_error"
	KindFrameReady Kind = "frame_ready"
	KindUpdate     Kind = "update"
	KindSections   Kind = "sections"
	KindExport     Kind = "export"
)

// Event is one thing that happened in a session.
type Event struct {
	Kind      Kind                  `json:"kind"`
	SessionID string                `json:"session_id,omitempty"`
	URL       string                `json:"url,omitempty"`
	Update    *update.ElementUpdate `json:"update,omitempty"`
	Outcome   update.Outcome        `json:"outcome,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	Sections  []section.Entry       `json:"sections,omitempty"`

	// Size and Hash describe an exported document.
	Size int       `json:"size,omitempty"`
	Hash string    `json:"hash,omitempty"`
	At   time.Time `json:"at"`
}

// Sink is the output interface. Implementations deliver events to
// different backends (stdout, webhook, store, in-process callback).
type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) error { return nil }
func (discard) Close() error                      { return nil }
