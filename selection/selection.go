// Package selection builds the snapshot the editor keeps for the element
// the user picked. The snapshot is tied to the element only through its
// xpath: it goes stale as soon as the document changes structurally.
package selection

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/hazyhaar/clonepages/dom"
	"github.com/hazyhaar/clonepages/locator"
	"github.com/hazyhaar/clonepages/section"
)

// Rect is a bounding box in CSS pixels relative to the viewport.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SelectedElement is the editor-side view of a selected node.
// SliderInfo is set if and only if IsSlider is true.
type SelectedElement struct {
	XPath        string            `json:"xpath"`
	TagName      string            `json:"tagName"`
	ID           string            `json:"id"`
	ClassName    string            `json:"className"`
	Styles       map[string]string `json:"styles"`
	Attributes   map[string]string `json:"attributes"`
	BoundingRect Rect              `json:"boundingRect"`
	SectionInfo  *section.Info     `json:"sectionInfo,omitempty"`
	IsSlider     bool              `json:"isSlider"`
	SliderInfo   *SliderInfo       `json:"sliderInfo,omitempty"`
}

// Measurer reports the rendered box of the element at xpath. Documents
// parsed without a browser have no layout; a nil Measurer leaves
// BoundingRect zero.
type Measurer interface {
	Measure(ctx context.Context, xpath string) (Rect, error)
}

// Options controls Snapshot.
type Options struct {
	Measurer Measurer
	// SkipSection disables section detection, which assigns an id to the
	// enclosing section as a side effect.
	SkipSection bool
	Logger      *slog.Logger
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Snapshot captures el. The enclosing section is classified and, unless
// SkipSection is set, receives an id so later links can target it.
func Snapshot(ctx context.Context, doc *dom.Document, el *html.Node, opts Options) (SelectedElement, error) {
	opts.defaults()
	if el == nil || el.Type != html.ElementNode || !doc.Contains(el) {
		return SelectedElement{}, fmt.Errorf("selection: %w", locator.ErrNotFound)
	}

	xp := locator.Compute(el)
	s := SelectedElement{
		XPath:      xp,
		TagName:    el.Data,
		ID:         dom.Attr(el, "id"),
		ClassName:  dom.Attr(el, "class"),
		Styles:     dom.Styles(el),
		Attributes: dom.Attrs(el),
	}

	if !opts.SkipSection {
		if container := enclosingSection(doc, el); container != nil {
			info := section.Detect(doc, container)
			s.SectionInfo = &info
			if container == el {
				s.ID = info.ID
				s.Attributes["id"] = info.ID
			}
		}
	}

	if info, ok := detectSlider(doc, el); ok {
		s.IsSlider = true
		s.SliderInfo = &info
	}

	if opts.Measurer != nil {
		r, err := opts.Measurer.Measure(ctx, xp)
		if err != nil {
			opts.Logger.Debug("selection: measure failed", "xpath", xp, "error", err)
		} else {
			s.BoundingRect = r
		}
	}
	return s, nil
}

// At resolves xpath in doc and snapshots the element. A stale or
// malformed xpath yields an error wrapping locator.ErrNotFound.
func At(ctx context.Context, doc *dom.Document, xpath string, opts Options) (SelectedElement, error) {
	el, err := locator.Resolve(doc, xpath)
	if err != nil {
		return SelectedElement{}, err
	}
	return Snapshot(ctx, doc, el, opts)
}

// enclosingSection returns the closest ancestor-or-self that is a section
// candidate or a direct child of body.
func enclosingSection(doc *dom.Document, el *html.Node) *html.Node {
	body := doc.Body()
	for n := el; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if n == body || dom.IsElement(n, "html", "head") {
			return nil
		}
		if dom.IsElement(n, section.CandidateTags...) || n.Parent == body {
			return n
		}
	}
	return nil
}
