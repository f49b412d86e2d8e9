package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

func (m *Manager) newPage() (*rod.Page, error) {
	b, err := m.Browser()
	if err != nil {
		return nil, err
	}
	var page *rod.Page
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	if len(m.cfg.ResourceBlocking) > 0 {
		applyResourceBlocking(page, m.cfg.ResourceBlocking)
	}
	return page, nil
}

// Render navigates to pageURL, waits for load and returns the serialised
// DOM after scripts ran.
func (m *Manager) Render(ctx context.Context, pageURL string) ([]byte, error) {
	page, err := m.newPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte("<!DOCTYPE html>\n" + res.Value.Str()), nil
}

// Box is an element box in CSS pixels.
type Box struct {
	Top, Left, Width, Height float64
}

const measureJS = `(xp) => {
	const r = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
	const el = r.singleNodeValue;
	if (!el || !el.getBoundingClientRect) return null;
	const b = el.getBoundingClientRect();
	return {top: b.top, left: b.left, width: b.width, height: b.height};
}`

// Measure loads document into a blank tab and returns the box of the
// element at xpath.
func (m *Manager) Measure(ctx context.Context, document, xpath string) (Box, error) {
	page, err := m.newPage()
	if err != nil {
		return Box{}, err
	}
	defer page.Close()

	p := page.Context(ctx)
	if err := p.SetDocumentContent(document); err != nil {
		return Box{}, fmt.Errorf("browser: set content: %w", err)
	}
	res, err := p.Eval(measureJS, xpath)
	if err != nil {
		return Box{}, fmt.Errorf("browser: measure: %w", err)
	}
	if res.Value.Nil() {
		return Box{}, fmt.Errorf("browser: measure: no element at %s", xpath)
	}
	return Box{
		Top:    res.Value.Get("top").Num(),
		Left:   res.Value.Get("left").Num(),
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, nil
}
