// Package locator produces and resolves XPath strings that identify an
// element across contexts that do not share object identity (editor vs
// frame, before vs after a message hop).
//
// The format is a strict subset of XPath: absolute element steps with an
// optional 1-based positional predicate, e.g. /html/body/section[2]/h1.
package locator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/clonepages/dom"
)

// ErrNotFound is returned when an xpath does not resolve to an element.
// Stale, malformed and out-of-range locators all map to it: callers treat
// a miss as a normal outcome.
var ErrNotFound = errors.New("locator: element not found")

// Compute returns the locator of an element. It is deterministic for the
// lifetime of the tree: same node, same string. Non-element nodes and
// detached elements yield "".
func Compute(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}

	var steps []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		steps = append(steps, step(cur))
	}
	// The topmost element must hang off a document node, otherwise the
	// node was removed from its tree.
	top := n
	for top.Parent != nil && top.Parent.Type == html.ElementNode {
		top = top.Parent
	}
	if top.Parent == nil || top.Parent.Type != html.DocumentNode {
		return ""
	}

	var b strings.Builder
	for i := len(steps) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(steps[i])
	}
	return b.String()
}

// step renders one path segment. html, head and body are never indexed;
// other tags carry [n] when the parent holds several same-tag elements.
func step(n *html.Node) string {
	name := n.Data
	switch name {
	case "html", "head", "body":
		return name
	}
	if n.Parent == nil {
		return name
	}

	idx, total := 0, 0
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.Type != html.ElementNode || s.Data != name {
			continue
		}
		total++
		if s == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s[%d]", name, idx)
	}
	return name
}

// Resolve returns the element addressed by xpath in doc. When a step
// without index matches several siblings, the first in document order is
// used. Resolve never panics and never returns a node from another
// document.
func Resolve(doc *dom.Document, xpath string) (*html.Node, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no document", ErrNotFound)
	}

	steps, err := parse(xpath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	cur := root
	for _, s := range steps {
		next := child(cur, s)
		if next == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, xpath)
		}
		cur = next
	}
	return cur, nil
}

// MustResolve is Resolve for tests and fixtures.
func MustResolve(doc *dom.Document, xpath string) *html.Node {
	n, err := Resolve(doc, xpath)
	if err != nil {
		panic(err)
	}
	return n
}

type pathStep struct {
	tag      string
	position int // 1-based, 0 = first match
}

func parse(xpath string) ([]pathStep, error) {
	xpath = strings.TrimSpace(xpath)
	if !strings.HasPrefix(xpath, "/") || strings.HasPrefix(xpath, "//") {
		return nil, fmt.Errorf("not an absolute path: %q", xpath)
	}

	parts := strings.Split(xpath[1:], "/")
	steps := make([]pathStep, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty step in %q", xpath)
		}
		s, err := parseStep(p)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func parseStep(p string) (pathStep, error) {
	open := strings.IndexByte(p, '[')
	if open < 0 {
		if !validTag(p) {
			return pathStep{}, fmt.Errorf("invalid step %q", p)
		}
		return pathStep{tag: strings.ToLower(p)}, nil
	}

	tag := p[:open]
	if !validTag(tag) || !strings.HasSuffix(p, "]") {
		return pathStep{}, fmt.Errorf("invalid step %q", p)
	}
	pos, err := strconv.Atoi(p[open+1 : len(p)-1])
	if err != nil || pos < 1 {
		return pathStep{}, fmt.Errorf("invalid position in %q", p)
	}
	return pathStep{tag: strings.ToLower(tag), position: pos}, nil
}

func validTag(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == ':') {
			return false
		}
	}
	return true
}

func child(parent *html.Node, s pathStep) *html.Node {
	count := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != s.tag {
			continue
		}
		count++
		if s.position == 0 || count == s.position {
			return c
		}
	}
	return nil
}
