// Package dom wraps a parsed HTML tree as an explicit document handle.
//
// Every component that reads or mutates a cloned page (locator, section,
// update, selection) receives a *Document argument. There is no
// package-level document: a reload produces a new *Document and anything
// resolved against the old one stays attached to the old tree.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Document is a parsed, mutable HTML document.
type Document struct {
	root *html.Node
}

// Parse reads and parses an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML document held in memory.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// FromNode wraps an existing tree. The node is normally an
// html.DocumentNode.
func FromNode(root *html.Node) *Document {
	return &Document{root: root}
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	if d == nil {
		return nil
	}
	return d.root
}

// HTML returns the <html> element.
func (d *Document) HTML() *html.Node {
	return firstChildElement(d.Root(), "html")
}

// Head returns the <head> element or nil.
func (d *Document) Head() *html.Node {
	return firstChildElement(d.HTML(), "head")
}

// Body returns the <body> element or nil.
func (d *Document) Body() *html.Node {
	return firstChildElement(d.HTML(), "body")
}

// Render serialises the whole document.
func (d *Document) Render() (string, error) {
	if d.Root() == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("dom: render: %w", err)
	}
	return buf.String(), nil
}

// Elements returns every element node in document order.
func (d *Document) Elements() []*html.Node {
	var out []*html.Node
	Walk(d.Root(), func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
		return true
	})
	return out
}

// ByTag returns the elements whose tag is one of tags, in document order.
func (d *Document) ByTag(tags ...string) []*html.Node {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[strings.ToLower(t)] = true
	}
	var out []*html.Node
	Walk(d.Root(), func(n *html.Node) bool {
		if n.Type == html.ElementNode && set[n.Data] {
			out = append(out, n)
		}
		return true
	})
	return out
}

// ByID returns every element carrying the given id, in document order.
// Malformed documents may hold duplicates.
func (d *Document) ByID(id string) []*html.Node {
	if id == "" {
		return nil
	}
	var out []*html.Node
	Walk(d.Root(), func(n *html.Node) bool {
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			out = append(out, n)
		}
		return true
	})
	return out
}

// IDInUse reports whether any element other than except carries id.
func (d *Document) IDInUse(id string, except *html.Node) bool {
	for _, n := range d.ByID(id) {
		if n != except {
			return true
		}
	}
	return false
}

// Contains reports whether n belongs to this document's tree.
func (d *Document) Contains(n *html.Node) bool {
	root := d.Root()
	if root == nil || n == nil {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants depth-first in document order.
// Returning false from fn skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// ChildElements returns the element children of n.
func ChildElements(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// IsElement reports whether n is an element with one of the given tags.
// With no tags it only checks the node type.
func IsElement(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Data == t {
			return true
		}
	}
	return false
}

func firstChildElement(n *html.Node, tag string) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}
