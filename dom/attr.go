package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Attr returns the value of attribute key, or "".
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present, even when empty.
func HasAttr(n *html.Node, key string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets an attribute, replacing any existing value in place so the
// attribute order of the source document is preserved.
func SetAttr(n *html.Node, key, val string) {
	if n == nil {
		return
	}
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes every occurrence of the attribute. It returns true if
// something was removed.
func RemoveAttr(n *html.Node, key string) bool {
	if n == nil {
		return false
	}
	key = strings.ToLower(key)
	kept := n.Attr[:0]
	removed := false
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
	return removed
}

// Attrs returns a copy of the element's attributes as a map.
func Attrs(n *html.Node) map[string]string {
	out := make(map[string]string)
	if n == nil {
		return out
	}
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		out[key] = a.Val
	}
	return out
}

// Classes returns the whitespace-separated class list.
func Classes(n *html.Node) []string {
	return strings.Fields(Attr(n, "class"))
}

// TextContent concatenates all descendant text nodes, like the DOM
// textContent property.
func TextContent(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// SetTextContent replaces all children of n with a single text node.
// The value is never parsed as markup.
func SetTextContent(n *html.Node, text string) {
	if n == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}
