package dom

import (
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// Decl is one inline style declaration.
type Decl struct {
	Property  string
	Value     string
	Important bool
}

// String renders the declaration without trailing semicolon.
func (d Decl) String() string {
	if d.Important {
		return d.Property + ": " + d.Value + " !important"
	}
	return d.Property + ": " + d.Value
}

// ParseStyle parses the content of a style attribute, preserving order.
// Later duplicates of a property replace earlier ones, as in a browser.
func ParseStyle(s string) []Decl {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var decls []Decl
	parsed, err := parser.ParseDeclarations(s)
	if err == nil {
		for _, d := range parsed {
			decls = putDecl(decls, Decl{
				Property:  propName(d.Property),
				Value:     strings.TrimSpace(d.Value),
				Important: d.Important,
			})
		}
		return decls
	}

	// Inline styles on scraped pages are not always valid CSS; fall back to
	// a plain split so a single bad declaration does not lose the rest.
	for _, part := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = propName(prop)
		val = strings.TrimSpace(val)
		if prop == "" {
			continue
		}
		important := false
		if v, found := strings.CutSuffix(val, "!important"); found {
			val = strings.TrimSpace(v)
			important = true
		}
		decls = putDecl(decls, Decl{Property: prop, Value: val, Important: important})
	}
	return decls
}

// FormatStyle renders declarations back into a style attribute value.
func FormatStyle(decls []Decl) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.String())
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// Styles returns the inline style of n as a property map.
func Styles(n *html.Node) map[string]string {
	out := make(map[string]string)
	for _, d := range ParseStyle(Attr(n, "style")) {
		v := d.Value
		if d.Important {
			v += " !important"
		}
		out[d.Property] = v
	}
	return out
}

// StyleProperty returns the inline value of one property.
func StyleProperty(n *html.Node, prop string) string {
	prop = propName(prop)
	for _, d := range ParseStyle(Attr(n, "style")) {
		if d.Property == prop {
			return d.Value
		}
	}
	return ""
}

// SetStyleProperty sets one inline property. A value ending in
// "!important" keeps the priority flag.
func SetStyleProperty(n *html.Node, prop, value string) {
	if n == nil {
		return
	}
	prop = propName(prop)
	value = strings.TrimSpace(value)
	important := false
	if v, found := strings.CutSuffix(value, "!important"); found {
		value = strings.TrimSpace(v)
		important = true
	}
	decls := putDecl(ParseStyle(Attr(n, "style")), Decl{Property: prop, Value: value, Important: important})
	writeStyle(n, decls)
}

// RemoveStyleProperties removes the named properties and, for each name
// listed in prefixes, every longhand starting with "<prefix>-". It returns
// the number of declarations removed.
func RemoveStyleProperties(n *html.Node, props []string, prefixes []string) int {
	if n == nil {
		return 0
	}
	decls := ParseStyle(Attr(n, "style"))
	kept := decls[:0]
	removed := 0
	for _, d := range decls {
		if matchesAny(d.Property, props, prefixes) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	if removed > 0 {
		writeStyle(n, kept)
	}
	return removed
}

func matchesAny(prop string, props, prefixes []string) bool {
	for _, p := range props {
		if prop == propName(p) {
			return true
		}
	}
	for _, p := range prefixes {
		if strings.HasPrefix(prop, propName(p)+"-") {
			return true
		}
	}
	return false
}

// propName normalises a property name. Custom properties (--name) are
// case-sensitive and kept as written.
func propName(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "--") {
		return p
	}
	return strings.ToLower(p)
}

func writeStyle(n *html.Node, decls []Decl) {
	if len(decls) == 0 {
		RemoveAttr(n, "style")
		return
	}
	SetAttr(n, "style", FormatStyle(decls))
}

func putDecl(decls []Decl, d Decl) []Decl {
	for i := range decls {
		if decls[i].Property == d.Property {
			decls[i] = d
			return decls
		}
	}
	return append(decls, d)
}
