// Package update defines the element mutation command sent by the editor
// and applies it to a document. Commands address their target by locator
// string only: a command never carries a live node.
package update

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/hazyhaar/clonepages/dom"
	"github.com/hazyhaar/clonepages/locator"
)

// Type is the kind of mutation an ElementUpdate performs.
type Type string

const (
	TypeStyle      Type = "style"
	TypeAttribute  Type = "attribute"
	TypeContent    Type = "content"
	TypeLink       Type = "link"
	TypeRemoveLink Type = "remove-link"
)

// Valid reports whether t is a recognised type.
func (t Type) Valid() bool {
	switch t {
	case TypeStyle, TypeAttribute, TypeContent, TypeLink, TypeRemoveLink:
		return true
	}
	return false
}

// ElementUpdate is one mutation command.
type ElementUpdate struct {
	XPath    string            `json:"xpath"`
	Property string            `json:"property"`
	Value    string            `json:"value"`
	Type     Type              `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var (
	// ErrLocatorMiss means the xpath did not resolve. It is a soft failure:
	// the update is dropped and the session continues.
	ErrLocatorMiss = errors.New("update: locator miss")

	// ErrUnrecognizedType rejects an update whose type is unknown.
	ErrUnrecognizedType = errors.New("update: unrecognized update type")

	// ErrInvalidProperty rejects an update whose property or value is not
	// acceptable for its type.
	ErrInvalidProperty = errors.New("update: invalid property")
)

// Composite style properties. Clearing one removes the shorthand and the
// longhands listed here; setting one drops the longhands first so the
// shorthand is never mixed with stale fragments.
var composites = map[string]struct {
	props    []string
	prefixes []string
}{
	"animation":       {prefixes: []string{"animation"}},
	"transition":      {prefixes: []string{"transition"}},
	"filter":          {},
	"backdrop-filter": {},
	"box-shadow":      {},
	"text-shadow":     {},
	"transform":       {},
	"background":      {prefixes: []string{"background"}},
	"border":          {props: borderLonghands()},
}

func borderLonghands() []string {
	out := []string{"border-width", "border-style", "border-color"}
	for _, side := range []string{"top", "right", "bottom", "left"} {
		out = append(out, "border-"+side)
		for _, part := range []string{"width", "style", "color"} {
			out = append(out, "border-"+side+"-"+part)
		}
	}
	return out
}

var contentProps = map[string]bool{"textContent": true, "text": true, "innerText": true}

var (
	cssPropRe  = regexp.MustCompile(`^-?[a-z][a-z0-9-]*$`)
	customRe   = regexp.MustCompile(`^--[A-Za-z0-9_-]+$`)
	attrNameRe = regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9_:.]*$`)
)

// urlAttrs are attributes whose value is navigated to or fetched.
var urlAttrs = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"xlink:href": true, "poster": true, "data": true,
}

// Validate checks the type and the type-specific property and value. It
// does not resolve the locator.
func (u ElementUpdate) Validate() error {
	switch u.Type {
	case TypeStyle:
		if _, err := cssName(u.Property); err != nil {
			return err
		}
		return checkStyleValue(u.Value)
	case TypeAttribute:
		name := strings.ToLower(strings.TrimSpace(u.Property))
		if err := checkAttrName(name); err != nil {
			return err
		}
		if urlAttrs[name] && unsafeURL(u.Value) {
			return fmt.Errorf("%w: %s: script url", ErrInvalidProperty, name)
		}
		switch name {
		case "srcdoc":
			return fmt.Errorf("%w: attribute %q", ErrInvalidProperty, name)
		case "style":
			return checkInlineStyle(u.Value)
		}
		return nil
	case TypeContent:
		if !contentProps[u.Property] {
			return fmt.Errorf("%w: content property %q", ErrInvalidProperty, u.Property)
		}
		return nil
	case TypeLink:
		if u.Property != "" && u.Property != "href" {
			return fmt.Errorf("%w: link property %q", ErrInvalidProperty, u.Property)
		}
		if strings.TrimSpace(u.Value) == "" {
			return fmt.Errorf("%w: empty href", ErrInvalidProperty)
		}
		if unsafeURL(u.Value) {
			return fmt.Errorf("%w: href: script url", ErrInvalidProperty)
		}
		if t := u.Metadata["target"]; t != "" && !validTarget(t) {
			return fmt.Errorf("%w: target %q", ErrInvalidProperty, t)
		}
		return nil
	case TypeRemoveLink:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnrecognizedType, u.Type)
}

// Apply validates u, resolves its xpath in doc and performs the mutation.
// A rejected update is never attempted. A locator miss leaves doc
// untouched and returns an error wrapping ErrLocatorMiss.
func Apply(doc *dom.Document, u ElementUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	el, err := locator.Resolve(doc, u.XPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocatorMiss, err)
	}

	switch u.Type {
	case TypeStyle:
		applyStyle(el, u.Property, u.Value)
	case TypeAttribute:
		name := strings.ToLower(strings.TrimSpace(u.Property))
		if u.Value == "" {
			dom.RemoveAttr(el, name)
		} else {
			dom.SetAttr(el, name, u.Value)
		}
	case TypeContent:
		dom.SetTextContent(el, u.Value)
	case TypeLink:
		applyLink(el, u)
	case TypeRemoveLink:
		dom.RemoveAttr(el, "href")
		dom.RemoveAttr(el, "target")
		dom.RemoveAttr(el, "rel")
	}
	return nil
}

func applyStyle(el *html.Node, property, value string) {
	prop, _ := cssName(property)
	value = strings.TrimSpace(value)

	if c, ok := composites[prop]; ok {
		dom.RemoveStyleProperties(el, c.props, c.prefixes)
		if value == "" || strings.EqualFold(value, "none") {
			dom.RemoveStyleProperties(el, []string{prop}, nil)
			return
		}
		dom.SetStyleProperty(el, prop, value)
		return
	}
	if value == "" {
		dom.RemoveStyleProperties(el, []string{prop}, nil)
		return
	}
	dom.SetStyleProperty(el, prop, value)
}

func applyLink(el *html.Node, u ElementUpdate) {
	dom.SetAttr(el, "href", strings.TrimSpace(u.Value))

	target := u.Metadata["target"]
	rel, hasRel := u.Metadata["rel"]
	switch target {
	case "":
		if hasRel && rel != "" {
			dom.SetAttr(el, "rel", rel)
		}
	case "_self":
		dom.SetAttr(el, "target", "_self")
		dom.RemoveAttr(el, "rel")
	case "_blank":
		dom.SetAttr(el, "target", "_blank")
		if !hasRel || rel == "" {
			rel = "noopener noreferrer"
		}
		dom.SetAttr(el, "rel", rel)
	default:
		dom.SetAttr(el, "target", target)
		if hasRel && rel != "" {
			dom.SetAttr(el, "rel", rel)
		}
	}
}

// cssName normalises a style property to its CSS spelling. camelCase
// names (fontSize, WebkitTransform, cssFloat) are converted to kebab-case;
// custom properties are kept verbatim.
func cssName(p string) (string, error) {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "--") {
		if !customRe.MatchString(p) {
			return "", fmt.Errorf("%w: style %q", ErrInvalidProperty, p)
		}
		return p, nil
	}
	if p == "cssFloat" {
		return "float", nil
	}

	var b strings.Builder
	if strings.HasPrefix(p, "ms") && len(p) > 2 && unicode.IsUpper(rune(p[2])) {
		b.WriteByte('-')
	}
	for _, r := range p {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	name := b.String()
	if !cssPropRe.MatchString(name) {
		return "", fmt.Errorf("%w: style %q", ErrInvalidProperty, p)
	}
	return name, nil
}

// checkStyleValue rejects values that would escape the declaration or
// run script. Semicolons are allowed inside quotes and parentheses so
// data URLs keep working.
func checkStyleValue(v string) error {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "expression(") || strings.Contains(lower, "javascript:") {
		return fmt.Errorf("%w: style value", ErrInvalidProperty)
	}
	depth := 0
	var quote rune
	for _, r := range v {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == '{' || r == '}' || r == '<':
			return fmt.Errorf("%w: style value contains %q", ErrInvalidProperty, r)
		case r == ';' && depth == 0:
			return fmt.Errorf("%w: style value contains ';'", ErrInvalidProperty)
		}
	}
	return nil
}

// checkInlineStyle applies the style value rules to every declaration of
// a whole style attribute.
func checkInlineStyle(v string) error {
	if err := checkStyleValue(strings.ReplaceAll(v, ";", " ")); err != nil {
		return err
	}
	for _, d := range dom.ParseStyle(v) {
		if _, err := cssName(d.Property); err != nil {
			return err
		}
		if err := checkStyleValue(d.Value); err != nil {
			return err
		}
	}
	return nil
}

func checkAttrName(name string) error {
	if !attrNameRe.MatchString(name) {
		return fmt.Errorf("%w: attribute %q", ErrInvalidProperty, name)
	}
	if strings.HasPrefix(name, "on") {
		return fmt.Errorf("%w: event handler attribute %q", ErrInvalidProperty, name)
	}
	return nil
}

// unsafeURL reports script-bearing URL schemes. Browsers ignore ASCII
// whitespace and control characters inside the scheme.
func unsafeURL(v string) bool {
	var b strings.Builder
	for _, r := range v {
		if r <= ' ' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
		if b.Len() > 16 {
			break
		}
	}
	s := b.String()
	return strings.HasPrefix(s, "javascript:") || strings.HasPrefix(s, "vbscript:")
}

func validTarget(t string) bool {
	for _, r := range t {
		if unicode.IsSpace(r) || r == '"' || r == '\'' || r == '<' || r == '>' {
			return false
		}
	}
	return true
}
