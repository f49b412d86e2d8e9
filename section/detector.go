package section

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/clonepages/dom"
	"github.com/hazyhaar/clonepages/locator"
)

// Score accumulates every signal for el without touching the document.
// A nil element or a non-element node scores zero everywhere.
func Score(doc *dom.Document, el *html.Node) Scores {
	scores := make(Scores, len(Precedence))
	if doc == nil || el == nil || el.Type != html.ElementNode {
		return scores
	}
	c := newCandidate(doc, el)
	for _, s := range signals {
		if s.match(c) {
			scores[s.category] += s.weight
		}
	}
	return scores
}

// Classify returns the classification of el without assigning an id.
// Info.ID holds the element's current id, possibly empty.
func Classify(doc *dom.Document, el *html.Node) Info {
	cat, conf := Score(doc, el).Best()
	return Info{
		Category:   cat,
		Name:       cat.Label(),
		ID:         dom.Attr(el, "id"),
		Confidence: conf,
	}
}

// Detect classifies el and makes sure it carries a document-unique id.
// An existing non-empty id is reused as is. Calling Detect again on the
// same element returns the same id.
func Detect(doc *dom.Document, el *html.Node) Info {
	info := Classify(doc, el)
	if el == nil || el.Type != html.ElementNode {
		return info
	}
	info.ID = EnsureID(doc, el, info.Category)
	return info
}

// EnsureID returns the id of el, writing one derived from cat when el has
// none: cat, then cat-1, cat-2, ... until unused elsewhere in doc.
func EnsureID(doc *dom.Document, el *html.Node, cat Category) string {
	if id := dom.Attr(el, "id"); strings.TrimSpace(id) != "" {
		return id
	}
	base := string(cat)
	id := base
	for i := 1; doc.IDInUse(id, el); i++ {
		id = fmt.Sprintf("%s-%d", base, i)
	}
	dom.SetAttr(el, "id", id)
	return id
}

// AllSections scans the candidate tags in document order and returns the
// sections whose confidence reaches MinConfidence. Only returned
// elements receive an id; the scoring pass does not mutate the document
// so that every candidate is scored against the same tree.
func AllSections(doc *dom.Document) []Entry {
	if doc == nil || doc.Root() == nil {
		return nil
	}

	type scored struct {
		el   *html.Node
		info Info
	}
	var keep []scored
	for _, el := range doc.ByTag(CandidateTags...) {
		info := Classify(doc, el)
		if info.Confidence < MinConfidence {
			continue
		}
		keep = append(keep, scored{el, info})
	}

	out := make([]Entry, 0, len(keep))
	for _, s := range keep {
		s.info.ID = EnsureID(doc, s.el, s.info.Category)
		out = append(out, Entry{Info: s.info, XPath: locator.Compute(s.el)})
	}
	return out
}

// Find returns the entry whose id matches, for "link to section"
// lookups. The second result is false when no section carries id.
func Find(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Anchor returns the in-page href pointing at a section.
func (e Entry) Anchor() string {
	return "#" + e.ID
}
