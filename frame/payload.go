package frame

import (
	"github.com/hazyhaar/clonepages/section"
	"github.com/hazyhaar/clonepages/selection"
)

// Payloads carried by the frame protocol. LOAD_URL and CLONE_ERROR use
// the envelope url and error fields and carry no payload.

// Ready is the FRAME_READY payload.
type Ready struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// HTMLResult is the HTML_RESULT payload.
type HTMLResult struct {
	HTML string `json:"html"`
}

// SectionsResult is the SECTIONS_RESULT payload.
type SectionsResult struct {
	Sections []section.Entry `json:"sections"`
}

// SelectRequest is the SELECT_ELEMENT payload.
type SelectRequest struct {
	XPath       string `json:"xpath"`
	SkipSection bool   `json:"skip_section,omitempty"`
}

// SelectResult is the ELEMENT_SELECTED payload. A failed selection
// carries the reason in the envelope error field and no element. Missed
// is set when the xpath did not resolve.
type SelectResult struct {
	Element *selection.SelectedElement `json:"element,omitempty"`
	Missed  bool                       `json:"missed,omitempty"`
}
