package fetcher

import (
	"bytes"
	"unicode"

	"golang.org/x/net/html"
)

// IsSufficient reports whether the raw HTML already carries the page
// content, i.e. a browser render is not needed.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}

	textLen, markupLen := textMarkupRatio(body)
	total := textLen + markupLen
	if total == 0 {
		return false
	}
	// Under 10% text is typical of an app shell.
	if float64(textLen)/float64(total) < 0.10 {
		return false
	}
	if textLen < 200 {
		return false
	}

	lower := bytes.ToLower(body)
	for _, ind := range spaIndicators {
		if bytes.Contains(lower, []byte(ind)) {
			return false
		}
	}
	return true
}

var spaIndicators = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<div id="__nuxt"></div>`,
	`<noscript>you need to enable javascript`,
	`<noscript>enable javascript`,
}

// textMarkupRatio counts visible non-space text bytes against everything
// else. Script and style bodies count as markup.
func textMarkupRatio(body []byte) (text, markup int) {
	z := html.NewTokenizer(bytes.NewReader(body))
	skip := 0
	for {
		tt := z.Next()
		raw := len(z.Raw())
		switch tt {
		case html.ErrorToken:
			// io.EOF or a tokenizer error: count what was seen.
			return text, markup
		case html.StartTagToken:
			markup += raw
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case html.EndTagToken:
			markup += raw
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				markup += raw
				continue
			}
			for _, r := range string(z.Text()) {
				if !unicode.IsSpace(r) {
					text++
				}
			}
		default:
			markup += raw
		}
	}
}

func isRawText(name []byte) bool {
	s := string(name)
	return s == "script" || s == "style" || s == "noscript" || s == "template"
}
