package section

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/clonepages/dom"
)

// Signal weights.
const (
	weightTag        = 50
	weightNavTag     = 30
	weightKeyword    = 40
	weightKeywordCTA = 30
	weightFirstBlock = 20
	weightH1         = 20
	weightFirstSect  = 30
	weightCards      = 30
	weightStars      = 30
	weightForm       = 30
	weightButton     = 20
	weightCurrency   = 20
	weightAboutText  = 20
	weightNearEnd    = 30
)

// keywords are matched as substrings of the lowercase "id class" string.
// A category's keyword signal fires at most once per element.
var keywords = map[Category][]string{
	Header:       {"header", "navbar", "topbar", "top-bar", "menu-principal"},
	Hero:         {"hero", "banner", "jumbotron", "splash", "masthead"},
	Features:     {"feature", "recursos", "benefit", "beneficio", "vantagens"},
	About:        {"about", "sobre", "quem-somos", "who-we-are"},
	Services:     {"service", "servico", "serviço", "solucoes", "solutions"},
	Testimonials: {"testimonial", "depoimento", "review", "avaliac"},
	Pricing:      {"pricing", "price", "preco", "preço", "plano", "plans"},
	CTA:          {"cta", "call-to-action", "signup", "subscribe", "inscreva"},
	Contact:      {"contact", "contato", "fale-conosco"},
	Footer:       {"footer", "rodape", "rodapé", "copyright"},
}

var (
	cardClass = regexp.MustCompile(`card|box|item`)
	starClass = regexp.MustCompile(`star|rating|estrela`)
)

// candidate caches the per-element views the signals share.
type candidate struct {
	doc     *dom.Document
	el      *html.Node
	sel     *goquery.Selection
	idClass string
	text    string
}

func newCandidate(doc *dom.Document, el *html.Node) *candidate {
	sel := goquery.NewDocumentFromNode(el).Selection
	return &candidate{
		doc:     doc,
		el:      el,
		sel:     sel,
		idClass: strings.ToLower(dom.Attr(el, "id") + " " + dom.Attr(el, "class")),
		text:    strings.ToLower(sel.Text()),
	}
}

type signal struct {
	category Category
	weight   int
	match    func(c *candidate) bool
}

// signals is the fixed signal table. Keyword signals are appended by
// init so each category's list lives in one place.
var signals = []signal{
	{Header, weightTag, tagIs("header")},
	{Header, weightNavTag, tagIs("nav")},
	{Header, weightFirstBlock, isFirstBlockInBody},
	{Hero, weightH1, has("h1")},
	{Hero, weightFirstSect, isFirstSection},
	{Features, weightCards, descendantClassCount(cardClass, 3)},
	{About, weightAboutText, textContains("sobre", "about")},
	{Testimonials, weightStars, hasStars},
	{Pricing, weightCurrency, textContains("r$", "$")},
	{CTA, weightButton, has("button")},
	{Contact, weightForm, has("form")},
	{Footer, weightTag, tagIs("footer")},
	{Footer, weightNearEnd, isNearEndOfBody},
}

func init() {
	for _, c := range Precedence {
		w := weightKeyword
		if c == CTA {
			w = weightKeywordCTA
		}
		signals = append(signals, signal{c, w, keywordMatch(keywords[c])})
	}
}

func tagIs(tag string) func(*candidate) bool {
	return func(c *candidate) bool { return c.el.Data == tag }
}

func has(selector string) func(*candidate) bool {
	return func(c *candidate) bool { return c.sel.Find(selector).Length() > 0 }
}

func keywordMatch(words []string) func(*candidate) bool {
	return func(c *candidate) bool {
		for _, w := range words {
			if strings.Contains(c.idClass, w) {
				return true
			}
		}
		return false
	}
}

func textContains(words ...string) func(*candidate) bool {
	return func(c *candidate) bool {
		for _, w := range words {
			if strings.Contains(c.text, w) {
				return true
			}
		}
		return false
	}
}

func descendantClassCount(re *regexp.Regexp, min int) func(*candidate) bool {
	return func(c *candidate) bool {
		n := c.sel.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			cls, _ := s.Attr("class")
			return re.MatchString(strings.ToLower(cls))
		}).Length()
		return n >= min
	}
}

func hasStars(c *candidate) bool {
	if strings.Contains(c.text, "★") {
		return true
	}
	return descendantClassCount(starClass, 1)(c)
}

// isFirstBlockInBody: the element is the first header/section/div child
// of body.
func isFirstBlockInBody(c *candidate) bool {
	body := c.doc.Body()
	if body == nil || c.el.Parent != body {
		return false
	}
	for _, ch := range dom.ChildElements(body) {
		if dom.IsElement(ch, "header", "section", "div") {
			return ch == c.el
		}
	}
	return false
}

// isFirstSection: the element is the first <section> in document order.
func isFirstSection(c *candidate) bool {
	if c.el.Data != "section" {
		return false
	}
	sections := c.doc.ByTag("section")
	return len(sections) > 0 && sections[0] == c.el
}

// isNearEndOfBody: the element is the last or second-to-last element
// child of body. Scripts appended at the end of body are skipped.
func isNearEndOfBody(c *candidate) bool {
	body := c.doc.Body()
	if body == nil || c.el.Parent != body {
		return false
	}
	var kids []*html.Node
	for _, ch := range dom.ChildElements(body) {
		if dom.IsElement(ch, "script", "noscript", "style", "template", "link") {
			continue
		}
		kids = append(kids, ch)
	}
	n := len(kids)
	if n == 0 {
		return false
	}
	if kids[n-1] == c.el {
		return true
	}
	return n >= 2 && kids[n-2] == c.el
}
