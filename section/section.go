// Package section classifies container elements of a cloned page into
// semantic roles (header, hero, pricing, ...) and guarantees each
// classified element a durable, document-unique id.
//
// Scoring is additive and deterministic: each category accumulates fixed
// weights from independent signals (tag, id/class keywords, position in
// the body, content shape). The highest score wins; ties go to the
// earliest category in Precedence.
package section

// Category is the semantic role of a page region.
type Category string

const (
	Header       Category = "header"
	Hero         Category = "hero"
	Features     Category = "features"
	About        Category = "about"
	Services     Category = "services"
	Testimonials Category = "testimonials"
	Pricing      Category = "pricing"
	CTA          Category = "cta"
	Contact      Category = "contact"
	Footer       Category = "footer"
	Other        Category = "other"
)

// Precedence is the tie-break order. When two categories reach the same
// maximum score, the one listed first wins. Other is not listed: it only
// wins when every category scores zero.
var Precedence = [...]Category{
	Header, Hero, Features, About, Services,
	Testimonials, Pricing, CTA, Contact, Footer,
}

// labels maps categories to the human label shown in the editor.
var labels = map[Category]string{
	Header:       "Cabeçalho",
	Hero:         "Hero / Banner",
	Features:     "Recursos",
	About:        "Sobre",
	Services:     "Serviços",
	Testimonials: "Depoimentos",
	Pricing:      "Preços",
	CTA:          "Chamada para Ação",
	Contact:      "Contato",
	Footer:       "Rodapé",
	Other:        "Seção",
}

// Label returns the human label of a category.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return labels[Other]
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// MinConfidence is the threshold for AllSections.
const MinConfidence = 20

// CandidateTags are the elements AllSections considers.
var CandidateTags = []string{"header", "footer", "section", "nav", "aside", "main", "article"}

// Info is the classification result for one element.
//
// Confidence is the raw winning score. Weights are additive and several
// signals can fire for one category, so values above 100 are possible;
// it is a ranking score, not a percentage.
type Info struct {
	Category   Category `json:"category"`
	Name       string   `json:"name"`
	ID         string   `json:"id"`
	Confidence int      `json:"confidence"`
}

// Entry is one navigable section of a document.
type Entry struct {
	Info
	XPath string `json:"xpath"`
}

// Scores holds the accumulated score of every category.
type Scores map[Category]int

// Best returns the winning category and its score.
func (s Scores) Best() (Category, int) {
	best, bestScore := Other, 0
	for _, c := range Precedence {
		if v := s[c]; v > bestScore {
			best, bestScore = c, v
		}
	}
	return best, bestScore
}
