package selection

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/clonepages/dom"
	"github.com/hazyhaar/clonepages/locator"
)

// SliderInfo describes a carousel widget found at or around the
// selected element.
type SliderInfo struct {
	Library    string `json:"library"`
	XPath      string `json:"xpath"` // root element of the slider
	SlideCount int    `json:"slideCount"`
	Autoplay   bool   `json:"autoplay"`
	IntervalMS int    `json:"intervalMs,omitempty"`
	Loop       bool   `json:"loop"`
	Arrows     bool   `json:"arrows"`
	Dots       bool   `json:"dots"`
}

// sliderLibraries maps class markers to the library they identify, most
// specific first.
var sliderLibraries = []struct{ marker, library string }{
	{"swiper", "swiper"},
	{"slick", "slick"},
	{"splide", "splide"},
	{"owl-carousel", "owl"},
	{"glide", "glide"},
	{"flickity", "flickity"},
	{"carousel", "bootstrap"},
	{"slider", "generic"},
}

const (
	slideSelector = `.swiper-slide, .slick-slide, .splide__slide, .owl-item, .glide__slide, .carousel-item, .slide`
	arrowSelector = `.swiper-button-next, .swiper-button-prev, .slick-arrow, .splide__arrow, .owl-nav, .glide__arrows, .carousel-control-next, .carousel-control-prev, [class*="arrow"]`
	dotSelector   = `.swiper-pagination, .slick-dots, .splide__pagination, .owl-dots, .glide__bullets, .carousel-indicators, [class*="dots"]`
)

var intervalAttrs = []string{"data-interval", "data-autoplay-speed", "data-autoplay-delay", "data-delay", "data-autoplay"}

// detectSlider looks for a slider root at el or among its ancestors.
func detectSlider(doc *dom.Document, el *html.Node) (SliderInfo, bool) {
	root, lib := sliderRoot(el)
	if root == nil {
		return SliderInfo{}, false
	}

	sel := goquery.NewDocumentFromNode(doc.Root()).FindNodes(root)
	info := SliderInfo{
		Library:    lib,
		XPath:      locator.Compute(root),
		SlideCount: sel.Find(slideSelector).Not(".swiper-slide-duplicate, .slick-cloned").Length(),
		Arrows:     sel.Find(arrowSelector).Length() > 0,
		Dots:       sel.Find(dotSelector).Length() > 0,
		Loop:       truthy(dom.Attr(root, "data-loop")) || truthy(dom.Attr(root, "data-wrap")),
	}
	if info.SlideCount == 0 {
		info.SlideCount = countSlides(root)
	}

	if v, ok := sel.Attr("data-ride"); ok && v == "carousel" {
		info.Autoplay = true
	}
	if v, ok := sel.Attr("data-autoplay"); ok && v != "false" {
		info.Autoplay = true
	}
	if strings.Contains(strings.ToLower(dom.Attr(root, "class")), "autoplay") {
		info.Autoplay = true
	}
	for _, a := range intervalAttrs {
		if ms, err := strconv.Atoi(strings.TrimSpace(dom.Attr(root, a))); err == nil && ms > 0 {
			info.IntervalMS = ms
			info.Autoplay = true
			break
		}
	}
	return info, true
}

func sliderRoot(el *html.Node) (*html.Node, string) {
	for n := el; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if dom.IsElement(n, "body", "html") {
			break
		}
		cls := strings.ToLower(dom.Attr(n, "class"))
		if cls == "" {
			continue
		}
		for _, l := range sliderLibraries {
			if containsClassToken(cls, l.marker) {
				return n, l.library
			}
		}
	}
	return nil, ""
}

// containsClassToken matches a class list token equal to marker or
// starting with marker followed by a root suffix (swiper-container),
// never inner parts such as swiper-slide or swiper-wrapper.
func containsClassToken(classes, marker string) bool {
	for _, c := range strings.Fields(classes) {
		if c == marker {
			return true
		}
		if rest, ok := strings.CutPrefix(c, marker+"-"); ok {
			switch rest {
			case "container", "initialized", "root", "slider":
				return true
			}
		}
	}
	return false
}

// countSlides falls back to the element children of the first child
// wrapper, or of root itself.
func countSlides(root *html.Node) int {
	kids := dom.ChildElements(root)
	if len(kids) == 1 {
		kids = dom.ChildElements(kids[0])
	}
	return len(kids)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
