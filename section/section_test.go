package section

import (
	"testing"

	"github.com/hazyhaar/clonepages/dom"
)

func mustDoc(t *testing.T, s string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestDetect_IdempotentID(t *testing.T) {
	doc := mustDoc(t, `<body><p>intro</p><section class="pricing-table"><p>R$ 99</p></section><p>a</p><p>b</p></body>`)
	el := doc.ByTag("section")[0]

	first := Detect(doc, el)
	if first.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	second := Detect(doc, el)
	if second.ID != first.ID {
		t.Errorf("second call changed id: %q -> %q", first.ID, second.ID)
	}
	if got := dom.Attr(el, "id"); got != first.ID {
		t.Errorf("attribute: got %q, want %q", got, first.ID)
	}
	if len(doc.ByID(first.ID)) != 1 {
		t.Error("id must be unique in the document")
	}
}

func TestDetect_CollisionSuffix(t *testing.T) {
	doc := mustDoc(t, `<body><section class="hero"></section><section class="hero"></section></body>`)
	secs := doc.ByTag("section")

	a := Detect(doc, secs[0])
	b := Detect(doc, secs[1])
	if a.Category != Hero || b.Category != Hero {
		t.Fatalf("categories: got %s and %s, want hero", a.Category, b.Category)
	}
	if a.ID != "hero" {
		t.Errorf("first id: got %q, want hero", a.ID)
	}
	if b.ID != "hero-1" {
		t.Errorf("second id: got %q, want hero-1", b.ID)
	}
}

func TestDetect_CollisionSkipsTakenSuffix(t *testing.T) {
	doc := mustDoc(t, `<body><div id="hero"></div><div id="hero-1"></div><main><section class="hero x"></section></main><p>a</p><p>b</p></body>`)
	info := Detect(doc, doc.ByTag("section")[0])
	if info.ID != "hero-2" {
		t.Errorf("got %q, want hero-2", info.ID)
	}
}

func TestDetect_KeepsExistingID(t *testing.T) {
	doc := mustDoc(t, `<body><footer id="site-bottom"></footer></body>`)
	info := Detect(doc, doc.ByTag("footer")[0])
	if info.ID != "site-bottom" {
		t.Errorf("got %q, want site-bottom", info.ID)
	}
}

func TestDetect_FooterTagDominance(t *testing.T) {
	doc := mustDoc(t, `<body><main><footer></footer></main></body>`)
	info := Detect(doc, doc.ByTag("footer")[0])
	if info.Category != Footer {
		t.Fatalf("category: got %s, want footer", info.Category)
	}
	if info.Confidence < 50 {
		t.Errorf("confidence: got %d, want >= 50", info.Confidence)
	}
	if info.Name != "Rodapé" {
		t.Errorf("name: got %q", info.Name)
	}
}

func TestDetect_DefaultOther(t *testing.T) {
	doc := mustDoc(t, `<body><main><div></div></main></body>`)
	div := doc.ByTag("div")[0]

	info := Detect(doc, div)
	if info.Category != Other || info.Confidence != 0 {
		t.Errorf("got %s/%d, want other/0", info.Category, info.Confidence)
	}
}

func TestAllSections_ExcludesLowConfidence(t *testing.T) {
	doc := mustDoc(t, `<body><p>x</p><main><aside></aside></main><p>y</p><p>z</p></body>`)
	for _, e := range AllSections(doc) {
		if e.Confidence < MinConfidence {
			t.Errorf("entry below threshold returned: %+v", e)
		}
	}
	if dom.HasAttr(doc.ByTag("aside")[0], "id") {
		t.Error("filtered candidate must not receive an id")
	}
}

func TestAllSections_EndToEnd(t *testing.T) {
	doc := mustDoc(t, `<body><header id="h"><a href="/">Home</a></header><section class="hero-banner"><h1>Title</h1></section><footer><p>bye</p></footer></body>`)

	got := AllSections(doc)
	if len(got) != 3 {
		t.Fatalf("entries: got %d, want 3: %+v", len(got), got)
	}

	want := []struct {
		cat   Category
		id    string
		min   int
		xpath string
	}{
		{Header, "h", 50, "/html/body/header"},
		{Hero, "hero", 70, "/html/body/section"},
		{Footer, "footer", 50, "/html/body/footer"},
	}
	for i, w := range want {
		e := got[i]
		if e.Category != w.cat || e.ID != w.id {
			t.Errorf("[%d] got %s/%q, want %s/%q", i, e.Category, e.ID, w.cat, w.id)
		}
		if e.Confidence < w.min {
			t.Errorf("[%d] confidence %d < %d", i, e.Confidence, w.min)
		}
		if e.XPath != w.xpath {
			t.Errorf("[%d] xpath %q, want %q", i, e.XPath, w.xpath)
		}
	}

	if e, ok := Find(got, "hero"); !ok || e.Anchor() != "#hero" {
		t.Errorf("Find(hero): %+v %v", e, ok)
	}
}

func TestScore_Signals(t *testing.T) {
	tests := []struct {
		name string
		html string
		tag  string
		want Category
	}{
		{"features cards", `<body><p>a</p><article class="x"><div class="card"></div><div class="card"></div><div class="card-item"></div></article><p>b</p><p>c</p></body>`, "article", Features},
		{"testimonials stars", `<body><p>a</p><section class="depoimentos"><span class="star"></span></section><p>b</p><p>c</p></body>`, "section", Testimonials},
		{"contact form", `<body><p>a</p><section id="contato"><form></form></section><p>b</p><p>c</p></body>`, "section", Contact},
		{"cta button", `<body><p>a</p><aside class="cta"><button>Go</button></aside><p>b</p><p>c</p></body>`, "aside", CTA},
		{"services keyword", `<body><p>a</p><article class="nossos-servicos"></article><p>b</p><p>c</p></body>`, "article", Services},
		{"nav is header", `<body><p>a</p><nav></nav><p>b</p><p>c</p></body>`, "nav", Header},
		{"about text", `<body><p>a</p><article><h2>Sobre nós</h2></article><p>b</p><p>c</p></body>`, "article", About},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, tt.html)
			el := doc.ByTag(tt.tag)[0]
			cat, _ := Score(doc, el).Best()
			if cat != tt.want {
				t.Errorf("got %s, want %s (scores %v)", cat, tt.want, Score(doc, el))
			}
		})
	}
}

func TestScore_NoSideEffects(t *testing.T) {
	doc := mustDoc(t, `<body><section class="hero"></section></body>`)
	before, _ := doc.Render()
	Score(doc, doc.ByTag("section")[0])
	after, _ := doc.Render()
	if before != after {
		t.Error("Score mutated the document")
	}
}

func TestBest_TieBreakPrecedence(t *testing.T) {
	tests := []struct {
		scores Scores
		want   Category
	}{
		{Scores{Footer: 40, Header: 40}, Header},
		{Scores{Pricing: 60, Hero: 60, Contact: 60}, Hero},
		{Scores{CTA: 20, Contact: 20}, CTA},
		{Scores{}, Other},
		{Scores{Footer: 1}, Footer},
	}
	for _, tt := range tests {
		if got, _ := tt.scores.Best(); got != tt.want {
			t.Errorf("Best(%v): got %s, want %s", tt.scores, got, tt.want)
		}
	}
}

func TestCategory_Label(t *testing.T) {
	if Category("bogus").Valid() {
		t.Error("bogus category reported valid")
	}
	if Category("bogus").Label() != Other.Label() {
		t.Error("unknown category should fall back to the other label")
	}
}
