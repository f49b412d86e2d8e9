package update

import (
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/clonepages/dom"
	"github.com/hazyhaar/clonepages/locator"
)

func mustDoc(t *testing.T, s string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestImageSwap_RemovesSrcsetFirst(t *testing.T) {
	doc := mustDoc(t, `<body><img src="old.png" srcset="old.png 1x, old@2x.png 2x" sizes="100vw" alt="old"></body>`)
	xp := locator.Compute(doc.ByTag("img")[0])

	steps := ImageSwap(xp, "new.png", "new")
	if steps[0].Property != "srcset" || steps[1].Property != "sizes" || steps[2].Property != "src" {
		t.Fatalf("unexpected order: %+v", steps)
	}
	for _, u := range steps {
		if err := Apply(doc, u); err != nil {
			t.Fatalf("Apply(%+v): %v", u, err)
		}
	}

	img := locator.MustResolve(doc, xp)
	if dom.HasAttr(img, "srcset") || dom.HasAttr(img, "sizes") {
		t.Error("srcset/sizes survived the swap")
	}
	if got := dom.Attr(img, "src"); got != "new.png" {
		t.Errorf("src: got %q", got)
	}
	if got := dom.Attr(img, "alt"); got != "new" {
		t.Errorf("alt: got %q", got)
	}
}

func TestApply_StaleLocatorIsNoop(t *testing.T) {
	before := mustDoc(t, `<body><section><p>a</p><p>b</p></section></body>`)
	xp := locator.Compute(before.ByTag("p")[1])

	after := mustDoc(t, `<body><main><h1>new page</h1></main></body>`)
	want, _ := after.Render()

	err := Apply(after, Content(xp, "changed"))
	if !errors.Is(err, ErrLocatorMiss) {
		t.Fatalf("got %v, want ErrLocatorMiss", err)
	}
	if !errors.Is(err, locator.ErrNotFound) {
		t.Error("miss should also wrap locator.ErrNotFound")
	}
	if got, _ := after.Render(); got != want {
		t.Error("document changed after a miss")
	}
	if OutcomeOf(err) != OutcomeMiss {
		t.Errorf("outcome: got %s", OutcomeOf(err))
	}
}

func TestApply_LinkMetadata(t *testing.T) {
	tests := []struct {
		name       string
		meta       map[string]string
		wantTarget string
		wantRel    string
		relPresent bool
	}{
		{"blank", map[string]string{"target": "_blank"}, "_blank", "noopener noreferrer", true},
		{"blank custom rel", map[string]string{"target": "_blank", "rel": "noopener"}, "_blank", "noopener", true},
		{"self", map[string]string{"target": "_self"}, "_self", "", false},
		{"no metadata", nil, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, `<body><a>x</a></body>`)
			a := doc.ByTag("a")[0]
			u := ElementUpdate{XPath: locator.Compute(a), Type: TypeLink, Property: "href", Value: "https://example.com", Metadata: tt.meta}
			if err := Apply(doc, u); err != nil {
				t.Fatal(err)
			}
			if got := dom.Attr(a, "href"); got != "https://example.com" {
				t.Errorf("href: got %q", got)
			}
			if got := dom.Attr(a, "target"); got != tt.wantTarget {
				t.Errorf("target: got %q, want %q", got, tt.wantTarget)
			}
			if dom.HasAttr(a, "rel") != tt.relPresent {
				t.Errorf("rel present: got %v, want %v", dom.HasAttr(a, "rel"), tt.relPresent)
			}
			if got := dom.Attr(a, "rel"); got != tt.wantRel {
				t.Errorf("rel: got %q, want %q", got, tt.wantRel)
			}
		})
	}
}

func TestApply_SelfDropsPreviousRel(t *testing.T) {
	doc := mustDoc(t, `<body><a href="/a" target="_blank" rel="noopener noreferrer">x</a></body>`)
	a := doc.ByTag("a")[0]
	if err := Apply(doc, Link(locator.Compute(a), "/b", false)); err != nil {
		t.Fatal(err)
	}
	if dom.HasAttr(a, "rel") {
		t.Error("rel should be removed for _self")
	}
}

func TestApply_RemoveLink(t *testing.T) {
	doc := mustDoc(t, `<body><a href="/a" target="_blank" rel="noopener">x</a></body>`)
	a := doc.ByTag("a")[0]
	if err := Apply(doc, RemoveLink(locator.Compute(a))); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"href", "target", "rel"} {
		if dom.HasAttr(a, k) {
			t.Errorf("%s still present", k)
		}
	}
	if len(doc.ByTag("a")) != 1 {
		t.Error("anchor must stay in place")
	}
}

func TestApply_Style(t *testing.T) {
	doc := mustDoc(t, `<body><div style="color: red; animation: spin 2s; animation-delay: 1s"></div></body>`)
	div := doc.ByTag("div")[0]
	xp := locator.Compute(div)

	steps := []ElementUpdate{
		Style(xp, "fontSize", "18px"),
		Style(xp, "background-color", "#fff !important"),
		Style(xp, "animation", "none"),
		Style(xp, "color", ""),
	}
	for _, u := range steps {
		if err := Apply(doc, u); err != nil {
			t.Fatalf("Apply(%+v): %v", u, err)
		}
	}

	got := dom.Styles(div)
	if got["font-size"] != "18px" {
		t.Errorf("font-size: %v", got)
	}
	for _, k := range []string{"animation", "animation-delay", "color"} {
		if _, ok := got[k]; ok {
			t.Errorf("%s should be cleared: %v", k, got)
		}
	}
	if !containsImportant(dom.ParseStyle(dom.Attr(div, "style")), "background-color") {
		t.Error("!important lost")
	}
}

func TestApply_CustomPropertyKeepsCase(t *testing.T) {
	doc := mustDoc(t, `<body><div style="--brandColor: blue; COLOR: var(--brandColor)"></div></body>`)
	div := doc.ByTag("div")[0]

	if err := Apply(doc, Style("/html/body/div", "--brandColor", "red")); err != nil {
		t.Fatal(err)
	}
	got := dom.Attr(div, "style")
	if got != "--brandColor: red; color: var(--brandColor);" {
		t.Errorf("style = %q", got)
	}
	if v := dom.StyleProperty(div, "--brandColor"); v != "red" {
		t.Errorf("--brandColor = %q", v)
	}
	if v := dom.StyleProperty(div, "--brandcolor"); v != "" {
		t.Errorf("--brandcolor matched case-insensitively: %q", v)
	}

	if err := Apply(doc, Style("/html/body/div", "--brandColor", "")); err != nil {
		t.Fatal(err)
	}
	if got := dom.Attr(div, "style"); got != "color: var(--brandColor);" {
		t.Errorf("after removal style = %q", got)
	}
}

func containsImportant(decls []dom.Decl, prop string) bool {
	for _, d := range decls {
		if d.Property == prop {
			return d.Important
		}
	}
	return false
}

func TestApply_CompositeSetDropsLonghands(t *testing.T) {
	doc := mustDoc(t, `<body><div style="transition-duration: 3s; border-top-color: red; border-radius: 4px"></div></body>`)
	div := doc.ByTag("div")[0]
	xp := locator.Compute(div)

	if err := Apply(doc, Style(xp, "transition", "all 0.2s ease")); err != nil {
		t.Fatal(err)
	}
	for _, u := range BorderUpdates(xp, Border{}) {
		if err := Apply(doc, u); err != nil {
			t.Fatal(err)
		}
	}
	got := dom.Styles(div)
	if _, ok := got["transition-duration"]; ok {
		t.Error("stale transition longhand kept")
	}
	if got["transition"] != "all 0.2s ease" {
		t.Errorf("transition: %v", got)
	}
	if _, ok := got["border-top-color"]; ok {
		t.Error("border longhand survived border: none")
	}
	if _, ok := got["border-radius"]; ok {
		t.Error("zero radius should clear border-radius")
	}
}

func TestApply_Content(t *testing.T) {
	doc := mustDoc(t, `<body><h1>Old <em>title</em></h1></body>`)
	h1 := doc.ByTag("h1")[0]
	if err := Apply(doc, Content(locator.Compute(h1), "<b>New</b>")); err != nil {
		t.Fatal(err)
	}
	if got := dom.TextContent(h1); got != "<b>New</b>" {
		t.Errorf("text: got %q", got)
	}
	if len(doc.ByTag("b")) != 0 {
		t.Error("content must not be parsed as HTML")
	}
}

func TestValidate_Rejections(t *testing.T) {
	xp := "/html/body/a"
	tests := []struct {
		name string
		u    ElementUpdate
		want error
	}{
		{"unknown type", ElementUpdate{XPath: xp, Type: "teleport", Property: "x"}, ErrUnrecognizedType},
		{"empty type", ElementUpdate{XPath: xp, Property: "x"}, ErrUnrecognizedType},
		{"event handler", Attribute(xp, "onclick", "alert(1)"), ErrInvalidProperty},
		{"event handler upper", Attribute(xp, "OnLoad", "x"), ErrInvalidProperty},
		{"attr with space", Attribute(xp, "data x", "1"), ErrInvalidProperty},
		{"script href attr", Attribute(xp, "href", " JavaScript:alert(1)"), ErrInvalidProperty},
		{"script link", ElementUpdate{XPath: xp, Type: TypeLink, Value: "java\tscript:x"}, ErrInvalidProperty},
		{"empty link", ElementUpdate{XPath: xp, Type: TypeLink, Value: ""}, ErrInvalidProperty},
		{"content property", ElementUpdate{XPath: xp, Type: TypeContent, Property: "innerHTML", Value: "x"}, ErrInvalidProperty},
		{"style injection", Style(xp, "color", "red; position: fixed"), ErrInvalidProperty},
		{"style expression", Style(xp, "width", "expression(alert(1))"), ErrInvalidProperty},
		{"style bad name", Style(xp, "col or", "red"), ErrInvalidProperty},
		{"style attr expression", Attribute(xp, "style", "color: red; width: expression(alert(1))"), ErrInvalidProperty},
		{"style attr script url", Attribute(xp, "STYLE", "background: url(javascript:alert(1))"), ErrInvalidProperty},
		{"style attr markup", Attribute(xp, "style", "color: red</style><script>"), ErrInvalidProperty},
		{"srcdoc", Attribute(xp, "srcdoc", "<script>alert(1)</script>"), ErrInvalidProperty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.u.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	xp := "/html/body/a"
	ok := []ElementUpdate{
		Style(xp, "WebkitTransform", "rotate(3deg)"),
		Style(xp, "--brand", "#123456"),
		Style(xp, "background-image", `url("data:image/png;base64,AAAA")`),
		Attribute(xp, "data-x", ""),
		Attribute(xp, "style", `color: red; background: url("data:image/png;base64,AAAA")`),
		Content(xp, "hi"),
		Link(xp, "#pricing", false),
		RemoveLink(xp),
	}
	for _, u := range ok {
		if err := u.Validate(); err != nil {
			t.Errorf("Validate(%+v): %v", u, err)
		}
	}
}

func TestApply_RejectedNotAttempted(t *testing.T) {
	doc := mustDoc(t, `<body><a href="/">x</a></body>`)
	a := doc.ByTag("a")[0]
	err := Apply(doc, Attribute(locator.Compute(a), "onmouseover", "steal()"))
	if OutcomeOf(err) != OutcomeRejected {
		t.Fatalf("got %v", err)
	}
	if dom.HasAttr(a, "onmouseover") {
		t.Error("rejected update was applied")
	}
}

func TestCSSName(t *testing.T) {
	tests := map[string]string{
		"fontSize":        "font-size",
		"font-size":       "font-size",
		"WebkitTransform": "-webkit-transform",
		"msTransform":     "-ms-transform",
		"cssFloat":        "float",
		"--Brand-Color":   "--Brand-Color",
	}
	for in, want := range tests {
		got, err := cssName(in)
		if err != nil || got != want {
			t.Errorf("cssName(%q): got %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestComposite_ZeroStateIsNone(t *testing.T) {
	if got := BoxShadow("/x").Value; got != "none" {
		t.Errorf("BoxShadow(): %q", got)
	}
	if got := (FilterState{}).CSS(); got != "none" {
		t.Errorf("FilterState{}: %q", got)
	}
	if got := (Animation{}).CSS(); got != "none" {
		t.Errorf("Animation{}: %q", got)
	}
	if got := (Border{Width: 2}).CSS(); got != "none" {
		t.Errorf("Border without style: %q", got)
	}
}

func TestComposite_Render(t *testing.T) {
	bs := BoxShadow("/x", Shadow{X: 0, Y: 4, Blur: 8, Color: "rgba(0,0,0,0.2)"}, Shadow{Inset: true, Blur: 2, Color: "#000"})
	if want := "0 4px 8px 0 rgba(0,0,0,0.2), inset 0 0 2px 0 #000"; bs.Value != want {
		t.Errorf("box-shadow: got %q, want %q", bs.Value, want)
	}

	f := FilterState{Blur: 2, Brightness: 120, HueRotate: 90}
	if want := "blur(2px) brightness(120%) hue-rotate(90deg)"; f.CSS() != want {
		t.Errorf("filter: got %q, want %q", f.CSS(), want)
	}

	a := Animation{Name: "fade", Duration: 1500 * time.Millisecond, Iterations: -1, FillMode: "both"}
	if want := "fade 1.5s ease 0s infinite both"; a.CSS() != want {
		t.Errorf("animation: got %q, want %q", a.CSS(), want)
	}

	b := Border{Width: 1, Style: "solid", Color: "#ccc"}
	if want := "1px solid #ccc"; b.CSS() != want {
		t.Errorf("border: got %q, want %q", b.CSS(), want)
	}
}

func TestCompact(t *testing.T) {
	in := []ElementUpdate{
		Style("/a", "opacity", "0.1"),
		Style("/a", "opacity", "0.2"),
		Style("/a", "opacity", "0.3"),
		Attribute("/a", "srcset", ""),
		Attribute("/a", "src", "x.png"),
		Style("/a", "opacity", "0.4"),
		Style("/b", "opacity", "0.5"),
	}
	got := Compact(in)
	want := []string{"0.3", "", "x.png", "0.4", "0.5"}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Value != w {
			t.Errorf("[%d] value %q, want %q", i, got[i].Value, w)
		}
	}
}

func TestApplyAll_ContinuesAfterMiss(t *testing.T) {
	doc := mustDoc(t, `<body><p>a</p></body>`)
	res := ApplyAll(doc, []ElementUpdate{
		Content("/html/body/div", "x"),
		{XPath: "/html/body/p", Type: "bogus"},
		Content("/html/body/p", "b"),
	})
	want := []Outcome{OutcomeMiss, OutcomeRejected, OutcomeApplied}
	for i, w := range want {
		if res[i].Outcome != w {
			t.Errorf("[%d] got %s, want %s", i, res[i].Outcome, w)
		}
	}
	if dom.TextContent(doc.ByTag("p")[0]) != "b" {
		t.Error("last update not applied")
	}
}
