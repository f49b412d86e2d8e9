package update

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Composite values are always rendered from the full sub-state held by
// the editor. A zero state renders "none", which clears the property.

// Shadow is one box-shadow or text-shadow layer, in pixels.
type Shadow struct {
	X, Y   int
	Blur   int
	Spread int // box-shadow only
	Color  string
	Inset  bool // box-shadow only
}

func (s Shadow) box() string {
	var parts []string
	if s.Inset {
		parts = append(parts, "inset")
	}
	parts = append(parts, px(s.X), px(s.Y), px(s.Blur), px(s.Spread))
	if s.Color != "" {
		parts = append(parts, s.Color)
	}
	return strings.Join(parts, " ")
}

func (s Shadow) text() string {
	parts := []string{px(s.X), px(s.Y), px(s.Blur)}
	if s.Color != "" {
		parts = append(parts, s.Color)
	}
	return strings.Join(parts, " ")
}

// BoxShadow renders every layer into one box-shadow update.
func BoxShadow(xpath string, layers ...Shadow) ElementUpdate {
	return Style(xpath, "box-shadow", joinLayers(layers, Shadow.box))
}

// TextShadow renders every layer into one text-shadow update.
func TextShadow(xpath string, layers ...Shadow) ElementUpdate {
	return Style(xpath, "text-shadow", joinLayers(layers, Shadow.text))
}

func joinLayers(layers []Shadow, render func(Shadow) string) string {
	if len(layers) == 0 {
		return "none"
	}
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = render(l)
	}
	return strings.Join(out, ", ")
}

// FilterState holds the editor's filter sliders. A zero field leaves its
// function out of the rendered value.
type FilterState struct {
	Blur       float64 // px
	Brightness float64 // %
	Contrast   float64 // %
	Saturate   float64 // %
	Grayscale  float64 // %
	Sepia      float64 // %
	HueRotate  float64 // deg
	Invert     float64 // %
}

// CSS renders the filter value in a fixed function order.
func (f FilterState) CSS() string {
	var parts []string
	add := func(name string, v float64, unit string) {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%s(%s%s)", name, num(v), unit))
		}
	}
	add("blur", f.Blur, "px")
	add("brightness", f.Brightness, "%")
	add("contrast", f.Contrast, "%")
	add("saturate", f.Saturate, "%")
	add("grayscale", f.Grayscale, "%")
	add("sepia", f.Sepia, "%")
	add("hue-rotate", f.HueRotate, "deg")
	add("invert", f.Invert, "%")
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// Filter builds the filter update from the full state.
func Filter(xpath string, f FilterState) ElementUpdate {
	return Style(xpath, "filter", f.CSS())
}

// Animation is a single CSS animation.
type Animation struct {
	Name       string
	Duration   time.Duration
	Timing     string // default ease
	Delay      time.Duration
	Iterations int // 0 means once, negative means infinite
	Direction  string
	FillMode   string
}

// CSS renders the animation shorthand.
func (a Animation) CSS() string {
	if a.Name == "" || a.Name == "none" {
		return "none"
	}
	timing := a.Timing
	if timing == "" {
		timing = "ease"
	}
	iter := "1"
	switch {
	case a.Iterations < 0:
		iter = "infinite"
	case a.Iterations > 0:
		iter = strconv.Itoa(a.Iterations)
	}
	parts := []string{a.Name, seconds(a.Duration), timing, seconds(a.Delay), iter}
	if a.Direction != "" {
		parts = append(parts, a.Direction)
	}
	if a.FillMode != "" {
		parts = append(parts, a.FillMode)
	}
	return strings.Join(parts, " ")
}

// Animate builds the animation update.
func Animate(xpath string, a Animation) ElementUpdate {
	return Style(xpath, "animation", a.CSS())
}

// Border is the border editor state.
type Border struct {
	Width  int // px
	Style  string
	Color  string
	Radius int // px
}

// CSS renders the border shorthand.
func (b Border) CSS() string {
	if b.Width <= 0 || b.Style == "" || b.Style == "none" {
		return "none"
	}
	parts := []string{px(b.Width), b.Style}
	if b.Color != "" {
		parts = append(parts, b.Color)
	}
	return strings.Join(parts, " ")
}

// BorderUpdates returns the border and border-radius updates. A zero
// radius clears border-radius.
func BorderUpdates(xpath string, b Border) []ElementUpdate {
	radius := ""
	if b.Radius > 0 {
		radius = px(b.Radius)
	}
	return []ElementUpdate{
		Style(xpath, "border", b.CSS()),
		Style(xpath, "border-radius", radius),
	}
}

func px(v int) string {
	if v == 0 {
		return "0"
	}
	return strconv.Itoa(v) + "px"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func seconds(d time.Duration) string {
	return num(d.Seconds()) + "s"
}
