package update

// Style builds a style update.
func Style(xpath, property, value string) ElementUpdate {
	return ElementUpdate{XPath: xpath, Type: TypeStyle, Property: property, Value: value}
}

// Attribute builds an attribute update. An empty value removes the
// attribute.
func Attribute(xpath, name, value string) ElementUpdate {
	return ElementUpdate{XPath: xpath, Type: TypeAttribute, Property: name, Value: value}
}

// Content builds a text content update.
func Content(xpath, text string) ElementUpdate {
	return ElementUpdate{XPath: xpath, Type: TypeContent, Property: "textContent", Value: text}
}

// ImageSwap replaces the image of an <img>. srcset and sizes are removed
// before src is set: a browser would otherwise keep picking a candidate
// from the stale srcset. The returned updates must be sent in order.
func ImageSwap(xpath, src, alt string) []ElementUpdate {
	return []ElementUpdate{
		Attribute(xpath, "srcset", ""),
		Attribute(xpath, "sizes", ""),
		Attribute(xpath, "src", src),
		Attribute(xpath, "alt", alt),
	}
}

// Link points an element at href. newTab selects target=_blank with
// rel=noopener noreferrer; otherwise target=_self and rel is dropped.
func Link(xpath, href string, newTab bool) ElementUpdate {
	target := "_self"
	if newTab {
		target = "_blank"
	}
	return ElementUpdate{
		XPath:    xpath,
		Type:     TypeLink,
		Property: "href",
		Value:    href,
		Metadata: map[string]string{"target": target},
	}
}

// SectionLink points an element at an in-page section anchor.
func SectionLink(xpath, sectionID string) ElementUpdate {
	return Link(xpath, "#"+sectionID, false)
}

// RemoveLink clears href, target and rel. The element itself stays.
func RemoveLink(xpath string) ElementUpdate {
	return ElementUpdate{XPath: xpath, Type: TypeRemoveLink, Property: "href"}
}
