package update

// Compact collapses runs of consecutive updates that target the same
// (xpath, type, property), keeping the last of each run. Slider drags
// emit one update per tick; only the final value matters.
//
// Updates are never reordered, and a run is broken by any update with a
// different key, so removal-before-set sequences such as ImageSwap keep
// their order.
func Compact(updates []ElementUpdate) []ElementUpdate {
	if len(updates) <= 1 {
		return updates
	}

	result := make([]ElementUpdate, 0, len(updates))
	for i := 0; i < len(updates); i++ {
		u := updates[i]
		j := i + 1
		for j < len(updates) && sameKey(updates[j], u) {
			u = updates[j]
			j++
		}
		result = append(result, u)
		i = j - 1
	}
	return result
}

func sameKey(a, b ElementUpdate) bool {
	return a.XPath == b.XPath && a.Type == b.Type && a.Property == b.Property
}
