package phase

import "strings"

// PreviousPlaceholder marks a value to be replaced with the prior phase's
// output when executing a chain.
const PreviousPlaceholder = "$previous"

// SubstitutePrevious walks value and replaces occurrences of the $previous
// placeholder with the prior phase's output. A bare "$previous" string becomes
// the whole output map; "$previous.a.b" resolves a dotted path into it.
// Maps and slices are rewritten recursively; everything else passes through.
func SubstitutePrevious(value any, previous map[string]any) any {
	switch v := value.(type) {
	case string:
		if v == PreviousPlaceholder {
			return previous
		}
		if strings.HasPrefix(v, PreviousPlaceholder+".") {
			if resolved, ok := lookupPath(previous, strings.TrimPrefix(v, PreviousPlaceholder+".")); ok {
				return resolved
			}
			return nil
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = SubstitutePrevious(inner, previous)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = SubstitutePrevious(inner, previous)
		}
		return out
	default:
		return value
	}
}

func lookupPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		inner, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = inner[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
