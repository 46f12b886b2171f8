package correlate

import "strings"

// tokenize lowercases s, replaces every non-alphanumeric rune with a
// space, splits on whitespace, and drops tokens of length 2 or less.
// The result is a set.
func tokenize(s string) map[string]struct{} {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, s)

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(mapped) {
		if len(tok) > 2 {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// jaccard is |A ∩ B| / |A ∪ B|. Two empty sets score 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// union merges src into dst in place.
func union(dst, src map[string]struct{}) {
	for tok := range src {
		dst[tok] = struct{}{}
	}
}
