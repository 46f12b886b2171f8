package security

import "strings"

// PublicPaths matches request paths that skip authentication: an
// exact-match set plus patterns whose trailing "*" makes them prefix
// matches.
type PublicPaths struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewPublicPaths builds a matcher from configured patterns.
func NewPublicPaths(patterns []string) *PublicPaths {
	p := &PublicPaths{exact: make(map[string]struct{})}
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "*") {
			p.prefixes = append(p.prefixes, strings.TrimSuffix(pattern, "*"))
		} else {
			p.exact[pattern] = struct{}{}
		}
	}
	return p
}

// Match reports whether path is public.
func (p *PublicPaths) Match(path string) bool {
	if _, ok := p.exact[path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
