// Package ticker extracts cashtag symbols from submission titles and keeps a
// session-scoped cache of one quote per symbol.
package ticker

import (
	"regexp"
	"slices"
	"strings"
)

var cashtagRe = regexp.MustCompile(`\$([A-Za-z]+)`)

// blacklist holds cashtags that are community slang rather than symbols.
var blacklist = map[string]bool{
	"STONK": true,
}

// Extract returns the distinct symbols tagged with a leading '$' in text,
// uppercased and sorted. Only letters count, so "$5" and "$GME2" yield
// nothing and "GME" respectively.
func Extract(text string) []string {
	matches := cashtagRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		sym := strings.ToUpper(m[1])
		if sym == "" || blacklist[sym] || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Canonical returns the canonical form of a symbol, or "" when s is not a
// valid symbol.
func Canonical(s string) string {
	s = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$")))
	if s == "" || blacklist[s] {
		return ""
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return s
}
