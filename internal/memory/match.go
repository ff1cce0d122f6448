package memory

import "strings"

// Matches reports whether text matches a free-text query: the query appears
// in text ignoring case, or every query word does. An empty query matches
// everything.
func Matches(text, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	t := strings.ToLower(text)
	if strings.Contains(t, q) {
		return true
	}
	words := strings.Fields(q)
	if len(words) < 2 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(t, w) {
			return false
		}
	}
	return true
}
