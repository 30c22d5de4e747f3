// Package strings normalizes token lists such as permission sets.
package strings

import "strings"

// Tokens trims each value, drops blanks and keeps the first occurrence of
// each token. The result is never nil.
func Tokens(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		t := strings.TrimSpace(v)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
