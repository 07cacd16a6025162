package utils

import (
	"strings"
)

// SameSet reports whether a and b hold the same elements, ignoring order.
func SameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, e := range a {
		counts[e]++
	}
	for _, e := range b {
		if counts[e] == 0 {
			return false
		}
		counts[e]--
	}
	return true
}

// EnsureTrailingSlash returns base with exactly one trailing slash.
func EnsureTrailingSlash(base string) string {
	return strings.TrimRight(base, "/") + "/"
}
