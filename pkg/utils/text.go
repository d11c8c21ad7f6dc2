// Package utils holds the small helpers shared across packages: logging,
// vector normalization and text clipping.
package utils

import "strings"

const ellipsis = "..."

// Clip cuts s to at most maxRunes runes and marks the cut with "...".
// maxRunes <= 0 leaves s unchanged.
func Clip(s string, maxRunes int) string {
	if maxRunes <= 0 || len(s) <= maxRunes {
		return s
	}
	seen := 0
	for i := range s {
		if seen == maxRunes {
			return s[:i] + ellipsis
		}
		seen++
	}
	return s
}

// Snippet folds every whitespace run in s into one space and clips the
// result, so multi-line chunk text fits on a log or terminal line.
func Snippet(s string, maxRunes int) string {
	return Clip(strings.Join(strings.Fields(s), " "), maxRunes)
}
