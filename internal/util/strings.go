// Package util holds small string helpers shared by the CLI and doctor.
package util

import (
	"fmt"
	"strings"
)

// JoinOrNone joins items with ", " or returns "(none)" for an empty list.
func JoinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// Pluralize returns singular if count is 1, otherwise plural.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// Count formats "1 device", "3 devices". The plural adds an s.
func Count(n int, noun string) string {
	return fmt.Sprintf("%d %s", n, Pluralize(n, noun, noun+"s"))
}
