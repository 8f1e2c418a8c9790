// Package strings has slice helpers for role and permission names.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim trims each name and drops blanks and repeats, keeping the
// first occurrence's position.
func DedupeAndTrim(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// Intersects reports whether a and b share an element. Role lists here are
// a handful of entries, so a nested scan is fine.
func Intersects[T comparable](a, b []T) bool {
	return slices.ContainsFunc(a, func(v T) bool { return slices.Contains(b, v) })
}
