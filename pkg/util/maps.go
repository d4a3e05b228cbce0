// Package util holds small generic helpers shared across packages.
package util

import (
	"cmp"
	"maps"
	"slices"
)

// SortedKeys returns the keys of a map in sorted order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// SortedSet returns the distinct values of s in sorted order.
// The input is not modified.
func SortedSet[T cmp.Ordered](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

// Difference returns the sorted distinct values of a that are not in b.
func Difference[T cmp.Ordered](a, b []T) []T {
	drop := make(map[T]struct{}, len(b))
	for _, v := range b {
		drop[v] = struct{}{}
	}
	var out []T
	for _, v := range a {
		if _, ok := drop[v]; !ok {
			out = append(out, v)
		}
	}
	return SortedSet(out)
}
