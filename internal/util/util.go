// Package util holds small generic helpers for comparing configuration values.
package util

import "slices"

// SetEqual reports whether a and b hold the same elements in any order.
// Elements are bucketed by key and matched within a bucket with eq, so
// repeated elements must appear equally often in both.
func SetEqual[K comparable, V any](a, b []V, key func(V) K, eq func(a, b V) bool) bool {
	if len(a) != len(b) {
		return false
	}

	buckets := make(map[K][]V, len(a))
	for _, v := range a {
		k := key(v)
		buckets[k] = append(buckets[k], v)
	}

	for _, v := range b {
		k := key(v)
		i := slices.IndexFunc(buckets[k], func(x V) bool { return eq(x, v) })
		if i == -1 {
			return false
		}
		buckets[k] = slices.Delete(buckets[k], i, i+1)
	}

	return true
}

// FastEqual compares pointers, calling slowEqual only when both are non-nil
// and distinct.
func FastEqual[V any](a, b *V, slowEqual func(a, b *V) bool) bool {
	if a == b {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return slowEqual(a, b)
}
