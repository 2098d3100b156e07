// Package sortutil holds the ordering helper that keeps bundle output
// deterministic.
package sortutil

import (
	"maps"
	"slices"
)

// Keys returns the keys of m in ascending order.
func Keys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
