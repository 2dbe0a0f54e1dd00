// Package filterpath rewrites relationship paths in filter keys.
//
// The protocol layer scopes a filter to a joined document with path segments,
// e.g. {"customer/name": "Ada"}. The store addresses nested fields with dots,
// so the key must become "customer.name" before the predicate is used.
package filterpath

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/docwalk"
)

const (
	// Separator splits relationship segments in protocol filter keys.
	Separator = "/"
	// NestedSeparator splits nested field segments in store keys.
	NestedSeparator = "."
)

// Key returns k with every Separator replaced by NestedSeparator.
// Keys that start with the separator, or do not contain it, are returned as is.
func Key(k string) string {
	if strings.Index(k, Separator) <= 0 {
		return k
	}
	return strings.ReplaceAll(k, Separator, NestedSeparator)
}

// Rewrite renames every path key in filter, at any depth, including keys of
// documents inside arrays such as $or. Values move with their keys; sibling
// keys are untouched. When a rewritten key collides with an existing key the
// rewritten entry wins.
func Rewrite(filter any) error {
	return RewriteDepth(filter, 0)
}

// RewriteDepth is Rewrite with an explicit nesting limit (zero for the default).
func RewriteDepth(filter any, maxDepth int) error {
	return docwalk.Walk(filter, maxDepth, func(node any) error {
		switch n := node.(type) {
		case bson.M:
			rewriteMap(n)
		case map[string]any:
			rewriteMap(n)
		case bson.D:
			for i := range n {
				n[i].Key = Key(n[i].Key)
			}
		}
		return nil
	})
}

func rewriteMap(m map[string]any) {
	var paths []string
	for k := range m {
		if Key(k) != k {
			paths = append(paths, k)
		}
	}
	// deterministic outcome when two paths rewrite to the same key
	sort.Strings(paths)

	for _, k := range paths {
		m[Key(k)] = m[k]
		delete(m, k)
	}
}
