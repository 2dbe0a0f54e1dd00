// Package docwalk traverses request documents without recursion.
//
// Request documents arrive from the protocol layer with unbounded nesting.
// Walk visits every container (sub-document or array) using an explicit
// worklist, so adversarial input can grow the heap but never the call stack,
// and MaxDepth bounds how far the walk will descend.
package docwalk

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DefaultMaxDepth is the nesting limit used when a caller passes zero.
const DefaultMaxDepth = 128

// ErrMaxDepth is returned when a document nests deeper than the limit.
var ErrMaxDepth = errors.New("document nesting exceeds maximum depth")

// VisitFunc is called once per container. It may mutate the container in
// place (replace values, rename keys). Children are collected after the call
// returns, so values written by fn are themselves walked.
type VisitFunc func(node any) error

type frame struct {
	node  any
	depth int
}

// Walk visits root and every container nested beneath it.
//
// Containers are bson.M, map[string]any, bson.D, bson.A, []any and []bson.M.
// Scalars are never passed to fn. A non-container root is a no-op.
func Walk(root any, maxDepth int, fn VisitFunc) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if !IsContainer(root) {
		return nil
	}

	stack := []frame{{node: root, depth: 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > maxDepth {
			return ErrMaxDepth
		}
		if err := fn(f.node); err != nil {
			return err
		}

		for _, child := range children(f.node) {
			if IsContainer(child) {
				stack = append(stack, frame{node: child, depth: f.depth + 1})
			}
		}
	}
	return nil
}

// IsContainer reports whether v is a document or array shape Walk descends into.
// Nil maps and slices are not containers.
func IsContainer(v any) bool {
	switch c := v.(type) {
	case bson.M:
		return c != nil
	case map[string]any:
		return c != nil
	case bson.D:
		return c != nil
	case bson.A:
		return c != nil
	case []any:
		return c != nil
	case []bson.M:
		return c != nil
	default:
		return false
	}
}

func children(node any) []any {
	switch c := node.(type) {
	case bson.M:
		return mapValues(c)
	case map[string]any:
		return mapValues(c)
	case bson.D:
		out := make([]any, len(c))
		for i, e := range c {
			out[i] = e.Value
		}
		return out
	case bson.A:
		return c
	case []any:
		return c
	case []bson.M:
		out := make([]any, len(c))
		for i, m := range c {
			out[i] = m
		}
		return out
	}
	return nil
}

func mapValues(m map[string]any) []any {
	out := make([]any, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
