package testutil

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/text/collate"
)

// matchAll returns the documents of docs matching filter, in order. The
// returned slice is new; the documents are shared.
func matchAll(docs []bson.M, filter bson.M) ([]bson.M, error) {
	out := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Matches reports whether doc satisfies filter under MemStore's query
// semantics.
func Matches(doc bson.M, filter bson.M) (bool, error) {
	return matches(doc, filter)
}

func matches(doc bson.M, filter bson.M) (bool, error) {
	for k, cond := range filter {
		ok, err := matchClause(doc, k, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchClause(doc bson.M, key string, cond any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		subs, ok := asArray(cond)
		if !ok || len(subs) == 0 {
			return false, fmt.Errorf("%s requires a non-empty array", key)
		}
		for _, sub := range subs {
			f, err := asDocument(sub)
			if err != nil {
				return false, fmt.Errorf("%s: %w", key, err)
			}
			ok, err := matches(doc, f)
			if err != nil {
				return false, err
			}
			switch {
			case key == "$and" && !ok:
				return false, nil
			case key == "$or" && ok:
				return true, nil
			case key == "$nor" && ok:
				return false, nil
			}
		}
		return key != "$or", nil
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("unknown top level operator: %s", key)
	}

	vals := lookupPath(doc, key)
	if ops, ok := operatorDocument(cond); ok {
		for op, arg := range ops {
			ok, err := matchOperator(vals, op, arg)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return equalsAny(vals, cond), nil
}

// operatorDocument returns cond as a document when every key is an
// operator.
func operatorDocument(cond any) (bson.M, bool) {
	doc, err := asDocument(cond)
	if err != nil || cond == nil || len(doc) == 0 {
		return nil, false
	}
	for k := range doc {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return doc, true
}

func matchOperator(vals []any, op string, arg any) (bool, error) {
	switch op {
	case "$eq":
		return equalsAny(vals, arg), nil
	case "$ne":
		return !equalsAny(vals, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		for _, v := range expand(vals) {
			if !sameBracket(v, arg) {
				continue
			}
			c := compareValues(v, arg, nil)
			if (op == "$gt" && c > 0) || (op == "$gte" && c >= 0) ||
				(op == "$lt" && c < 0) || (op == "$lte" && c <= 0) {
				return true, nil
			}
		}
		return false, nil
	case "$in", "$nin":
		set, ok := asArray(arg)
		if !ok {
			return false, fmt.Errorf("%s needs an array", op)
		}
		hit := false
		for _, want := range set {
			if equalsAny(vals, want) {
				hit = true
				break
			}
		}
		return hit == (op == "$in"), nil
	case "$exists":
		return truthy(arg) == (len(vals) > 0), nil
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}

// equalsAny reports whether want equals any value, or any element of an
// array value. A missing field equals nil.
func equalsAny(vals []any, want any) bool {
	if len(vals) == 0 {
		return want == nil
	}
	for _, v := range vals {
		if valuesEqual(v, want) {
			return true
		}
		if arr, ok := asArray(v); ok {
			for _, el := range arr {
				if valuesEqual(el, want) {
					return true
				}
			}
		}
	}
	return false
}

func anyEqual(a, b []any) bool {
	for _, x := range expand(a) {
		for _, y := range expand(b) {
			if valuesEqual(x, y) {
				return true
			}
		}
	}
	return false
}

// expand flattens one level of arrays.
func expand(vals []any) []any {
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		if arr, ok := asArray(v); ok {
			out = append(out, arr...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// lookupPath resolves a dotted path, traversing arrays of documents. It
// returns every value found; none when the path is missing.
func lookupPath(doc bson.M, path string) []any {
	cur := []any{doc}
	for _, seg := range strings.Split(path, ".") {
		var next []any
		for _, v := range cur {
			if d, err := asDocument(v); err == nil && v != nil {
				if val, ok := d[seg]; ok {
					next = append(next, val)
				}
				continue
			}
			if arr, ok := asArray(v); ok {
				for _, el := range arr {
					if d, err := asDocument(el); err == nil && el != nil {
						if val, ok := d[seg]; ok {
							next = append(next, val)
						}
					}
				}
			}
		}
		cur = next
	}
	return cur
}

// getPath resolves a dotted path through nested documents only.
func getPath(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		d, err := asDocument(cur)
		if err != nil || cur == nil {
			return nil, false
		}
		v, ok := d[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// setPath writes v at a dotted path, creating intermediate documents.
func setPath(doc bson.M, path string, v any) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(bson.M)
		if !ok {
			next = bson.M{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = v
}

// unsetPath removes the field at a dotted path and reports whether it
// existed.
func unsetPath(doc bson.M, path string) bool {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(bson.M)
		if !ok {
			return false
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if _, ok := cur[last]; !ok {
		return false
	}
	delete(cur, last)
	return true
}

func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func valuesEqual(a, b any) bool {
	if an, ok := toFloat(a); ok {
		bn, ok := toFloat(b)
		return ok && an == bn
	}
	if _, ok := toFloat(b); ok {
		return false
	}
	if typeRank(a) != typeRank(b) {
		return false
	}
	switch a.(type) {
	case bson.M, map[string]any, bson.D:
		return reflect.DeepEqual(copyValue(a), copyValue(b))
	case bson.A, []any:
		return reflect.DeepEqual(copyValue(a), copyValue(b))
	}
	return compareValues(a, b, nil) == 0
}

// sameBracket reports whether range operators apply between a and b; they
// only compare values of the same BSON type bracket.
func sameBracket(a, b any) bool {
	return typeRank(a) == typeRank(b)
}

// typeRank orders BSON types the way the server's sort does.
func typeRank(v any) int {
	if _, ok := toFloat(v); ok {
		return 2
	}
	switch v.(type) {
	case nil:
		return 1
	case string:
		return 3
	case bson.M, map[string]any, bson.D:
		return 4
	case bson.A, []any:
		return 5
	case bson.ObjectID:
		return 7
	case bool:
		return 8
	case time.Time, bson.DateTime:
		return 9
	default:
		return 10
	}
}

// compareValues orders a and b. Strings use col when non-nil.
func compareValues(a, b any, col *collate.Collator) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 1:
		return 0
	case 2:
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 3:
		if col != nil {
			return col.CompareString(a.(string), b.(string))
		}
		return strings.Compare(a.(string), b.(string))
	case 7:
		x, y := a.(bson.ObjectID), b.(bson.ObjectID)
		return bytes.Compare(x[:], y[:])
	case 8:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case 9:
		x, y := toTime(a), toTime(b)
		return x.Compare(y)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case bson.DateTime:
		return t.Time()
	}
	return time.Time{}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func addNumbers(a, b any) (any, error) {
	if a == nil {
		a = int32(0)
	}
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	if !okA || !okB {
		return nil, fmt.Errorf("cannot apply $inc to non-numeric values %T and %T", a, b)
	}
	_, floatA := a.(float64)
	_, floatB := b.(float64)
	if floatA || floatB {
		return x + y, nil
	}
	return int64(x + y), nil
}
