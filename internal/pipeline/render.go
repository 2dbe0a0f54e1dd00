package pipeline

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/text/unicode/norm"
)

// Render produces the canonical JSON form of the plan:
//
//	find:      {"collection","filter","kind","options"?,"result"}
//	aggregate: {"collection","count"?,"kind","options"?,"pipeline"?,"result"}
//
// "pipeline" is the PagePipeline and is present unless only a count is
// requested; "count" is the CountPipeline and is present when a count is
// requested. "options" lists only the options that are set.
func (p *Plan) Render() ([]byte, error) {
	doc := bson.M{
		"collection": p.Collection,
		"kind":       p.Kind.String(),
		"result":     p.Result.String(),
	}

	opts := bson.M{}
	if p.Collation != nil && p.NeedsPage() {
		opts["collation"] = bson.M{"locale": p.Collation.Locale}
	}

	switch p.Kind {
	case KindAggregate:
		if p.NeedsPage() {
			doc["pipeline"] = p.PagePipeline()
		}
		if p.NeedsCount() {
			doc["count"] = p.CountPipeline()
		}
	default:
		filter := p.Filter
		if filter == nil {
			filter = bson.M{}
		}
		doc["filter"] = filter
		if p.NeedsPage() {
			if len(p.Projection) > 0 {
				opts["projection"] = p.Projection
			}
			if len(p.Sort) > 0 {
				opts["sort"] = p.Sort
			}
			if p.Skip > 0 {
				opts["skip"] = p.Skip
			}
			if p.Limit > 0 {
				opts["limit"] = p.Limit
			}
		}
	}
	if len(opts) > 0 {
		doc["options"] = opts
	}

	return MarshalCanonical(doc)
}

// MarshalCanonical renders a BSON value as canonical JSON.
//
// Differences from encoding/json:
// 1. Map keys sorted by UTF-16 code units; bson.D keeps its order
// 2. No HTML escaping
// 3. Strings are NFC normalized
// 4. BSON types use their Extended JSON form ({"$oid": ...}, {"$date": ...})
//
// The output is stable for equal inputs, which makes it suitable for
// golden files and for diffing plans.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeString(buf, val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float32:
		return writeFloat(buf, float64(val))
	case float64:
		return writeFloat(buf, val)
	case bson.ObjectID:
		return encodeValue(buf, bson.D{{Key: "$oid", Value: val.Hex()}})
	case bson.DateTime:
		return encodeValue(buf, bson.D{{Key: "$date", Value: val.Time().UTC().Format(time.RFC3339Nano)}})
	case time.Time:
		return encodeValue(buf, bson.D{{Key: "$date", Value: val.UTC().Format(time.RFC3339Nano)}})
	case bson.Decimal128:
		return encodeValue(buf, bson.D{{Key: "$numberDecimal", Value: val.String()}})
	case bson.Regex:
		return encodeValue(buf, bson.D{{Key: "$regex", Value: val.Pattern}, {Key: "$options", Value: val.Options}})
	case bson.D:
		return encodeOrdered(buf, val)
	case bson.M:
		return encodeMap(buf, val)
	case map[string]any:
		return encodeMap(buf, val)
	case bson.A:
		return encodeArray(buf, len(val), func(i int) any { return val[i] })
	case []any:
		return encodeArray(buf, len(val), func(i int) any { return val[i] })
	case []bson.D:
		return encodeArray(buf, len(val), func(i int) any { return val[i] })
	case []bson.M:
		return encodeArray(buf, len(val), func(i int) any { return val[i] })
	case []string:
		return encodeArray(buf, len(val), func(i int) any { return val[i] })
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v has no JSON form", f)
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// writeString writes s NFC-normalized, escaping only quote, backslash and
// control characters.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range norm.NFC.String(s) {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

func encodeArray(buf *bytes.Buffer, n int, at func(int) any) error {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, at(i)); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeOrdered(buf *bytes.Buffer, d bson.D) error {
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, e.Key)
		buf.WriteByte(':')
		if err := encodeValue(buf, e.Value); err != nil {
			return fmt.Errorf("%q: %w", e.Key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeMap[M ~map[string]any](buf *bytes.Buffer, m M) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if err := encodeValue(buf, m[k]); err != nil {
			return fmt.Errorf("%q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// compareKeys orders keys by UTF-16 code units, as RFC 8785 requires.
// Byte order differs for characters outside the Basic Multilingual Plane.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
