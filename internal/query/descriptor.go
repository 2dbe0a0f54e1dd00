package query

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Descriptor is a query request against one collection.
//
// Skip and Limit of zero mean "not requested". Count and InlineCount are
// mutually exclusive.
type Descriptor struct {
	Filter      bson.M   `bson:"filter,omitempty" json:"filter,omitempty"`
	Select      bson.M   `bson:"select,omitempty" json:"select,omitempty"`
	Sort        bson.D   `bson:"sort,omitempty" json:"sort,omitempty"`
	Skip        int64    `bson:"skip,omitempty" json:"skip,omitempty"`
	Limit       int64    `bson:"limit,omitempty" json:"limit,omitempty"`
	Count       bool     `bson:"count,omitempty" json:"count,omitempty"`
	InlineCount bool     `bson:"inlinecount,omitempty" json:"inlinecount,omitempty"`
	Expand      []string `bson:"expand,omitempty" json:"expand,omitempty"`
}

// ParseDescriptor decodes a descriptor from MongoDB Extended JSON, so
// identifiers may be given either as hex strings or as {"$oid": "..."}.
// An empty input yields an empty descriptor.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	d := &Descriptor{}
	if len(data) == 0 {
		return d, nil
	}
	if err := bson.UnmarshalExtJSON(data, false, d); err != nil {
		return nil, fmt.Errorf("failed to parse query descriptor: %w", err)
	}
	return d, nil
}

// ParseDocument decodes a single Extended JSON document. An empty input
// yields an empty document.
func ParseDocument(data []byte) (bson.M, error) {
	doc := bson.M{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return doc, nil
}

// HasExpand reports whether the descriptor requests relationship expansion.
func (d *Descriptor) HasExpand() bool {
	return len(d.Expand) > 0
}

// ResultKind selects the shape of a Result.
type ResultKind int

const (
	// ResultValue is a plain array of documents.
	ResultValue ResultKind = iota
	// ResultCount is a count without documents.
	ResultCount
	// ResultInline is a page of documents plus the unpaginated total.
	ResultInline
)

func (k ResultKind) String() string {
	switch k {
	case ResultValue:
		return "value"
	case ResultCount:
		return "count"
	case ResultInline:
		return "inline"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is the normalized output of a query.
type Result struct {
	Kind  ResultKind
	Value []bson.M
	Count int64
}

// NewValueResult wraps a page of documents. A nil page becomes empty.
func NewValueResult(docs []bson.M) *Result {
	if docs == nil {
		docs = []bson.M{}
	}
	return &Result{Kind: ResultValue, Value: docs}
}

// NewCountResult wraps a bare count.
func NewCountResult(n int64) *Result {
	return &Result{Kind: ResultCount, Count: n}
}

// NewInlineResult wraps a page of documents and the total count.
func NewInlineResult(docs []bson.M, total int64) *Result {
	if docs == nil {
		docs = []bson.M{}
	}
	return &Result{Kind: ResultInline, Value: docs, Count: total}
}

// Shape returns the value the front-end serializes: the array, {count} or
// {count, value}.
func (r *Result) Shape() any {
	switch r.Kind {
	case ResultCount:
		return bson.M{"count": r.Count}
	case ResultInline:
		return bson.M{"count": r.Count, "value": r.Value}
	default:
		return r.Value
	}
}

// MarshalJSON renders the protocol shape.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Shape())
}
