package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/odatamongo/internal/store"
)

// Operation names recorded by MemStore and accepted by FailOn.
const (
	OpFind      = "find"
	OpAggregate = "aggregate"
	OpCount     = "count"
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

// Call records one round-trip issued against a MemStore.
type Call struct {
	Op         string
	Collection string
}

// MemStore is an in-memory store.Handle for tests.
//
// It evaluates the subset of MongoDB semantics the adapter relies on:
// equality and comparison predicates ($eq $ne $gt $gte $lt $lte $in $nin
// $exists $and $or $nor) over dotted paths, inclusion and exclusion
// projections, collation-aware sorting, and the aggregation stages
// $lookup $match $project $sort $skip $limit $count.
//
// Documents are deep-copied on the way in and out so callers can never
// alias stored state.
//
// Thread-safety: all methods are safe for concurrent use.
type MemStore struct {
	mu          sync.Mutex
	collections map[string][]bson.M
	failures    map[string]error
	calls       []Call
	newID       func() bson.ObjectID
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string][]bson.M),
		failures:    make(map[string]error),
		newID:       bson.NewObjectID,
	}
}

// SetIDSource replaces the generator of _id values for documents stored
// without one, e.g. with SequentialIDs.Next.
func (s *MemStore) SetIDSource(next func() bson.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = next
}

// Collection implements store.Handle.
func (s *MemStore) Collection(name string) store.Collection {
	return &memCollection{store: s, name: name}
}

// Resolve implements store.Resolver, yielding s itself.
func (s *MemStore) Resolve(context.Context) (store.Handle, error) {
	return s, nil
}

// Seed stores docs in collection, assigning an ObjectID to any document
// without an _id. It returns the stored ids in order.
func (s *MemStore) Seed(collection string, docs ...bson.M) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(collection, docs)
}

// Docs returns a copy of every document in collection, in insertion order.
func (s *MemStore) Docs(collection string) []bson.M {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDocs(s.collections[collection])
}

// FailOn makes the next op fail with err. The failure is consumed by the
// first matching call.
func (s *MemStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Calls returns the round-trips issued so far.
func (s *MemStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Ops returns the op names of Calls, in order.
func (s *MemStore) Ops() []string {
	calls := s.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// begin records a call and returns any injected failure. Caller holds mu.
func (s *MemStore) begin(ctx context.Context, op, collection string) error {
	s.calls = append(s.calls, Call{Op: op, Collection: collection})
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

func (s *MemStore) insertLocked(collection string, docs []bson.M) []any {
	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		stored := copyValue(doc).(bson.M)
		if stored == nil {
			stored = bson.M{}
		}
		id, ok := stored["_id"]
		if !ok {
			id = s.newID()
			stored["_id"] = id
		}
		s.collections[collection] = append(s.collections[collection], stored)
		ids = append(ids, id)
	}
	return ids
}

type memCollection struct {
	store *MemStore
	name  string
}

func (c *memCollection) Find(ctx context.Context, filter bson.M, opts store.FindOptions) ([]bson.M, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpFind, c.name); err != nil {
		return nil, err
	}

	docs, err := matchAll(s.collections[c.name], filter)
	if err != nil {
		return nil, err
	}
	if len(opts.Sort) > 0 {
		if err := sortDocs(docs, opts.Sort, opts.Collation); err != nil {
			return nil, err
		}
	}
	docs = page(docs, opts.Skip, opts.Limit)
	if len(opts.Projection) > 0 {
		if docs, err = projectAll(docs, opts.Projection); err != nil {
			return nil, err
		}
	}
	return copyDocs(docs), nil
}

func (c *memCollection) Aggregate(ctx context.Context, pipeline []bson.D, opts store.AggregateOptions) ([]bson.M, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpAggregate, c.name); err != nil {
		return nil, err
	}

	docs := copyDocs(s.collections[c.name])
	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("pipeline stage %d: expected exactly one operator, got %d", i, len(stage))
		}
		var err error
		if docs, err = s.runStage(docs, stage[0], opts); err != nil {
			return nil, fmt.Errorf("pipeline stage %d (%s): %w", i, stage[0].Key, err)
		}
	}
	return docs, nil
}

func (s *MemStore) runStage(docs []bson.M, stage bson.E, opts store.AggregateOptions) ([]bson.M, error) {
	switch stage.Key {
	case "$match":
		filter, err := asDocument(stage.Value)
		if err != nil {
			return nil, err
		}
		return matchAll(docs, filter)
	case "$project":
		spec, err := asDocument(stage.Value)
		if err != nil {
			return nil, err
		}
		return projectAll(docs, spec)
	case "$sort":
		spec, ok := stage.Value.(bson.D)
		if !ok {
			return nil, errors.New("$sort requires an ordered document")
		}
		return docs, sortDocs(docs, spec, opts.Collation)
	case "$skip":
		n, ok := toInt64(stage.Value)
		if !ok || n < 0 {
			return nil, errors.New("$skip requires a non-negative integer")
		}
		return page(docs, n, 0), nil
	case "$limit":
		n, ok := toInt64(stage.Value)
		if !ok || n <= 0 {
			return nil, errors.New("$limit requires a positive integer")
		}
		return page(docs, 0, n), nil
	case "$count":
		field, ok := stage.Value.(string)
		if !ok || field == "" {
			return nil, errors.New("$count requires a field name")
		}
		// An empty input produces no output document.
		if len(docs) == 0 {
			return []bson.M{}, nil
		}
		return []bson.M{{field: int32(len(docs))}}, nil
	case "$lookup":
		spec, err := asDocument(stage.Value)
		if err != nil {
			return nil, err
		}
		return s.lookup(docs, spec)
	default:
		return nil, fmt.Errorf("unsupported stage %s", stage.Key)
	}
}

// lookup performs an equality $lookup. Pipeline-form lookups are not
// supported.
func (s *MemStore) lookup(docs []bson.M, spec bson.M) ([]bson.M, error) {
	if _, ok := spec["pipeline"]; ok {
		return nil, errors.New("$lookup with pipeline is not supported")
	}
	from, _ := spec["from"].(string)
	local, _ := spec["localField"].(string)
	foreign, _ := spec["foreignField"].(string)
	as, _ := spec["as"].(string)
	if from == "" || local == "" || foreign == "" || as == "" {
		return nil, errors.New("$lookup requires from, localField, foreignField and as")
	}

	foreignDocs := s.collections[from]
	for _, doc := range docs {
		localVals := lookupPath(doc, local)
		if len(localVals) == 0 {
			localVals = []any{nil}
		}
		joined := bson.A{}
		for _, fd := range foreignDocs {
			foreignVals := lookupPath(fd, foreign)
			if len(foreignVals) == 0 {
				foreignVals = []any{nil}
			}
			if anyEqual(localVals, foreignVals) {
				joined = append(joined, copyValue(fd))
			}
		}
		doc[as] = joined
	}
	return docs, nil
}

func (c *memCollection) CountDocuments(ctx context.Context, filter bson.M, limit int64) (int64, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpCount, c.name); err != nil {
		return 0, err
	}

	docs, err := matchAll(s.collections[c.name], filter)
	if err != nil {
		return 0, err
	}
	n := int64(len(docs))
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

func (c *memCollection) Insert(ctx context.Context, docs []bson.M) (*store.InsertResult, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpInsert, c.name); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New("must provide at least one document")
	}

	ids := s.insertLocked(c.name, docs)
	return &store.InsertResult{InsertedIDs: ids, Acknowledged: true}, nil
}

func (c *memCollection) UpdateOne(ctx context.Context, filter, update bson.M) (*store.UpdateResult, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpUpdate, c.name); err != nil {
		return nil, err
	}
	if len(update) == 0 {
		return nil, errors.New("update document must not be empty")
	}
	for k := range update {
		if !strings.HasPrefix(k, "$") {
			return nil, errors.New("update document must contain key beginning with '$'")
		}
	}

	for _, doc := range s.collections[c.name] {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		modified, err := applyUpdate(doc, update)
		if err != nil {
			return nil, err
		}
		res := &store.UpdateResult{MatchedCount: 1, Acknowledged: true}
		if modified {
			res.ModifiedCount = 1
		}
		return res, nil
	}
	return &store.UpdateResult{Acknowledged: true}, nil
}

func (c *memCollection) DeleteMany(ctx context.Context, filter bson.M) (*store.DeleteResult, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpDelete, c.name); err != nil {
		return nil, err
	}

	kept := make([]bson.M, 0, len(s.collections[c.name]))
	var deleted int64
	for _, doc := range s.collections[c.name] {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	s.collections[c.name] = kept
	return &store.DeleteResult{DeletedCount: deleted, Acknowledged: true}, nil
}

func applyUpdate(doc, update bson.M) (bool, error) {
	modified := false
	ops := make([]string, 0, len(update))
	for op := range update {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, op := range ops {
		fields, err := asDocument(update[op])
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		for path, v := range fields {
			switch op {
			case "$set":
				if path == "_id" {
					if old, ok := doc["_id"]; !ok || !valuesEqual(old, v) {
						return false, errors.New("performing an update on the path '_id' would modify the immutable field '_id'")
					}
					continue
				}
				old, had := getPath(doc, path)
				if !had || !valuesEqual(old, v) {
					setPath(doc, path, copyValue(v))
					modified = true
				}
			case "$unset":
				if unsetPath(doc, path) {
					modified = true
				}
			case "$inc":
				old, _ := getPath(doc, path)
				sum, err := addNumbers(old, v)
				if err != nil {
					return false, fmt.Errorf("$inc %s: %w", path, err)
				}
				setPath(doc, path, sum)
				modified = true
			default:
				return false, fmt.Errorf("unsupported update operator %s", op)
			}
		}
	}
	return modified, nil
}

func page(docs []bson.M, skip, limit int64) []bson.M {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return []bson.M{}
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

func sortDocs(docs []bson.M, spec bson.D, collation *store.Collation) error {
	for _, e := range spec {
		dir, ok := toInt64(e.Value)
		if !ok || (dir != 1 && dir != -1) {
			return fmt.Errorf("sort direction for %q must be 1 or -1", e.Key)
		}
	}

	var col *collate.Collator
	if collation != nil && collation.Locale != "" {
		tag, err := language.Parse(collation.Locale)
		if err != nil {
			return fmt.Errorf("invalid collation locale %q: %w", collation.Locale, err)
		}
		col = collate.New(tag)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		for _, e := range spec {
			dir, _ := toInt64(e.Value)
			a, _ := getPath(docs[i], e.Key)
			b, _ := getPath(docs[j], e.Key)
			c := compareValues(a, b, col)
			if c != 0 {
				return (c < 0) == (dir > 0)
			}
		}
		return false
	})
	return nil
}

func projectAll(docs []bson.M, spec bson.M) ([]bson.M, error) {
	include, err := projectionMode(spec)
	if err != nil {
		return nil, err
	}
	out := make([]bson.M, len(docs))
	for i, doc := range docs {
		out[i] = project(doc, spec, include)
	}
	return out, nil
}

// projectionMode reports whether spec is an inclusion projection. _id may
// be excluded from either kind; mixing other fields is an error.
func projectionMode(spec bson.M) (bool, error) {
	include, exclude := false, false
	for k, v := range spec {
		if k == "_id" {
			continue
		}
		if truthy(v) {
			include = true
		} else {
			exclude = true
		}
	}
	if include && exclude {
		return false, errors.New("cannot mix inclusion and exclusion in projection")
	}
	return include, nil
}

func project(doc, spec bson.M, include bool) bson.M {
	out := bson.M{}
	if include {
		for k, v := range spec {
			if k == "_id" || !truthy(v) {
				continue
			}
			if val, ok := getPath(doc, k); ok {
				setPath(out, k, val)
			}
		}
		if id, ok := doc["_id"]; ok {
			if v, set := spec["_id"]; !set || truthy(v) {
				out["_id"] = id
			}
		}
		return out
	}

	out = copyValue(doc).(bson.M)
	for k, v := range spec {
		if !truthy(v) {
			unsetPath(out, k)
		}
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	}
	if n, ok := toFloat(v); ok {
		return n != 0
	}
	return true
}

func copyDocs(docs []bson.M) []bson.M {
	out := make([]bson.M, len(docs))
	for i, d := range docs {
		out[i] = copyValue(d).(bson.M)
	}
	return out
}

// copyValue deep-copies containers; scalars are returned as-is.
func copyValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		if t == nil {
			return bson.M(nil)
		}
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case map[string]any:
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case bson.D:
		out := make(bson.M, len(t))
		for _, e := range t {
			out[e.Key] = copyValue(e.Value)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	case []any:
		out := make(bson.A, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}

func asDocument(v any) (bson.M, error) {
	switch t := v.(type) {
	case bson.M:
		return t, nil
	case map[string]any:
		return bson.M(t), nil
	case bson.D:
		out := make(bson.M, len(t))
		for _, e := range t {
			out[e.Key] = e.Value
		}
		return out, nil
	case nil:
		return bson.M{}, nil
	default:
		return nil, fmt.Errorf("expected a document, got %T", v)
	}
}
