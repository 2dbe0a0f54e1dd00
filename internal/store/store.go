package store

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Handle yields collections of one database.
type Handle interface {
	Collection(name string) Collection
}

// Collection is the set of store round-trips the adapter issues.
type Collection interface {
	// Find returns the documents matching filter, shaped by opts.
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error)

	// Aggregate runs pipeline and returns its output documents.
	Aggregate(ctx context.Context, pipeline []bson.D, opts AggregateOptions) ([]bson.M, error)

	// CountDocuments counts documents matching filter. A positive limit
	// stops counting once limit documents have matched.
	CountDocuments(ctx context.Context, filter bson.M, limit int64) (int64, error)

	// Insert stores docs and reports the identifiers the store assigned.
	Insert(ctx context.Context, docs []bson.M) (*InsertResult, error)

	// UpdateOne applies update to the first document matching filter.
	UpdateOne(ctx context.Context, filter, update bson.M) (*UpdateResult, error)

	// DeleteMany removes every document matching filter.
	DeleteMany(ctx context.Context, filter bson.M) (*DeleteResult, error)
}

// Collation selects locale-aware string comparison for sorting.
type Collation struct {
	Locale string `json:"locale"`
}

// FindOptions shapes a Find. Zero values mean "not set".
type FindOptions struct {
	Projection bson.M
	Sort       bson.D
	Skip       int64
	Limit      int64
	Collation  *Collation
}

// AggregateOptions shapes an Aggregate.
type AggregateOptions struct {
	Collation *Collation
}

// InsertResult reports the identifiers assigned by an Insert.
type InsertResult struct {
	InsertedIDs  []any
	Acknowledged bool
}

// UpdateResult reports the outcome of an UpdateOne.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	Acknowledged  bool
}

// DeleteResult is the store's acknowledgment of a DeleteMany.
type DeleteResult struct {
	DeletedCount int64 `json:"deletedCount"`
	Acknowledged bool  `json:"acknowledged"`
}

// Resolver yields the Handle for one call.
type Resolver interface {
	Resolve(ctx context.Context) (Handle, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) (Handle, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context) (Handle, error) {
	return f(ctx)
}

// Static returns a Resolver that always yields h.
func Static(h Handle) Resolver {
	return ResolverFunc(func(context.Context) (Handle, error) {
		return h, nil
	})
}

// nonNil returns filter, or an empty document when filter is nil; the
// driver rejects nil filters.
func nonNil(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
