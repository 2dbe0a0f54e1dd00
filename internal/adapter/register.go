package adapter

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/query"
	"github.com/roach88/odatamongo/internal/store"
)

// QueryHandler serves a protocol read.
type QueryHandler func(ctx context.Context, collection string, d *query.Descriptor) (*query.Result, error)

// InsertHandler serves a protocol create.
type InsertHandler func(ctx context.Context, collection string, doc bson.M) (bson.M, error)

// UpdateHandler serves a protocol update.
type UpdateHandler func(ctx context.Context, collection string, filter, update bson.M) (int64, error)

// RemoveHandler serves a protocol delete.
type RemoveHandler func(ctx context.Context, collection string, filter bson.M) (*store.DeleteResult, error)

// Registrar is the protocol front-end's registration surface. Each method
// installs a handler and returns the registrar for chaining.
type Registrar interface {
	OnQuery(QueryHandler) Registrar
	OnInsert(InsertHandler) Registrar
	OnUpdate(UpdateHandler) Registrar
	OnRemove(RemoveHandler) Registrar
}

// Register installs the four verbs on r.
//
// The front-end overrides the handle of a single request by attaching it
// to the request context with NewContext.
func (a *Adapter) Register(r Registrar) {
	r.OnUpdate(func(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
		return a.Update(ctx, collection, filter, update, contextOptions(ctx)...)
	}).OnRemove(func(ctx context.Context, collection string, filter bson.M) (*store.DeleteResult, error) {
		return a.Remove(ctx, collection, filter, contextOptions(ctx)...)
	}).OnQuery(func(ctx context.Context, collection string, d *query.Descriptor) (*query.Result, error) {
		return a.Query(ctx, collection, d, contextOptions(ctx)...)
	}).OnInsert(func(ctx context.Context, collection string, doc bson.M) (bson.M, error) {
		return a.Insert(ctx, collection, doc, contextOptions(ctx)...)
	})
}

type handleKey struct{}

// NewContext returns a context carrying h as the handle override for calls
// made through registered handlers.
func NewContext(ctx context.Context, h store.Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// HandleFromContext returns the handle attached by NewContext, if any.
func HandleFromContext(ctx context.Context) (store.Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(store.Handle)
	return h, ok && h != nil
}

func contextOptions(ctx context.Context) []CallOption {
	if h, ok := HandleFromContext(ctx); ok {
		return []CallOption{WithHandle(h)}
	}
	return nil
}
