package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/docwalk"
	"github.com/roach88/odatamongo/internal/filterpath"
	"github.com/roach88/odatamongo/internal/metrics"
	"github.com/roach88/odatamongo/internal/model"
	"github.com/roach88/odatamongo/internal/objectid"
	"github.com/roach88/odatamongo/internal/pipeline"
	"github.com/roach88/odatamongo/internal/query"
	"github.com/roach88/odatamongo/internal/store"
)

// Verb names, used in logs, metrics and registration.
const (
	VerbQuery  = "query"
	VerbInsert = "insert"
	VerbUpdate = "update"
	VerbRemove = "remove"
)

// Config is the adapter's configuration. It is read once by New.
type Config struct {
	// Model supplies join definitions for expansion and the sort locale.
	// Nil allows queries without expansion only.
	Model *model.Model

	// Policy selects which keys have their hex strings coerced to
	// ObjectIDs. The zero value applies objectid.DefaultPolicy.
	Policy objectid.Policy

	// MaxDepth bounds document nesting. Zero means docwalk.DefaultMaxDepth.
	MaxDepth int

	// Logger receives call logs. Nil means slog.Default().
	Logger *slog.Logger

	// Metrics records call outcomes. Nil records nothing.
	Metrics *metrics.Recorder

	// CallIDs generates the call_id log attribute. Nil means UUIDv7.
	CallIDs CallIDGenerator
}

// DefaultConfig returns a Config using the default coercion policy and no
// model.
func DefaultConfig() Config {
	return Config{
		Policy:   objectid.DefaultPolicy,
		MaxDepth: docwalk.DefaultMaxDepth,
	}
}

// Adapter translates protocol-level reads and writes into store calls.
//
// Thread-safety: an Adapter holds only immutable configuration and is safe
// for concurrent use.
type Adapter struct {
	resolver store.Resolver
	model    *model.Model
	planner  *pipeline.Planner
	coercer  objectid.Coercer
	maxDepth int
	logger   *slog.Logger
	metrics  *metrics.Recorder
	ids      CallIDGenerator
}

// New creates an Adapter that obtains a handle from resolver for every
// call. resolver may be nil when every call passes WithHandle.
func New(resolver store.Resolver, cfg Config) *Adapter {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = docwalk.DefaultMaxDepth
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ids := cfg.CallIDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}

	return &Adapter{
		resolver: resolver,
		model:    cfg.Model,
		planner:  pipeline.NewPlanner(cfg.Model),
		coercer:  objectid.Coercer{Policy: cfg.Policy, MaxDepth: maxDepth},
		maxDepth: maxDepth,
		logger:   logger,
		metrics:  cfg.Metrics,
		ids:      ids,
	}
}

// Model returns the configured model, possibly nil.
func (a *Adapter) Model() *model.Model {
	return a.model
}

// CallOption adjusts a single verb call.
type CallOption func(*callOptions)

type callOptions struct {
	handle store.Handle
}

// WithHandle makes the call use h instead of resolving a handle, e.g. a
// handle bound to a transaction.
func WithHandle(h store.Handle) CallOption {
	return func(o *callOptions) {
		o.handle = h
	}
}

// Query runs d against collection.
//
// The filter is normalized in place: identifier strings are coerced and
// path keys rewritten. The result shape follows d.Count and d.InlineCount.
func (a *Adapter) Query(ctx context.Context, collection string, d *query.Descriptor, opts ...CallOption) (res *query.Result, err error) {
	c := a.startCall(VerbQuery, collection)
	defer func() { err = c.finish(err) }()

	if d == nil {
		d = &query.Descriptor{}
	}
	if err := a.normalizeFilter(d.Filter); err != nil {
		return nil, err
	}
	if err := query.Validate(d, collection, a.model); err != nil {
		return nil, err
	}
	plan, err := a.planner.Compile(collection, d)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("query planned",
		"kind", plan.Kind.String(),
		"result", plan.Result.String(),
	)

	coll, err := a.collection(ctx, collection, opts)
	if err != nil {
		return nil, err
	}
	return a.execute(ctx, coll, plan)
}

// Plan normalizes d exactly as Query does and returns the plan Query would
// execute, without touching the store.
func (a *Adapter) Plan(collection string, d *query.Descriptor) (*pipeline.Plan, error) {
	if d == nil {
		d = &query.Descriptor{}
	}
	if err := a.normalizeFilter(d.Filter); err != nil {
		return nil, err
	}
	if err := query.Validate(d, collection, a.model); err != nil {
		return nil, err
	}
	return a.planner.Compile(collection, d)
}

func (a *Adapter) normalizeFilter(filter bson.M) error {
	if err := a.coercer.Coerce(filter); err != nil {
		return err
	}
	return filterpath.RewriteDepth(filter, a.maxDepth)
}

func (a *Adapter) execute(ctx context.Context, coll store.Collection, plan *pipeline.Plan) (*query.Result, error) {
	switch plan.Result {
	case query.ResultCount:
		n, err := a.count(ctx, coll, plan)
		if err != nil {
			return nil, err
		}
		return query.NewCountResult(n), nil

	case query.ResultInline:
		docs, err := a.page(ctx, coll, plan)
		if err != nil {
			return nil, err
		}
		n, err := a.count(ctx, coll, plan)
		if err != nil {
			return nil, err
		}
		return query.NewInlineResult(docs, n), nil

	default:
		docs, err := a.page(ctx, coll, plan)
		if err != nil {
			return nil, err
		}
		return query.NewValueResult(docs), nil
	}
}

func (a *Adapter) page(ctx context.Context, coll store.Collection, plan *pipeline.Plan) ([]bson.M, error) {
	if plan.Kind == pipeline.KindAggregate {
		return coll.Aggregate(ctx, plan.PagePipeline(), plan.AggregateOptions())
	}
	return coll.Find(ctx, plan.Filter, plan.FindOptions())
}

// count counts the documents matching the plan, ignoring sort and
// pagination.
func (a *Adapter) count(ctx context.Context, coll store.Collection, plan *pipeline.Plan) (int64, error) {
	if plan.Kind != pipeline.KindAggregate {
		return coll.CountDocuments(ctx, plan.Filter, 0)
	}

	docs, err := coll.Aggregate(ctx, plan.CountPipeline(), store.AggregateOptions{})
	if err != nil {
		return 0, err
	}
	// $count emits nothing for an empty input.
	if len(docs) == 0 {
		return 0, nil
	}
	return countValue(docs[0][pipeline.CountField])
}

func countValue(v any) (int64, error) {
	switch n := v.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected $count output %T", v)
	}
}

// Insert stores doc in collection and returns it with _id set to the
// identifier the store assigned (or the one doc already carried).
func (a *Adapter) Insert(ctx context.Context, collection string, doc bson.M, opts ...CallOption) (out bson.M, err error) {
	c := a.startCall(VerbInsert, collection)
	defer func() { err = c.finish(err) }()

	if doc == nil {
		doc = bson.M{}
	}
	if err := a.coercer.Coerce(doc); err != nil {
		return nil, err
	}

	coll, err := a.collection(ctx, collection, opts)
	if err != nil {
		return nil, err
	}
	res, err := coll.Insert(ctx, []bson.M{doc})
	if err != nil {
		return nil, err
	}
	if len(res.InsertedIDs) != 1 {
		return nil, ErrInsertNotSingle
	}

	doc["_id"] = res.InsertedIDs[0]
	return doc, nil
}

// Update applies update to the single document matching filter and
// returns the matched count, which is always 1 on success.
//
// A filter matching zero or several documents fails with
// ErrUpdateNotSuccessful and writes nothing. _id is never set.
func (a *Adapter) Update(ctx context.Context, collection string, filter, update bson.M, opts ...CallOption) (matched int64, err error) {
	c := a.startCall(VerbUpdate, collection)
	defer func() { err = c.finish(err) }()

	if filter == nil {
		filter = bson.M{}
	}
	if err := a.coercer.Coerce(filter); err != nil {
		return 0, err
	}
	if err := a.coercer.Coerce(update); err != nil {
		return 0, err
	}
	stripSetID(update)

	coll, err := a.collection(ctx, collection, opts)
	if err != nil {
		return 0, err
	}

	n, err := coll.CountDocuments(ctx, filter, 2)
	if err != nil {
		return 0, err
	}
	if n != 1 {
		c.logger.Debug("update filter is not selective", "matches", n)
		return 0, ErrUpdateNotSuccessful
	}

	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	if res.MatchedCount != 1 {
		return 0, ErrUpdateNotSuccessful
	}
	return res.MatchedCount, nil
}

// stripSetID removes _id from a $set document; the primary key is
// immutable.
func stripSetID(update bson.M) {
	switch set := update["$set"].(type) {
	case bson.M:
		delete(set, objectid.PrimaryKey)
	case map[string]any:
		delete(set, objectid.PrimaryKey)
	case bson.D:
		kept := set[:0]
		for _, e := range set {
			if e.Key != objectid.PrimaryKey {
				kept = append(kept, e)
			}
		}
		update["$set"] = kept
	}
}

// Remove deletes every document matching filter and returns the store's
// acknowledgment unmodified. An empty filter removes everything.
func (a *Adapter) Remove(ctx context.Context, collection string, filter bson.M, opts ...CallOption) (res *store.DeleteResult, err error) {
	c := a.startCall(VerbRemove, collection)
	defer func() { err = c.finish(err) }()

	if filter == nil {
		filter = bson.M{}
	}
	if err := a.coercer.Coerce(filter); err != nil {
		return nil, err
	}

	coll, err := a.collection(ctx, collection, opts)
	if err != nil {
		return nil, err
	}
	return coll.DeleteMany(ctx, filter)
}

// collection returns the named collection from the override handle, or
// from a freshly resolved one. Resolver errors are returned verbatim.
func (a *Adapter) collection(ctx context.Context, name string, opts []CallOption) (store.Collection, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.handle != nil {
		return o.handle.Collection(name), nil
	}
	if a.resolver == nil {
		return nil, ErrNoHandle
	}

	h, err := a.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return h.Collection(name), nil
}

// call tracks one verb invocation for logging and metrics.
type call struct {
	verb    string
	start   time.Time
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func (a *Adapter) startCall(verb, collection string) *call {
	c := &call{
		verb:    verb,
		start:   time.Now(),
		metrics: a.metrics,
		logger: a.logger.With(
			"verb", verb,
			"collection", collection,
			"call_id", a.ids.Generate(),
		),
	}
	c.logger.Debug("call started")
	return c
}

// finish logs and records the outcome of the call and returns err as is.
func (c *call) finish(err error) error {
	elapsed := time.Since(c.start)

	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
		c.logger.Debug("call completed", "duration", elapsed)
	case IsRejection(err):
		outcome = metrics.OutcomeRejected
		c.logger.Warn("call rejected", "error", err, "duration", elapsed)
	default:
		outcome = metrics.OutcomeError
		c.logger.Error("call failed", "error", err, "duration", elapsed)
	}

	c.metrics.Observe(c.verb, outcome, elapsed)
	return err
}
