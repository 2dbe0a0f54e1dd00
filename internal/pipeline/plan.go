package pipeline

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/model"
	"github.com/roach88/odatamongo/internal/query"
	"github.com/roach88/odatamongo/internal/store"
)

// CountField names the output field of the $count stage.
const CountField = "count"

// Kind selects the store round-trip a plan issues.
type Kind int

const (
	// KindFind issues Find (and CountDocuments for counts).
	KindFind Kind = iota
	// KindAggregate issues Aggregate.
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindFind:
		return "find"
	case KindAggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Plan is a compiled query against one collection.
type Plan struct {
	Collection string
	Kind       Kind
	Result     query.ResultKind

	Filter     bson.M
	Projection bson.M
	Sort       bson.D
	Skip       int64
	Limit      int64

	// Collation is set only when Sort is non-empty.
	Collation *store.Collation

	// Stages holds the base stages of an aggregate plan.
	Stages []bson.D
}

// Planner compiles descriptors against a model.
//
// Thread-safety: a Planner is immutable and safe for concurrent use.
type Planner struct {
	model *model.Model
}

// NewPlanner creates a planner. A nil model allows descriptors without
// expansion only; sorting then collates with model.DefaultLocale.
func NewPlanner(m *model.Model) *Planner {
	return &Planner{model: m}
}

// Compile builds the plan for d against collection.
//
// Only expansion is checked here: an expand name with no join definition
// yields a *query.ValidationError. Callers wanting the full check run
// query.Validate first.
func (p *Planner) Compile(collection string, d *query.Descriptor) (*Plan, error) {
	if d == nil {
		d = &query.Descriptor{}
	}

	plan := &Plan{
		Collection: collection,
		Kind:       KindFind,
		Result:     resultKind(d),
		Filter:     d.Filter,
		Projection: d.Select,
		Sort:       d.Sort,
		Skip:       d.Skip,
		Limit:      d.Limit,
	}
	if len(d.Sort) > 0 {
		plan.Collation = &store.Collation{Locale: p.model.LocaleOrDefault()}
	}

	if !d.HasExpand() {
		return plan, nil
	}

	plan.Kind = KindAggregate
	stages := make([]bson.D, 0, len(d.Expand)+2)
	for _, name := range d.Expand {
		join, ok := p.model.Join(collection, name)
		if !ok {
			return nil, query.UnknownRelationship(collection, name)
		}
		stages = append(stages, bson.D{{Key: "$lookup", Value: join.Lookup()}})
	}
	if len(d.Filter) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: d.Filter}})
	}
	if len(d.Select) > 0 {
		stages = append(stages, bson.D{{Key: "$project", Value: d.Select}})
	}
	plan.Stages = stages
	return plan, nil
}

func resultKind(d *query.Descriptor) query.ResultKind {
	switch {
	case d.Count:
		return query.ResultCount
	case d.InlineCount:
		return query.ResultInline
	default:
		return query.ResultValue
	}
}

// PagePipeline returns the base stages followed by $sort, $skip and $limit
// where requested. It is nil for find plans.
func (p *Plan) PagePipeline() []bson.D {
	if p.Kind != KindAggregate {
		return nil
	}
	out := make([]bson.D, 0, len(p.Stages)+3)
	out = append(out, p.Stages...)
	if len(p.Sort) > 0 {
		out = append(out, bson.D{{Key: "$sort", Value: p.Sort}})
	}
	if p.Skip > 0 {
		out = append(out, bson.D{{Key: "$skip", Value: p.Skip}})
	}
	if p.Limit > 0 {
		out = append(out, bson.D{{Key: "$limit", Value: p.Limit}})
	}
	return out
}

// CountPipeline returns the base stages followed by a $count stage. It is
// nil for find plans.
func (p *Plan) CountPipeline() []bson.D {
	if p.Kind != KindAggregate {
		return nil
	}
	out := make([]bson.D, 0, len(p.Stages)+1)
	out = append(out, p.Stages...)
	return append(out, bson.D{{Key: "$count", Value: CountField}})
}

// FindOptions returns the options of a find plan's page query.
func (p *Plan) FindOptions() store.FindOptions {
	return store.FindOptions{
		Projection: p.Projection,
		Sort:       p.Sort,
		Skip:       p.Skip,
		Limit:      p.Limit,
		Collation:  p.Collation,
	}
}

// AggregateOptions returns the options of an aggregate plan's page query.
func (p *Plan) AggregateOptions() store.AggregateOptions {
	return store.AggregateOptions{Collation: p.Collation}
}

// NeedsPage reports whether executing the plan fetches documents.
func (p *Plan) NeedsPage() bool {
	return p.Result != query.ResultCount
}

// NeedsCount reports whether executing the plan counts documents.
func (p *Plan) NeedsCount() bool {
	return p.Result != query.ResultValue
}
