// Package pipeline compiles a query descriptor into a store plan.
//
// A descriptor without expansion becomes a find plan: filter, projection
// and sort/skip/limit options. A descriptor that expands relationships
// becomes an aggregate plan whose base stages are one $lookup per expand
// name (taken from the model's join definitions), then $match, then
// $project:
//
//	[$lookup..., $match?, $project?]          base stages
//	base + [$sort?, $skip?, $limit?]          PagePipeline
//	base + [{$count: "count"}]                CountPipeline
//
// Counts ignore sort and pagination. Sorting uses the model locale as
// collation; unsorted plans carry no collation.
//
// Compile never touches the store and never mutates the descriptor. Render
// produces a deterministic JSON form of a plan for inspection and golden
// tests.
package pipeline
