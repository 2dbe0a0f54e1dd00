// Package adapter serves OData-style reads and writes from a document
// store.
//
// Four verbs make up the surface:
//
//	Query   descriptor -> documents, {count} or {count, value}
//	Insert  document   -> document with _id
//	Update  filter, update -> matched count (always 1)
//	Remove  filter     -> store acknowledgment
//
// Every verb first coerces 24-hex identifier strings to ObjectIDs according
// to the configured policy; Query also rewrites "a/b" filter paths to "a.b"
// and validates expansion against the model. Queries that expand
// relationships run as aggregation pipelines, everything else as plain
// finds (see package pipeline).
//
// The store handle is resolved per call through a store.Resolver, unless
// the call passes WithHandle (or, through Register, a context built with
// NewContext). Store and resolver errors are returned verbatim; the adapter
// adds only ErrUpdateNotSuccessful, ErrInsertNotSingle, ErrNoHandle,
// objectid.ErrMaxDepth and *query.ValidationError.
//
// Each call is logged under a call_id and, when a metrics.Recorder is
// configured, counted by outcome.
package adapter
