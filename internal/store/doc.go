// Package store is the boundary between the adapter and the document store.
//
// The adapter never talks to the driver directly. It asks a Resolver for a
// Handle, takes a Collection from it, and issues exactly the round-trips a
// plan needs: Find or Aggregate for reads, CountDocuments for totals, Insert,
// UpdateOne and DeleteMany for mutations. Every method takes the caller's
// context; deadlines, retries and session binding belong to the context and
// the driver, not to this package.
//
// # Implementations
//
//   - Mongo: a MongoDB client opened with Open. It is both a Resolver and a
//     Handle, so one value serves every call.
//   - FromDatabase: wraps an existing *mongo.Database, for callers that want
//     a per-call override bound to their own client or session.
//   - testutil.MemStore: an in-memory Handle used by tests.
//
// # Results
//
// Reads are fully materialized ([]bson.M); the adapter never holds a cursor
// across calls. Mutation results mirror the driver's acknowledgments and
// are handed back to the caller unmodified.
package store
