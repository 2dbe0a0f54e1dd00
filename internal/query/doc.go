// Package query defines the protocol-level query request and its results.
//
// A Descriptor is the already-parsed form of an OData-style read: filter
// predicate, projection, ordered sort, pagination, relationship expansion
// and count flags. It is built per call by the protocol front-end and is
// owned by the caller; the adapter mutates Filter in place while normalizing
// identifiers and paths.
//
// A Result has one of three shapes, matching what the front-end serializes:
//
//	ResultValue   [doc, doc, ...]
//	ResultCount   {"count": n}
//	ResultInline  {"count": n, "value": [doc, ...]}
//
// Validate checks a descriptor against a model before any store access, so
// an unknown relationship name fails with a clear error instead of a lookup
// against a missing join definition.
package query
