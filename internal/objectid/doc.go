// Package objectid converts identifier-shaped strings into native ObjectIDs.
//
// The protocol layer renders every identifier as a 24-character hex string.
// The store compares identifiers by native type, so a filter such as
// {"_id": "5aff78d7338df4299c104002"} matches nothing until the string is
// replaced by the ObjectID it spells.
//
// Which keys are eligible depends on the Policy:
//
//	PolicyPrimaryKey   _id only
//	PolicyForeignKeys  _id, any key containing "Id", arrays under keys containing "Ids"
//	PolicyOperators    the above, plus keys starting with "$" (and arrays they hold)
//
// The zero Policy, PolicyDefault, applies DefaultPolicy (PolicyOperators).
//
// Coercion never fails on content: strings that are not exactly 24 hex
// characters are left alone, and values that are already ObjectIDs are not
// strings, so applying a Coercer twice is the same as applying it once.
package objectid
