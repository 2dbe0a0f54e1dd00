package adapter

import (
	"errors"

	"github.com/roach88/odatamongo/internal/objectid"
	"github.com/roach88/odatamongo/internal/query"
)

var (
	// ErrUpdateNotSuccessful is returned when an update filter does not
	// match exactly one document. The store is left unchanged.
	ErrUpdateNotSuccessful = errors.New("update not successful")

	// ErrInsertNotSingle is returned when the store does not report exactly
	// one inserted document.
	ErrInsertNotSingle = errors.New("single document expected")

	// ErrNoHandle is returned when a call has neither a handle override nor
	// a resolver to obtain one from.
	ErrNoHandle = errors.New("no store handle available")
)

// IsRejection reports whether err is the adapter refusing a call, as
// opposed to a store or resolver failure: a validation error, an over-deep
// document, or a contract violation.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUpdateNotSuccessful) ||
		errors.Is(err, ErrInsertNotSingle) ||
		errors.Is(err, ErrNoHandle) ||
		errors.Is(err, objectid.ErrMaxDepth) ||
		query.IsValidationError(err)
}
