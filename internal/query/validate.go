package query

import (
	"errors"
	"fmt"

	"github.com/roach88/odatamongo/internal/model"
)

// ValidationErrorCode categorizes descriptor validation failures.
type ValidationErrorCode string

const (
	// ErrCodeUnknownEntitySet means expansion was requested on a collection
	// the model does not describe.
	ErrCodeUnknownEntitySet ValidationErrorCode = "UNKNOWN_ENTITY_SET"

	// ErrCodeUnknownRelationship means an expand name has no join definition.
	ErrCodeUnknownRelationship ValidationErrorCode = "UNKNOWN_RELATIONSHIP"

	// ErrCodeInvalidPagination means skip or limit is negative.
	ErrCodeInvalidPagination ValidationErrorCode = "INVALID_PAGINATION"

	// ErrCodeConflictingCount means both count and inlinecount were requested.
	ErrCodeConflictingCount ValidationErrorCode = "CONFLICTING_COUNT"
)

// ValidationError reports a descriptor that cannot be planned.
type ValidationError struct {
	Code    ValidationErrorCode
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UnknownRelationship builds the error returned for an expand name with no
// join definition on collection.
func UnknownRelationship(collection, name string) *ValidationError {
	return &ValidationError{
		Code:    ErrCodeUnknownRelationship,
		Field:   "expand",
		Message: fmt.Sprintf("entity set %q has no relationship %q", collection, name),
	}
}

// Validate checks d against m for the given collection.
//
// All problems are collected; the returned error joins them, and errors.As
// yields the first *ValidationError. A nil model is valid for descriptors
// without expansion.
func Validate(d *Descriptor, collection string, m *model.Model) error {
	v := &validator{}
	v.validatePagination(d)
	v.validateCount(d)
	v.validateExpand(d, collection, m)

	if len(v.errs) == 0 {
		return nil
	}
	return errors.Join(v.errs...)
}

// validator accumulates errors during validation.
type validator struct {
	errs []error
}

func (v *validator) add(code ValidationErrorCode, field, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) validatePagination(d *Descriptor) {
	if d.Skip < 0 {
		v.add(ErrCodeInvalidPagination, "skip", "skip must not be negative, got %d", d.Skip)
	}
	if d.Limit < 0 {
		v.add(ErrCodeInvalidPagination, "limit", "limit must not be negative, got %d", d.Limit)
	}
}

func (v *validator) validateCount(d *Descriptor) {
	if d.Count && d.InlineCount {
		v.add(ErrCodeConflictingCount, "count", "count and inlinecount are mutually exclusive")
	}
}

func (v *validator) validateExpand(d *Descriptor, collection string, m *model.Model) {
	if !d.HasExpand() {
		return
	}

	es, ok := m.EntitySet(collection)
	if !ok {
		v.add(ErrCodeUnknownEntitySet, "expand", "collection %q is not an entity set in the model", collection)
		return
	}

	for _, name := range d.Expand {
		if _, ok := es.Joins[name]; !ok {
			v.errs = append(v.errs, UnknownRelationship(collection, name))
		}
	}
}
