package errors

import (
	"errors"

	"github.com/davidahmann/observer/core/canon"
)

type Category string

const (
	CategoryInvalidInput     Category = "invalid_input"
	CategoryCanonicalization Category = "canonicalization_failed"
	CategoryIOFailure        Category = "io_failure"
	CategoryNetworkTransient Category = "network_transient"
	CategoryNetworkPermanent Category = "network_permanent"
	CategoryInternalFailure  Category = "internal_failure"
)

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

// CategoryOf returns the outermost classification. Unclassified
// canonicalization failures still report CategoryCanonicalization.
func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	if errors.Is(err, canon.ErrCanonicalization) {
		return CategoryCanonicalization
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}
