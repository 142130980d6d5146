package gist

import (
	"errors"
	"fmt"
)

// Category classifies pipeline errors.
type Category string

const (
	// CategoryTransient covers network failures and rate limits. Retried with backoff.
	CategoryTransient Category = "transient"
	// CategoryValidation covers malformed structured output. Retried once, then degraded.
	CategoryValidation Category = "validation"
	// CategoryConfiguration covers missing mappings or credentials. Never retried.
	CategoryConfiguration Category = "configuration"
	// CategoryContent covers unparseable source content.
	CategoryContent Category = "content"
	CategoryUnknown Category = "unknown"
)

// Error is a categorized error raised by a pipeline operation.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(c Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: c, Op: op, Err: err}
}

// Transient wraps err as a transient transport error.
func Transient(op string, err error) error { return newError(CategoryTransient, op, err) }

// Validation wraps err as a structured output validation error.
func Validation(op string, err error) error { return newError(CategoryValidation, op, err) }

// Configuration wraps err as a configuration error.
func Configuration(op string, err error) error { return newError(CategoryConfiguration, op, err) }

// Content wraps err as a source content error.
func Content(op string, err error) error { return newError(CategoryContent, op, err) }

// CategoryOf returns the category of the first categorized error in err's chain.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Category
	}
	return CategoryUnknown
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return CategoryOf(err) == CategoryTransient
}
