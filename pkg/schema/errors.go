package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRequired is the cause of a FieldError for a missing mandatory answer.
var ErrRequired = errors.New("answer required")

// FieldError is one answer rejected during lead validation.
type FieldError struct {
	Field     string // answer key
	Label     string // what the user was asked for
	Validator string // Type name, or "required"
	Err       error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.label(), e.Validator, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) label() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Field
}

// FieldErrors lists rejected answers in field order.
type FieldErrors []*FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the individual causes to errors.Is.
func (fe FieldErrors) Unwrap() []error {
	errs := make([]error, len(fe))
	for i, e := range fe {
		errs[i] = e
	}
	return errs
}

// ByField maps each rejected field to a short "validator: reason" text.
func (fe FieldErrors) ByField() map[string]any {
	out := make(map[string]any, len(fe))
	for _, e := range fe {
		out[e.Field] = fmt.Sprintf("%s: %v", e.Validator, e.Err)
	}
	return out
}

// AsFieldErrors returns the rejected answers carried by err, if any.
func AsFieldErrors(err error) FieldErrors {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}
