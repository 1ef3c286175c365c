// Package alerting implements the alert lifecycle: per-type configuration,
// event ingestion with deduplication, and recorded lifecycle actions.
package alerting

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAction is returned when a caller requests an unrecognized
// lifecycle action.
var ErrInvalidAction = errors.New("invalid alert action")

// ErrAlertNotFound is returned when an operation targets a missing alert.
var ErrAlertNotFound = errors.New("alert not found")

// ValidationError carries per-field validation messages. Nothing is
// persisted when validation fails.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// newValidationError builds a single-field validation error.
func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
