package config

import (
	"fmt"
	"strings"
)

// ValidationError collects every problem found in a configuration so they
// can be reported together
type ValidationError struct {
	Errors []error
}

// NewValidationError creates an empty ValidationError
func NewValidationError() *ValidationError {
	return &ValidationError{Errors: make([]error, 0)}
}

// Add appends err; nil is ignored
func (v *ValidationError) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// HasErrors returns true if any error was added
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	switch len(v.Errors) {
	case 0:
		return ""
	case 1:
		return v.Errors[0].Error()
	}

	lines := make([]string, 0, len(v.Errors)+1)
	lines = append(lines, fmt.Sprintf("found %d configuration errors:", len(v.Errors)))
	for i, err := range v.Errors {
		lines = append(lines, fmt.Sprintf("  %d. %v", i+1, err))
	}
	return strings.Join(lines, "\n")
}

// Unwrap exposes every collected error to errors.Is and errors.As
func (v *ValidationError) Unwrap() []error {
	return v.Errors
}

// ErrorOrNil returns v if it holds errors, otherwise nil
func (v *ValidationError) ErrorOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
