// Package quote is the pure computation core of the quoting service: the
// unfolded-sheet geometry of a regular slotted box, the tiered price-per-area
// resolver and the assembler that turns an ordered list of box specs into a
// priced quote.
//
// Nothing in this package performs I/O. Callers pass the active pricing
// configuration and the clock explicitly so the same inputs always yield the
// same quote.
package quote

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidationFailed reports malformed or out-of-range input. The
	// concrete error is a *ValidationError carrying per-field messages.
	ErrValidationFailed = errors.New("validation failed")

	// ErrTooManyLines is returned when a quote request carries more lines
	// than MaxLines.
	ErrTooManyLines = errors.New("too many lines")

	// ErrBelowAbsoluteMinimum is returned by the strict policy when the total
	// area of a quote is under the configured absolute floor.
	ErrBelowAbsoluteMinimum = errors.New("total area below absolute minimum")

	// ErrInvalidConfig is returned when a pricing configuration cannot price
	// anything (non-positive prices or inverted thresholds).
	ErrInvalidConfig = errors.New("invalid pricing configuration")
)

// FieldError is a single field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string { return f.Field + ": " + f.Message }

// ValidationError aggregates every field problem found in one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(e.Messages(), "; "))
}

// Is makes errors.Is(err, ErrValidationFailed) hold for any *ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// Messages returns the field messages in input order.
func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.String())
	}
	return out
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
