package confirmation

import (
	"errors"
	"fmt"
)

var (
	// ErrTicketNotFound is returned when the target ticket does not exist
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrTicketTypeMismatch is returned when the submission type does not fit the ticket decision
	ErrTicketTypeMismatch = errors.New("confirmation type does not match ticket decision")
)

// ValidationError describes one rejected submission field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
