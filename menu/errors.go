package menu

import "github.com/cockroachdb/errors"

// ErrNotFound is returned when a category or item id does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports a rejected field. The message is safe to show users.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
