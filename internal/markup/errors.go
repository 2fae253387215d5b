package markup

import (
	"errors"
	"fmt"
)

var (
	// ErrInputTooLarge is matched by every *InputTooLargeError.
	ErrInputTooLarge = errors.New("input too large")

	// ErrCancelled is returned when the caller's context is done at a scan boundary.
	ErrCancelled = errors.New("operation cancelled")
)

// InputTooLargeError reports text refused before any scanning took place.
type InputTooLargeError struct {
	Size  int
	Limit int
}

func (e *InputTooLargeError) Error() string {
	return fmt.Sprintf("input too large: %d bytes exceeds limit of %d", e.Size, e.Limit)
}

func (e *InputTooLargeError) Is(target error) bool {
	return target == ErrInputTooLarge
}

// Cancelled wraps the context error so callers can match either ErrCancelled
// or context.Canceled / context.DeadlineExceeded.
func Cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
