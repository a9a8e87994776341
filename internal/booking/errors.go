package booking

import "errors"

// The engine's error taxonomy. All five are recoverable: each is returned to
// the caller as a distinct typed result, never treated as fatal. HTTP mapping
// (409/404/400/500) is the caller layer's concern.
var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalidTimeSlot  = errors.New("invalid time slot")
	ErrTimeSlotConflict = errors.New("time slot conflict")
	ErrBookingNotFound  = errors.New("booking not found")
)

// StorageError wraps an unexpected datastore failure. The underlying cause is
// retained for logs; callers must redact it before surfacing to end users.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// isTyped reports whether err is one of the engine's typed results that a
// Store implementation may pass through unchanged.
func isTyped(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrInvalidTimeSlot) ||
		errors.Is(err, ErrTimeSlotConflict) ||
		errors.Is(err, ErrBookingNotFound)
}
