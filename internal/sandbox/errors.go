package sandbox

import (
	"errors"
	"fmt"

	"aca-sandbox/internal/policy"
)

// Sentinel errors for typed error checking.
var (
	ErrDenied              = errors.New("execution denied")
	ErrInvalidRequest      = errors.New("invalid execution request")
	ErrUnsupportedLang     = errors.New("unsupported language")
	ErrUnknownCapabilities = policy.ErrUnknown
	ErrSlotUnavailable     = errors.New("execution slot unavailable")
	ErrClosed              = errors.New("executor closed")
)

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	ExecID string
	Op     string // The operation that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsDenied returns true if the error is a declined confirmation.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}

// IsSlotUnavailable returns true if the caller gave up waiting for the
// execution slot.
func IsSlotUnavailable(err error) bool {
	return errors.Is(err, ErrSlotUnavailable)
}
