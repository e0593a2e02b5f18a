package sandbox

import (
	"errors"

	"aca-sandbox/internal/runtime"
)

// Category is the failure class of an execution.
type Category string

const (
	CategoryNone            Category = "none"
	CategorySyntax          Category = "syntax"
	CategoryRuntime         Category = "runtime"
	CategoryPolicyViolation Category = "policy_violation"
	// CategoryTimeout is reserved: time limits are advisory and only ever
	// produce a warning.
	CategoryTimeout Category = "timeout_exceeded"
)

// Classify maps an execution failure to its category and the diagnostic
// shown to the learner. It is total: a nil error is CategoryNone and any
// error it does not recognize is a runtime failure.
func Classify(err error) (Category, string) {
	if err == nil {
		return CategoryNone, ""
	}

	var rtErr *runtime.Error
	if errors.As(err, &rtErr) {
		switch rtErr.Phase {
		case runtime.PhaseParse:
			return CategorySyntax, rtErr.Diagnostic()
		case runtime.PhasePolicy:
			return CategoryPolicyViolation, rtErr.Diagnostic()
		default:
			return CategoryRuntime, rtErr.Diagnostic()
		}
	}

	switch {
	case errors.Is(err, ErrDenied),
		errors.Is(err, ErrUnsupportedLang),
		errors.Is(err, ErrUnknownCapabilities),
		errors.Is(err, ErrInvalidRequest):
		return CategoryPolicyViolation, err.Error()
	default:
		return CategoryRuntime, err.Error()
	}
}
