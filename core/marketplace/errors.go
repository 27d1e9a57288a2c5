package marketplace

import "fmt"

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

// Sentinel roots for the failure taxonomy. Every engine error wraps exactly
// one of these so callers can map it to a transport response with errors.Is.
var (
	// ErrNotFound: the referenced entity does not exist.
	ErrNotFound = Err("not found")
	// ErrConflict: a conditional update matched zero rows (slot full,
	// already reviewed, already disputed). Surfaced immediately, never
	// retried silently.
	ErrConflict = Err("conflict")
	// ErrValidation: malformed input, rejected before any state mutation.
	ErrValidation = Err("validation failed")
	// ErrForbidden: the acting identity may not perform this transition.
	ErrForbidden = Err("forbidden")
)

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrConflict with context.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Validationf wraps ErrValidation with context.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Forbiddenf wraps ErrForbidden with context.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrForbidden}, args...)...)
}
