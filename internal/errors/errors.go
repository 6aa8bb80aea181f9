package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes for a single authentication attempt. A fatal error resets
// only that attempt's transient state, never the whole flow.
var (
	// ErrNetwork marks a transport failure or a non-2xx response with no
	// parseable body.
	ErrNetwork = errors.New("network failure")

	// ErrExchangeFailed marks a non-2xx response whose body carried a server
	// message; the message is wrapped verbatim.
	ErrExchangeFailed = errors.New("identity exchange failed")

	// ErrCSRFMismatch marks an absent or non-matching state token. Never
	// retried silently.
	ErrCSRFMismatch = errors.New("csrf state mismatch")

	// ErrMissingToken marks a 2xx response without the token field it was
	// required to carry.
	ErrMissingToken = errors.New("response missing token")

	// ErrProviderDenied marks an authorization failure reported by the
	// provider on the return URL.
	ErrProviderDenied = errors.New("provider authorization denied")

	// ErrNoPendingCallback marks a completion attempt with no unconsumed
	// callback staged.
	ErrNoPendingCallback = errors.New("no pending oauth callback")

	// ErrNotAuthenticated marks an operation that requires a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Violation is one structured validation failure, either produced locally or
// decoded from a 400/422 response body.
type Violation struct {
	PropertyPath string `json:"propertyPath,omitempty"`
	Message      string `json:"message"`
}

// ValidationError carries a list of violations whose messages are surfaced
// verbatim.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.PropertyPath != "" {
			msgs = append(msgs, v.PropertyPath+": "+v.Message)
			continue
		}
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}

// NewValidation builds a ValidationError from bare messages.
func NewValidation(messages ...string) *ValidationError {
	violations := make([]Violation, 0, len(messages))
	for _, m := range messages {
		violations = append(violations, Violation{Message: m})
	}
	return &ValidationError{Violations: violations}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
