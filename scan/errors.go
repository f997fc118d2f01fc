package scan

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindUpstreamUnavailable covers transport failures and non-success
	// responses from the proxy. Reads are side-effect free; callers may
	// retry at their own policy.
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"

	// KindNotFound means the expected singleton was absent from the
	// response (e.g. no rules contract currently published).
	KindNotFound Kind = "NotFound"
)

// Error is the client's structured error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, cause error) error {
	if cause == nil {
		return newError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}
