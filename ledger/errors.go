package ledger

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"licenseworks.dev/backend/tokens"
)

// Kind is a stable category for programmatic error handling. Callers
// branch on Kind (and Unknown) rather than matching error strings.
type Kind string

const (
	// KindTransport covers connection and network failures.
	KindTransport Kind = "Transport"

	// KindUnauthenticated means no bearer token could be attached, or the
	// ledger refused the one presented. Token refresh is the token
	// source's concern; the call is not retried here.
	KindUnauthenticated Kind = "Unauthenticated"

	// KindRejected means the ledger refused the batch synchronously
	// (malformed request). The command definitely did not execute.
	KindRejected Kind = "Rejected"

	// KindCommandRejected means the ledger rejected the command for a
	// business rule (contract archived, authorization failure). The
	// command definitely did not commit.
	KindCommandRejected Kind = "CommandRejected"

	// KindTimeout means no response arrived within the deadline. The
	// command's true outcome is unknown; re-query before resubmitting.
	KindTimeout Kind = "Timeout"

	// KindCanceled means the caller canceled the wait. Cancellation does
	// not retract the command; the outcome is unknown.
	KindCanceled Kind = "Canceled"

	// KindNoRootEvent means a committed transaction carried no root
	// event. This violates a protocol invariant and is not retriable.
	KindNoRootEvent Kind = "NoRootEvent"
)

// Error is the client's structured error type.
//
// Unknown distinguishes "the command definitely did not happen" from
// "the outcome is unknown to the caller": only errors with Unknown false
// are safe to treat as definite rejections.
type Error struct {
	Kind    Kind
	Message string
	Unknown bool
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

// OutcomeUnknown reports whether err leaves the submitted command's
// outcome unknown. Resubmission is only safe under the same command id.
func OutcomeUnknown(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Unknown
}

func newError(kind Kind, msg string, unknown bool) error {
	return &Error{Kind: kind, Message: msg, Unknown: unknown}
}

func wrapErr(kind Kind, msg string, unknown bool, cause error) error {
	return &Error{Kind: kind, Message: msg, Unknown: unknown, Cause: cause}
}

// mapRPC translates a transport-level error into the client taxonomy.
//
// waiting reports whether the call was a submit-and-wait: a transport
// loss or deadline during the wait leaves the outcome unknown, while the
// same failure on a fire-and-forget submit means the batch never left.
func mapRPC(err error, waiting bool) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, tokens.ErrUnavailable) {
		return wrapErr(KindUnauthenticated, "no bearer token available", false, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapErr(KindTimeout, "deadline exceeded awaiting ledger response", waiting, err)
	}
	if errors.Is(err, context.Canceled) {
		return wrapErr(KindCanceled, "call canceled; command may still commit", waiting, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return wrapErr(KindTransport, err.Error(), waiting, err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return wrapErr(KindTimeout, "deadline exceeded awaiting ledger response", waiting, err)
	case codes.Canceled:
		return wrapErr(KindCanceled, "call canceled; command may still commit", waiting, err)
	case codes.Unauthenticated:
		return wrapErr(KindUnauthenticated, st.Message(), false, err)
	case codes.InvalidArgument:
		return wrapErr(KindRejected, st.Message(), false, err)
	case codes.FailedPrecondition, codes.Aborted, codes.NotFound,
		codes.AlreadyExists, codes.PermissionDenied, codes.OutOfRange:
		return wrapErr(KindCommandRejected, st.Message(), false, err)
	case codes.Unavailable:
		return wrapErr(KindTransport, st.Message(), waiting, err)
	default:
		return wrapErr(KindTransport, st.Message(), waiting, err)
	}
}
