// Package tokens supplies bearer tokens for outbound ledger and
// reference-data calls.
//
// Each client registration (ledger audience, scan-proxy audience) gets
// its own Source. Refresh is the Source's responsibility; callers treat a
// token failure as a hard stop for the call in progress.
package tokens

import (
	"context"
	"errors"
)

// ErrUnavailable indicates that no token could be obtained. Clients
// surface this as an authentication failure and do not retry.
var ErrUnavailable = errors.New("tokens: no token available")

// Source yields a bearer token valid for the next call.
//
// Implementations must be safe for concurrent use and must serialize any
// internal refresh so concurrent callers never race on re-authentication.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed-token Source, useful for tests and pre-issued tokens.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	_ = ctx
	if s == "" {
		return "", ErrUnavailable
	}
	return string(s), nil
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }
