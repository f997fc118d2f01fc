package licensing

import "errors"

var (
	// ErrNotFound means a contract the workflow depends on has no active
	// match. Not retriable as-is; the caller should re-check its inputs.
	ErrNotFound = errors.New("licensing: contract not found")

	// ErrStaleRound means the payment's mining round is no longer open.
	// Retriable by the caller once the payment is re-locked against a
	// current round.
	ErrStaleRound = errors.New("licensing: mining round no longer open")
)
