package shared

import "errors"

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrContention indicates a lock wait or serialization failure; the
	// transaction left no writes behind and the caller may retry.
	ErrContention = errors.New("transaction contention, retry")
)
