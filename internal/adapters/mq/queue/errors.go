package queue

import "errors"

// Sentinel errors for callers that need an error instead of a bool.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)
