package worker

import "errors"

var (
	// ErrPanic wraps a recovered handler panic.
	ErrPanic = errors.New("handler panicked")
	// ErrShutdownTimeout is returned when workers outlive the shutdown deadline.
	ErrShutdownTimeout = errors.New("worker pool shutdown timed out")
)
