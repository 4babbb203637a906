package pipeline

import "errors"

var (
	// ErrBackpressure is returned when the work queue refused a stream job.
	ErrBackpressure = errors.New("work queue full")
	// ErrClosed is returned by a Coordinator after Close.
	ErrClosed = errors.New("coordinator closed")

	errNoFrames = errors.New("no frames decoded")
)
