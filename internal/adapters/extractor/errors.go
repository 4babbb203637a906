package extractor

import "errors"

var (
	// ErrTimeout is returned when the model does not answer in time.
	ErrTimeout = errors.New("model response timed out")
	// ErrMessageTooLarge rejects oversized frames in either direction.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	// ErrInvalidResponse reports an undecodable or out-of-range response.
	ErrInvalidResponse = errors.New("invalid model response")
	// ErrModel wraps an error reported by the model for one frame.
	ErrModel = errors.New("model error")
	// ErrNoCommand is returned when no command is configured for a kind.
	ErrNoCommand = errors.New("no model command configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("extractor closed")
)
