package model

import (
	"context"
	"errors"
)

// Error kinds of the pipeline taxonomy. Use errors.Is against these.
var (
	ErrValidation = errors.New("validation failed")
	ErrTransient  = errors.New("transient stream failure")
	ErrFatal      = errors.New("fatal stream failure")
	ErrDecode     = errors.New("video decode failed")
	ErrSynthesis  = errors.New("synthesis failed")
	ErrCancelled  = errors.New("session cancelled")
)

// Error carries the failing operation, the taxonomy kind and the cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Op + ": " + e.Kind.Error()
	case e.Kind == nil:
		return e.Op + ": " + e.Err.Error()
	default:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// WrapKind annotates err with op and kind. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind builds an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal) || errors.Is(err, ErrDecode) || errors.Is(err, ErrValidation)
}

// IsRetryable reports whether a stream attempt failing with err may be retried.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) || errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
