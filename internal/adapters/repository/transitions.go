package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/clutch/internal/domain/model"
)

// CancelledReason is the stream error recorded by CancelSession.
const CancelledReason = "cancelled"

// TransitionStream moves one stream forward. Moving a stream of a terminal
// session, or any backward move, returns ErrInvalidTransition.
func TransitionStream(ctx context.Context, st Store, id string, kind model.StreamKind, to model.StreamStatus, errMsg string) (model.Session, error) {
	return st.Update(ctx, id, func(s *model.Session) error {
		stream := s.Stream(kind)
		if s.Status.Terminal() && to == model.StreamProcessing {
			return fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, id, s.Status)
		}
		if !stream.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, kind, stream.Status, to)
		}
		now := time.Now().UTC()
		stream.Status = to
		switch to {
		case model.StreamProcessing:
			stream.StartedAt = &now
		case model.StreamFailed:
			stream.Error = errMsg
			stream.FinishedAt = &now
		case model.StreamCompleted:
			stream.Error = ""
			stream.FinishedAt = &now
		}
		return nil
	})
}

// RecordAttempt increments the attempt counter of a processing stream and
// returns the new count.
func RecordAttempt(ctx context.Context, st Store, id string, kind model.StreamKind, lastErr string) (int, error) {
	s, err := st.Update(ctx, id, func(s *model.Session) error {
		stream := s.Stream(kind)
		if stream.Status != model.StreamProcessing {
			return fmt.Errorf("%w: %s is %s", ErrPrecondition, kind, stream.Status)
		}
		stream.Attempts++
		stream.Error = lastErr
		return nil
	})
	if err != nil {
		return 0, err
	}
	return s.Stream(kind).Attempts, nil
}

// MarkSynthesisDispatched is the compare-and-set that elects the single
// synthesis run of a session. It succeeds only when both streams completed,
// synthesis was not dispatched yet and the session is still pending.
func MarkSynthesisDispatched(ctx context.Context, st Store, id string) (bool, error) {
	_, err := st.Update(ctx, id, func(s *model.Session) error {
		if !s.BothCompleted() || s.SynthesisDispatched || s.Status != model.SessionPending {
			return ErrPrecondition
		}
		s.SynthesisDispatched = true
		s.Status = model.SessionAnalyzing
		return nil
	})
	return precondition(err)
}

// FailSession marks a non-terminal session failed, naming the failing stream
// (empty for synthesis failures) and its error.
func FailSession(ctx context.Context, st Store, id string, kind model.StreamKind, msg string) (bool, error) {
	_, err := st.Update(ctx, id, func(s *model.Session) error {
		if s.Status.Terminal() {
			return ErrPrecondition
		}
		s.Status = model.SessionFailed
		s.FailedStream = kind
		s.Error = msg
		return nil
	})
	return precondition(err)
}

// CompleteSession marks an analyzing session completed.
func CompleteSession(ctx context.Context, st Store, id string) (bool, error) {
	_, err := st.Update(ctx, id, func(s *model.Session) error {
		if s.Status != model.SessionAnalyzing {
			return ErrPrecondition
		}
		s.Status = model.SessionCompleted
		s.Error = ""
		return nil
	})
	return precondition(err)
}

// CancelSession fails every non-terminal stream and the session itself.
// Returns ErrSynthesisStarted once synthesis was dispatched and
// ErrSessionTerminal for finished sessions.
func CancelSession(ctx context.Context, st Store, id string) (model.Session, error) {
	return abort(ctx, st, id, "", CancelledReason, true)
}

// AbortSession fails every non-terminal stream with reason and fails the
// session, naming kind (or the first aborted stream when kind is empty).
// It has the preconditions of CancelSession.
func AbortSession(ctx context.Context, st Store, id string, kind model.StreamKind, reason string) (model.Session, error) {
	return abort(ctx, st, id, kind, reason, false)
}

func abort(ctx context.Context, st Store, id string, kind model.StreamKind, reason string, cancelled bool) (model.Session, error) {
	return st.Update(ctx, id, func(s *model.Session) error {
		if s.SynthesisDispatched {
			return fmt.Errorf("%w: %s", ErrSynthesisStarted, id)
		}
		if s.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrSessionTerminal, id, s.Status)
		}
		now := time.Now().UTC()
		s.FailedStream = kind
		for _, k := range model.Streams() {
			stream := s.Stream(k)
			if stream.Status.Terminal() {
				continue
			}
			stream.Status = model.StreamFailed
			stream.Error = reason
			stream.FinishedAt = &now
			if s.FailedStream == "" {
				s.FailedStream = k
			}
		}
		s.Cancelled = cancelled
		s.Status = model.SessionFailed
		s.Error = reason
		return nil
	})
}

func precondition(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrPrecondition):
		return false, nil
	default:
		return false, err
	}
}
