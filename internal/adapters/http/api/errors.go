package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/clutch/internal/adapters/repository"
	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/pipeline"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrBadWindow  = errors.New("window_days must be a positive integer")
)

// Error codes carried in error bodies.
const (
	codeBadRequest   = "bad_request"
	codeValidation   = "validation_failed"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeBackpressure = "backpressure"
	codeUnavailable  = "unavailable"
	codeInternal     = "internal_error"
)

// classify maps an upstream error to a status code and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrBadWindow):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, model.ErrValidation):
		return http.StatusUnprocessableEntity, codeValidation
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, repository.ErrSynthesisStarted), errors.Is(err, repository.ErrSessionTerminal):
		return http.StatusConflict, codeConflict
	case errors.Is(err, pipeline.ErrBackpressure):
		return http.StatusTooManyRequests, codeBackpressure
	case errors.Is(err, pipeline.ErrClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func problemsOf(err error) []ingest.Problem {
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		return verr.Problems
	}
	return nil
}
