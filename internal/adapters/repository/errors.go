package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound          = errors.New("session not found")
	ErrExists            = errors.New("session already exists")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrPrecondition      = errors.New("precondition not met")
	ErrInvalidTransition = errors.New("invalid stream transition")
	ErrSummaryExists     = errors.New("stream summary already stored")
	ErrReportExists      = errors.New("final report already stored")
	ErrSynthesisStarted  = errors.New("synthesis already started")
	ErrSessionTerminal   = errors.New("session already terminal")
	ErrCorruptChunk      = errors.New("corrupt frame chunk")
	ErrSchemaMismatch    = errors.New("schema version mismatch")
)
