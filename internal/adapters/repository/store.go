// Package repository persists sessions, stream summaries, frame series and
// final reports.
package repository

import (
	"context"
	"time"

	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/pkg/metrics"
)

// Store provides read/write access to session state.
//
// A session record is mutated only through Update, which applies the change
// under an optimistic version check. Summaries, frame chunks and the report
// are stored as separate sub-records; summaries and the report are written
// once.
type Store interface {
	// Create inserts a new session. Returns ErrExists for a duplicate id.
	Create(ctx context.Context, s model.Session) error

	// Get returns the session with its summaries and report filled in.
	// Returns ErrNotFound if the session is unknown.
	Get(ctx context.Context, id string) (model.Session, error)

	// BySubject returns the sessions of a subject created at or after since,
	// oldest first, with summaries and reports filled in.
	BySubject(ctx context.Context, subjectID string, since time.Time) ([]model.Session, error)

	// Update applies fn to a copy of the session record and stores the result
	// with a bumped version. fn sees the record without sub-records. Any error
	// returned by fn aborts the update and is returned unchanged. Returns
	// ErrConflict when concurrent writers keep winning.
	Update(ctx context.Context, id string, fn func(*model.Session) error) (model.Session, error)

	// SaveSummary stores the summary of one stream. Returns ErrSummaryExists
	// if that stream already has one.
	SaveSummary(ctx context.Context, id string, sum model.StreamSummary) error

	// AppendChunk stores one encoded chunk of a frame series. Writing the same
	// index twice keeps the first blob.
	AppendChunk(ctx context.Context, id string, kind model.StreamKind, index int, blob []byte) error

	// Chunks returns the stored chunks of a frame series ordered by index.
	Chunks(ctx context.Context, id string, kind model.StreamKind) ([][]byte, error)

	// SaveReport stores the final report. Returns ErrReportExists if one is
	// already stored.
	SaveReport(ctx context.Context, id string, r model.FinalReport) error

	// Count returns the number of sessions.
	Count(ctx context.Context) (int, error)

	Close() error
}

const maxUpdateAttempts = 8

func observe(driver, op string, start time.Time) {
	metrics.RecordStoreLatency(driver, op, float64(time.Since(start).Microseconds())/1000)
}
