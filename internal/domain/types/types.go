// Package types contains the read-side views returned by the HTTP API.
package types

import (
	"time"

	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/progression"
)

// StreamView is the public state of one stream.
type StreamView struct {
	Status     model.StreamStatus `json:"status"`
	Attempts   int                `json:"attempts"`
	Error      string             `json:"error,omitempty"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// SessionView is the status of a session plus its report once present.
type SessionView struct {
	ID              string                          `json:"id"`
	SubjectID       string                          `json:"subject_id"`
	Sport           string                          `json:"sport"`
	SessionType     model.SessionType               `json:"session_type"`
	VideoRef        string                          `json:"video_ref"`
	DurationSeconds float64                         `json:"duration_seconds"`
	Status          model.SessionStatus             `json:"status"`
	Streams         map[model.StreamKind]StreamView `json:"streams"`
	FailedStream    model.StreamKind                `json:"failed_stream,omitempty"`
	Error           string                          `json:"error,omitempty"`
	Cancelled       bool                            `json:"cancelled,omitempty"`
	CreatedAt       time.Time                       `json:"created_at"`
	UpdatedAt       time.Time                       `json:"updated_at"`
	Report          *model.FinalReport              `json:"report,omitempty"`
}

// NewSessionView projects a session.
func NewSessionView(s model.Session) SessionView {
	v := SessionView{
		ID:              s.ID,
		SubjectID:       s.SubjectID,
		Sport:           s.Sport,
		SessionType:     s.SessionType,
		VideoRef:        s.VideoRef,
		DurationSeconds: s.DurationSeconds,
		Status:          s.Status,
		Streams:         make(map[model.StreamKind]StreamView, 2),
		FailedStream:    s.FailedStream,
		Error:           s.Error,
		Cancelled:       s.Cancelled,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	for _, kind := range model.Streams() {
		st := s.Stream(kind)
		v.Streams[kind] = StreamView{
			Status: st.Status, Attempts: st.Attempts, Error: st.Error,
			StartedAt: st.StartedAt, FinishedAt: st.FinishedAt,
		}
	}
	if s.Report != nil {
		r := s.Report.Clone()
		v.Report = &r
	}
	return v
}

// SessionBrief is one row of a subject history.
type SessionBrief struct {
	ID                    string              `json:"id"`
	Sport                 string              `json:"sport"`
	SessionType           model.SessionType   `json:"session_type"`
	Status                model.SessionStatus `json:"status"`
	CreatedAt             time.Time           `json:"created_at"`
	ChampionshipReadiness *float64            `json:"championship_readiness,omitempty"`
	Level                 string              `json:"level,omitempty"`
}

// HistoryView is the session history and progression of a subject.
type HistoryView struct {
	SubjectID   string              `json:"subject_id"`
	WindowDays  int                 `json:"window_days"`
	Sessions    []SessionBrief      `json:"sessions"`
	Progression progression.Summary `json:"progression"`
}

// NewHistoryView projects the history of a subject.
func NewHistoryView(subjectID string, windowDays int, sessions []model.Session, p progression.Summary) HistoryView {
	h := HistoryView{
		SubjectID:   subjectID,
		WindowDays:  windowDays,
		Sessions:    make([]SessionBrief, 0, len(sessions)),
		Progression: p,
	}
	for _, s := range sessions {
		b := SessionBrief{ID: s.ID, Sport: s.Sport, SessionType: s.SessionType, Status: s.Status, CreatedAt: s.CreatedAt}
		if s.Report != nil {
			r := s.Report.Composite.ChampionshipReadiness
			b.ChampionshipReadiness = &r
			b.Level = s.Report.Composite.Level
		}
		h.Sessions = append(h.Sessions, b)
	}
	return h
}

// Accepted is the response to a new ingestion.
type Accepted struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

// Ingestion response statuses.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
	StatusCancelled = "cancelled"
)
