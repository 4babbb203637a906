package model

import (
	"time"

	"github.com/okian/clutch/internal/domain/analysisconfig"
)

// StreamJob is the work-dispatch message for one stream of one session.
type StreamJob struct {
	SessionID       string
	SubjectID       string
	VideoRef        string
	Sport           string
	SessionType     SessionType
	Tags            []string
	FPS             float64
	DurationSeconds float64
	Width           int
	Height          int
	Stream          StreamKind
	Config          analysisconfig.Config
	EnqueuedAt      time.Time
}

// StreamEvent announces a terminal (or cancellation) change on a session.
type StreamEvent struct {
	SessionID string
	Stream    StreamKind
	Status    StreamStatus
	Error     string
}

// Notification types sent downstream.
const (
	NotificationReportReady   = "report_ready"
	NotificationSessionFailed = "session_failed"
)

// Notification is the downstream message emitted when a session ends.
type Notification struct {
	Type                  string        `json:"type"`
	SessionID             string        `json:"session_id"`
	SubjectID             string        `json:"subject_id"`
	Sport                 string        `json:"sport"`
	SessionType           SessionType   `json:"session_type"`
	Status                SessionStatus `json:"status"`
	FailedStream          StreamKind    `json:"failed_stream,omitempty"`
	Error                 string        `json:"error,omitempty"`
	ChampionshipReadiness float64       `json:"championship_readiness,omitempty"`
	Level                 string        `json:"level,omitempty"`
	At                    time.Time     `json:"at"`
}

// NewNotification builds the downstream message for a terminal session.
func NewNotification(s Session, at time.Time) Notification {
	n := Notification{
		Type:         NotificationSessionFailed,
		SessionID:    s.ID,
		SubjectID:    s.SubjectID,
		Sport:        s.Sport,
		SessionType:  s.SessionType,
		Status:       s.Status,
		FailedStream: s.FailedStream,
		Error:        s.Error,
		At:           at,
	}
	if s.Status == SessionCompleted {
		n.Type = NotificationReportReady
		if s.Report != nil {
			n.ChampionshipReadiness = s.Report.Composite.ChampionshipReadiness
			n.Level = s.Report.Composite.Level
		}
	}
	return n
}
