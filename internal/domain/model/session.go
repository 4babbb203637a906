// Package model contains domain models passed between layers.
package model

import "time"

// StreamKind names one of the two independent analysis streams.
type StreamKind string

const (
	StreamBiomechanical StreamKind = "biomechanical"
	StreamBehavioral    StreamKind = "behavioral"
)

// Streams lists both stream kinds in a stable order.
func Streams() []StreamKind {
	return []StreamKind{StreamBiomechanical, StreamBehavioral}
}

// Valid reports whether k is a known stream kind.
func (k StreamKind) Valid() bool {
	return k == StreamBiomechanical || k == StreamBehavioral
}

// StreamStatus is the lifecycle state of one stream.
type StreamStatus string

const (
	StreamPending    StreamStatus = "pending"
	StreamProcessing StreamStatus = "processing"
	StreamCompleted  StreamStatus = "completed"
	StreamFailed     StreamStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s StreamStatus) Terminal() bool {
	return s == StreamCompleted || s == StreamFailed
}

// CanTransition reports whether s may move to next. Transitions only move
// forward; pending may fail directly when a session is cancelled before the
// stream started.
func (s StreamStatus) CanTransition(next StreamStatus) bool {
	switch s {
	case StreamPending:
		return next == StreamProcessing || next == StreamFailed
	case StreamProcessing:
		return next == StreamCompleted || next == StreamFailed
	default:
		return false
	}
}

// SessionStatus is the overall lifecycle state of a session.
type SessionStatus string

const (
	// SessionPending covers the time both streams are queued or running.
	SessionPending SessionStatus = "pending"
	// SessionAnalyzing means synthesis has been dispatched.
	SessionAnalyzing SessionStatus = "analyzing"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether the session reached a final state.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SessionType classifies the context the video was recorded in.
type SessionType string

const (
	SessionTraining   SessionType = "training"
	SessionGame       SessionType = "game"
	SessionHistorical SessionType = "historical"
)

// StreamState tracks one stream inside a session.
type StreamState struct {
	Status     StreamStatus `json:"status"`
	Attempts   int          `json:"attempts"`
	Error      string       `json:"error,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// Session is the unit of work for one ingested video.
type Session struct {
	ID              string      `json:"id"`
	SubjectID       string      `json:"subject_id"`
	VideoRef        string      `json:"video_ref"`
	Format          string      `json:"format"`
	Sport           string      `json:"sport"`
	SessionType     SessionType `json:"session_type"`
	Tags            []string    `json:"tags,omitempty"`
	DurationSeconds float64     `json:"duration_seconds"`
	FPS             float64     `json:"fps"`
	Width           int         `json:"width"`
	Height          int         `json:"height"`

	Biomechanical StreamState `json:"biomechanical"`
	Behavioral    StreamState `json:"behavioral"`

	Status              SessionStatus `json:"status"`
	FailedStream        StreamKind    `json:"failed_stream,omitempty"`
	Error               string        `json:"error,omitempty"`
	SynthesisDispatched bool          `json:"synthesis_dispatched"`
	Cancelled           bool          `json:"cancelled"`

	// Version is the optimistic concurrency token bumped on every update.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Summaries and the report live in their own sub-records; stores fill
	// them on read.
	BiomechanicalSummary *BiomechanicalSummary `json:"-"`
	BehavioralSummary    *BehavioralSummary    `json:"-"`
	Report               *FinalReport          `json:"-"`
}

// Stream returns a pointer to the state of the given stream.
func (s *Session) Stream(kind StreamKind) *StreamState {
	if kind == StreamBehavioral {
		return &s.Behavioral
	}
	return &s.Biomechanical
}

// BothCompleted reports whether both streams completed.
func (s *Session) BothCompleted() bool {
	return s.Biomechanical.Status == StreamCompleted && s.Behavioral.Status == StreamCompleted
}

// BothTerminal reports whether both streams reached a terminal status.
func (s *Session) BothTerminal() bool {
	return s.Biomechanical.Status.Terminal() && s.Behavioral.Status.Terminal()
}

// FirstFailure returns the first failed stream in stable order.
func (s *Session) FirstFailure() (StreamKind, string, bool) {
	for _, kind := range Streams() {
		st := s.Stream(kind)
		if st.Status == StreamFailed {
			return kind, st.Error, true
		}
	}
	return "", "", false
}

// Clone returns a deep copy, including slices and sub-records.
func (s Session) Clone() Session {
	out := s
	out.Tags = append([]string(nil), s.Tags...)
	out.Biomechanical = s.Biomechanical.clone()
	out.Behavioral = s.Behavioral.clone()
	if s.BiomechanicalSummary != nil {
		c := s.BiomechanicalSummary.Clone()
		out.BiomechanicalSummary = &c
	}
	if s.BehavioralSummary != nil {
		c := s.BehavioralSummary.Clone()
		out.BehavioralSummary = &c
	}
	if s.Report != nil {
		c := s.Report.Clone()
		out.Report = &c
	}
	return out
}

func (st StreamState) clone() StreamState {
	out := st
	if st.StartedAt != nil {
		t := *st.StartedAt
		out.StartedAt = &t
	}
	if st.FinishedAt != nil {
		t := *st.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
