package model

import (
	"maps"
	"slices"
)

// JointStats aggregates one tracked joint angle across valid frames.
type JointStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// BiomechanicalSummary is the aggregate of a completed biomechanical stream.
// Component scores are in [0,1]; Overall is in [0,100].
type BiomechanicalSummary struct {
	Consistency      float64               `json:"consistency"`
	Efficiency       float64               `json:"efficiency"`
	Power            float64               `json:"power"`
	Timing           float64               `json:"timing"`
	PeakVelocity     float64               `json:"peak_velocity"`
	RhythmStability  float64               `json:"rhythm_consistency"`
	PhaseDurations   map[string]float64    `json:"phase_durations"`
	Joints           map[string]JointStats `json:"joints"`
	Overall          float64               `json:"overall"`
	ValidFrames      int                   `json:"valid_frames"`
	TotalFrames      int                   `json:"total_frames"`
	NoDetection      int                   `json:"no_detection_frames"`
	ExtractorErrors  int                   `json:"extractor_errors"`
	DominantPhase    string                `json:"dominant_phase,omitempty"`
	PowerPhase       string                `json:"power_phase"`
	TrackedLandmark  string                `json:"tracked_landmark"`
	SampledStride    int                   `json:"sampled_stride"`
	MeanJerk         float64               `json:"mean_jerk"`
	MeanConfidence   float64               `json:"mean_confidence"`
	PhaseTransitions int                   `json:"phase_transitions"`
}

// Clone returns a deep copy.
func (s BiomechanicalSummary) Clone() BiomechanicalSummary {
	out := s
	out.PhaseDurations = maps.Clone(s.PhaseDurations)
	out.Joints = maps.Clone(s.Joints)
	return out
}

// ComposureResilience details the behavioral signature metric.
type ComposureResilience struct {
	Score            float64   `json:"score"`
	FacialStability  float64   `json:"facial_stability"`
	EmotionalControl float64   `json:"emotional_control"`
	StressRecovery   float64   `json:"stress_recovery"`
	Consistency      float64   `json:"consistency"`
	StressEvents     int       `json:"stress_events"`
	Recoveries       int       `json:"recoveries"`
	Windows          []float64 `json:"windows"`
	WindowPressure   []float64 `json:"window_pressure"`
}

// BehavioralSummary is the aggregate of a completed behavioral stream.
// Levels are in [0,1]; Character is in [0,100].
type BehavioralSummary struct {
	Confidence         float64             `json:"confidence"`
	Concentration      float64             `json:"concentration"`
	Determination      float64             `json:"determination"`
	EmotionalStability float64             `json:"emotional_stability"`
	PressureResponse   float64             `json:"pressure_response"`
	Composure          ComposureResilience `json:"composure_resilience"`
	Character          float64             `json:"character"`
	ValidFrames        int                 `json:"valid_frames"`
	TotalFrames        int                 `json:"total_frames"`
	NoDetection        int                 `json:"no_detection_frames"`
	ExtractorErrors    int                 `json:"extractor_errors"`
	SampledStride      int                 `json:"sampled_stride"`
	MeanConfidence     float64             `json:"mean_confidence"`
	// UnavailableSignals names indicators with no measured source; they are
	// reported as missing rather than estimated.
	UnavailableSignals []string `json:"unavailable_signals"`
}

// Clone returns a deep copy.
func (s BehavioralSummary) Clone() BehavioralSummary {
	out := s
	out.Composure.Windows = slices.Clone(s.Composure.Windows)
	out.Composure.WindowPressure = slices.Clone(s.Composure.WindowPressure)
	out.UnavailableSignals = slices.Clone(s.UnavailableSignals)
	return out
}

// StreamSummary is the aggregate persisted when one stream completes. Exactly
// one of the two pointers is set, matching Kind.
type StreamSummary struct {
	Kind          StreamKind            `json:"kind"`
	Biomechanical *BiomechanicalSummary `json:"biomechanical,omitempty"`
	Behavioral    *BehavioralSummary    `json:"behavioral,omitempty"`
}

// Attach stores the summary on the matching session field.
func (s StreamSummary) Attach(sess *Session) {
	switch s.Kind {
	case StreamBiomechanical:
		if s.Biomechanical != nil {
			c := s.Biomechanical.Clone()
			sess.BiomechanicalSummary = &c
		}
	case StreamBehavioral:
		if s.Behavioral != nil {
			c := s.Behavioral.Clone()
			sess.BehavioralSummary = &c
		}
	}
}
