package model

import (
	"maps"
	"slices"
	"time"
)

// Critical moment types.
const (
	MomentClutch     = "clutch_performance"
	MomentExcellence = "excellence"
)

// CriticalMoment marks a frame range where combined signals crossed a threshold.
type CriticalMoment struct {
	Type         string             `json:"type"`
	StartFrame   int                `json:"start_frame"`
	EndFrame     int                `json:"end_frame"`
	StartSeconds float64            `json:"start_seconds"`
	EndSeconds   float64            `json:"end_seconds"`
	Triggers     map[string]float64 `json:"triggers"`
}

// BioPoint is the biomechanical side of a timeline row. Present=false is the
// placeholder for a frame number the stream did not sample.
type BioPoint struct {
	Present     bool               `json:"present"`
	Valid       bool               `json:"valid"`
	Phase       string             `json:"phase,omitempty"`
	Efficiency  float64            `json:"efficiency"`
	JointAngles map[string]float64 `json:"joint_angles,omitempty"`
}

// BehPoint is the behavioral side of a timeline row.
type BehPoint struct {
	Present   bool               `json:"present"`
	Valid     bool               `json:"valid"`
	Scores    map[string]float64 `json:"scores,omitempty"`
	Stability float64            `json:"stability"`
}

// TimelineRow is one frame number of the merged timeline.
type TimelineRow struct {
	FrameNumber   int      `json:"frame_number"`
	Seconds       float64  `json:"seconds"`
	Biomechanical BioPoint `json:"biomechanical"`
	Behavioral    BehPoint `json:"behavioral"`
}

// Readiness levels.
const (
	LevelElite        = "elite"
	LevelAdvanced     = "advanced"
	LevelDeveloping   = "developing"
	LevelFoundational = "foundational"
)

// CompositeScores are the session-level scores, all in [0,100].
type CompositeScores struct {
	ChampionshipReadiness float64 `json:"championship_readiness"`
	Level                 string  `json:"level"`
	Synchronization       float64 `json:"synchronization"`
	MentalToughness       float64 `json:"mental_toughness"`
	Consistency           float64 `json:"consistency"`
	BiomechanicalOverall  float64 `json:"biomechanical_overall"`
	BehavioralOverall     float64 `json:"behavioral_overall"`
}

// Insight is a canned recommendation selected by threshold rules.
type Insight struct {
	Category       string  `json:"category"`
	Priority       string  `json:"priority"`
	Metric         string  `json:"metric"`
	Value          float64 `json:"value"`
	Recommendation string  `json:"recommendation"`
}

// FinalReport is the immutable outcome of synthesis.
type FinalReport struct {
	SessionID       string               `json:"session_id"`
	Sport           string               `json:"sport"`
	SessionType     SessionType          `json:"session_type"`
	Biomechanical   BiomechanicalSummary `json:"biomechanical"`
	Behavioral      BehavioralSummary    `json:"behavioral"`
	Timeline        []TimelineRow        `json:"timeline"`
	TimelineLength  int                  `json:"timeline_length"`
	CriticalMoments []CriticalMoment     `json:"critical_moments"`
	Composite       CompositeScores      `json:"composite"`
	Insights        []Insight            `json:"insights"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// Clone returns a deep copy.
func (r FinalReport) Clone() FinalReport {
	out := r
	out.Biomechanical = r.Biomechanical.Clone()
	out.Behavioral = r.Behavioral.Clone()
	out.Timeline = make([]TimelineRow, len(r.Timeline))
	for i, row := range r.Timeline {
		row.Biomechanical.JointAngles = maps.Clone(row.Biomechanical.JointAngles)
		row.Behavioral.Scores = maps.Clone(row.Behavioral.Scores)
		out.Timeline[i] = row
	}
	out.CriticalMoments = make([]CriticalMoment, len(r.CriticalMoments))
	for i, m := range r.CriticalMoments {
		m.Triggers = maps.Clone(m.Triggers)
		out.CriticalMoments[i] = m
	}
	out.Insights = slices.Clone(r.Insights)
	return out
}
