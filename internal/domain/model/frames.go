package model

import "maps"

// FramePlan is one entry of a sampling plan.
type FramePlan struct {
	FrameNumber      int     `json:"frame_number"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
}

// FrameSample is a decoded frame selected by the sampler. It is owned by the
// analyzer that consumes it and dropped once reduced to metrics.
type FrameSample struct {
	FrameNumber      int
	TimestampSeconds float64
	Width            int
	Height           int
	Data             []byte
}

// Micro-expression score names.
const (
	ScoreConfidence    = "confidence"
	ScoreStress        = "stress"
	ScoreConcentration = "concentration"
	ScoreDetermination = "determination"
	ScoreComposure     = "composure"
)

// ScoreNames lists the behavioral micro-expression scores.
func ScoreNames() []string {
	return []string{ScoreConfidence, ScoreStress, ScoreConcentration, ScoreDetermination, ScoreComposure}
}

// BiomechanicalFrame is the per-frame output of the biomechanical analyzer.
// Invalid frames stay in the series as gaps.
type BiomechanicalFrame struct {
	FrameNumber      int                `json:"frame_number" msgpack:"f"`
	TimestampSeconds float64            `json:"timestamp_seconds" msgpack:"t"`
	Valid            bool               `json:"valid" msgpack:"v"`
	Confidence       float64            `json:"confidence" msgpack:"c"`
	JointAngles      map[string]float64 `json:"joint_angles,omitempty" msgpack:"a,omitempty"`
	Phase            string             `json:"phase,omitempty" msgpack:"p,omitempty"`
	TrackedX         float64            `json:"tracked_x" msgpack:"x"`
	TrackedY         float64            `json:"tracked_y" msgpack:"y"`
	Efficiency       float64            `json:"efficiency" msgpack:"e"`
}

// Clone returns a deep copy.
func (f BiomechanicalFrame) Clone() BiomechanicalFrame {
	out := f
	out.JointAngles = maps.Clone(f.JointAngles)
	return out
}

// BehavioralFrame is the per-frame output of the behavioral analyzer.
type BehavioralFrame struct {
	FrameNumber      int                `json:"frame_number" msgpack:"f"`
	TimestampSeconds float64            `json:"timestamp_seconds" msgpack:"t"`
	Valid            bool               `json:"valid" msgpack:"v"`
	Confidence       float64            `json:"confidence" msgpack:"c"`
	Scores           map[string]float64 `json:"scores,omitempty" msgpack:"s,omitempty"`
	Stability        float64            `json:"stability" msgpack:"st"`
	// Motion is the mean squared landmark displacement against the previous
	// valid frame, in percent-of-frame units.
	Motion float64 `json:"motion" msgpack:"m"`
}

// Clone returns a deep copy.
func (f BehavioralFrame) Clone() BehavioralFrame {
	out := f
	out.Scores = maps.Clone(f.Scores)
	return out
}

// Score returns a named score or zero.
func (f BehavioralFrame) Score(name string) float64 {
	return f.Scores[name]
}
