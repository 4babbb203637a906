package behavior

import (
	"math"
	"slices"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/scoring"
	"github.com/okian/clutch/internal/domain/stats"
)

const (
	stressEventThreshold = 0.7
	recoveryThreshold    = 0.5
	rollingFrames        = 5
	// maxScoreVariance is the variance of a [0,1] score flipping between the
	// extremes; it normalizes variances into [0,1].
	maxScoreVariance = 0.25
	defaultWindow    = 3.0
)

// Signals with no measured source. They are reported as unavailable.
const (
	SignalGazeSteadiness  = "gaze_steadiness"
	SignalBreathingRhythm = "breathing_rhythm"
)

// CalculateComposureResilience scores composure in [0,100] from the motion
// variance v of a window and its pressure level p in [0,100]. Higher
// pressure softens the motion penalty.
func CalculateComposureResilience(v, p float64) float64 {
	v = math.Max(0, stats.SafeFloat(v))
	p = stats.Clamp(p, 0, 100)
	return stats.Clamp(100-2*v*(1-(p-80)/200), 0, 100)
}

// Summarize aggregates a frame series over its valid frames.
func Summarize(cfg analysisconfig.Behavior, tags []string, frames []model.BehavioralFrame, w scoring.Weights) model.BehavioralSummary {
	s := model.BehavioralSummary{
		TotalFrames:        len(frames),
		UnavailableSignals: []string{SignalGazeSteadiness, SignalBreathingRhythm},
	}
	if len(frames) > 1 {
		s.SampledStride = max(1, frames[1].FrameNumber-frames[0].FrameNumber)
	}

	var valid []model.BehavioralFrame
	for _, f := range frames {
		if f.Valid {
			valid = append(valid, f)
		}
	}
	s.ValidFrames = len(valid)
	if len(valid) == 0 {
		s.Composure.Windows = []float64{}
		s.Composure.WindowPressure = []float64{}
		return s
	}

	series := func(name string) []float64 {
		out := make([]float64, len(valid))
		for i, f := range valid {
			out[i] = f.Score(name)
		}
		return out
	}
	confidence, stress, composure := series(model.ScoreConfidence), series(model.ScoreStress), series(model.ScoreComposure)
	stability := make([]float64, len(valid))
	confidences := make([]float64, len(valid))
	for i, f := range valid {
		stability[i] = f.Stability
		confidences[i] = f.Confidence
	}

	s.MeanConfidence = stats.Mean(confidences)
	s.Confidence = stats.Mean(confidence)
	s.Concentration = stats.Mean(series(model.ScoreConcentration))
	s.Determination = stats.Mean(series(model.ScoreDetermination))
	s.EmotionalStability = stats.Mean(stability)
	s.PressureResponse = stats.Clamp01(1 - stats.Mean(stress))
	s.Composure = composureResilience(cfg, tags, valid, confidence, stress, composure, w)
	s.Character = w.Character(s.Confidence, s.PressureResponse, s.EmotionalStability, s.Concentration, s.Composure.Score)
	return s
}

func composureResilience(cfg analysisconfig.Behavior, tags []string, valid []model.BehavioralFrame, confidence, stress, composure []float64, w scoring.Weights) model.ComposureResilience {
	var c model.ComposureResilience
	c.Windows, c.WindowPressure = windows(cfg, tags, valid)

	c.FacialStability = stats.Clamp01(stats.WeightedMean(c.Windows, c.WindowPressure))
	c.EmotionalControl = stats.Clamp01(1 - stats.Mean([]float64{
		stats.Variance(confidence) / maxScoreVariance,
		stats.Variance(stress) / maxScoreVariance,
		stats.Variance(composure) / maxScoreVariance,
	}))
	c.StressEvents, c.Recoveries = stressRecovery(stress)
	c.StressRecovery = 0.5
	if c.StressEvents > 0 {
		c.StressRecovery = float64(c.Recoveries) / float64(c.StressEvents)
	}
	c.Consistency = stats.Clamp01(1 - stats.Variance(c.Windows)/maxScoreVariance)
	c.Score = w.Composure(c.FacialStability, c.EmotionalControl, c.StressRecovery, c.Consistency)
	return c
}

// windows partitions the valid frames into fixed windows and scores each one.
// Window pressure is the mean stress level plus a boost per matched context tag.
func windows(cfg analysisconfig.Behavior, tags []string, valid []model.BehavioralFrame) (composure, pressure []float64) {
	size := cfg.WindowSeconds
	if size <= 0 {
		size = defaultWindow
	}
	boost := cfg.PressureBoost * float64(matchedTags(cfg.PressureTags, tags))

	start := 0
	for start < len(valid) {
		idx := math.Floor(valid[start].TimestampSeconds / size)
		end := start
		var motion, stressSum float64
		for end < len(valid) && math.Floor(valid[end].TimestampSeconds/size) == idx {
			motion += valid[end].Motion
			stressSum += valid[end].Score(model.ScoreStress)
			end++
		}
		n := float64(end - start)
		p := stats.Clamp(percent*stressSum/n+boost, 0, 100)
		composure = append(composure, CalculateComposureResilience(motion/n, p)/100)
		pressure = append(pressure, p)
		start = end
	}
	return composure, pressure
}

func matchedTags(pressureTags, tags []string) int {
	n := 0
	for _, t := range tags {
		if slices.Contains(pressureTags, t) {
			n++
		}
	}
	return n
}

// stressRecovery counts rising edges of the rolling stress mean above the
// event threshold, and how many are followed by a frame below the recovery
// threshold.
func stressRecovery(stress []float64) (events, recoveries int) {
	if len(stress) < rollingFrames {
		return 0, 0
	}
	var sum float64
	above := false
	for i, v := range stress {
		sum += v
		if i >= rollingFrames {
			sum -= stress[i-rollingFrames]
		}
		if i < rollingFrames-1 {
			continue
		}
		rolling := sum / rollingFrames
		if rolling > stressEventThreshold && !above {
			events++
			if slices.ContainsFunc(stress[i+1:], func(s float64) bool { return s < recoveryThreshold }) {
				recoveries++
			}
		}
		above = rolling > stressEventThreshold
	}
	return events, recoveries
}
