package biomech

import (
	"math"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/scoring"
	"github.com/okian/clutch/internal/domain/stats"
)

type segment struct {
	phase    string
	duration float64
}

// Summarize aggregates a frame series over its valid frames. It fills the
// per-frame Efficiency of the valid frames in place.
func Summarize(cfg analysisconfig.Biomechanics, frames []model.BiomechanicalFrame, w scoring.Weights) model.BiomechanicalSummary {
	valid := make([]int, 0, len(frames))
	var confidences []float64
	for i := range frames {
		frames[i].Efficiency = 0
		if frames[i].Valid {
			valid = append(valid, i)
			confidences = append(confidences, frames[i].Confidence)
		}
	}

	s := model.BiomechanicalSummary{
		TotalFrames:     len(frames),
		ValidFrames:     len(valid),
		PowerPhase:      cfg.PowerPhase,
		TrackedLandmark: cfg.TrackedLandmark,
		MeanConfidence:  stats.Mean(confidences),
		Joints:          map[string]model.JointStats{},
		PhaseDurations:  map[string]float64{},
	}
	if len(frames) > 1 {
		s.SampledStride = max(1, frames[1].FrameNumber-frames[0].FrameNumber)
	}
	if len(valid) == 0 {
		return s
	}

	s.Consistency = jointConsistency(cfg, frames, valid, s.Joints)
	s.MeanJerk, s.Efficiency = efficiency(cfg, frames, valid)
	s.PeakVelocity = peakVelocity(cfg, frames, valid)
	if cfg.VelocityScale > 0 {
		s.Power = stats.Clamp01(s.PeakVelocity / cfg.VelocityScale)
	}

	segments := phaseSegments(frames, valid)
	for _, seg := range segments {
		s.PhaseDurations[seg.phase] += seg.duration
	}
	s.PhaseTransitions = max(0, len(segments)-1)
	s.DominantPhase = dominantPhase(cfg, s.PhaseDurations)
	s.RhythmStability = rhythmConsistency(segments)
	s.Timing = s.RhythmStability

	s.Overall = w.BiomechanicalOverall(s.Consistency, s.Efficiency, s.Power, s.Timing)
	return s
}

// jointConsistency is 1 - std/mean per joint, averaged over joints.
func jointConsistency(cfg analysisconfig.Biomechanics, frames []model.BiomechanicalFrame, valid []int, out map[string]model.JointStats) float64 {
	var perJoint []float64
	for _, j := range cfg.Joints {
		var values []float64
		for _, i := range valid {
			if v, ok := frames[i].JointAngles[j.Name]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		js := model.JointStats{Mean: stats.Mean(values), Std: stats.Std(values), Min: values[0], Max: values[0]}
		for _, v := range values {
			js.Min = math.Min(js.Min, v)
			js.Max = math.Max(js.Max, v)
		}
		out[j.Name] = js
		if js.Mean > 0 {
			perJoint = append(perJoint, stats.Clamp01(1-js.Std/js.Mean))
		}
	}
	return stats.Clamp01(stats.Mean(perJoint))
}

// efficiency computes the tracked landmark jerk by a three point second
// difference over consecutive valid frames. Interior frames get their own
// efficiency; the first and last valid frames reuse their neighbour's.
func efficiency(cfg analysisconfig.Biomechanics, frames []model.BiomechanicalFrame, valid []int) (meanJerk, score float64) {
	if len(valid) < 3 {
		return 0, 0
	}
	scale := cfg.JerkScale
	if scale <= 0 {
		scale = 1
	}
	jerks := make([]float64, 0, len(valid)-2)
	for k := 1; k < len(valid)-1; k++ {
		prev, cur, next := frames[valid[k-1]], frames[valid[k]], frames[valid[k+1]]
		dtPrev := cur.TimestampSeconds - prev.TimestampSeconds
		dtNext := next.TimestampSeconds - cur.TimestampSeconds
		if dtPrev <= 0 || dtNext <= 0 {
			continue
		}
		ax := 2 * ((next.TrackedX-cur.TrackedX)/dtNext - (cur.TrackedX-prev.TrackedX)/dtPrev) / (dtPrev + dtNext)
		ay := 2 * ((next.TrackedY-cur.TrackedY)/dtNext - (cur.TrackedY-prev.TrackedY)/dtPrev) / (dtPrev + dtNext)
		jerk := math.Hypot(ax, ay)
		jerks = append(jerks, jerk)
		frames[valid[k]].Efficiency = 1 / (1 + jerk/scale)
	}
	frames[valid[0]].Efficiency = frames[valid[1]].Efficiency
	frames[valid[len(valid)-1]].Efficiency = frames[valid[len(valid)-2]].Efficiency

	meanJerk = stats.Mean(jerks)
	return meanJerk, stats.Clamp01(1 / (1 + meanJerk/scale))
}

// peakVelocity is the highest tracked landmark speed over frames classified
// into the power phase.
func peakVelocity(cfg analysisconfig.Biomechanics, frames []model.BiomechanicalFrame, valid []int) float64 {
	var peak float64
	for k := 1; k < len(valid); k++ {
		prev, cur := frames[valid[k-1]], frames[valid[k]]
		if cur.Phase != cfg.PowerPhase {
			continue
		}
		dt := cur.TimestampSeconds - prev.TimestampSeconds
		if dt <= 0 {
			continue
		}
		v := math.Hypot(cur.TrackedX-prev.TrackedX, cur.TrackedY-prev.TrackedY) / dt
		peak = math.Max(peak, v)
	}
	return peak
}

// phaseSegments splits the valid frames into runs of one phase.
func phaseSegments(frames []model.BiomechanicalFrame, valid []int) []segment {
	step := 0.0
	if len(valid) > 1 {
		step = (frames[valid[len(valid)-1]].TimestampSeconds - frames[valid[0]].TimestampSeconds) / float64(len(valid)-1)
	}
	var out []segment
	start := 0
	for k := 1; k <= len(valid); k++ {
		if k < len(valid) && frames[valid[k]].Phase == frames[valid[start]].Phase {
			continue
		}
		first, last := frames[valid[start]], frames[valid[k-1]]
		out = append(out, segment{phase: first.Phase, duration: last.TimestampSeconds - first.TimestampSeconds + step})
		start = k
	}
	return out
}

// rhythmConsistency is 1 - var/mean^2 of phase durations. Phases seen in
// several repetitions are compared with themselves; otherwise all segments
// are compared. Fewer than two segments carry no rhythm.
func rhythmConsistency(segments []segment) float64 {
	if len(segments) < 2 {
		return 0
	}
	byPhase := map[string][]float64{}
	for _, seg := range segments {
		byPhase[seg.phase] = append(byPhase[seg.phase], seg.duration)
	}
	var scores []float64
	for _, durations := range byPhase {
		if len(durations) >= 2 {
			scores = append(scores, 1-normalizedVariance(durations))
		}
	}
	if len(scores) == 0 {
		all := make([]float64, len(segments))
		for i, seg := range segments {
			all[i] = seg.duration
		}
		return stats.Clamp01(1 - normalizedVariance(all))
	}
	return stats.Clamp01(stats.Mean(scores))
}

func normalizedVariance(values []float64) float64 {
	m := stats.Mean(values)
	if m <= 0 {
		return 1
	}
	return stats.Variance(values) / (m * m)
}

func dominantPhase(cfg analysisconfig.Biomechanics, durations map[string]float64) string {
	best, bestDur := "", -1.0
	for _, p := range cfg.Phases {
		if d, ok := durations[p]; ok && d > bestDur {
			best, bestDur = p, d
		}
	}
	return best
}
