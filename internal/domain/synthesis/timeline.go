// Package synthesis merges the two stream outputs into one frame-indexed
// timeline and derives the session level scores.
package synthesis

import (
	"maps"
	"math"
	"sort"

	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/stats"
)

// SynchronizeTimelines builds one row per frame number in
// [0, max(maxBioFrame, maxBehFrame)]. Each row carries the exact metric frame
// of each stream when that stream sampled the frame, and a placeholder with
// Present=false otherwise.
func SynchronizeTimelines(bio []model.BiomechanicalFrame, beh []model.BehavioralFrame, fps float64) []model.TimelineRow {
	last := -1
	bioAt := make(map[int]model.BiomechanicalFrame, len(bio))
	for _, f := range bio {
		bioAt[f.FrameNumber] = f
		last = max(last, f.FrameNumber)
	}
	behAt := make(map[int]model.BehavioralFrame, len(beh))
	for _, f := range beh {
		behAt[f.FrameNumber] = f
		last = max(last, f.FrameNumber)
	}
	if last < 0 {
		return nil
	}

	rows := make([]model.TimelineRow, last+1)
	for n := range rows {
		row := model.TimelineRow{FrameNumber: n}
		if fps > 0 {
			row.Seconds = float64(n) / fps
		}
		if f, ok := bioAt[n]; ok {
			row.Biomechanical = model.BioPoint{
				Present:     true,
				Valid:       f.Valid,
				Phase:       f.Phase,
				Efficiency:  f.Efficiency,
				JointAngles: maps.Clone(f.JointAngles),
			}
		}
		if f, ok := behAt[n]; ok {
			row.Behavioral = model.BehPoint{
				Present:   true,
				Valid:     f.Valid,
				Scores:    maps.Clone(f.Scores),
				Stability: f.Stability,
			}
		}
		rows[n] = row
	}
	return rows
}

// Decimate keeps at most limit rows, chosen uniformly and always including
// the first and last row. A non-positive limit keeps everything.
func Decimate(rows []model.TimelineRow, limit int) []model.TimelineRow {
	if limit <= 0 || len(rows) <= limit {
		return rows
	}
	if limit == 1 {
		return rows[:1]
	}
	out := make([]model.TimelineRow, limit)
	step := float64(len(rows)-1) / float64(limit-1)
	for i := range out {
		out[i] = rows[int(math.Round(float64(i)*step))]
	}
	return out
}

const syncPoints = 100

type sample struct {
	t float64
	v float64
}

// Synchronization compares the biomechanical efficiency curve with the
// behavioral composure curve. Both are time-normalized onto the same number of
// points by linear interpolation; the score is 1 - mean absolute difference.
func Synchronization(bio []model.BiomechanicalFrame, beh []model.BehavioralFrame) float64 {
	var a, b []sample
	for _, f := range bio {
		if f.Valid {
			a = append(a, sample{t: f.TimestampSeconds, v: f.Efficiency})
		}
	}
	for _, f := range beh {
		if f.Valid {
			b = append(b, sample{t: f.TimestampSeconds, v: f.Score(model.ScoreComposure)})
		}
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ra, rb := resample(a, syncPoints), resample(b, syncPoints)
	diffs := make([]float64, syncPoints)
	for i := range diffs {
		diffs[i] = math.Abs(ra[i] - rb[i])
	}
	return stats.Clamp01(1 - stats.Mean(diffs))
}

// resample maps a time series onto n points spread evenly over its own span.
func resample(series []sample, n int) []float64 {
	out := make([]float64, n)
	first, last := series[0].t, series[len(series)-1].t
	span := last - first
	for i := range out {
		if span <= 0 || len(series) == 1 {
			out[i] = series[0].v
			continue
		}
		t := first + span*float64(i)/float64(n-1)
		j := sort.Search(len(series), func(k int) bool { return series[k].t >= t })
		switch {
		case j <= 0:
			out[i] = series[0].v
		case j >= len(series):
			out[i] = series[len(series)-1].v
		default:
			lo, hi := series[j-1], series[j]
			if hi.t <= lo.t {
				out[i] = hi.v
				continue
			}
			frac := (t - lo.t) / (hi.t - lo.t)
			out[i] = lo.v + (hi.v-lo.v)*frac
		}
	}
	return out
}
