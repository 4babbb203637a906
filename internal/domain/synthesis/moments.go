package synthesis

import (
	"math"

	"github.com/okian/clutch/internal/domain/model"
)

// Critical moment thresholds.
const (
	ClutchStress        = 0.7
	ClutchComposure     = 0.75
	ExcellentEfficiency = 0.9
	ExcellentConfidence = 0.9
)

// verdict is how a row relates to a moment type: it qualifies, it breaks a
// run, or the relevant stream has nothing at that row.
type verdict int

const (
	absent verdict = iota
	qualifies
	breaks
)

type detector struct {
	kind  string
	judge func(row model.TimelineRow) verdict
	peaks func(row model.TimelineRow, triggers map[string]float64)
}

var detectors = []detector{
	{
		kind: model.MomentClutch,
		judge: func(row model.TimelineRow) verdict {
			b := row.Behavioral
			if !b.Present || !b.Valid {
				return absent
			}
			if b.Scores[model.ScoreStress] > ClutchStress && b.Scores[model.ScoreComposure] > ClutchComposure {
				return qualifies
			}
			return breaks
		},
		peaks: func(row model.TimelineRow, tr map[string]float64) {
			peak(tr, "stress", row.Behavioral.Scores[model.ScoreStress])
			peak(tr, "composure", row.Behavioral.Scores[model.ScoreComposure])
		},
	},
	{
		kind: model.MomentExcellence,
		judge: func(row model.TimelineRow) verdict {
			bio, beh := row.Biomechanical, row.Behavioral
			bioOK, behOK := bio.Present && bio.Valid, beh.Present && beh.Valid
			if !bioOK && !behOK {
				return absent
			}
			if (bioOK && bio.Efficiency >= ExcellentEfficiency) || (behOK && beh.Scores[model.ScoreConfidence] >= ExcellentConfidence) {
				return qualifies
			}
			return breaks
		},
		peaks: func(row model.TimelineRow, tr map[string]float64) {
			if row.Biomechanical.Present && row.Biomechanical.Valid {
				peak(tr, "efficiency", row.Biomechanical.Efficiency)
			}
			if row.Behavioral.Present && row.Behavioral.Valid {
				peak(tr, "confidence", row.Behavioral.Scores[model.ScoreConfidence])
			}
		},
	},
}

func peak(tr map[string]float64, key string, v float64) {
	if cur, ok := tr[key]; !ok || v > cur {
		tr[key] = math.Round(v*1e4) / 1e4
	}
}

// IdentifyCriticalMoments scans the merged timeline. Adjacent qualifying rows
// coalesce into one moment; rows where the relevant stream has no valid
// sample neither extend nor break a run. Moments are ordered by type, then by
// start frame.
func IdentifyCriticalMoments(rows []model.TimelineRow) []model.CriticalMoment {
	out := []model.CriticalMoment{}
	for _, d := range detectors {
		var cur *model.CriticalMoment
		flush := func() {
			if cur != nil {
				out = append(out, *cur)
				cur = nil
			}
		}
		for _, row := range rows {
			switch d.judge(row) {
			case absent:
				continue
			case breaks:
				flush()
			case qualifies:
				if cur == nil {
					cur = &model.CriticalMoment{
						Type:         d.kind,
						StartFrame:   row.FrameNumber,
						StartSeconds: row.Seconds,
						Triggers:     map[string]float64{},
					}
				}
				cur.EndFrame = row.FrameNumber
				cur.EndSeconds = row.Seconds
				d.peaks(row, cur.Triggers)
			}
		}
		flush()
	}
	return out
}
