// Package progression summarizes how a subject's completed sessions evolve
// over a time window.
package progression

import (
	"cmp"
	"slices"
	"time"

	"github.com/okian/clutch/internal/domain/model"
)

// Trend classifications.
const (
	TrendImproving        = "improving"
	TrendDeclining        = "declining"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// TrendThreshold is the delta, in 0-100 score points, at which a metric is
// considered to move.
const TrendThreshold = 3.0

// Metric names tracked across sessions.
const (
	MetricReadiness       = "championship_readiness"
	MetricBiomechanical   = "biomechanical_overall"
	MetricBehavioral      = "behavioral_character"
	MetricSynchronization = "synchronization"
)

// Metrics lists the tracked metrics in display order.
func Metrics() []string {
	return []string{MetricReadiness, MetricBiomechanical, MetricBehavioral, MetricSynchronization}
}

// Point is one session's contribution to the progression.
type Point struct {
	SessionID string             `json:"session_id"`
	At        time.Time          `json:"at"`
	Sport     string             `json:"sport"`
	Level     string             `json:"level"`
	Values    map[string]float64 `json:"values"`
}

// MetricTrend is the earliest-to-latest movement of one metric.
type MetricTrend struct {
	First float64 `json:"first"`
	Last  float64 `json:"last"`
	Delta float64 `json:"delta"`
	Trend string  `json:"trend"`
}

// Summary is the progression of a subject within a window.
type Summary struct {
	From     time.Time              `json:"from"`
	To       time.Time              `json:"to"`
	Sessions int                    `json:"sessions"`
	Points   []Point                `json:"points"`
	Metrics  map[string]MetricTrend `json:"metrics"`
	Trend    string                 `json:"trend"`
}

// Summarize considers completed sessions with a report created within
// [now-window, now]. Points are ordered by creation time.
func Summarize(sessions []model.Session, window time.Duration, now time.Time) Summary {
	from := now.Add(-window)
	var points []Point
	for _, s := range sessions {
		if s.Status != model.SessionCompleted || s.Report == nil {
			continue
		}
		if s.CreatedAt.Before(from) || s.CreatedAt.After(now) {
			continue
		}
		points = append(points, pointOf(s))
	}
	slices.SortStableFunc(points, func(a, b Point) int {
		return cmp.Or(a.At.Compare(b.At), cmp.Compare(a.SessionID, b.SessionID))
	})

	out := Summary{
		From:     from,
		To:       now,
		Sessions: len(points),
		Points:   points,
		Metrics:  make(map[string]MetricTrend, len(Metrics())),
		Trend:    TrendInsufficientData,
	}
	if out.Points == nil {
		out.Points = []Point{}
	}
	if len(points) < 2 {
		for _, m := range Metrics() {
			out.Metrics[m] = MetricTrend{Trend: TrendInsufficientData}
		}
		return out
	}

	first, last := points[0], points[len(points)-1]
	for _, m := range Metrics() {
		d := last.Values[m] - first.Values[m]
		out.Metrics[m] = MetricTrend{First: first.Values[m], Last: last.Values[m], Delta: d, Trend: Classify(d)}
	}
	out.Trend = out.Metrics[MetricReadiness].Trend
	return out
}

// Classify maps a delta to a trend.
func Classify(delta float64) string {
	switch {
	case delta >= TrendThreshold:
		return TrendImproving
	case delta <= -TrendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func pointOf(s model.Session) Point {
	c := s.Report.Composite
	return Point{
		SessionID: s.ID,
		At:        s.CreatedAt,
		Sport:     s.Sport,
		Level:     c.Level,
		Values: map[string]float64{
			MetricReadiness:       c.ChampionshipReadiness,
			MetricBiomechanical:   c.BiomechanicalOverall,
			MetricBehavioral:      c.BehavioralOverall,
			MetricSynchronization: c.Synchronization,
		},
	}
}
