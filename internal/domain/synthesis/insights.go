package synthesis

import (
	"cmp"
	"slices"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/model"
)

// Insight metric names. Every metric is on a 0-100 scale.
const (
	MetricReadiness          = "championship_readiness"
	MetricSynchronization    = "synchronization"
	MetricBioConsistency     = "biomechanical_consistency"
	MetricBioEfficiency      = "biomechanical_efficiency"
	MetricBioPower           = "biomechanical_power"
	MetricBioTiming          = "biomechanical_timing"
	MetricConfidence         = "behavioral_confidence"
	MetricPressureResponse   = "pressure_response"
	MetricComposure          = "composure_resilience"
	MetricEmotionalStability = "emotional_stability"
	MetricConcentration      = "concentration"
)

// Priorities in display order.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

var priorityOrder = map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// Rule maps a metric threshold to a canned recommendation. Empty Sport or
// SessionType match any value. Below selects metric < Threshold, otherwise
// metric >= Threshold.
type Rule struct {
	Sport       string
	SessionType string
	Metric      string
	Threshold   float64
	Below       bool
	Category    string
	Priority    string
	Text        string
}

func (r Rule) matches(sport, sessionType string, metrics map[string]float64) bool {
	if r.Sport != "" && r.Sport != sport {
		return false
	}
	if r.SessionType != "" && r.SessionType != sessionType {
		return false
	}
	v, ok := metrics[r.Metric]
	if !ok {
		return false
	}
	if r.Below {
		return v < r.Threshold
	}
	return v >= r.Threshold
}

var rules = []Rule{
	// General.
	{Metric: MetricSynchronization, Threshold: 60, Below: true, Category: "integration", Priority: PriorityHigh,
		Text: "Mental state and physical execution drift apart; pair technical reps with pressure simulation."},
	{Metric: MetricBioConsistency, Threshold: 60, Below: true, Category: "technique", Priority: PriorityHigh,
		Text: "Joint angles vary widely between repetitions; slow the movement down and groove one pattern."},
	{Metric: MetricBioEfficiency, Threshold: 70, Below: true, Category: "technique", Priority: PriorityMedium,
		Text: "Movement is jerky; focus on smooth acceleration through each phase."},
	{Metric: MetricComposure, Threshold: 60, Below: true, Category: "mental", Priority: PriorityHigh,
		Text: "Composure drops under pressure; add breathing resets between reps."},
	{Metric: MetricPressureResponse, Threshold: 50, Below: true, Category: "mental", Priority: PriorityMedium,
		Text: "Visible stress is high; rehearse pre-performance routines."},
	{Metric: MetricConcentration, Threshold: 55, Below: true, Category: "mental", Priority: PriorityLow,
		Text: "Focus wanders; use a fixed visual anchor before each attempt."},
	{Metric: MetricReadiness, Threshold: EliteThreshold, Category: "overall", Priority: PriorityLow,
		Text: "Championship-ready profile; maintain load and protect recovery."},

	// Baseball.
	{Sport: analysisconfig.SportBaseball, Metric: MetricBioTiming, Threshold: 65, Below: true, Category: "timing", Priority: PriorityHigh,
		Text: "Load-to-stride rhythm is inconsistent; use a metronome tee drill."},
	{Sport: analysisconfig.SportBaseball, Metric: MetricBioPower, Threshold: 50, Below: true, Category: "power", Priority: PriorityMedium,
		Text: "Bat speed through contact is low; add rotational med-ball throws."},
	{Sport: analysisconfig.SportBaseball, SessionType: analysisconfig.SessionGame, Metric: MetricComposure, Threshold: 75, Category: "mental", Priority: PriorityLow,
		Text: "Stays composed in game at-bats; trust the approach with two strikes."},

	// Basketball.
	{Sport: analysisconfig.SportBasketball, Metric: MetricBioConsistency, Threshold: 75, Below: true, Category: "shooting", Priority: PriorityMedium,
		Text: "Release angle varies; shoot form reps close to the rim."},
	{Sport: analysisconfig.SportBasketball, Metric: MetricBioTiming, Threshold: 60, Below: true, Category: "timing", Priority: PriorityMedium,
		Text: "Dip-to-release rhythm varies; practice catch-and-shoot on a count."},
	{Sport: analysisconfig.SportBasketball, SessionType: analysisconfig.SessionGame, Metric: MetricPressureResponse, Threshold: 60, Below: true, Category: "mental", Priority: PriorityHigh,
		Text: "Free-throw pressure shows; simulate crowd noise in practice."},

	// Soccer.
	{Sport: analysisconfig.SportSoccer, Metric: MetricBioPower, Threshold: 55, Below: true, Category: "power", Priority: PriorityMedium,
		Text: "Strike velocity is low; train hip extension and plant-foot drive."},
	{Sport: analysisconfig.SportSoccer, Metric: MetricBioEfficiency, Threshold: 80, Below: true, Category: "technique", Priority: PriorityLow,
		Text: "Approach is uneven; rehearse a consistent run-up length."},
	{Sport: analysisconfig.SportSoccer, SessionType: analysisconfig.SessionGame, Metric: MetricComposure, Threshold: 65, Below: true, Category: "mental", Priority: PriorityHigh,
		Text: "Composure fades in set pieces; script a penalty routine."},

	// Tennis.
	{Sport: analysisconfig.SportTennis, Metric: MetricBioTiming, Threshold: 65, Below: true, Category: "serve", Priority: PriorityHigh,
		Text: "Toss-to-trophy timing varies; serve with a pause at the trophy position."},
	{Sport: analysisconfig.SportTennis, Metric: MetricEmotionalStability, Threshold: 70, Below: true, Category: "mental", Priority: PriorityMedium,
		Text: "Facial tension builds between points; use a between-point reset."},
	{Sport: analysisconfig.SportTennis, SessionType: analysisconfig.SessionGame, Metric: MetricConfidence, Threshold: 70, Category: "mental", Priority: PriorityLow,
		Text: "Body language projects confidence on big points; keep it."},

	// Review of historical footage.
	{SessionType: analysisconfig.SessionHistorical, Metric: MetricReadiness, Threshold: DevelopingThreshold, Below: true, Category: "progression", Priority: PriorityMedium,
		Text: "Archived session scores below developing level; compare with recent sessions to confirm progress."},
}

// Rules returns a copy of the insight table.
func Rules() []Rule {
	return slices.Clone(rules)
}

// GenerateInsights selects every rule matching the sport, session type and
// metrics. Output is ordered by priority, then category, then metric.
func GenerateInsights(sport, sessionType string, metrics map[string]float64) []model.Insight {
	out := []model.Insight{}
	for _, r := range rules {
		if !r.matches(sport, sessionType, metrics) {
			continue
		}
		out = append(out, model.Insight{
			Category:       r.Category,
			Priority:       r.Priority,
			Metric:         r.Metric,
			Value:          metrics[r.Metric],
			Recommendation: r.Text,
		})
	}
	slices.SortStableFunc(out, func(a, b model.Insight) int {
		return cmp.Or(
			cmp.Compare(priorityOrder[a.Priority], priorityOrder[b.Priority]),
			cmp.Compare(a.Category, b.Category),
			cmp.Compare(a.Metric, b.Metric),
		)
	})
	return out
}
