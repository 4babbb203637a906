package synthesis

import (
	"math"
	"time"

	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/scoring"
)

const defaultTimelineLimit = 2000

// Option configures an Engine.
type Option func(*Engine)

// WithTimelineLimit bounds the number of timeline rows stored in the report.
func WithTimelineLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.timelineLimit = n
		}
	}
}

// WithWeights sets the readiness weights.
func WithWeights(w scoring.Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithClock sets the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine produces the final report of a session.
type Engine struct {
	timelineLimit int
	weights       scoring.Weights
	now           func() time.Time
}

// NewEngine returns an Engine with options applied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timelineLimit: defaultTimelineLimit,
		weights:       scoring.Default(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Synthesize merges both frame series of a session whose streams completed.
// It fails with ErrSynthesis when a summary is missing or a series is empty,
// so composite scores are never partially populated.
func (e *Engine) Synthesize(s model.Session, bio []model.BiomechanicalFrame, beh []model.BehavioralFrame) (model.FinalReport, error) {
	const op = "synthesis.synthesize"
	if s.BiomechanicalSummary == nil || s.BehavioralSummary == nil {
		return model.FinalReport{}, model.WrapKind(op, model.ErrSynthesis, errMissingSummary)
	}
	if len(bio) == 0 || len(beh) == 0 {
		return model.FinalReport{}, model.WrapKind(op, model.ErrSynthesis, errEmptySeries)
	}
	bioSum, behSum := s.BiomechanicalSummary.Clone(), s.BehavioralSummary.Clone()

	rows := SynchronizeTimelines(bio, beh, s.FPS)
	moments := IdentifyCriticalMoments(rows)

	in := Inputs{
		BiomechanicalOverall: bioSum.Overall,
		BehavioralOverall:    behSum.Character,
		Synchronization:      100 * Synchronization(bio, beh),
		MentalToughness:      100 * behSum.Composure.Score,
		Consistency:          100 * bioSum.Consistency,
	}
	score := readiness(in, e.weights)
	for _, v := range []float64{score, in.BiomechanicalOverall, in.BehavioralOverall, in.Synchronization, in.MentalToughness, in.Consistency} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.FinalReport{}, model.WrapKind(op, model.ErrSynthesis, errNonFinite)
		}
	}
	composite := model.CompositeScores{
		ChampionshipReadiness: score,
		Level:                 Level(score),
		Synchronization:       in.Synchronization,
		MentalToughness:       in.MentalToughness,
		Consistency:           in.Consistency,
		BiomechanicalOverall:  in.BiomechanicalOverall,
		BehavioralOverall:     in.BehavioralOverall,
	}

	metrics := map[string]float64{
		MetricReadiness:          score,
		MetricSynchronization:    in.Synchronization,
		MetricBioConsistency:     in.Consistency,
		MetricBioEfficiency:      100 * bioSum.Efficiency,
		MetricBioPower:           100 * bioSum.Power,
		MetricBioTiming:          100 * bioSum.Timing,
		MetricConfidence:         100 * behSum.Confidence,
		MetricPressureResponse:   100 * behSum.PressureResponse,
		MetricComposure:          in.MentalToughness,
		MetricEmotionalStability: 100 * behSum.EmotionalStability,
		MetricConcentration:      100 * behSum.Concentration,
	}

	return model.FinalReport{
		SessionID:       s.ID,
		Sport:           s.Sport,
		SessionType:     s.SessionType,
		Biomechanical:   bioSum,
		Behavioral:      behSum,
		Timeline:        Decimate(rows, e.timelineLimit),
		TimelineLength:  len(rows),
		CriticalMoments: moments,
		Composite:       composite,
		Insights:        GenerateInsights(s.Sport, string(s.SessionType), metrics),
		GeneratedAt:     e.now(),
	}, nil
}
