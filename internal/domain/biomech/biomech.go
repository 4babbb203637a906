// Package biomech derives joint angles and movement phases from pose
// landmarks and aggregates them into the biomechanical stream summary.
package biomech

import (
	"cmp"
	"context"
	"errors"
	"iter"
	"math"
	"slices"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/scoring"
	"github.com/okian/clutch/pkg/logger"
)

const degenerateNorm = 1e-9

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMinConfidence sets the confidence below which frames become gaps.
func WithMinConfidence(c float64) Option {
	return func(a *Analyzer) {
		if c >= 0 && c <= 1 {
			a.minConfidence = c
		}
	}
}

// WithWeights sets the score weights.
func WithWeights(w scoring.Weights) Option {
	return func(a *Analyzer) { a.weights = w }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// Analyzer runs the biomechanical stream over sampled frames.
type Analyzer struct {
	ext           landmark.Extractor
	minConfidence float64
	weights       scoring.Weights
	log           logger.Logger
}

// New returns an Analyzer reading pose landmarks from ext.
func New(ext landmark.Extractor, opts ...Option) *Analyzer {
	a := &Analyzer{
		ext:           ext,
		minConfidence: landmark.DefaultMinConfidence,
		weights:       scoring.Default(),
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the per-frame series and the aggregate of one stream run.
type Result struct {
	Frames  []model.BiomechanicalFrame
	Summary model.BiomechanicalSummary
}

// Analyze consumes frames, reducing each landmark record to metrics as soon
// as it is extracted. Extractor failures on single frames become gaps;
// transient and fatal extractor errors abort the run.
func (a *Analyzer) Analyze(ctx context.Context, cfg analysisconfig.Biomechanics, frames iter.Seq2[model.FrameSample, error]) (Result, error) {
	var (
		out       []model.BiomechanicalFrame
		noDetect  int
		extErrors int
	)
	for sample, err := range frames {
		if err != nil {
			return Result{}, err
		}
		rec, err := a.ext.Extract(ctx, sample)
		if err != nil {
			if escalates(ctx, err) {
				return Result{}, model.WrapKind("biomech.extract", nil, err)
			}
			extErrors++
			a.log.Debug(ctx, "pose extraction failed, frame treated as no detection",
				logger.Int("frame", sample.FrameNumber), logger.Error(err))
			rec = landmark.NoDetection
		}
		if !rec.Detected {
			noDetect++
		}
		out = append(out, a.Frame(cfg, sample, rec))
	}
	slices.SortStableFunc(out, func(x, y model.BiomechanicalFrame) int { return cmp.Compare(x.FrameNumber, y.FrameNumber) })

	summary := Summarize(cfg, out, a.weights)
	summary.NoDetection = noDetect
	summary.ExtractorErrors = extErrors
	return Result{Frames: out, Summary: summary}, nil
}

func escalates(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, model.ErrTransient) || errors.Is(err, model.ErrFatal)
}

// Frame reduces one landmark record to a metric frame. Records below the
// confidence gate, or missing the tracked landmark, become gaps.
func (a *Analyzer) Frame(cfg analysisconfig.Biomechanics, sample model.FrameSample, rec landmark.Record) model.BiomechanicalFrame {
	f := model.BiomechanicalFrame{
		FrameNumber:      sample.FrameNumber,
		TimestampSeconds: sample.TimestampSeconds,
		Confidence:       rec.Confidence,
	}
	if !rec.Usable(a.minConfidence) {
		return f
	}
	tracked, ok := rec.Point(cfg.TrackedLandmark)
	if !ok {
		return f
	}
	angles := make(map[string]float64, len(cfg.Joints))
	for _, j := range cfg.Joints {
		pa, okA := rec.Point(j.A)
		pb, okB := rec.Point(j.B)
		pc, okC := rec.Point(j.C)
		if !okA || !okB || !okC {
			continue
		}
		if angle, ok := JointAngle(pa, pb, pc); ok {
			angles[j.Name] = angle
		}
	}
	f.Valid = true
	f.JointAngles = angles
	f.Phase = Classify(cfg, angles)
	f.TrackedX, f.TrackedY = tracked.X, tracked.Y
	return f
}

// JointAngle returns the angle at b in degrees between b->a and b->c.
// Degenerate segments report ok=false.
func JointAngle(a, b, c landmark.Point) (float64, bool) {
	v1, v2 := a.Sub(b), c.Sub(b)
	n1 := math.Sqrt(v1.X*v1.X + v1.Y*v1.Y + v1.Z*v1.Z)
	n2 := math.Sqrt(v2.X*v2.X + v2.Y*v2.Y + v2.Z*v2.Z)
	if n1 < degenerateNorm || n2 < degenerateNorm {
		return 0, false
	}
	cos := (v1.X*v2.X + v1.Y*v2.Y + v1.Z*v2.Z) / (n1 * n2)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi, true
}

// Classify picks the phase of the first matching decision-table row. Frames
// matching no row fall back to the first phase.
func Classify(cfg analysisconfig.Biomechanics, angles map[string]float64) string {
	for _, rule := range cfg.PhaseRules {
		angle, ok := angles[rule.Joint]
		if ok && angle >= rule.Min && angle <= rule.Max {
			return rule.Phase
		}
	}
	if len(cfg.Phases) == 0 {
		return ""
	}
	return cfg.Phases[0]
}
