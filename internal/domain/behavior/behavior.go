// Package behavior derives micro-expression scores and facial stability from
// face landmarks and aggregates them into the behavioral stream summary.
package behavior

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
	"github.com/okian/clutch/internal/domain/stats"
	"github.com/okian/clutch/pkg/logger"
)

const (
	// percent converts normalized displacement to percent-of-frame units.
	percent        = 100.0
	stabilityScale = 10.0
)

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

// Analyzer runs the behavioral stream over sampled frames.
type Analyzer struct {
	ext           landmark.Extractor
	minConfidence float64
	weights       scoring.Weights
	log           logger.Logger
}

// New returns an Analyzer reading face landmarks from ext.
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
	Frames  []model.BehavioralFrame
	Summary model.BehavioralSummary
}

// previous holds the last valid frame geometry; it is all the analyzer keeps
// of a landmark record once the frame is reduced.
type previous struct {
	ok        bool
	points    []landmark.Point
	centroids map[string]landmark.Point
}

// Analyze consumes frames in order. tags are the session context tags used
// to boost window pressure.
func (a *Analyzer) Analyze(ctx context.Context, cfg analysisconfig.Behavior, tags []string, frames iter.Seq2[model.FrameSample, error]) (Result, error) {
	var (
		out       []model.BehavioralFrame
		prev      previous
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
				return Result{}, model.WrapKind("behavior.extract", nil, err)
			}
			extErrors++
			a.log.Debug(ctx, "face extraction failed, frame treated as no detection",
				logger.Int("frame", sample.FrameNumber), logger.Error(err))
			rec = landmark.NoDetection
		}
		if !rec.Detected {
			noDetect++
		}
		f, next := a.frame(cfg, sample, rec, prev)
		prev = next
		out = append(out, f)
	}
	slices.SortStableFunc(out, func(x, y model.BehavioralFrame) int { return cmp.Compare(x.FrameNumber, y.FrameNumber) })

	summary := Summarize(cfg, tags, out, a.weights)
	summary.NoDetection = noDetect
	summary.ExtractorErrors = extErrors
	return Result{Frames: out, Summary: summary}, nil
}

func escalates(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, model.ErrTransient) || errors.Is(err, model.ErrFatal)
}

func (a *Analyzer) frame(cfg analysisconfig.Behavior, sample model.FrameSample, rec landmark.Record, prev previous) (model.BehavioralFrame, previous) {
	f := model.BehavioralFrame{
		FrameNumber:      sample.FrameNumber,
		TimestampSeconds: sample.TimestampSeconds,
		Confidence:       rec.Confidence,
	}
	if !rec.Usable(a.minConfidence) {
		return f, prev
	}
	ind, ok := measure(rec)
	if !ok {
		return f, prev
	}

	regions := cfg.FocusRegions
	if len(regions) == 0 {
		regions = analysisconfig.FaceRegions()
	}
	cur := previous{ok: true, centroids: make(map[string]landmark.Point, len(regions))}
	for _, name := range regions {
		pts := rec.Regions[name]
		if len(pts) == 0 {
			continue
		}
		cur.centroids[name] = centroid(pts)
		cur.points = append(cur.points, pts...)
	}

	f.Stability = 1
	if prev.ok {
		f.Motion = meanSquaredDisplacement(prev.points, cur.points)
		f.Stability = 1 / (1 + centroidVariance(prev.centroids, cur.centroids)/stabilityScale)
	}

	f.Valid = true
	f.Scores = map[string]float64{
		model.ScoreConfidence:    stats.Mean([]float64{ind.symmetry, ind.eyeOpen, 1 - ind.browFurrow}),
		model.ScoreStress:        stats.Mean([]float64{ind.browFurrow, ind.compression, ind.jawSet}),
		model.ScoreConcentration: stats.Mean([]float64{ind.browFurrow, 1 - ind.browRaise, f.Stability}),
		model.ScoreDetermination: stats.Mean([]float64{ind.jawSet, ind.compression, ind.eyeOpen}),
		model.ScoreComposure:     stats.Mean([]float64{ind.symmetry, f.Stability, 1 - ind.browRaise}),
	}
	return f, cur
}

// meanSquaredDisplacement is the mean squared point movement in percent of
// frame units. Point lists of different shape are compared up to the shorter.
func meanSquaredDisplacement(a, b []landmark.Point) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		dx, dy := (b[i].X-a[i].X)*percent, (b[i].Y-a[i].Y)*percent
		sum += dx*dx + dy*dy
	}
	return sum / float64(n)
}

// centroidVariance is the mean squared centroid movement of the regions
// present in both frames.
func centroidVariance(a, b map[string]landmark.Point) float64 {
	var sum float64
	var n int
	for name, pb := range b {
		pa, ok := a[name]
		if !ok {
			continue
		}
		dx, dy := (pb.X-pa.X)*percent, (pb.Y-pa.Y)*percent
		sum += dx*dx + dy*dy
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func centroid(pts []landmark.Point) landmark.Point {
	var c landmark.Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
		c.Z += p.Z
	}
	n := float64(len(pts))
	return landmark.Point{X: c.X / n, Y: c.Y / n, Z: c.Z / n}
}

func dist(a, b landmark.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
