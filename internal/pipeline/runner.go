package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/clutch/internal/adapters/repository"
	"github.com/okian/clutch/internal/domain/behavior"
	"github.com/okian/clutch/internal/domain/biomech"
	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/sampler"
	"github.com/okian/clutch/internal/domain/scoring"
	"github.com/okian/clutch/pkg/logger"
	"github.com/okian/clutch/pkg/metrics"
)

// Default runner settings.
const (
	DefaultMaxRetries       = 3
	DefaultBackoff          = 500 * time.Millisecond
	DefaultMaxBackoff       = 10 * time.Second
	DefaultBudgetMultiplier = 2.0
	DefaultBudgetMin        = 30 * time.Second
)

// Publisher announces stream status changes.
type Publisher interface {
	Publish(ev model.StreamEvent) int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRetry sets how many times a retryable attempt failure is retried and
// the exponential backoff between attempts.
func WithRetry(maxRetries int, backoff, maxBackoff time.Duration) RunnerOption {
	return func(r *Runner) {
		if maxRetries >= 0 {
			r.maxRetries = maxRetries
		}
		if backoff > 0 {
			r.backoff = backoff
		}
		if maxBackoff > 0 {
			r.maxBackoff = maxBackoff
		}
	}
}

// WithBudget sets the per-attempt wall-clock budget to
// max(min, multiplier x video duration).
func WithBudget(multiplier float64, min time.Duration) RunnerOption {
	return func(r *Runner) {
		if multiplier > 0 {
			r.budgetMultiplier = multiplier
		}
		if min > 0 {
			r.budgetMin = min
		}
	}
}

// WithChunkSize sets the number of metric frames per stored chunk.
func WithChunkSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithMinConfidence sets the analyzer confidence gate.
func WithMinConfidence(c float64) RunnerOption {
	return func(r *Runner) {
		if c > 0 && c <= 1 {
			r.minConfidence = c
		}
	}
}

// WithRunnerWeights sets the analyzer score weights.
func WithRunnerWeights(w scoring.Weights) RunnerOption {
	return func(r *Runner) { r.weights = w }
}

// WithPublisher sets where stream status events go.
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) {
		if p != nil {
			r.pub = p
		}
	}
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// Runner executes one stream of one session: it samples frames, runs the
// stream analyzer, persists the series and summary, and moves the stream to
// a terminal status.
type Runner struct {
	store    repository.Store
	decoder  sampler.Decoder
	provider landmark.Provider
	pub      Publisher
	log      logger.Logger

	maxRetries       int
	backoff          time.Duration
	maxBackoff       time.Duration
	budgetMultiplier float64
	budgetMin        time.Duration
	chunkSize        int
	minConfidence    float64
	weights          scoring.Weights

	inflight *cancels
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.StreamEvent) int { return 0 }

// NewRunner returns a Runner with options applied.
func NewRunner(store repository.Store, dec sampler.Decoder, provider landmark.Provider, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:            store,
		decoder:          dec,
		provider:         provider,
		pub:              nopPublisher{},
		log:              logger.Nop(),
		maxRetries:       DefaultMaxRetries,
		backoff:          DefaultBackoff,
		maxBackoff:       DefaultMaxBackoff,
		budgetMultiplier: DefaultBudgetMultiplier,
		budgetMin:        DefaultBudgetMin,
		chunkSize:        repository.DefaultChunkSize,
		minConfidence:    landmark.DefaultMinConfidence,
		weights:          scoring.Default(),
		inflight:         newCancels(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Budget returns the wall-clock budget of one attempt for a video.
func (r *Runner) Budget(durationSeconds float64) time.Duration {
	d := time.Duration(r.budgetMultiplier * durationSeconds * float64(time.Second))
	return max(d, r.budgetMin)
}

// Backoff returns the wait before the retry following attempt (1-based).
func (r *Runner) Backoff(attempt int) time.Duration {
	d := float64(r.backoff) * math.Pow(2, float64(attempt-1))
	if d > float64(r.maxBackoff) {
		return r.maxBackoff
	}
	return time.Duration(d)
}

// Cancel aborts the in-flight jobs of a session and reports how many there were.
func (r *Runner) Cancel(sessionID string) int {
	return r.inflight.cancel(sessionID)
}

// InFlight returns the number of jobs currently running.
func (r *Runner) InFlight() int { return r.inflight.len() }

// Handle implements worker.Handler.
func (r *Runner) Handle(ctx context.Context, job model.StreamJob) error { //nolint:gocritic // hugeParam: jobs travel by value
	log := r.log.With(
		logger.String("session_id", job.SessionID),
		logger.String("stream", string(job.Stream)),
	)
	if _, err := repository.TransitionStream(ctx, r.store, job.SessionID, job.Stream, model.StreamProcessing, ""); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			log.Info(ctx, "stream job skipped", logger.Error(err))
			return nil
		}
		return fmt.Errorf("start stream: %w", err)
	}

	jctx, cancel := context.WithCancel(ctx)
	r.inflight.add(job.SessionID, job.Stream, cancel)
	defer func() {
		r.inflight.remove(job.SessionID, job.Stream)
		cancel()
	}()

	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		alog := log.With(logger.Int("attempt", attempt))
		msg := ""
		if lastErr != nil {
			msg = lastErr.Error()
		}
		if _, err := repository.RecordAttempt(jctx, r.store, job.SessionID, job.Stream, msg); err != nil {
			if errors.Is(err, repository.ErrPrecondition) {
				alog.Info(ctx, "stream no longer processing")
				return nil
			}
			if stopped, serr := r.stopped(ctx, jctx, job, alog); stopped {
				return serr
			}
			return fmt.Errorf("record attempt: %w", err)
		}
		metrics.RecordStreamAttempt(string(job.Stream))

		n, err := r.attempt(jctx, job, alog)
		if err == nil {
			return r.complete(ctx, job, n, time.Since(start), alog)
		}
		if stopped, serr := r.stopped(ctx, jctx, job, alog); stopped {
			return serr
		}
		lastErr = err
		if !model.IsRetryable(err) || attempt > r.maxRetries {
			return r.fail(ctx, job, err, alog)
		}

		wait := r.Backoff(attempt)
		metrics.RecordStreamRetry(string(job.Stream))
		alog.Warn(ctx, "stream attempt failed, retrying",
			logger.Duration("backoff", wait), logger.Error(err))
		if err := sleep(jctx, wait); err != nil {
			if stopped, serr := r.stopped(ctx, jctx, job, alog); stopped {
				return serr
			}
		}
	}
}

// stopped reports whether the job context ended because of a cancellation
// (the coordinator already failed the stream) or a shutdown of ctx.
func (r *Runner) stopped(ctx, jctx context.Context, job model.StreamJob, log logger.Logger) (bool, error) { //nolint:gocritic // hugeParam
	switch {
	case ctx.Err() != nil:
		reason := fmt.Errorf("interrupted: %w", ctx.Err())
		_ = r.fail(context.WithoutCancel(ctx), job, reason, log)
		return true, ctx.Err()
	case jctx.Err() != nil:
		log.Info(ctx, "stream cancelled")
		return true, nil
	default:
		return false, nil
	}
}

func (r *Runner) attempt(ctx context.Context, job model.StreamJob, log logger.Logger) (int, error) { //nolint:gocritic // hugeParam
	const op = "pipeline.attempt"
	actx, cancel := context.WithTimeout(ctx, r.Budget(job.DurationSeconds))
	defer cancel()

	ext, err := r.provider.Extractor(landmark.KindFor(job.Stream))
	if err != nil {
		return 0, model.WrapKind(op, model.ErrFatal, err)
	}
	src := sampler.Source{
		Ref:             job.VideoRef,
		DurationSeconds: job.DurationSeconds,
		FPS:             job.FPS,
		Width:           job.Width,
		Height:          job.Height,
	}
	frames := sampler.Extract(actx, r.decoder, src, sampler.Plan(job.DurationSeconds, job.FPS, job.Stream))

	var (
		n, noDetect int
		persist     func(context.Context) error
	)
	switch job.Stream {
	case model.StreamBehavioral:
		res, err := behavior.New(ext,
			behavior.WithMinConfidence(r.minConfidence),
			behavior.WithWeights(r.weights),
			behavior.WithLogger(log),
		).Analyze(actx, job.Config.Behavior, job.Tags, frames)
		if err != nil {
			return 0, err
		}
		n, noDetect = len(res.Frames), res.Summary.NoDetection
		persist = func(ctx context.Context) error {
			if err := repository.AppendSeries(ctx, r.store, job.SessionID, job.Stream, res.Frames, r.chunkSize); err != nil {
				return err
			}
			return r.store.SaveSummary(ctx, job.SessionID, model.StreamSummary{Kind: job.Stream, Behavioral: &res.Summary})
		}
	default:
		res, err := biomech.New(ext,
			biomech.WithMinConfidence(r.minConfidence),
			biomech.WithWeights(r.weights),
			biomech.WithLogger(log),
		).Analyze(actx, job.Config.Biomechanics, frames)
		if err != nil {
			return 0, err
		}
		n, noDetect = len(res.Frames), res.Summary.NoDetection
		persist = func(ctx context.Context) error {
			if err := repository.AppendSeries(ctx, r.store, job.SessionID, job.Stream, res.Frames, r.chunkSize); err != nil {
				return err
			}
			return r.store.SaveSummary(ctx, job.SessionID, model.StreamSummary{Kind: job.Stream, Biomechanical: &res.Summary})
		}
	}
	if n == 0 {
		return 0, model.WrapKind(op, model.ErrDecode, errNoFrames)
	}
	if err := persist(actx); err != nil && !errors.Is(err, repository.ErrSummaryExists) {
		return 0, model.WrapKind("pipeline.persist", model.ErrTransient, err)
	}
	metrics.AddFramesProcessed(string(job.Stream), n, noDetect)
	return n, nil
}

func (r *Runner) complete(ctx context.Context, job model.StreamJob, frames int, took time.Duration, log logger.Logger) error { //nolint:gocritic // hugeParam
	if _, err := repository.TransitionStream(ctx, r.store, job.SessionID, job.Stream, model.StreamCompleted, ""); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			log.Info(ctx, "stream finished after cancellation")
			return nil
		}
		return fmt.Errorf("complete stream: %w", err)
	}
	metrics.RecordStreamCompletion(string(job.Stream))
	metrics.RecordStreamDuration(string(job.Stream), took.Seconds())
	r.pub.Publish(model.StreamEvent{SessionID: job.SessionID, Stream: job.Stream, Status: model.StreamCompleted})
	log.Info(ctx, "stream completed", logger.Int("frames", frames), logger.Duration("took", took))
	return nil
}

func (r *Runner) fail(ctx context.Context, job model.StreamJob, cause error, log logger.Logger) error { //nolint:gocritic // hugeParam
	if _, err := repository.TransitionStream(ctx, r.store, job.SessionID, job.Stream, model.StreamFailed, cause.Error()); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("fail stream: %w", err)
	}
	metrics.RecordStreamFailure(string(job.Stream))
	r.pub.Publish(model.StreamEvent{SessionID: job.SessionID, Stream: job.Stream, Status: model.StreamFailed, Error: cause.Error()})
	log.Error(ctx, "stream failed", logger.Error(cause))
	return cause
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
