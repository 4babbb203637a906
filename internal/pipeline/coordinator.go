// Package pipeline runs sessions: the Coordinator owns the session state
// machine and the synthesis barrier, the Runner executes stream jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/clutch/internal/adapters/mq/bus"
	"github.com/okian/clutch/internal/adapters/mq/queue"
	"github.com/okian/clutch/internal/adapters/repository"
	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/dedupe"
	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/progression"
	"github.com/okian/clutch/internal/domain/synthesis"
	"github.com/okian/clutch/internal/domain/types"
	"github.com/okian/clutch/pkg/logger"
	"github.com/okian/clutch/pkg/metrics"
)

// Coordinator defaults.
const (
	DefaultWatchTimeout      = 5 * time.Second
	DefaultHistoryWindowDays = 30
)

// Notifier sends the downstream message of a finished session.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Canceller aborts the in-flight stream jobs of a session.
type Canceller interface {
	Cancel(sessionID string) int
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Notification) error { return nil }

type nopCanceller struct{}

func (nopCanceller) Cancel(string) int { return 0 }

// Receipt is the outcome of an accepted ingestion.
type Receipt struct {
	SessionID string
	Duplicate bool
}

// Stats is a point-in-time view of the coordinator.
type Stats struct {
	Sessions   int   `json:"sessions"`
	Watching   int   `json:"watching"`
	QueueDepth int   `json:"queue_depth"`
	DedupeKeys int64 `json:"dedupe_keys"`
}

// Coordinator accepts videos, creates sessions, dispatches both stream jobs
// and elects exactly one synthesis run per session.
type Coordinator struct {
	store     repository.Store
	queue     queue.Queue
	bus       *bus.Bus
	dedupe    dedupe.Deduper
	validator *ingest.Validator
	prober    ingest.Prober
	engine    *synthesis.Engine
	notifier  Notifier
	canceller Canceller
	log       logger.Logger

	watchTimeout time.Duration
	now          func() time.Time

	ctx      context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	watching int
	closed   bool
}

// NewCoordinator returns a Coordinator dispatching stream jobs to q.
func NewCoordinator(store repository.Store, q queue.Queue, opts ...Option) *Coordinator {
	ctx, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		store:        store,
		queue:        q,
		bus:          bus.New(),
		dedupe:       dedupe.NewInMemoryDeduper(),
		validator:    ingest.NewValidator(),
		engine:       synthesis.NewEngine(),
		notifier:     nopNotifier{},
		canceller:    nopCanceller{},
		log:          logger.Nop(),
		watchTimeout: DefaultWatchTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		ctx:          ctx,
		stop:         stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest validates a delivery and starts a session for it. Redeliveries
// return a duplicate receipt. A rejected request leaves no session behind.
func (c *Coordinator) Ingest(ctx context.Context, req ingest.Request) (Receipt, error) { //nolint:gocritic // hugeParam
	const op = "pipeline.ingest"
	if c.isClosed() {
		return Receipt{}, ErrClosed
	}
	key := req.Key()
	if c.dedupe.SeenAndRecord(ctx, key) {
		metrics.RecordDuplicateDelivery()
		c.log.Info(ctx, "duplicate delivery acknowledged", logger.String("key", key))
		return Receipt{Duplicate: true}, nil
	}

	enriched, err := ingest.Enrich(ctx, c.prober, req)
	if err != nil {
		c.log.Warn(ctx, "video probe failed", logger.String("video_ref", req.VideoURL), logger.Error(err))
	}
	valid, err := c.validator.Validate(enriched)
	if err != nil {
		c.dedupe.Unrecord(ctx, key)
		metrics.RecordValidationRejected()
		return Receipt{}, err
	}
	cfg, err := analysisconfig.Lookup(valid.Tags.Sport, valid.Tags.SessionType)
	if err != nil {
		c.dedupe.Unrecord(ctx, key)
		metrics.RecordValidationRejected()
		return Receipt{}, model.WrapKind(op, model.ErrValidation, err)
	}

	now := c.now()
	s := model.Session{
		ID:              uuid.NewString(),
		SubjectID:       valid.Tags.SubjectID,
		VideoRef:        valid.VideoURL,
		Format:          valid.Format,
		Sport:           valid.Tags.Sport,
		SessionType:     model.SessionType(valid.Tags.SessionType),
		Tags:            valid.Tags.Context,
		DurationSeconds: valid.DurationSeconds,
		FPS:             valid.FPS,
		Width:           valid.Width,
		Height:          valid.Height,
		Biomechanical:   model.StreamState{Status: model.StreamPending},
		Behavioral:      model.StreamState{Status: model.StreamPending},
		Status:          model.SessionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.store.Create(ctx, s); err != nil {
		c.dedupe.Unrecord(ctx, key)
		return Receipt{}, fmt.Errorf("create session: %w", err)
	}
	metrics.RecordSessionIngested()
	log := c.log.With(logger.String("session_id", s.ID))

	events, unsubscribe := c.bus.Subscribe(s.ID)
	for _, kind := range model.Streams() {
		job := model.StreamJob{
			SessionID:       s.ID,
			SubjectID:       s.SubjectID,
			VideoRef:        s.VideoRef,
			Sport:           s.Sport,
			SessionType:     s.SessionType,
			Tags:            s.Tags,
			FPS:             s.FPS,
			DurationSeconds: s.DurationSeconds,
			Width:           s.Width,
			Height:          s.Height,
			Stream:          kind,
			Config:          cfg,
			EnqueuedAt:      now,
		}
		if err := queue.Push(ctx, c.queue, job); err != nil {
			unsubscribe()
			c.dedupe.Unrecord(ctx, key)
			reason := "dispatch: " + err.Error()
			if _, aerr := repository.AbortSession(context.WithoutCancel(ctx), c.store, s.ID, kind, reason); aerr == nil {
				c.finish(context.WithoutCancel(ctx), s.ID)
			} else {
				log.Error(ctx, "abort undispatched session", logger.Error(aerr))
			}
			log.Warn(ctx, "stream dispatch refused", logger.String("stream", string(kind)), logger.Error(err))
			return Receipt{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return Receipt{SessionID: s.ID}, nil
	}
	c.watching++
	c.wg.Add(1)
	c.mu.Unlock()
	go c.watch(s.ID, events, unsubscribe)

	log.Info(ctx, "session accepted",
		logger.String("subject_id", s.SubjectID),
		logger.String("sport", s.Sport),
		logger.String("session_type", string(s.SessionType)),
		logger.Float64("duration_seconds", s.DurationSeconds))
	return Receipt{SessionID: s.ID}, nil
}

// watch drives one session to a terminal state. It wakes on stream events
// and re-reads the session after watchTimeout without one.
func (c *Coordinator) watch(id string, events <-chan model.StreamEvent, unsubscribe func()) {
	defer func() {
		unsubscribe()
		c.mu.Lock()
		c.watching--
		c.mu.Unlock()
		c.wg.Done()
	}()
	t := time.NewTimer(c.watchTimeout)
	defer t.Stop()
	for {
		done, err := c.Advance(c.ctx, id)
		if done {
			return
		}
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn(c.ctx, "advance session", logger.String("session_id", id), logger.Error(err))
		}
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(c.watchTimeout)
		select {
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case <-t.C:
		case <-c.ctx.Done():
			return
		}
	}
}

// Advance evaluates a session once and moves it forward when both streams
// are terminal. It is safe to call concurrently and repeatedly: the
// synthesis dispatch compare-and-set lets exactly one caller synthesize.
// It reports whether the session needs no further watching.
func (c *Coordinator) Advance(ctx context.Context, id string) (bool, error) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		return errors.Is(err, repository.ErrNotFound), err
	}
	switch {
	case s.Status.Terminal():
		return true, nil
	case s.Status == model.SessionAnalyzing:
		return false, nil
	case s.BothCompleted():
		won, err := repository.MarkSynthesisDispatched(ctx, c.store, id)
		if err != nil {
			return false, err
		}
		if !won {
			metrics.RecordDuplicateDispatchSuppressed()
			return false, nil
		}
		metrics.RecordSynthesisDispatched()
		c.synthesize(context.WithoutCancel(ctx), id)
		return true, nil
	case s.BothTerminal():
		kind, msg, _ := s.FirstFailure()
		ok, err := repository.FailSession(ctx, c.store, id, kind, msg)
		if err != nil {
			return false, err
		}
		if ok {
			c.log.Warn(ctx, "session failed",
				logger.String("session_id", id),
				logger.String("failed_stream", string(kind)),
				logger.String("error", msg))
			c.finish(ctx, id)
		}
		return true, nil
	default:
		return false, nil
	}
}

func (c *Coordinator) synthesize(ctx context.Context, id string) {
	start := time.Now()
	log := c.log.With(logger.String("session_id", id))
	report, err := c.report(ctx, id)
	if err == nil {
		err = c.store.SaveReport(ctx, id, report)
		if errors.Is(err, repository.ErrReportExists) {
			err = nil
		}
	}
	if err != nil {
		if ok, ferr := repository.FailSession(ctx, c.store, id, "", "synthesis: "+err.Error()); ok {
			log.Error(ctx, "synthesis failed", logger.Error(err))
			c.finish(ctx, id)
		} else if ferr != nil {
			log.Error(ctx, "fail session after synthesis error", logger.Error(ferr))
		}
		return
	}
	ok, err := repository.CompleteSession(ctx, c.store, id)
	if err != nil {
		log.Error(ctx, "complete session", logger.Error(err))
		return
	}
	took := time.Since(start)
	metrics.RecordSynthesisLatency(float64(took.Microseconds()) / 1000)
	if ok {
		log.Info(ctx, "session completed",
			logger.Float64("championship_readiness", report.Composite.ChampionshipReadiness),
			logger.String("level", report.Composite.Level),
			logger.Duration("took", took))
		c.finish(ctx, id)
	}
}

func (c *Coordinator) report(ctx context.Context, id string) (model.FinalReport, error) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		return model.FinalReport{}, err
	}
	bio, err := repository.LoadSeries[model.BiomechanicalFrame](ctx, c.store, id, model.StreamBiomechanical)
	if err != nil {
		return model.FinalReport{}, err
	}
	beh, err := repository.LoadSeries[model.BehavioralFrame](ctx, c.store, id, model.StreamBehavioral)
	if err != nil {
		return model.FinalReport{}, err
	}
	return c.engine.Synthesize(s, bio, beh)
}

// finish runs once per session, right after the transition that made it
// terminal.
func (c *Coordinator) finish(ctx context.Context, id string) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		c.log.Error(ctx, "load finished session", logger.String("session_id", id), logger.Error(err))
		return
	}
	metrics.RecordSessionFinished(string(s.Status))
	if err := c.notifier.Notify(ctx, model.NewNotification(s, c.now())); err != nil {
		c.log.Warn(ctx, "notification failed", logger.String("session_id", id), logger.Error(err))
	}
}

// Cancel fails every unfinished stream of a session and aborts their
// in-flight work. It returns repository.ErrSynthesisStarted once synthesis
// was dispatched and repository.ErrSessionTerminal for finished sessions.
func (c *Coordinator) Cancel(ctx context.Context, id string) (model.Session, error) {
	s, err := repository.CancelSession(ctx, c.store, id)
	if err != nil {
		return model.Session{}, err
	}
	n := c.canceller.Cancel(id)
	metrics.RecordCancellation()
	c.finish(ctx, id)
	for _, kind := range model.Streams() {
		if st := s.Stream(kind); st.Status == model.StreamFailed && st.Error == repository.CancelledReason {
			c.bus.Publish(model.StreamEvent{SessionID: id, Stream: kind, Status: model.StreamFailed, Error: st.Error})
		}
	}
	c.log.Info(ctx, "session cancelled", logger.String("session_id", id), logger.Int("in_flight", n))
	return s, nil
}

// Session returns the status view of a session.
func (c *Coordinator) Session(ctx context.Context, id string) (types.SessionView, error) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		return types.SessionView{}, err
	}
	return types.NewSessionView(s), nil
}

// History returns the sessions of a subject created in the last windowDays
// days and their progression.
func (c *Coordinator) History(ctx context.Context, subjectID string, windowDays int) (types.HistoryView, error) {
	if windowDays <= 0 {
		windowDays = DefaultHistoryWindowDays
	}
	now := c.now()
	window := time.Duration(windowDays) * 24 * time.Hour
	sessions, err := c.store.BySubject(ctx, subjectID, now.Add(-window))
	if err != nil {
		return types.HistoryView{}, err
	}
	return types.NewHistoryView(subjectID, windowDays, sessions, progression.Summarize(sessions, window, now)), nil
}

// Stats returns a snapshot of the coordinator.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	n, err := c.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	c.mu.Lock()
	watching := c.watching
	c.mu.Unlock()
	return Stats{
		Sessions:   n,
		Watching:   watching,
		QueueDepth: c.queue.Len(ctx),
		DedupeKeys: c.dedupe.Size(),
	}, nil
}

// Close stops accepting sessions and waits for the watchers to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
