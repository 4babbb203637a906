// Package service composes the pipeline and its adapters into the service
// that implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/clutch/internal/adapters/extractor"
	"github.com/okian/clutch/internal/adapters/media/ffmpeg"
	"github.com/okian/clutch/internal/adapters/media/ffprobe"
	"github.com/okian/clutch/internal/adapters/mq/bus"
	"github.com/okian/clutch/internal/adapters/mq/queue"
	"github.com/okian/clutch/internal/adapters/mq/worker"
	"github.com/okian/clutch/internal/adapters/notify"
	"github.com/okian/clutch/internal/adapters/repository"
	"github.com/okian/clutch/internal/config"
	"github.com/okian/clutch/internal/domain/dedupe"
	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/sampler"
	"github.com/okian/clutch/internal/domain/synthesis"
	"github.com/okian/clutch/internal/domain/types"
	"github.com/okian/clutch/internal/pipeline"
	"github.com/okian/clutch/pkg/logger"
	"github.com/okian/clutch/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies of the analysis pipeline.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Injected or built on Start
	store    repository.Store
	decoder  sampler.Decoder
	provider landmark.Provider
	prober   ingest.Prober
	notifier notify.Notifier

	// Built on Start
	queue   *queue.InMemoryQueue
	bus     *bus.Bus
	runner  *pipeline.Runner
	pool    *worker.Pool
	coord   *pipeline.Coordinator
	closers []io.Closer
	// resets clears adapters built by Start so a restart builds them again
	resets []func()

	started  bool
	stopPool context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults to config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects the session store instead of opening the configured one.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithDecoder injects the frame decoder.
func WithDecoder(d sampler.Decoder) Option {
	return func(s *Service) { s.decoder = d }
}

// WithProvider injects the landmark extractor provider.
func WithProvider(p landmark.Provider) Option {
	return func(s *Service) { s.provider = p }
}

// WithProber injects the video metadata prober.
func WithProber(p ingest.Prober) Option {
	return func(s *Service) { s.prober = p }
}

// WithNotifier injects the downstream notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// New constructs a new Service.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the adapters the configuration names and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	weights, err := s.cfg.Weights()
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "starting analysis service...")

	if err := s.buildAdapters(ctx); err != nil {
		s.closeAll()
		return err
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	s.bus = bus.New()
	s.runner = pipeline.NewRunner(s.store, s.decoder, s.provider,
		pipeline.WithPublisher(s.bus),
		pipeline.WithRetry(s.cfg.MaxRetries, s.cfg.RetryBackoff(), s.cfg.RetryBackoffMax()),
		pipeline.WithBudget(s.cfg.StreamBudgetFactor, s.cfg.StreamBudgetMin()),
		pipeline.WithChunkSize(s.cfg.FrameChunkSize),
		pipeline.WithMinConfidence(s.cfg.MinConfidence),
		pipeline.WithRunnerWeights(weights),
		pipeline.WithRunnerLogger(s.logger.Named("runner")),
	)
	s.coord = pipeline.NewCoordinator(s.store, s.queue,
		pipeline.WithBus(s.bus),
		pipeline.WithCanceller(s.runner),
		pipeline.WithNotifier(s.notifier),
		pipeline.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))),
		pipeline.WithValidator(ingest.NewValidator(
			ingest.WithFormats(s.cfg.SupportedFormats...),
			ingest.WithMaxDuration(s.cfg.MaxDurationSeconds),
			ingest.WithMinResolution(s.cfg.MinWidth, s.cfg.MinHeight),
		)),
		pipeline.WithProber(s.prober),
		pipeline.WithEngine(synthesis.NewEngine(
			synthesis.WithTimelineLimit(s.cfg.TimelineLimit),
			synthesis.WithWeights(weights),
		)),
		pipeline.WithWatchTimeout(s.cfg.WatchTimeout()),
		pipeline.WithLogger(s.logger.Named("coordinator")),
	)

	poolCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stopPool = stop
	s.pool = worker.NewPool(s.cfg.WorkerCount, s.queue, s.runner, worker.WithLogger(s.logger.Named("worker-pool")))
	s.pool.Start(poolCtx)
	metrics.UpdateQueueCapacity(s.queue.Capacity())

	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
		logger.String("store", s.cfg.StoreDriver),
		logger.String("decoder", s.cfg.Decoder),
		logger.String("extractor", s.cfg.Extractor),
	)
	return nil
}

func (s *Service) buildAdapters(ctx context.Context) error {
	if s.store == nil {
		st, err := openStore(ctx, s.cfg)
		if err != nil {
			return err
		}
		s.store = st
		s.resets = append(s.resets, func() { s.store = nil })
		if c, ok := st.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
	}

	if s.decoder == nil {
		s.resets = append(s.resets, func() { s.decoder = nil })
		switch s.cfg.Decoder {
		case config.DecoderSynthetic:
			s.decoder = sampler.SyntheticDecoder{}
		default:
			s.decoder = ffmpeg.New(ffmpeg.WithBinary(s.cfg.FFmpegBinary), ffmpeg.WithWidth(s.cfg.DecodeWidth))
			if s.prober == nil {
				s.prober = ffprobe.NewProber(s.cfg.FFprobeBinary)
				s.resets = append(s.resets, func() { s.prober = nil })
			}
		}
	}

	if s.provider == nil {
		s.resets = append(s.resets, func() { s.provider = nil })
		switch s.cfg.Extractor {
		case config.ExtractorProcess:
			p, err := extractor.NewProvider(s.cfg.PoseModelCommand, s.cfg.FaceModelCommand,
				extractor.WithFrameTimeout(s.cfg.FrameTimeout()),
				extractor.WithLogger(s.logger.Named("extractor")),
			)
			if err != nil {
				return fmt.Errorf("start extractor: %w", err)
			}
			s.provider = p
			s.closers = append(s.closers, p)
		default:
			s.provider = landmark.SyntheticProvider{}
		}
	}

	if s.notifier == nil {
		s.resets = append(s.resets, func() { s.notifier = nil })
		sinks := []notify.Notifier{notify.NewLog(s.logger.Named("notify"))}
		if s.cfg.MQTTBroker != "" {
			m, err := notify.DialMQTT(ctx, notify.MQTTConfig{
				Broker:      s.cfg.MQTTBroker,
				ClientID:    s.cfg.MQTTClientID,
				TopicPrefix: s.cfg.MQTTTopicPrefix,
			}, s.logger.Named("mqtt"))
			if err != nil {
				s.logger.Warn(ctx, "mqtt unavailable, notifications are logged only",
					logger.String("broker", s.cfg.MQTTBroker), logger.Error(err))
			} else {
				sinks = append(sinks, m)
				s.closers = append(s.closers, m)
			}
		}
		s.notifier = notify.NewMulti(sinks...)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreSQLite {
		st, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	}
	return repository.NewMemoryStore(), nil
}

// Stop stops ingestion, interrupts in-flight streams and releases adapters.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping analysis service...")

	s.coord.Close()
	s.stopPool()
	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.bus.Close()
	errs = append(errs, s.closeAll())

	s.started = false
	s.logger.Info(ctx, "analysis service stopped",
		logger.Int64("processed", s.pool.Processed()),
		logger.Int64("failed", s.pool.Failed()),
	)
	return errors.Join(errs...)
}

func (s *Service) closeAll() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	for _, reset := range s.resets {
		reset()
	}
	s.resets = nil
	return errors.Join(errs...)
}

func (s *Service) coordinator() (*pipeline.Coordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.coord, nil
}

// Ingest starts a session for a webhook delivery.
func (s *Service) Ingest(ctx context.Context, req ingest.Request) (pipeline.Receipt, error) { //nolint:gocritic // hugeParam
	c, err := s.coordinator()
	if err != nil {
		return pipeline.Receipt{}, err
	}
	return c.Ingest(ctx, req)
}

// Session returns the status view of a session.
func (s *Service) Session(ctx context.Context, id string) (types.SessionView, error) {
	c, err := s.coordinator()
	if err != nil {
		return types.SessionView{}, err
	}
	return c.Session(ctx, id)
}

// History returns the sessions and progression of a subject.
func (s *Service) History(ctx context.Context, subjectID string, windowDays int) (types.HistoryView, error) {
	c, err := s.coordinator()
	if err != nil {
		return types.HistoryView{}, err
	}
	return c.History(ctx, subjectID, windowDays)
}

// Cancel stops a session before synthesis.
func (s *Service) Cancel(ctx context.Context, id string) (model.Session, error) {
	c, err := s.coordinator()
	if err != nil {
		return model.Session{}, err
	}
	return c.Cancel(ctx, id)
}

// Await polls a session until it is terminal or ctx is done.
func (s *Service) Await(ctx context.Context, id string, every time.Duration) (types.SessionView, error) {
	if every <= 0 {
		every = 50 * time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		v, err := s.Session(ctx, id)
		if err != nil {
			return types.SessionView{}, err
		}
		if v.Status.Terminal() {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-t.C:
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
		"dedupeSize":  s.cfg.DedupeSize,
		"store":       s.cfg.StoreDriver,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	cs, err := s.coord.Stats(ctx)
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	stats["sessions"] = cs.Sessions
	stats["watching"] = cs.Watching
	stats["queueLength"] = cs.QueueDepth
	stats["dedupeKeys"] = cs.DedupeKeys
	stats["inFlightJobs"] = s.runner.InFlight()
	stats["activeWorkers"] = s.pool.Active()
	stats["processedJobs"] = s.pool.Processed()
	stats["failedJobs"] = s.pool.Failed()

	metrics.UpdateQueueSize(cs.QueueDepth)
	metrics.UpdateWorkerCount(s.pool.Size())
	return stats
}
