// Package worker runs stream jobs pulled off the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/clutch/internal/adapters/mq/queue"
	"github.com/okian/clutch/pkg/logger"
	"github.com/okian/clutch/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job is what workers read off the queue.
type Job = queue.Job

// Handler executes one stream job.
type Handler interface {
	Handle(ctx context.Context, j Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, j Job) error { return f(ctx, j) } //nolint:gocritic // hugeParam

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Pool manages a fixed set of workers consuming the same queue.
type Pool struct {
	size    int
	queue   Queue
	handler Handler
	logger  logger.Logger

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	once     sync.Once
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewPool creates a pool of workerCount workers.
// A workerCount below 1 defaults to runtime.NumCPU().
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		size:     workerCount,
		queue:    q,
		handler:  h,
		logger:   logger.Nop(),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Active returns the number of jobs currently being handled.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Processed returns the number of jobs handled, successful or not.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns the number of jobs whose handler returned an error.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Start launches every worker. Workers stop when ctx is done, Shutdown is
// called, or the queue channel closes.
func (p *Pool) Start(ctx context.Context) {
	for i := range p.size {
		p.wg.Add(1)
		go p.run(ctx, "worker-"+strconv.Itoa(i))
	}
}

func (p *Pool) run(ctx context.Context, name string) {
	defer p.wg.Done()
	log := p.logger.Named(name)

	jobs := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			p.handle(ctx, log, j)
		}
	}
}

func (p *Pool) handle(ctx context.Context, log logger.Logger, j Job) { //nolint:gocritic // hugeParam
	metrics.UpdateWorkerActiveCount(int(p.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(p.active.Add(-1)))
		p.processed.Add(1)
	}()

	if err := p.safeHandle(ctx, j); err != nil {
		p.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "handler_error")
		log.Error(ctx, "stream job failed",
			logger.String("session_id", j.SessionID),
			logger.String("stream", string(j.Stream)),
			logger.Error(err),
		)
	}
}

func (p *Pool) safeHandle(ctx context.Context, j Job) (err error) { //nolint:gocritic // hugeParam
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return p.handler.Handle(ctx, j)
}

// Shutdown closes the queue when it can be closed, stops the workers and waits
// for in-flight jobs until ctx is done or the pool timeout elapses.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.once.Do(func() { close(p.shutdown) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-done:
		metrics.UpdateWorkerActiveCount(0)
		return nil
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out", logger.Int("active", p.Active()))
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, shutdownCtx.Err())
	}
}
