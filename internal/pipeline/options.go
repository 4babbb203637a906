package pipeline

import (
	"time"

	"github.com/okian/clutch/internal/adapters/mq/bus"
	"github.com/okian/clutch/internal/domain/dedupe"
	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/synthesis"
	"github.com/okian/clutch/pkg/logger"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDeduper sets the delivery tracker.
func WithDeduper(d dedupe.Deduper) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.dedupe = d
		}
	}
}

// WithValidator sets the ingestion validator.
func WithValidator(v *ingest.Validator) Option {
	return func(c *Coordinator) {
		if v != nil {
			c.validator = v
		}
	}
}

// WithProber sets the metadata prober used to fill missing request fields.
func WithProber(p ingest.Prober) Option {
	return func(c *Coordinator) { c.prober = p }
}

// WithEngine sets the synthesis engine.
func WithEngine(e *synthesis.Engine) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.engine = e
		}
	}
}

// WithNotifier sets the downstream notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithBus sets the stream event bus. Runners must publish to the same bus.
func WithBus(b *bus.Bus) Option {
	return func(c *Coordinator) {
		if b != nil {
			c.bus = b
		}
	}
}

// WithCanceller sets what aborts in-flight stream work on cancel.
func WithCanceller(cn Canceller) Option {
	return func(c *Coordinator) {
		if cn != nil {
			c.canceller = cn
		}
	}
}

// WithWatchTimeout sets how long a watcher waits for a stream event before
// re-reading the session.
func WithWatchTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.watchTimeout = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}
