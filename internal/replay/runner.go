// Package replay drives a running clutch service with generated webhook
// deliveries and verifies the outcomes.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/clutch/internal/domain/types"
	"github.com/okian/clutch/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes a complete replay against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (*Stats, error) { //nolint:gocritic // hugeParam
	cfg.normalize()
	log := logger.Named("replay")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("workers", cfg.Workers),
		logger.Float64("invalidRatio", cfg.InvalidRatio),
		logger.Float64("duplicateRatio", cfg.DuplicateRatio),
		logger.Duration("wait", cfg.Wait))

	client := NewClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	// Step 2: Generate deliveries
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // non-negative clock
	}
	deliveries := NewGenerator(seed, cfg.Seconds).Generate(cfg.Sessions, cfg.InvalidRatio, cfg.DuplicateRatio)
	stats.Generated = len(deliveries)
	if cfg.OutputFile != "" {
		if err := saveDeliveries(cfg.OutputFile, deliveries); err != nil {
			log.Warn(ctx, "failed to save deliveries", logger.Error(err))
		}
	}

	// Step 3: Submit originals, then redeliveries once originals are recorded
	var originals, redeliveries []Delivery
	for _, d := range deliveries {
		if d.Kind == KindDuplicate {
			redeliveries = append(redeliveries, d)
			continue
		}
		originals = append(originals, d)
	}
	results := submit(ctx, client, cfg, originals)
	results = append(results, submit(ctx, client, cfg, redeliveries)...)
	tally(stats, results)

	// Step 4: Wait for accepted sessions to finish
	waitCtx, cancel := context.WithTimeout(ctx, cfg.Wait)
	views := await(waitCtx, client, cfg, results)
	cancel()

	// Step 5: Verify outcomes
	stats.Violations = verify(ctx, client, results, views, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if len(stats.Violations) > 0 {
		return stats, fmt.Errorf("%w: %d violations", ErrViolations, len(stats.Violations))
	}
	log.Info(ctx, "replay completed successfully")
	return stats, nil
}

// submit posts deliveries with a pool of cfg.Workers submitters.
// Results keep the order of deliveries.
func submit(ctx context.Context, c *Client, cfg Config, ds []Delivery) []Result { //nolint:gocritic // hugeParam
	out := make([]Result, len(ds))
	idx := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for range min(cfg.Workers, max(len(ds), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				out[i] = c.Submit(ctx, ds[i])
				if cfg.Verbose {
					logger.Get().Info(ctx, "delivery submitted",
						logger.String("kind", string(ds[i].Kind)),
						logger.String("outcome", string(out[i].Outcome)),
						logger.String("sessionID", out[i].SessionID))
				}
			}
		}()
	}
feed:
	for i := range ds {
		select {
		case <-ctx.Done():
			break feed
		case idx <- i:
		}
	}
	close(idx)
	wg.Wait()
	return out
}

func tally(stats *Stats, results []Result) {
	for _, r := range results {
		if r.Outcome == "" {
			continue
		}
		stats.Submitted++
		switch r.Outcome {
		case OutcomeAccepted:
			stats.Accepted++
		case OutcomeDuplicate:
			stats.Duplicate++
		case OutcomeRejected:
			stats.Rejected++
		case OutcomeThrottled:
			stats.Throttled++
		default:
			stats.Errored++
		}
	}
}

// await polls every accepted session until it is terminal or ctx expires.
// The returned map holds the last view seen per session id.
func await(ctx context.Context, c *Client, cfg Config, results []Result) map[string]types.SessionView { //nolint:gocritic // hugeParam
	ids := make(chan string, cfg.Workers*2)
	var (
		mu    sync.Mutex
		views = make(map[string]types.SessionView)
		wg    sync.WaitGroup
	)
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				v, ok := poll(ctx, c, cfg.PollInterval, id)
				if ok {
					mu.Lock()
					views[id] = v
					mu.Unlock()
				}
			}
		}()
	}
	for _, r := range results {
		if r.Outcome == OutcomeAccepted {
			ids <- r.SessionID
		}
	}
	close(ids)
	wg.Wait()
	return views
}

func poll(ctx context.Context, c *Client, every time.Duration, id string) (types.SessionView, bool) {
	var (
		last types.SessionView
		seen bool
	)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		v, err := c.Session(ctx, id)
		if err == nil {
			last, seen = v, true
			if v.Status.Terminal() {
				return v, true
			}
		}
		select {
		case <-ctx.Done():
			return last, seen
		case <-t.C:
		}
	}
}

func saveDeliveries(filename string, ds []Delivery) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	b, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deliveries: %w", err)
	}
	if err := os.WriteFile(filename, b, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// displayFinalStats logs the final replay statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var rate float64
	if stats.Duration > 0 {
		rate = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rejected", stats.Rejected),
		logger.Int("throttled", stats.Throttled),
		logger.Int("errored", stats.Errored),
		logger.Int("completed", stats.Completed),
		logger.Int("failed", stats.Failed),
		logger.Int("pending", stats.Pending),
		logger.Int("violations", len(stats.Violations)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("deliveriesPerSecond", rate))
}
