// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Keys are flat snake_case so env vars map onto them directly.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/scoring"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Frame sources and landmark extractors.
const (
	DecoderFFmpeg       = "ffmpeg"
	DecoderSynthetic    = "synthetic"
	ExtractorProcess    = "process"
	ExtractorSynthetic  = "synthetic"
	defaultQueueSize    = 1024
	defaultDedupeSize   = 50_000
	defaultChunkSize    = 256
	defaultTimelineRows = 2000
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory stream job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of stream workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the delivery key tracker. 0 is unbounded.
	DedupeSize int `koanf:"dedupe_size"`

	StoreDriver    string `koanf:"store_driver"`
	SQLitePath     string `koanf:"sqlite_path"`
	FrameChunkSize int    `koanf:"frame_chunk_size"`

	// MaxRetries counts retries after the first attempt of a stream.
	MaxRetries         int      `koanf:"max_retries"`
	RetryBackoffMS     int      `koanf:"retry_backoff_ms"`
	RetryBackoffMaxMS  int      `koanf:"retry_backoff_max_ms"`
	StreamBudgetFactor float64  `koanf:"stream_budget_multiplier"`
	StreamBudgetMinMS  int      `koanf:"stream_budget_min_ms"`
	WatchTimeoutMS     int      `koanf:"watch_timeout_ms"`
	MinConfidence      float64  `koanf:"min_confidence"`
	MaxDurationSeconds float64  `koanf:"max_duration_seconds"`
	MinWidth           int      `koanf:"min_width"`
	MinHeight          int      `koanf:"min_height"`
	SupportedFormats   []string `koanf:"supported_formats"`
	TimelineLimit      int      `koanf:"timeline_limit"`

	Decoder       string `koanf:"decoder"`
	FFmpegBinary  string `koanf:"ffmpeg_binary"`
	FFprobeBinary string `koanf:"ffprobe_binary"`
	DecodeWidth   int    `koanf:"decode_width"`

	Extractor        string `koanf:"extractor"`
	PoseModelCommand string `koanf:"pose_model_command"`
	FaceModelCommand string `koanf:"face_model_command"`
	FrameTimeoutMS   int    `koanf:"frame_timeout_ms"`

	// MQTTBroker enables MQTT notifications when set, e.g. tcp://localhost:1883.
	MQTTBroker      string `koanf:"mqtt_broker"`
	MQTTTopicPrefix string `koanf:"mqtt_topic_prefix"`
	MQTTClientID    string `koanf:"mqtt_client_id"`

	// ScoreWeights overrides individual weights, keyed "<set>_<component>".
	ScoreWeights map[string]float64 `koanf:"score_weights"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          defaultQueueSize,
		WorkerCount:        runtime.NumCPU() * 2,
		DedupeSize:         defaultDedupeSize,
		StoreDriver:        StoreMemory,
		SQLitePath:         "clutch.db",
		FrameChunkSize:     defaultChunkSize,
		MaxRetries:         3,
		RetryBackoffMS:     500,
		RetryBackoffMaxMS:  10_000,
		StreamBudgetFactor: 2,
		StreamBudgetMinMS:  30_000,
		WatchTimeoutMS:     5_000,
		MinConfidence:      0.5,
		MaxDurationSeconds: ingest.DefaultMaxDurationSeconds,
		MinWidth:           ingest.DefaultMinWidth,
		MinHeight:          ingest.DefaultMinHeight,
		SupportedFormats:   ingest.DefaultFormats(),
		TimelineLimit:      defaultTimelineRows,
		Decoder:            DecoderFFmpeg,
		FFmpegBinary:       "ffmpeg",
		FFprobeBinary:      "ffprobe",
		DecodeWidth:        640,
		Extractor:          ExtractorSynthetic,
		FrameTimeoutMS:     5_000,
		MQTTTopicPrefix:    "clutch",
		MQTTClientID:       "clutch",
		ScoreWeights:       map[string]float64{},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 2:
		return fmt.Errorf("%w: queue_size must hold both jobs of a session", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	case c.MinConfidence <= 0 || c.MinConfidence > 1:
		return fmt.Errorf("%w: min_confidence must be in (0, 1]", ErrInvalidConfig)
	case c.StreamBudgetFactor <= 0:
		return fmt.Errorf("%w: stream_budget_multiplier must be positive", ErrInvalidConfig)
	case c.MaxDurationSeconds <= 0:
		return fmt.Errorf("%w: max_duration_seconds must be positive", ErrInvalidConfig)
	case !slices.Contains([]string{StoreMemory, StoreSQLite}, c.StoreDriver):
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == StoreSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path required for the sqlite driver", ErrInvalidConfig)
	case !slices.Contains([]string{DecoderFFmpeg, DecoderSynthetic}, c.Decoder):
		return fmt.Errorf("%w: unknown decoder %q", ErrInvalidConfig, c.Decoder)
	case !slices.Contains([]string{ExtractorProcess, ExtractorSynthetic}, c.Extractor):
		return fmt.Errorf("%w: unknown extractor %q", ErrInvalidConfig, c.Extractor)
	case c.Extractor == ExtractorProcess && c.PoseModelCommand == "" && c.FaceModelCommand == "":
		return fmt.Errorf("%w: the process extractor needs pose_model_command or face_model_command", ErrInvalidConfig)
	}
	if _, err := c.Weights(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Weights resolves ScoreWeights against the default weight sets.
func (c *Config) Weights() (scoring.Weights, error) {
	if len(c.ScoreWeights) == 0 {
		return scoring.Default(), nil
	}
	return scoring.New(scoring.WithOverrides(c.ScoreWeights))
}

// RetryBackoff returns the first retry delay.
func (c *Config) RetryBackoff() time.Duration { return ms(c.RetryBackoffMS) }

// RetryBackoffMax returns the retry delay cap.
func (c *Config) RetryBackoffMax() time.Duration { return ms(c.RetryBackoffMaxMS) }

// StreamBudgetMin returns the minimum per-attempt budget.
func (c *Config) StreamBudgetMin() time.Duration { return ms(c.StreamBudgetMinMS) }

// WatchTimeout returns the watcher safety timeout.
func (c *Config) WatchTimeout() time.Duration { return ms(c.WatchTimeoutMS) }

// FrameTimeout returns the per-frame model process timeout.
func (c *Config) FrameTimeout() time.Duration { return ms(c.FrameTimeoutMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
