package replay

import (
	"runtime"
	"time"
)

// Defaults for the replay tool.
const (
	DefaultBaseURL      = "http://localhost:9080"
	DefaultSessions     = 50
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultWait         = 2 * time.Minute
	DefaultSeconds      = 6
)

// Config holds configuration for a replay run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Sessions       int           // Number of valid deliveries to generate
	InvalidRatio   float64       // Share of extra deliveries that fail validation
	DuplicateRatio float64       // Share of valid deliveries redelivered
	Seconds        float64       // Video duration of each delivery
	Workers        int           // Number of concurrent submitters
	Timeout        time.Duration // HTTP request timeout
	PollInterval   time.Duration // Delay between status polls
	Wait           time.Duration // Upper bound on waiting for terminal sessions
	Seed           uint64        // Generator seed; 0 picks one from the clock
	OutputFile     string        // Optional JSON dump of the generated deliveries
	Verbose        bool          // Enable per-delivery logging
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Sessions:       DefaultSessions,
		InvalidRatio:   0.1,
		DuplicateRatio: 0.1,
		Seconds:        DefaultSeconds,
		Workers:        runtime.NumCPU() * 2,
		Timeout:        DefaultTimeout,
		PollInterval:   DefaultPollInterval,
		Wait:           DefaultWait,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Sessions < 0 {
		c.Sessions = 0
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Wait <= 0 {
		c.Wait = d.Wait
	}
	if c.Seconds <= 0 {
		c.Seconds = d.Seconds
	}
	c.InvalidRatio = clampRatio(c.InvalidRatio)
	c.DuplicateRatio = clampRatio(c.DuplicateRatio)
}

func clampRatio(v float64) float64 {
	return min(max(v, 0), 1)
}

// Stats holds replay statistics.
type Stats struct {
	Generated  int           `json:"generated"`
	Submitted  int           `json:"submitted"`
	Accepted   int           `json:"accepted"`
	Duplicate  int           `json:"duplicate"`
	Rejected   int           `json:"rejected"`
	Throttled  int           `json:"throttled"`
	Errored    int           `json:"errored"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Pending    int           `json:"pending"`
	Violations []string      `json:"violations,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
}
