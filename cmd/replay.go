package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/okian/clutch/internal/replay"
	"github.com/spf13/cobra"
)

func newReplayCommand() *cobra.Command {
	cfg := replay.DefaultConfig()
	var (
		jsonOut   bool
		logFormat string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay generated webhook deliveries against a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if !cfg.Verbose {
				level = "warn"
			}
			if err := initLogger(cmd.Context(), os.Stderr, logFormat, level); err != nil {
				return err
			}
			stats, err := replay.Run(cmd.Context(), cfg)
			if stats != nil {
				if jsonOut {
					if werr := writeJSON(cmd, stats); werr != nil {
						return werr
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), renderReplayStats(stats))
				}
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the service")
	f.IntVar(&cfg.Sessions, "sessions", cfg.Sessions, "Number of valid deliveries")
	f.Float64Var(&cfg.InvalidRatio, "invalid-ratio", cfg.InvalidRatio, "Extra invalid deliveries as a share of sessions")
	f.Float64Var(&cfg.DuplicateRatio, "duplicate-ratio", cfg.DuplicateRatio, "Redeliveries as a share of sessions")
	f.Float64Var(&cfg.Seconds, "seconds", cfg.Seconds, "Video duration of each delivery")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Delay between session status polls")
	f.DurationVar(&cfg.Wait, "wait", cfg.Wait, "Maximum time to wait for sessions to finish")
	f.Uint64Var(&cfg.Seed, "seed", 0, "Generator seed (0 picks one)")
	f.StringVar(&cfg.OutputFile, "output", "", "Write generated deliveries to this JSON file")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log every delivery")
	f.BoolVar(&jsonOut, "json", false, "Print statistics as JSON")
	f.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	return cmd
}

func renderReplayStats(s *replay.Stats) string {
	rows := [][]string{
		{"generated", strconv.Itoa(s.Generated)},
		{"submitted", strconv.Itoa(s.Submitted)},
		{"accepted", strconv.Itoa(s.Accepted)},
		{"duplicate", strconv.Itoa(s.Duplicate)},
		{"rejected", strconv.Itoa(s.Rejected)},
		{"throttled", strconv.Itoa(s.Throttled)},
		{"errored", strconv.Itoa(s.Errored)},
		{"completed", strconv.Itoa(s.Completed)},
		{"failed", strconv.Itoa(s.Failed)},
		{"pending", strconv.Itoa(s.Pending)},
		{"violations", strconv.Itoa(len(s.Violations))},
		{"duration", s.Duration.Round(1e6).String()},
	}
	out := renderTable("Replay", []string{"Counter", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
	for _, v := range s.Violations {
		out += "\n  - " + v
	}
	return out
}
