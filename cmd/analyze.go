package main

import (
	"context"
	"fmt"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	app "github.com/okian/clutch/internal/app"
	"github.com/okian/clutch/internal/config"
	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/types"
	"github.com/spf13/cobra"
)

// Metadata used by --synthetic when the video is not probed.
const (
	syntheticSeconds = 10
	syntheticFPS     = 30
	syntheticWidth   = 1280
	syntheticHeight  = 720
	pollInterval     = 100 * time.Millisecond
)

type analyzeOptions struct {
	subject     string
	sport       string
	sessionType string
	context     []string
	seconds     float64
	fps         float64
	width       int
	height      int
	synthetic   bool
	json        bool
	timeout     time.Duration
}

func newAnalyzeCommand() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Analyze one video in-process and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.subject, "subject", "local", "Subject identifier")
	f.StringVar(&opts.sport, "sport", analysisconfig.SportBasketball, "Sport: "+strings.Join(analysisconfig.Sports(), ", "))
	f.StringVar(&opts.sessionType, "session-type", analysisconfig.SessionTraining, "Session type: "+strings.Join(analysisconfig.SessionTypes(), ", "))
	f.StringSliceVar(&opts.context, "context", nil, "Context labels, e.g. clutch_time")
	f.Float64Var(&opts.seconds, "duration", 0, "Video duration in seconds (probed when omitted)")
	f.Float64Var(&opts.fps, "fps", 0, "Frame rate (probed when omitted)")
	f.IntVar(&opts.width, "width", 0, "Frame width (probed when omitted)")
	f.IntVar(&opts.height, "height", 0, "Frame height (probed when omitted)")
	f.BoolVar(&opts.synthetic, "synthetic", false, "Use the synthetic decoder and extractors")
	f.BoolVar(&opts.json, "json", false, "Print the session view as JSON")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Maximum time to wait for the report")
	return cmd
}

func runAnalyze(cmd *cobra.Command, video string, opts analyzeOptions) error { //nolint:gocritic // hugeParam
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	// Logs go to stderr so stdout carries only the report
	cfg, err := loadConfig(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg.StoreDriver = config.StoreMemory
	if opts.synthetic {
		cfg.Decoder = config.DecoderSynthetic
		cfg.Extractor = config.ExtractorSynthetic
	}

	svc := app.New(app.WithConfig(cfg))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() { _ = svc.Stop(context.WithoutCancel(ctx)) }()

	rc, err := svc.Ingest(ctx, analyzeRequest(video, opts))
	if err != nil {
		return err
	}
	view, err := svc.Await(ctx, rc.SessionID, pollInterval)
	if err != nil {
		return fmt.Errorf("session %s: %w", rc.SessionID, err)
	}

	if opts.json {
		if err := writeJSON(cmd, view); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), renderReport(view))
	}
	if view.Status == model.SessionFailed {
		return fmt.Errorf("session %s failed: %s", view.ID, view.Error)
	}
	return nil
}

func analyzeRequest(video string, opts analyzeOptions) ingest.Request { //nolint:gocritic // hugeParam
	r := ingest.Request{
		VideoURL:        video,
		DurationSeconds: opts.seconds,
		Width:           opts.width,
		Height:          opts.height,
		FPS:             opts.fps,
		Tags: ingest.Tags{
			SubjectID:   opts.subject,
			Sport:       opts.sport,
			SessionType: opts.sessionType,
			Context:     opts.context,
		},
	}
	if opts.synthetic {
		if r.DurationSeconds == 0 {
			r.DurationSeconds = syntheticSeconds
		}
		if r.FPS == 0 {
			r.FPS = syntheticFPS
		}
		if r.Width == 0 || r.Height == 0 {
			r.Width, r.Height = syntheticWidth, syntheticHeight
		}
		if path.Ext(video) == "" {
			r.Format = "mp4"
		}
	}
	return r
}

// renderReport formats a session view as a set of tables.
func renderReport(v types.SessionView) string { //nolint:gocritic // hugeParam
	var b strings.Builder

	streams := [][]string{}
	for _, kind := range []model.StreamKind{model.StreamBiomechanical, model.StreamBehavioral} {
		s, ok := v.Streams[kind]
		if !ok {
			continue
		}
		streams = append(streams, []string{string(kind), string(s.Status), strconv.Itoa(s.Attempts), s.Error})
	}
	b.WriteString(renderTable(
		fmt.Sprintf("Session %s (%s/%s) %s", v.ID, v.Sport, v.SessionType, v.Status),
		[]string{"Stream", "Status", "Attempts", "Error"},
		streams,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	b.WriteString("\n")

	r := v.Report
	if r == nil {
		if v.Error != "" {
			b.WriteString("error: " + v.Error + "\n")
		}
		return b.String()
	}

	c := r.Composite
	b.WriteString(renderTable("Composite", []string{"Score", "Value"}, [][]string{
		{"championship readiness", score(c.ChampionshipReadiness) + " (" + c.Level + ")"},
		{"biomechanical overall", score(c.BiomechanicalOverall)},
		{"behavioral overall", score(c.BehavioralOverall)},
		{"synchronization", score(c.Synchronization)},
		{"mental toughness", score(c.MentalToughness)},
		{"consistency", score(c.Consistency)},
	}, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	bio := r.Biomechanical
	b.WriteString(renderTable("Biomechanical", []string{"Metric", "Value"}, [][]string{
		{"consistency", ratio(bio.Consistency)},
		{"efficiency", ratio(bio.Efficiency)},
		{"power", ratio(bio.Power)},
		{"timing", ratio(bio.Timing)},
		{"peak velocity", strconv.FormatFloat(bio.PeakVelocity, 'f', 3, 64)},
		{"dominant phase", bio.DominantPhase},
		{"valid frames", fmt.Sprintf("%d/%d", bio.ValidFrames, bio.TotalFrames)},
	}, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	beh := r.Behavioral
	b.WriteString(renderTable("Behavioral", []string{"Metric", "Value"}, [][]string{
		{"confidence", ratio(beh.Confidence)},
		{"concentration", ratio(beh.Concentration)},
		{"determination", ratio(beh.Determination)},
		{"emotional stability", ratio(beh.EmotionalStability)},
		{"pressure response", ratio(beh.PressureResponse)},
		{"composure", ratio(beh.Composure.Score)},
		{"character", score(beh.Character)},
		{"valid frames", fmt.Sprintf("%d/%d", beh.ValidFrames, beh.TotalFrames)},
		{"unavailable", strings.Join(beh.UnavailableSignals, ", ")},
	}, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	if len(r.CriticalMoments) > 0 {
		rows := make([][]string, 0, len(r.CriticalMoments))
		for _, m := range r.CriticalMoments {
			rows = append(rows, []string{
				m.Type,
				strconv.FormatFloat(m.StartSeconds, 'f', 2, 64),
				strconv.FormatFloat(m.EndSeconds, 'f', 2, 64),
				triggers(m.Triggers),
			})
		}
		b.WriteString(renderTable("Critical moments", []string{"Type", "Start s", "End s", "Triggers"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
		b.WriteString("\n")
	}

	if len(r.Insights) > 0 {
		rows := make([][]string, 0, len(r.Insights))
		for _, in := range r.Insights {
			rows = append(rows, []string{in.Priority, in.Category, in.Metric, score(in.Value), in.Recommendation})
		}
		b.WriteString(renderTable("Insights", []string{"Priority", "Category", "Metric", "Value", "Recommendation"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "timeline rows: %d stored of %d\n", len(r.Timeline), r.TimelineLength)
	return b.String()
}

func score(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func ratio(v float64) string { return strconv.FormatFloat(100*v, 'f', 1, 64) + "%" }

func triggers(t map[string]float64) string {
	parts := make([]string, 0, len(t))
	for _, k := range slices.Sorted(maps.Keys(t)) {
		parts = append(parts, k+"="+strconv.FormatFloat(t[k], 'f', 2, 64))
	}
	return strings.Join(parts, " ")
}
