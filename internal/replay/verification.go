package replay

import (
	"context"
	"fmt"

	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/types"
	"github.com/okian/clutch/pkg/logger"
)

// verify checks every result against the outcome its kind implies and
// returns the violations found. It also fills the terminal counters of stats.
func verify(ctx context.Context, c *Client, results []Result, views map[string]types.SessionView, stats *Stats) []string {
	logger.Get().Info(ctx, "verifying results", logger.Int("results", len(results)))

	var violations []string
	fail := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	originals := make(map[string]Outcome)
	for _, r := range results {
		if r.Delivery.Kind == KindValid {
			originals[r.Delivery.Request.DeliveryID] = r.Outcome
		}
	}

	for _, r := range results {
		id := r.Delivery.Request.DeliveryID
		switch r.Delivery.Kind {
		case KindValid:
			switch r.Outcome {
			case OutcomeAccepted:
				v, ok := views[r.SessionID]
				if !ok {
					fail("delivery %s: session %s never readable", id, r.SessionID)
					continue
				}
				for _, msg := range checkSession(v) {
					fail("session %s: %s", r.SessionID, msg)
				}
				countTerminal(stats, v)
			case OutcomeThrottled:
				logger.Get().Warn(ctx, "delivery throttled", logger.String("deliveryID", id))
			default:
				fail("delivery %s: valid delivery got %s (status %d)", id, r.Outcome, r.Status)
			}

		case KindInvalid:
			if r.Outcome != OutcomeRejected {
				fail("delivery %s: invalid delivery got %s (status %d)", id, r.Outcome, r.Status)
			}
			if subject := r.Delivery.Request.Tags.SubjectID; subject != "" {
				h, err := c.History(ctx, subject)
				switch {
				case err != nil:
					fail("subject %s: history lookup failed: %v", subject, err)
				case len(h.Sessions) != 0:
					fail("subject %s: rejected delivery created %d sessions", subject, len(h.Sessions))
				}
			}

		case KindDuplicate:
			if originals[id] == OutcomeAccepted && r.Outcome != OutcomeDuplicate {
				fail("delivery %s: redelivery got %s (status %d)", id, r.Outcome, r.Status)
			}
		}
	}

	if len(violations) == 0 {
		logger.Get().Info(ctx, "result verification passed")
	} else {
		for _, v := range violations {
			logger.Get().Warn(ctx, "violation", logger.String("detail", v))
		}
	}
	return violations
}

// checkSession lists what is wrong with the final view of an accepted session.
func checkSession(v types.SessionView) []string { //nolint:gocritic // hugeParam
	var out []string
	switch v.Status {
	case model.SessionCompleted:
		if v.Report == nil {
			return append(out, "completed without a report")
		}
		if v.Report.TimelineLength == 0 {
			out = append(out, "report has an empty timeline")
		}
		if len(v.Report.Timeline) > v.Report.TimelineLength {
			out = append(out, "stored timeline longer than its length")
		}
		if r := v.Report.Composite.ChampionshipReadiness; r < 0 || r > 100 {
			out = append(out, fmt.Sprintf("readiness %.2f outside [0,100]", r))
		}
		for kind, s := range v.Streams {
			if s.Status != model.StreamCompleted {
				out = append(out, fmt.Sprintf("stream %s is %s in a completed session", kind, s.Status))
			}
		}
	case model.SessionFailed:
		if v.Report != nil {
			out = append(out, "failed session carries a report")
		}
		if v.Error == "" {
			out = append(out, "failed session has no error")
		}
	default:
		out = append(out, fmt.Sprintf("did not finish, last status %s", v.Status))
	}
	return out
}

func countTerminal(stats *Stats, v types.SessionView) { //nolint:gocritic // hugeParam
	switch v.Status {
	case model.SessionCompleted:
		stats.Completed++
	case model.SessionFailed:
		stats.Failed++
	default:
		stats.Pending++
	}
}
