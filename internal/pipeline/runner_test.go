package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/clutch/internal/adapters/repository"
	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/sampler"
	"github.com/okian/clutch/internal/pipeline"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRunnerBudgetAndBackoff(t *testing.T) {
	Convey("Given a runner with explicit limits", t, func() {
		r := pipeline.NewRunner(repository.NewMemoryStore(), sampler.SyntheticDecoder{}, landmark.SyntheticProvider{},
			pipeline.WithBudget(1.5, 10*time.Second),
			pipeline.WithRetry(3, 100*time.Millisecond, time.Second),
		)

		Convey("Then short videos get the minimum budget", func() {
			So(r.Budget(2), ShouldEqual, 10*time.Second)
		})

		Convey("Then long videos scale with their duration", func() {
			So(r.Budget(60), ShouldEqual, 90*time.Second)
		})

		Convey("Then backoff doubles up to the cap", func() {
			So(r.Backoff(1), ShouldEqual, 100*time.Millisecond)
			So(r.Backoff(2), ShouldEqual, 200*time.Millisecond)
			So(r.Backoff(4), ShouldEqual, 800*time.Millisecond)
			So(r.Backoff(5), ShouldEqual, time.Second)
			So(r.Backoff(12), ShouldEqual, time.Second)
		})
	})
}

func TestRunnerHandle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a stored session", t, func() {
		st := repository.NewMemoryStore()
		s := completedSession("s-runner")
		s.Biomechanical = model.StreamState{Status: model.StreamPending}
		s.Behavioral = model.StreamState{Status: model.StreamPending}
		So(st.Create(ctx, s), ShouldBeNil)
		r := pipeline.NewRunner(st, sampler.SyntheticDecoder{}, landmark.SyntheticProvider{},
			pipeline.WithChunkSize(16))
		job := model.StreamJob{
			SessionID: s.ID, VideoRef: s.VideoRef, FPS: s.FPS, DurationSeconds: s.DurationSeconds,
			Width: s.Width, Height: s.Height, Stream: model.StreamBiomechanical,
			Config: analysisconfig.MustLookup(s.Sport, string(s.SessionType)),
		}

		Convey("When the biomechanical job runs", func() {
			So(r.Handle(ctx, job), ShouldBeNil)

			Convey("Then the stream completes with its series and summary stored", func() {
				got, err := st.Get(ctx, s.ID)
				So(err, ShouldBeNil)
				So(got.Biomechanical.Status, ShouldEqual, model.StreamCompleted)
				So(got.Biomechanical.Attempts, ShouldEqual, 1)
				So(got.BiomechanicalSummary, ShouldNotBeNil)
				So(got.Behavioral.Status, ShouldEqual, model.StreamPending)

				frames, err := repository.LoadSeries[model.BiomechanicalFrame](ctx, st, s.ID, model.StreamBiomechanical)
				So(err, ShouldBeNil)
				So(frames, ShouldHaveLength, 60)
				chunks, err := st.Chunks(ctx, s.ID, model.StreamBiomechanical)
				So(err, ShouldBeNil)
				So(chunks, ShouldHaveLength, 4)
			})

			Convey("Then a redelivered job is skipped", func() {
				So(r.Handle(ctx, job), ShouldBeNil)
				got, err := st.Get(ctx, s.ID)
				So(err, ShouldBeNil)
				So(got.Biomechanical.Attempts, ShouldEqual, 1)
			})
		})

		Convey("When the session was cancelled before the job ran", func() {
			_, err := repository.CancelSession(ctx, st, s.ID)
			So(err, ShouldBeNil)
			So(r.Handle(ctx, job), ShouldBeNil)

			Convey("Then nothing is analyzed", func() {
				got, err := st.Get(ctx, s.ID)
				So(err, ShouldBeNil)
				So(got.Biomechanical.Attempts, ShouldEqual, 0)
				So(got.BiomechanicalSummary, ShouldBeNil)
			})
		})
	})
}
