package sampler_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/sampler"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPlan(t *testing.T) {
	Convey("Given the default sampling policies", t, func() {
		Convey("When planning any supported duration", func() {
			durations := []float64{0.5, 1, 10, 20, 30, 30.5, 45, 60, 61, 120, 180, 181, 300, 600, 900, 3600}
			fpsValues := []float64{24, 29.97, 30, 60, 120}

			Convey("Then frame numbers increase and the count never exceeds the cap", func() {
				for _, kind := range model.Streams() {
					capacity := sampler.PolicyFor(kind).Cap
					for _, d := range durations {
						for _, fps := range fpsValues {
							plan := sampler.Plan(d, fps, kind)
							So(len(plan), ShouldBeLessThanOrEqualTo, capacity)
							So(len(plan), ShouldBeGreaterThan, 0)
							for i := 1; i < len(plan); i++ {
								So(plan[i].FrameNumber, ShouldBeGreaterThan, plan[i-1].FrameNumber)
								So(plan[i].TimestampSeconds, ShouldBeGreaterThan, plan[i-1].TimestampSeconds)
							}
						}
					}
				}
			})
		})

		Convey("When planning a 20 second clip at 30 fps", func() {
			bio := sampler.Plan(20, 30, model.StreamBiomechanical)
			beh := sampler.Plan(20, 30, model.StreamBehavioral)

			Convey("Then both streams sample every frame", func() {
				So(len(bio), ShouldEqual, 600)
				So(len(beh), ShouldEqual, 600)
				So(bio[599].FrameNumber, ShouldEqual, 599)
				So(bio[30].TimestampSeconds, ShouldAlmostEqual, 1.0, 1e-9)
			})
		})

		Convey("When planning a 45 second clip", func() {
			bio := sampler.Plan(45, 30, model.StreamBiomechanical)
			beh := sampler.Plan(45, 30, model.StreamBehavioral)

			Convey("Then the streams use different strides over one index domain", func() {
				So(bio[1].FrameNumber, ShouldEqual, 2)
				So(beh[1].FrameNumber, ShouldEqual, 3)
				So(len(bio), ShouldEqual, 675)
				So(len(beh), ShouldEqual, 450)
			})
		})

		Convey("When a long clip exceeds the cap at the step stride", func() {
			bio := sampler.Plan(600, 30, model.StreamBiomechanical)
			beh := sampler.Plan(600, 30, model.StreamBehavioral)

			Convey("Then the stride grows so the cap holds", func() {
				So(len(bio), ShouldEqual, 1800)
				So(bio[1].FrameNumber, ShouldEqual, 10)
				So(len(beh), ShouldEqual, 900)
				So(beh[1].FrameNumber, ShouldEqual, 20)
			})
		})

		Convey("When the duration or fps is not positive", func() {
			So(sampler.Plan(0, 30, model.StreamBiomechanical), ShouldBeEmpty)
			So(sampler.Plan(-5, 30, model.StreamBehavioral), ShouldBeEmpty)
			So(sampler.Plan(10, 0, model.StreamBiomechanical), ShouldBeEmpty)
		})
	})
}

type failingDecoder struct{ err error }

func (d failingDecoder) Open(context.Context, sampler.Source) (sampler.FrameReader, error) {
	return nil, d.err
}

type brokenReader struct{ served int }

func (r *brokenReader) Next() (sampler.Frame, error) {
	if r.served >= 3 {
		return sampler.Frame{}, errors.New("pipe broken")
	}
	r.served++
	return sampler.Frame{Index: r.served - 1}, nil
}

func (r *brokenReader) Close() error { return nil }

type brokenDecoder struct{}

func (brokenDecoder) Open(context.Context, sampler.Source) (sampler.FrameReader, error) {
	return &brokenReader{}, nil
}

func TestExtract(t *testing.T) {
	Convey("Given a synthetic decoder", t, func() {
		ctx := context.Background()
		src := sampler.Source{Ref: "synthetic://clip", DurationSeconds: 2, FPS: 10, Width: 64, Height: 48}

		Convey("When extracting a strided plan", func() {
			plan := []model.FramePlan{{FrameNumber: 0}, {FrameNumber: 5, TimestampSeconds: 0.5}, {FrameNumber: 10, TimestampSeconds: 1}}
			var got []model.FrameSample
			for f, err := range sampler.Extract(ctx, sampler.SyntheticDecoder{}, src, plan) {
				So(err, ShouldBeNil)
				got = append(got, f)
			}

			Convey("Then only the planned frames are yielded in order", func() {
				So(len(got), ShouldEqual, 3)
				So(got[1].FrameNumber, ShouldEqual, 5)
				So(got[1].TimestampSeconds, ShouldEqual, 0.5)
				So(got[2].Width, ShouldEqual, 64)
			})
		})

		Convey("When the plan runs past the end of the video", func() {
			plan := []model.FramePlan{{FrameNumber: 19}, {FrameNumber: 25}}
			count := 0
			for _, err := range sampler.Extract(ctx, sampler.SyntheticDecoder{}, src, plan) {
				So(err, ShouldBeNil)
				count++
			}
			So(count, ShouldEqual, 1)
		})

		Convey("When the consumer stops early", func() {
			plan := sampler.Plan(2, 10, model.StreamBiomechanical)
			count := 0
			for range sampler.Extract(ctx, sampler.SyntheticDecoder{}, src, plan) {
				count++
				if count == 4 {
					break
				}
			}
			So(count, ShouldEqual, 4)
		})

		Convey("When iterated twice", func() {
			plan := sampler.Plan(2, 10, model.StreamBehavioral)
			seq := sampler.Extract(ctx, sampler.SyntheticDecoder{}, src, plan)
			first, second := 0, 0
			for range seq {
				first++
			}
			for range seq {
				second++
			}
			So(first, ShouldEqual, 20)
			So(second, ShouldEqual, 20)
		})
	})

	Convey("Given a video that cannot be opened", t, func() {
		plan := sampler.Plan(5, 30, model.StreamBiomechanical)
		var errs []error
		for _, err := range sampler.Extract(context.Background(), failingDecoder{err: io.ErrUnexpectedEOF}, sampler.Source{}, plan) {
			errs = append(errs, err)
		}

		Convey("Then a single fatal decode error is yielded", func() {
			So(len(errs), ShouldEqual, 1)
			So(errors.Is(errs[0], model.ErrDecode), ShouldBeTrue)
			So(model.IsFatal(errs[0]), ShouldBeTrue)
		})
	})

	Convey("Given a reader that breaks mid stream", t, func() {
		plan := sampler.Plan(1, 10, model.StreamBiomechanical)
		var lastErr error
		frames := 0
		for _, err := range sampler.Extract(context.Background(), brokenDecoder{}, sampler.Source{}, plan) {
			if err != nil {
				lastErr = err
				continue
			}
			frames++
		}

		Convey("Then the failure is transient", func() {
			So(frames, ShouldEqual, 3)
			So(errors.Is(lastErr, model.ErrTransient), ShouldBeTrue)
			So(model.IsRetryable(lastErr), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		src := sampler.Source{DurationSeconds: 1, FPS: 10}
		var lastErr error
		for _, err := range sampler.Extract(ctx, sampler.SyntheticDecoder{}, src, sampler.Plan(1, 10, model.StreamBehavioral)) {
			lastErr = err
		}
		So(errors.Is(lastErr, context.Canceled), ShouldBeTrue)
	})
}
