package behavior_test

import (
	"context"
	"testing"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/behavior"
	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/sampler"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCalculateComposureResilience(t *testing.T) {
	Convey("Given the composure formula", t, func() {
		Convey("Then the reference points hold", func() {
			So(behavior.CalculateComposureResilience(5, 80), ShouldAlmostEqual, 90, 0.5)
			So(behavior.CalculateComposureResilience(25, 80), ShouldAlmostEqual, 50, 0.5)
			So(behavior.CalculateComposureResilience(0, 80), ShouldEqual, 100)
		})

		Convey("Then the score decreases with variance at any pressure", func() {
			for _, p := range []float64{0, 20, 50, 80, 100, 150} {
				last := behavior.CalculateComposureResilience(0, p)
				for v := 1.0; v <= 60; v++ {
					cur := behavior.CalculateComposureResilience(v, p)
					So(cur, ShouldBeLessThanOrEqualTo, last)
					if last > 0 {
						So(cur, ShouldBeLessThan, last)
					}
					last = cur
				}
			}
		})

		Convey("Then the score is bounded", func() {
			So(behavior.CalculateComposureResilience(1000, 0), ShouldEqual, 0)
			So(behavior.CalculateComposureResilience(-3, 50), ShouldEqual, 100)
		})
	})
}

func run(ext landmark.Extractor, sessionType string, tags []string, seconds float64) (behavior.Result, error) {
	ctx := context.Background()
	cfg := analysisconfig.MustLookup(analysisconfig.SportBasketball, sessionType)
	src := sampler.Source{DurationSeconds: seconds, FPS: 30}
	plan := sampler.Plan(seconds, 30, model.StreamBehavioral)
	return behavior.New(ext).Analyze(ctx, cfg.Behavior, tags, sampler.Extract(ctx, sampler.SyntheticDecoder{}, src, plan))
}

func TestAnalyze(t *testing.T) {
	Convey("Given a calm synthetic face", t, func() {
		res, err := run(landmark.NewSynthetic(landmark.KindFace), analysisconfig.SessionTraining, nil, 9)
		So(err, ShouldBeNil)
		s := res.Summary

		Convey("Then per-frame stress follows the face geometry", func() {
			So(res.Frames[10].Valid, ShouldBeTrue)
			So(res.Frames[10].Score(model.ScoreStress), ShouldAlmostEqual, 0.3, 1e-6)
			So(res.Frames[0].Stability, ShouldEqual, 1)
			So(res.Frames[0].Motion, ShouldEqual, 0)
		})

		Convey("Then levels and composure are high and bounded", func() {
			So(s.ValidFrames, ShouldEqual, 270)
			So(s.PressureResponse, ShouldAlmostEqual, 0.7, 1e-6)
			So(s.EmotionalStability, ShouldBeGreaterThan, 0.9)
			So(len(s.Composure.Windows), ShouldEqual, 3)
			So(s.Composure.FacialStability, ShouldBeGreaterThan, 0.95)
			So(s.Composure.StressEvents, ShouldEqual, 0)
			So(s.Composure.StressRecovery, ShouldEqual, 0.5)
			So(s.Composure.Score, ShouldBeBetween, 0, 1)
			So(s.Character, ShouldBeBetween, 0, 100)
		})

		Convey("Then unmeasured signals are reported as unavailable", func() {
			So(s.UnavailableSignals, ShouldContain, behavior.SignalGazeSteadiness)
			So(s.UnavailableSignals, ShouldContain, behavior.SignalBreathingRhythm)
		})
	})

	Convey("Given a stress spike that resolves", t, func() {
		profile := func(t float64) float64 {
			if t >= 2 && t < 4 {
				return 0.9
			}
			return 0.2
		}
		res, err := run(landmark.NewSynthetic(landmark.KindFace, landmark.WithStressProfile(profile)), analysisconfig.SessionTraining, nil, 8)

		Convey("Then one stress event and one recovery are counted", func() {
			So(err, ShouldBeNil)
			So(res.Summary.Composure.StressEvents, ShouldEqual, 1)
			So(res.Summary.Composure.Recoveries, ShouldEqual, 1)
			So(res.Summary.Composure.StressRecovery, ShouldEqual, 1)
		})
	})

	Convey("Given a stress spike that never resolves", t, func() {
		profile := func(t float64) float64 {
			if t >= 6 {
				return 0.9
			}
			return 0.2
		}
		res, err := run(landmark.NewSynthetic(landmark.KindFace, landmark.WithStressProfile(profile)), analysisconfig.SessionTraining, nil, 8)

		Convey("Then the recovery ratio is zero", func() {
			So(err, ShouldBeNil)
			So(res.Summary.Composure.StressEvents, ShouldEqual, 1)
			So(res.Summary.Composure.StressRecovery, ShouldEqual, 0)
		})
	})

	Convey("Given a jittery face", t, func() {
		calm, _ := run(landmark.NewSynthetic(landmark.KindFace), analysisconfig.SessionTraining, nil, 6)
		shaky, _ := run(landmark.NewSynthetic(landmark.KindFace, landmark.WithJitter(func(float64) float64 { return 0.05 })), analysisconfig.SessionTraining, nil, 6)

		Convey("Then composure and stability drop", func() {
			So(shaky.Summary.Composure.FacialStability, ShouldBeLessThan, calm.Summary.Composure.FacialStability)
			So(shaky.Summary.EmotionalStability, ShouldBeLessThan, calm.Summary.EmotionalStability)
		})
	})

	Convey("Given a game session tagged as a final", t, func() {
		plain, _ := run(landmark.NewSynthetic(landmark.KindFace), analysisconfig.SessionGame, nil, 3)
		tagged, _ := run(landmark.NewSynthetic(landmark.KindFace), analysisconfig.SessionGame, []string{"final", "free_throw", "unrelated"}, 3)

		Convey("Then window pressure is boosted per matched tag", func() {
			So(tagged.Summary.Composure.WindowPressure[0]-plain.Summary.Composure.WindowPressure[0], ShouldAlmostEqual, 30, 1e-6)
		})
	})

	Convey("Given frames below the confidence gate", t, func() {
		res, err := run(landmark.NewSynthetic(landmark.KindFace, landmark.WithConfidence(0.2)), analysisconfig.SessionTraining, nil, 2)

		Convey("Then no frame is aggregated", func() {
			So(err, ShouldBeNil)
			So(res.Summary.ValidFrames, ShouldEqual, 0)
			So(res.Summary.TotalFrames, ShouldEqual, 60)
			So(res.Summary.Composure.Windows, ShouldBeEmpty)
		})
	})
}
