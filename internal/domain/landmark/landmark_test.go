package landmark_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSyntheticExtractor(t *testing.T) {
	Convey("Given a synthetic pose extractor", t, func() {
		ctx := context.Background()
		ext := landmark.NewSynthetic(landmark.KindPose)
		frame := model.FrameSample{FrameNumber: 12, TimestampSeconds: 0.4}

		Convey("When extracting the same frame twice", func() {
			a, errA := ext.Extract(ctx, frame)
			b, errB := ext.Extract(ctx, frame)

			Convey("Then the records are identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a, ShouldResemble, b)
				So(a.Detected, ShouldBeTrue)
				So(a.Usable(landmark.DefaultMinConfidence), ShouldBeTrue)
				for _, name := range analysisconfig.PoseLandmarks() {
					_, ok := a.Point(name)
					So(ok, ShouldBeTrue)
				}
			})
		})

		Convey("When the elbow geometry is measured", func() {
			rec, _ := ext.Extract(ctx, frame)
			s, _ := rec.Point(analysisconfig.RightShoulder)
			e, _ := rec.Point(analysisconfig.RightElbow)
			w, _ := rec.Point(analysisconfig.RightWrist)
			v1, v2 := s.Sub(e), w.Sub(e)
			dot := v1.X*v2.X + v1.Y*v2.Y
			angle := math.Acos(dot/(math.Hypot(v1.X, v1.Y)*math.Hypot(v2.X, v2.Y))) * 180 / math.Pi

			Convey("Then it follows the scripted angle", func() {
				So(angle, ShouldAlmostEqual, ext.ElbowAngle(0.4), 1e-6)
			})
		})

		Convey("When dropping every third frame", func() {
			dropper := landmark.NewSynthetic(landmark.KindPose, landmark.WithDropEvery(3))
			rec, err := dropper.Extract(ctx, model.FrameSample{FrameNumber: 2})

			Convey("Then the frame reports no detection without an error", func() {
				So(err, ShouldBeNil)
				So(rec.Detected, ShouldBeFalse)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := ext.Extract(cctx, frame)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})

	Convey("Given a synthetic face extractor", t, func() {
		ext := landmark.NewSynthetic(landmark.KindFace, landmark.WithConfidence(0.4))
		rec, err := ext.Extract(context.Background(), model.FrameSample{FrameNumber: 3, TimestampSeconds: 0.1})

		Convey("Then every region is present and the confidence gate applies", func() {
			So(err, ShouldBeNil)
			for _, name := range analysisconfig.FaceRegions() {
				So(rec.Regions[name], ShouldNotBeEmpty)
			}
			So(len(rec.Regions[analysisconfig.RegionLeftEye]), ShouldEqual, 6)
			So(rec.Usable(landmark.DefaultMinConfidence), ShouldBeFalse)
		})
	})

	Convey("Given a synthetic provider", t, func() {
		p := landmark.SyntheticProvider{}
		_, err := p.Extractor(landmark.KindFor(model.StreamBehavioral))
		So(err, ShouldBeNil)
		_, err = p.Extractor("thermal")
		So(errors.Is(err, landmark.ErrUnsupportedKind), ShouldBeTrue)
	})
}
