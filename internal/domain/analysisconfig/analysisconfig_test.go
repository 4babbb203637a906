package analysisconfig_test

import (
	"errors"
	"testing"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLookup(t *testing.T) {
	Convey("Given every valid sport and session type pair", t, func() {
		pairs := analysisconfig.Pairs()
		So(len(pairs), ShouldEqual, 12)

		Convey("Then lookup is total and deterministic", func() {
			for _, p := range pairs {
				a, err := analysisconfig.Lookup(p.Sport, p.SessionType)
				So(err, ShouldBeNil)
				b, err := analysisconfig.Lookup(p.Sport, p.SessionType)
				So(err, ShouldBeNil)
				So(a, ShouldResemble, b)

				So(a.Biomechanics.Phases, ShouldNotBeEmpty)
				So(a.Biomechanics.Joints, ShouldNotBeEmpty)
				So(a.Biomechanics.Phases, ShouldContain, a.Biomechanics.PowerPhase)
				So(a.Biomechanics.TrackedLandmark, ShouldNotBeBlank)
				So(a.Behavior.WindowSeconds, ShouldBeGreaterThan, 0)
				for _, rule := range a.Biomechanics.PhaseRules {
					So(a.Biomechanics.Phases, ShouldContain, rule.Phase)
					So(rule.Min, ShouldBeLessThan, rule.Max)
				}
			}
		})

		Convey("Then the returned config is a copy", func() {
			a := analysisconfig.MustLookup(analysisconfig.SportTennis, analysisconfig.SessionTraining)
			a.Biomechanics.Phases[0] = "mutated"
			a.Behavior.PressureTags = append(a.Behavior.PressureTags, "extra")

			b := analysisconfig.MustLookup(analysisconfig.SportTennis, analysisconfig.SessionTraining)
			So(b.Biomechanics.Phases[0], ShouldEqual, "ready")
			So(b.Behavior.PressureTags, ShouldNotContain, "extra")
		})
	})

	Convey("Given session type modifiers", t, func() {
		training := analysisconfig.MustLookup(analysisconfig.SportBaseball, analysisconfig.SessionTraining)
		game := analysisconfig.MustLookup(analysisconfig.SportBaseball, analysisconfig.SessionGame)
		historical := analysisconfig.MustLookup(analysisconfig.SportBaseball, analysisconfig.SessionHistorical)

		Convey("Then game sessions carry more pressure tags and a larger boost", func() {
			So(len(game.Behavior.PressureTags), ShouldBeGreaterThan, len(training.Behavior.PressureTags))
			So(game.Behavior.PressureBoost, ShouldBeGreaterThan, training.Behavior.PressureBoost)
		})

		Convey("Then historical sessions widen the composure window", func() {
			So(historical.Behavior.WindowSeconds, ShouldBeGreaterThan, training.Behavior.WindowSeconds)
		})
	})

	Convey("Given unknown inputs", t, func() {
		_, err := analysisconfig.Lookup("cricket", analysisconfig.SessionGame)
		So(errors.Is(err, analysisconfig.ErrUnknownSport), ShouldBeTrue)

		_, err = analysisconfig.Lookup(analysisconfig.SportSoccer, "scrimmage")
		So(errors.Is(err, analysisconfig.ErrUnknownSessionType), ShouldBeTrue)

		So(func() { analysisconfig.MustLookup("", "") }, ShouldPanic)
	})
}
