package stats_test

import (
	"math"
	"testing"

	"github.com/okian/clutch/internal/domain/stats"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStats(t *testing.T) {
	Convey("Given numeric series", t, func() {
		data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

		Convey("Then mean and population deviation match", func() {
			So(stats.Mean(data), ShouldEqual, 5)
			So(stats.Variance(data), ShouldEqual, 4)
			So(stats.Std(data), ShouldEqual, 2)
		})

		Convey("Then empty and single inputs stay finite", func() {
			So(stats.Mean(nil), ShouldEqual, 0)
			So(stats.Variance([]float64{3}), ShouldEqual, 0)
			So(stats.SafeFloat(math.Inf(1)), ShouldEqual, 0)
			So(stats.Clamp01(math.NaN()), ShouldEqual, 0)
			So(stats.Clamp01(1.5), ShouldEqual, 1)
		})

		Convey("Then weighted means fall back to the plain mean", func() {
			So(stats.WeightedMean([]float64{1, 3}, []float64{3, 1}), ShouldEqual, 1.5)
			So(stats.WeightedMean([]float64{1, 3}, []float64{0, 0}), ShouldEqual, 2)
		})
	})
}
