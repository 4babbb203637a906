package behavior

import (
	"math"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/stats"
)

// indicators are the normalized [0,1] geometric cues the scores average.
type indicators struct {
	eyeOpen     float64
	browRaise   float64
	browFurrow  float64
	symmetry    float64
	compression float64
	jawSet      float64
}

// Point layouts expected per region.
const (
	eyePoints   = 6 // outer, upper outer, upper inner, inner, lower inner, lower outer
	browPoints  = 3 // outer, middle, inner
	mouthPoints = 4 // left corner, right corner, upper lip, lower lip
	jawPoints   = 3 // left, chin, right
)

// measure derives indicators from a face record. Records missing a required
// region report ok=false.
func measure(rec landmark.Record) (indicators, bool) {
	le, re := rec.Regions[analysisconfig.RegionLeftEye], rec.Regions[analysisconfig.RegionRightEye]
	lb, rb := rec.Regions[analysisconfig.RegionLeftBrow], rec.Regions[analysisconfig.RegionRightBrow]
	mouth, jaw := rec.Regions[analysisconfig.RegionMouth], rec.Regions[analysisconfig.RegionJaw]
	if len(le) < eyePoints || len(re) < eyePoints || len(lb) < browPoints || len(rb) < browPoints ||
		len(mouth) < mouthPoints || len(jaw) < jawPoints {
		return indicators{}, false
	}

	leC, reC := centroid(le), centroid(re)
	iod := dist(leC, reC)
	width := dist(mouth[0], mouth[1])
	if iod <= 0 || width <= 0 {
		return indicators{}, false
	}

	ear := (eyeAspect(le) + eyeAspect(re)) / 2
	browHeight := ((leC.Y - centroid(lb).Y) + (reC.Y - centroid(rb).Y)) / 2 / iod
	browSpan := dist(lb[2], rb[2]) / iod
	cornerTilt := math.Abs(mouth[0].Y-mouth[1].Y) / width
	lipGap := dist(mouth[2], mouth[3]) / width
	chinDrop := (jaw[1].Y - mouth[3].Y) / iod

	return indicators{
		eyeOpen:     stats.Clamp01((ear - 0.15) / 0.2),
		browRaise:   stats.Clamp01((browHeight - 0.25) / 0.3),
		browFurrow:  1 - stats.Clamp01((browSpan-0.3)/0.4),
		symmetry:    stats.Clamp01(1 - 5*cornerTilt),
		compression: 1 - stats.Clamp01(lipGap/0.4),
		jawSet:      1 - stats.Clamp01((chinDrop-0.4)/0.4),
	}, true
}

// eyeAspect is the eye aspect ratio: mean lid opening over eye width.
func eyeAspect(pts []landmark.Point) float64 {
	w := dist(pts[0], pts[3])
	if w <= 0 {
		return 0
	}
	return (dist(pts[1], pts[5]) + dist(pts[2], pts[4])) / (2 * w)
}
