package synthesis

import "errors"

var (
	errMissingSummary = errors.New("stream summary missing")
	errEmptySeries    = errors.New("stream frame series empty")
	errNonFinite      = errors.New("composite score not finite")
)
