package synthesis

import (
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/scoring"
)

// Readiness level thresholds.
const (
	EliteThreshold      = 85.0
	AdvancedThreshold   = 70.0
	DevelopingThreshold = 55.0
)

// Inputs are the 0-100 components of championship readiness.
type Inputs struct {
	BiomechanicalOverall float64
	BehavioralOverall    float64
	Synchronization      float64
	MentalToughness      float64
	Consistency          float64
}

// CalculateChampionshipReadiness combines the inputs with the default
// readiness weights.
func CalculateChampionshipReadiness(in Inputs) float64 {
	return readiness(in, scoring.Default())
}

func readiness(in Inputs, w scoring.Weights) float64 {
	return w.Readiness(in.BiomechanicalOverall, in.BehavioralOverall, in.Synchronization, in.MentalToughness, in.Consistency)
}

// Level classifies a readiness score.
func Level(score float64) string {
	switch {
	case score >= EliteThreshold:
		return model.LevelElite
	case score >= AdvancedThreshold:
		return model.LevelAdvanced
	case score >= DevelopingThreshold:
		return model.LevelDeveloping
	default:
		return model.LevelFoundational
	}
}
