// Package scoring holds the weight sets that combine component scores into
// stream and session level scores.
package scoring

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

const maxScoreValue = 100

// ErrUnknownWeight is returned for override keys that name no weight.
var ErrUnknownWeight = errors.New("unknown score weight")

// Set names.
const (
	SetBiomechanical = "biomechanical"
	SetCharacter     = "character"
	SetComposure     = "composure"
	SetReadiness     = "readiness"
)

// Set is a named group of component weights summing to 1.
type Set map[string]float64

// Weighted returns the weighted sum of values. Missing components count as 0.
func (s Set) Weighted(values map[string]float64) float64 {
	var total float64
	// Sorted order keeps the float sum identical across calls.
	for _, name := range slices.Sorted(maps.Keys(s)) {
		total += s[name] * values[name]
	}
	return total
}

// Weights bundles every weight set.
type Weights struct {
	sets map[string]Set
}

func defaults() map[string]Set {
	return map[string]Set{
		SetBiomechanical: {"consistency": 0.3, "efficiency": 0.3, "power": 0.2, "timing": 0.2},
		SetCharacter: {
			"confidence": 0.25, "pressure_response": 0.25, "emotional_stability": 0.2,
			"concentration": 0.15, "resilience": 0.15,
		},
		SetComposure: {"facial_stability": 0.3, "emotional_control": 0.25, "stress_recovery": 0.25, "consistency": 0.2},
		SetReadiness: {
			"biomechanical": 0.3, "behavioral": 0.3, "synchronization": 0.2,
			"mental_toughness": 0.1, "consistency": 0.1,
		},
	}
}

// Option customizes Weights.
type Option func(map[string]Set) error

// WithOverrides replaces individual weights. Keys are "<set>_<component>",
// e.g. "readiness_synchronization". Each touched set is renormalized.
func WithOverrides(overrides map[string]float64) Option {
	return func(sets map[string]Set) error {
		for _, key := range slices.Sorted(maps.Keys(overrides)) {
			setName, component, ok := strings.Cut(key, "_")
			set, known := sets[setName]
			if !ok || !known {
				return fmt.Errorf("%w: %q", ErrUnknownWeight, key)
			}
			if _, known := set[component]; !known {
				return fmt.Errorf("%w: %q", ErrUnknownWeight, key)
			}
			w := overrides[key]
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("%w: %q must be a finite non-negative number", ErrUnknownWeight, key)
			}
			set[component] = w
		}
		return nil
	}
}

// New builds the weight sets with defaults and applies options.
func New(opts ...Option) (Weights, error) {
	sets := defaults()
	for _, opt := range opts {
		if err := opt(sets); err != nil {
			return Weights{}, err
		}
	}
	base := defaults()
	for name, set := range sets {
		sets[name] = normalize(set, base[name])
	}
	return Weights{sets: sets}, nil
}

// Default returns the default weights.
func Default() Weights {
	w, _ := New()
	return w
}

func normalize(set, fallback Set) Set {
	var sum float64
	for _, w := range set {
		sum += w
	}
	if sum <= 0 {
		return fallback
	}
	out := make(Set, len(set))
	for name, w := range set {
		out[name] = w / sum
	}
	return out
}

// Set returns a copy of the named weight set.
func (w Weights) Set(name string) Set {
	if w.sets == nil {
		return maps.Clone(defaults()[name])
	}
	return maps.Clone(w.sets[name])
}

func (w Weights) set(name string) Set {
	if w.sets == nil {
		return defaults()[name]
	}
	return w.sets[name]
}

// BiomechanicalOverall returns the 0-100 stream score from [0,1] components.
func (w Weights) BiomechanicalOverall(consistency, efficiency, power, timing float64) float64 {
	return clampScore(maxScoreValue * w.set(SetBiomechanical).Weighted(map[string]float64{
		"consistency": consistency, "efficiency": efficiency, "power": power, "timing": timing,
	}))
}

// Character returns the 0-100 behavioral stream score from [0,1] components.
func (w Weights) Character(confidence, pressureResponse, emotionalStability, concentration, resilience float64) float64 {
	return clampScore(maxScoreValue * w.set(SetCharacter).Weighted(map[string]float64{
		"confidence": confidence, "pressure_response": pressureResponse,
		"emotional_stability": emotionalStability, "concentration": concentration, "resilience": resilience,
	}))
}

// Composure returns the [0,1] composure and resilience score from its components.
func (w Weights) Composure(facial, control, recovery, consistency float64) float64 {
	return math.Max(0, math.Min(1, w.set(SetComposure).Weighted(map[string]float64{
		"facial_stability": facial, "emotional_control": control,
		"stress_recovery": recovery, "consistency": consistency,
	})))
}

// Readiness returns the 0-100 championship readiness from 0-100 inputs.
func (w Weights) Readiness(biomechanical, behavioral, synchronization, mentalToughness, consistency float64) float64 {
	return clampScore(w.set(SetReadiness).Weighted(map[string]float64{
		"biomechanical": biomechanical, "behavioral": behavioral, "synchronization": synchronization,
		"mental_toughness": mentalToughness, "consistency": consistency,
	}))
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(maxScoreValue, v))
}
