// Package analysisconfig resolves the per (sport, session type) analysis
// parameters carried by every stream job.
package analysisconfig

import (
	"errors"
	"fmt"
	"slices"
)

// Sports.
const (
	SportBaseball   = "baseball"
	SportBasketball = "basketball"
	SportSoccer     = "soccer"
	SportTennis     = "tennis"
)

// Session types.
const (
	SessionTraining   = "training"
	SessionGame       = "game"
	SessionHistorical = "historical"
)

var (
	ErrUnknownSport       = errors.New("unknown sport")
	ErrUnknownSessionType = errors.New("unknown session type")
)

// JointDef names a joint angle measured at B between the segments B->A and B->C.
type JointDef struct {
	Name string `json:"name"`
	A    string `json:"a"`
	B    string `json:"b"`
	C    string `json:"c"`
}

// PhaseRule is one row of the phase decision table. The first row whose
// joint angle lies in [Min, Max] degrees decides the phase.
type PhaseRule struct {
	Phase string  `json:"phase"`
	Joint string  `json:"joint"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Biomechanics configures the skeletal stream.
type Biomechanics struct {
	Keypoints       []string    `json:"keypoints"`
	TrackedLandmark string      `json:"tracked_landmark"`
	Joints          []JointDef  `json:"joints"`
	Phases          []string    `json:"phases"`
	PhaseRules      []PhaseRule `json:"phase_rules"`
	PowerPhase      string      `json:"power_phase"`
	CriticalAngles  []string    `json:"critical_angles"`
	// JerkScale is the mean jerk (normalized units/s^2) that halves efficiency.
	JerkScale float64 `json:"jerk_scale"`
	// VelocityScale is the peak velocity (normalized units/s) that maps to full power.
	VelocityScale float64 `json:"velocity_scale"`
}

// Behavior configures the facial stream.
type Behavior struct {
	FocusRegions  []string `json:"focus_regions"`
	WindowSeconds float64  `json:"window_seconds"`
	PressureTags  []string `json:"pressure_tags"`
	// PressureBoost is added to a window's pressure level per matched tag.
	PressureBoost float64 `json:"pressure_boost"`
}

// Config is the resolved analysis configuration for one pair.
type Config struct {
	Sport         string       `json:"sport"`
	SessionType   string       `json:"session_type"`
	Biomechanics  Biomechanics `json:"biomechanics"`
	Behavior      Behavior     `json:"behavior"`
	Description   string       `json:"description"`
	SessionWeight float64      `json:"session_weight"`
}

// Pair is a valid (sport, session type) combination.
type Pair struct {
	Sport       string
	SessionType string
}

func (p Pair) String() string { return p.Sport + "/" + p.SessionType }

// Sports lists the supported sports in stable order.
func Sports() []string {
	return []string{SportBaseball, SportBasketball, SportSoccer, SportTennis}
}

// SessionTypes lists the supported session types in stable order.
func SessionTypes() []string {
	return []string{SessionTraining, SessionGame, SessionHistorical}
}

// Pairs enumerates every valid combination.
func Pairs() []Pair {
	out := make([]Pair, 0, len(sports)*len(SessionTypes()))
	for _, sport := range Sports() {
		for _, st := range SessionTypes() {
			out = append(out, Pair{Sport: sport, SessionType: st})
		}
	}
	return out
}

// Validate reports whether the pair is known.
func Validate(sport, sessionType string) error {
	if _, ok := sports[sport]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSport, sport)
	}
	if !slices.Contains(SessionTypes(), sessionType) {
		return fmt.Errorf("%w: %q", ErrUnknownSessionType, sessionType)
	}
	return nil
}

// Lookup resolves the configuration for a pair. The result is a copy and may
// be modified by the caller.
func Lookup(sport, sessionType string) (Config, error) {
	if err := Validate(sport, sessionType); err != nil {
		return Config{}, err
	}
	base := sports[sport]
	cfg := Config{
		Sport:         sport,
		SessionType:   sessionType,
		Biomechanics:  base.bio.clone(),
		Behavior:      base.beh.clone(),
		Description:   base.description,
		SessionWeight: 1,
	}
	switch sessionType {
	case SessionGame:
		cfg.Behavior.PressureTags = append(cfg.Behavior.PressureTags, gamePressureTags...)
		cfg.Behavior.PressureBoost = gamePressureBoost
		cfg.SessionWeight = 1.2
	case SessionHistorical:
		cfg.Behavior.WindowSeconds = historicalWindowSeconds
		cfg.SessionWeight = 0.8
	}
	return cfg, nil
}

// MustLookup is Lookup for pairs known to be valid. It panics otherwise.
func MustLookup(sport, sessionType string) Config {
	cfg, err := Lookup(sport, sessionType)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (b Biomechanics) clone() Biomechanics {
	out := b
	out.Keypoints = slices.Clone(b.Keypoints)
	out.Joints = slices.Clone(b.Joints)
	out.Phases = slices.Clone(b.Phases)
	out.PhaseRules = slices.Clone(b.PhaseRules)
	out.CriticalAngles = slices.Clone(b.CriticalAngles)
	return out
}

func (b Behavior) clone() Behavior {
	out := b
	out.FocusRegions = slices.Clone(b.FocusRegions)
	out.PressureTags = slices.Clone(b.PressureTags)
	return out
}
