package landmark

import (
	"context"
	"math"

	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/model"
)

const (
	defaultCyclePeriod = 2.0
	defaultConfidence  = 0.9
	defaultStress      = 0.3
	defaultJitter      = 0.005

	upperArm = 0.14
	forearm  = 0.15
	thigh    = 0.16
	shin     = 0.16

	interocular = 0.12
	eyeWidth    = 0.04
	eyeAspect   = 0.3
	mouthWidth  = 0.1
)

// SyntheticOption configures a Synthetic extractor.
type SyntheticOption func(*Synthetic)

// WithCyclePeriod sets the duration of one movement cycle in seconds.
func WithCyclePeriod(seconds float64) SyntheticOption {
	return func(s *Synthetic) {
		if seconds > 0 {
			s.period = seconds
		}
	}
}

// WithConfidence sets the confidence reported for detected frames.
func WithConfidence(c float64) SyntheticOption {
	return func(s *Synthetic) {
		s.confidence = clamp01(c)
	}
}

// WithStressProfile sets the facial stress level as a function of time.
func WithStressProfile(fn func(t float64) float64) SyntheticOption {
	return func(s *Synthetic) {
		if fn != nil {
			s.stress = fn
		}
	}
}

// WithJitter sets the per-frame facial displacement amplitude (normalized
// units) as a function of time.
func WithJitter(fn func(t float64) float64) SyntheticOption {
	return func(s *Synthetic) {
		if fn != nil {
			s.jitter = fn
		}
	}
}

// WithDropEvery reports no detection on every n-th frame.
func WithDropEvery(n int) SyntheticOption {
	return func(s *Synthetic) {
		s.dropEvery = max(n, 0)
	}
}

// Synthetic generates deterministic landmarks from the frame timestamp. The
// pose follows a periodic swing and the face follows a stress profile.
type Synthetic struct {
	kind       Kind
	period     float64
	confidence float64
	stress     func(t float64) float64
	jitter     func(t float64) float64
	dropEvery  int
}

// NewSynthetic returns a synthetic extractor of the given kind.
func NewSynthetic(kind Kind, opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{
		kind:       kind,
		period:     defaultCyclePeriod,
		confidence: defaultConfidence,
		stress:     func(float64) float64 { return defaultStress },
		jitter:     func(float64) float64 { return defaultJitter },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract implements Extractor.
func (s *Synthetic) Extract(ctx context.Context, frame model.FrameSample) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s.dropEvery > 0 && frame.FrameNumber%s.dropEvery == s.dropEvery-1 {
		return NoDetection, nil
	}
	switch s.kind {
	case KindPose:
		return Record{Detected: true, Confidence: s.confidence, Regions: s.pose(frame.TimestampSeconds)}, nil
	case KindFace:
		return Record{Detected: true, Confidence: s.confidence, Regions: s.face(frame.FrameNumber, frame.TimestampSeconds)}, nil
	default:
		return Record{}, ErrUnsupportedKind
	}
}

// ElbowAngle is the right elbow angle in degrees the pose follows at t.
func (s *Synthetic) ElbowAngle(t float64) float64 {
	return 110 + 65*math.Sin(2*math.Pi*t/s.period)
}

// KneeAngle is the right knee angle in degrees the pose follows at t.
func (s *Synthetic) KneeAngle(t float64) float64 {
	return 140 + 30*math.Sin(2*math.Pi*t/s.period+math.Pi/3)
}

func (s *Synthetic) pose(t float64) map[string][]Point {
	rShoulder := pt(0.55, 0.35)
	lShoulder := pt(0.45, 0.35)
	rHip := pt(0.54, 0.6)
	lHip := pt(0.46, 0.6)

	rElbow := offset(rShoulder, upperArm, 70)
	rWrist := bend(rElbow, rShoulder, forearm, s.ElbowAngle(t))
	lElbow := offset(lShoulder, upperArm, 110)
	lWrist := bend(lElbow, lShoulder, forearm, 150)

	rKnee := offset(rHip, thigh, 80)
	rAnkle := bend(rKnee, rHip, shin, s.KneeAngle(t))
	lKnee := offset(lHip, thigh, 100)
	lAnkle := bend(lKnee, lHip, shin, 165+5*math.Sin(2*math.Pi*t/s.period))

	return map[string][]Point{
		analysisconfig.Nose:          {pt(0.5, 0.2)},
		analysisconfig.RightShoulder: {rShoulder},
		analysisconfig.LeftShoulder:  {lShoulder},
		analysisconfig.RightElbow:    {rElbow},
		analysisconfig.LeftElbow:     {lElbow},
		analysisconfig.RightWrist:    {rWrist},
		analysisconfig.LeftWrist:     {lWrist},
		analysisconfig.RightHip:      {rHip},
		analysisconfig.LeftHip:       {lHip},
		analysisconfig.RightKnee:     {rKnee},
		analysisconfig.LeftKnee:      {lKnee},
		analysisconfig.RightAnkle:    {rAnkle},
		analysisconfig.LeftAnkle:     {lAnkle},
	}
}

func (s *Synthetic) face(frame int, t float64) map[string][]Point {
	stress := clamp01(s.stress(t))
	j := math.Max(0, s.jitter(t))
	dx, dy := j*noise(frame, 1), j*noise(frame, 2)
	cx, cy := 0.5+dx, 0.45+dy

	eyeY := cy - 0.04
	leftEye := eye(cx-interocular/2, eyeY)
	rightEye := eye(cx+interocular/2, eyeY)

	browSpan := interocular * (0.7 - 0.4*stress)
	browY := eyeY - interocular*0.25
	leftBrow := []Point{pt(cx-interocular/2-0.03, browY), pt(cx-interocular/2, browY), pt(cx-browSpan/2, browY)}
	rightBrow := []Point{pt(cx+interocular/2+0.03, browY), pt(cx+interocular/2, browY), pt(cx+browSpan/2, browY)}

	mouthY := cy + 0.09
	gap := mouthWidth * 0.4 * (1 - stress)
	mouth := []Point{
		pt(cx-mouthWidth/2, mouthY),
		pt(cx+mouthWidth/2, mouthY),
		pt(cx, mouthY-gap/2),
		pt(cx, mouthY+gap/2),
	}
	chinY := mouthY + gap/2 + interocular*(0.8-0.4*stress)
	jaw := []Point{pt(cx-0.08, cy+0.1), pt(cx, chinY), pt(cx+0.08, cy+0.1)}

	return map[string][]Point{
		analysisconfig.RegionLeftEye:   leftEye,
		analysisconfig.RegionRightEye:  rightEye,
		analysisconfig.RegionLeftBrow:  leftBrow,
		analysisconfig.RegionRightBrow: rightBrow,
		analysisconfig.RegionMouth:     mouth,
		analysisconfig.RegionJaw:       jaw,
		analysisconfig.RegionNose:      {pt(cx, cy), pt(cx, cy+0.04)},
	}
}

// eye returns the six eye contour points: outer corner, two upper lid points,
// inner corner, two lower lid points.
func eye(x, y float64) []Point {
	h := eyeWidth * eyeAspect
	return []Point{
		pt(x-eyeWidth/2, y),
		pt(x-eyeWidth/6, y-h/2),
		pt(x+eyeWidth/6, y-h/2),
		pt(x+eyeWidth/2, y),
		pt(x+eyeWidth/6, y+h/2),
		pt(x-eyeWidth/6, y+h/2),
	}
}

func pt(x, y float64) Point { return Point{X: x, Y: y, Visibility: 0.95} }

// offset moves from p by length along a direction given in degrees, y down.
func offset(p Point, length, degrees float64) Point {
	rad := degrees * math.Pi / 180
	return pt(p.X+length*math.Cos(rad), p.Y+length*math.Sin(rad))
}

// bend places the far end of a segment starting at joint so that the angle
// between joint->anchor and joint->result equals degrees.
func bend(joint, anchor Point, length, degrees float64) Point {
	base := math.Atan2(anchor.Y-joint.Y, anchor.X-joint.X)
	rad := base + degrees*math.Pi/180
	return pt(joint.X+length*math.Cos(rad), joint.Y+length*math.Sin(rad))
}

// noise is a deterministic value in [-1, 1] for a frame.
func noise(frame, salt int) float64 {
	x := uint64(frame)*0x9E3779B97F4A7C15 ^ uint64(salt)*0xBF58476D1CE4E5B9
	x ^= x >> 31
	x *= 0x94D049BB133111EB
	x ^= x >> 29
	return float64(x%2001)/1000 - 1
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// SyntheticProvider hands out synthetic extractors sharing one option set.
type SyntheticProvider struct {
	Options []SyntheticOption
}

// Extractor implements Provider.
func (p SyntheticProvider) Extractor(kind Kind) (Extractor, error) {
	if kind != KindPose && kind != KindFace {
		return nil, ErrUnsupportedKind
	}
	return NewSynthetic(kind, p.Options...), nil
}
