// Package landmark defines the extractor contract that turns a decoded frame
// into named landmark regions.
package landmark

import (
	"context"
	"errors"

	"github.com/okian/clutch/internal/domain/model"
)

// DefaultMinConfidence gates frames out of stream aggregates.
const DefaultMinConfidence = 0.5

// ErrUnsupportedKind is returned by extractors asked for a landmark kind they
// do not produce.
var ErrUnsupportedKind = errors.New("unsupported landmark kind")

// Point is one landmark position in normalized image coordinates.
type Point struct {
	X          float64 `msgpack:"x" json:"x"`
	Y          float64 `msgpack:"y" json:"y"`
	Z          float64 `msgpack:"z" json:"z"`
	Visibility float64 `msgpack:"v" json:"visibility"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Record is the per-frame extractor result. A record with Detected=false is
// the no-detection sentinel and is not an error.
type Record struct {
	Detected   bool
	Confidence float64
	Regions    map[string][]Point
}

// NoDetection is returned when the model found nothing in the frame.
var NoDetection = Record{}

// Point returns the first point of a region.
func (r Record) Point(name string) (Point, bool) {
	pts := r.Regions[name]
	if len(pts) == 0 {
		return Point{}, false
	}
	return pts[0], true
}

// Usable reports whether the record passes the confidence gate.
func (r Record) Usable(minConfidence float64) bool {
	return r.Detected && r.Confidence >= minConfidence
}

// Kind selects the landmark model.
type Kind string

const (
	KindPose Kind = "pose"
	KindFace Kind = "face"
)

// KindFor returns the landmark kind a stream consumes.
func KindFor(stream model.StreamKind) Kind {
	if stream == model.StreamBehavioral {
		return KindFace
	}
	return KindPose
}

// Extractor turns one frame into a Record. Implementations are pure
// functions of the frame and its timestamp.
type Extractor interface {
	Extract(ctx context.Context, frame model.FrameSample) (Record, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, frame model.FrameSample) (Record, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, frame model.FrameSample) (Record, error) {
	return f(ctx, frame)
}

// Provider hands out the extractor for a landmark kind.
type Provider interface {
	Extractor(kind Kind) (Extractor, error)
}
