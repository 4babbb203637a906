package sampler

import (
	"context"
	"errors"
	"io"
	"math"
)

// ErrNoFrames is returned when a synthetic source has nothing to decode.
var ErrNoFrames = errors.New("source has no frames")

// SyntheticDecoder produces empty frames for the source duration and fps. It
// stands in for a real decoder in demo mode and tests.
type SyntheticDecoder struct{}

// Open implements Decoder.
func (SyntheticDecoder) Open(_ context.Context, src Source) (FrameReader, error) {
	total := int(math.Floor(src.DurationSeconds * src.FPS))
	if total <= 0 {
		return nil, ErrNoFrames
	}
	return &syntheticReader{total: total, width: src.Width, height: src.Height}, nil
}

type syntheticReader struct {
	next   int
	total  int
	width  int
	height int
}

func (r *syntheticReader) Next() (Frame, error) {
	if r.next >= r.total {
		return Frame{}, io.EOF
	}
	f := Frame{Index: r.next, Width: r.width, Height: r.height}
	r.next++
	return f, nil
}

func (r *syntheticReader) Skip(n int) error {
	r.next += n
	if r.next >= r.total {
		return io.EOF
	}
	return nil
}

func (r *syntheticReader) Close() error { return nil }
