// Package sampler plans which source frames each stream analyzes and streams
// the decoded frames lazily.
package sampler

import (
	"context"
	"errors"
	"io"
	"iter"
	"math"

	"github.com/okian/clutch/internal/domain/model"
)

// Step maps clips up to MaxSeconds long to a stride.
type Step struct {
	MaxSeconds float64
	Stride     int
}

// Policy is the stride step function and frame cap of one stream kind.
// Steps are ordered by MaxSeconds; durations beyond the last step use
// FallbackStride.
type Policy struct {
	Steps          []Step
	FallbackStride int
	Cap            int
}

var (
	biomechanicalPolicy = Policy{
		Steps:          []Step{{MaxSeconds: 30, Stride: 1}, {MaxSeconds: 60, Stride: 2}, {MaxSeconds: 180, Stride: 3}},
		FallbackStride: 5,
		Cap:            1800,
	}
	behavioralPolicy = Policy{
		Steps:          []Step{{MaxSeconds: 30, Stride: 1}, {MaxSeconds: 60, Stride: 3}, {MaxSeconds: 180, Stride: 5}},
		FallbackStride: 10,
		Cap:            900,
	}
)

// PolicyFor returns the default policy of a stream kind.
func PolicyFor(kind model.StreamKind) Policy {
	if kind == model.StreamBehavioral {
		return behavioralPolicy
	}
	return biomechanicalPolicy
}

// Stride returns the stride for a clip of totalFrames frames lasting
// durationSeconds. The stride grows beyond the step function when the
// frame count would exceed the cap.
func (p Policy) Stride(durationSeconds float64, totalFrames int) int {
	stride := p.FallbackStride
	for _, step := range p.Steps {
		if durationSeconds <= step.MaxSeconds {
			stride = step.Stride
			break
		}
	}
	stride = max(stride, 1)
	if p.Cap > 0 && ceilDiv(totalFrames, stride) > p.Cap {
		stride = ceilDiv(totalFrames, p.Cap)
	}
	return stride
}

// Plan returns the frames a stream of the given kind analyzes.
func Plan(durationSeconds, fps float64, kind model.StreamKind) []model.FramePlan {
	return PolicyFor(kind).Plan(durationSeconds, fps)
}

// Plan returns the ordered source-frame indices to analyze. Frame numbers are
// source video indices so both streams share one index domain.
func (p Policy) Plan(durationSeconds, fps float64) []model.FramePlan {
	if durationSeconds <= 0 || fps <= 0 || math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) {
		return nil
	}
	total := int(math.Floor(durationSeconds * fps))
	if total <= 0 {
		return nil
	}
	stride := p.Stride(durationSeconds, total)
	out := make([]model.FramePlan, 0, ceilDiv(total, stride))
	for frame := 0; frame < total; frame += stride {
		out = append(out, model.FramePlan{FrameNumber: frame, TimestampSeconds: float64(frame) / fps})
	}
	return out
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// Source identifies the video a decoder opens.
type Source struct {
	Ref             string
	DurationSeconds float64
	FPS             float64
	Width           int
	Height          int
}

// Frame is one sequentially decoded frame.
type Frame struct {
	Index  int
	Width  int
	Height int
	Data   []byte
}

// FrameReader yields decoded frames in source order. Next returns io.EOF
// after the last frame.
type FrameReader interface {
	Next() (Frame, error)
	Close() error
}

// Skipper is implemented by readers that can discard frames without
// materializing them.
type Skipper interface {
	Skip(n int) error
}

// Decoder opens a video for sequential decoding.
type Decoder interface {
	Open(ctx context.Context, src Source) (FrameReader, error)
}

// Extract decodes src and yields the planned frames in order. The sequence is
// finite and not restartable; each call re-opens the video. An open failure
// yields one fatal decode error. Read failures after a successful open are
// transient.
func Extract(ctx context.Context, dec Decoder, src Source, plan []model.FramePlan) iter.Seq2[model.FrameSample, error] {
	return func(yield func(model.FrameSample, error) bool) {
		if len(plan) == 0 {
			return
		}
		r, err := dec.Open(ctx, src)
		if err != nil {
			yield(model.FrameSample{}, model.WrapKind("sampler.open", model.ErrDecode, err))
			return
		}
		defer func() { _ = r.Close() }()

		next := 0
		for _, p := range plan {
			if err := ctx.Err(); err != nil {
				yield(model.FrameSample{}, err)
				return
			}
			if gap := p.FrameNumber - next; gap > 0 {
				if err := skip(r, gap); err != nil {
					if !errors.Is(err, io.EOF) {
						yield(model.FrameSample{}, model.WrapKind("sampler.skip", model.ErrTransient, err))
					}
					return
				}
				next = p.FrameNumber
			}
			f, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(model.FrameSample{}, model.WrapKind("sampler.read", model.ErrTransient, err))
				return
			}
			next++
			sample := model.FrameSample{
				FrameNumber:      p.FrameNumber,
				TimestampSeconds: p.TimestampSeconds,
				Width:            f.Width,
				Height:           f.Height,
				Data:             f.Data,
			}
			if !yield(sample, nil) {
				return
			}
		}
	}
}

func skip(r FrameReader, n int) error {
	if s, ok := r.(Skipper); ok {
		return s.Skip(n)
	}
	for range n {
		if _, err := r.Next(); err != nil {
			return err
		}
	}
	return nil
}
