// Package ffmpeg decodes videos into raw RGB frames by piping ffmpeg output.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/sampler"
)

const (
	bytesPerPixel  = 3
	maxStderrBytes = 4096
)

var commandContext = exec.CommandContext

// Decoder implements sampler.Decoder with an ffmpeg subprocess.
type Decoder struct {
	binary string
	width  int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithBinary sets the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(d *Decoder) {
		if b := strings.TrimSpace(binary); b != "" {
			d.binary = b
		}
	}
}

// WithWidth scales decoded frames to width pixels, keeping the aspect ratio.
// Zero keeps the source width.
func WithWidth(width int) Option {
	return func(d *Decoder) {
		if width >= 0 {
			d.width = width
		}
	}
}

// New returns a Decoder with options applied.
func New(opts ...Option) *Decoder {
	d := &Decoder{binary: "ffmpeg", width: 640}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dimensions returns the output frame size for a source of w by h pixels.
// Both sides are even, as rgb24 scaling requires.
func (d *Decoder) Dimensions(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	outW := w
	if d.width > 0 && d.width < w {
		outW = d.width
	}
	outH := int(math.Round(float64(outW) * float64(h) / float64(w)))
	return even(outW), even(outH)
}

func even(n int) int {
	if n%2 == 1 {
		n--
	}
	if n < 2 {
		return 2
	}
	return n
}

// Open starts ffmpeg for src and waits for the first frame so that a missing
// binary or an unreadable input fails here rather than mid-stream.
func (d *Decoder) Open(ctx context.Context, src sampler.Source) (sampler.FrameReader, error) {
	path := src.Ref
	if p, ok := ingest.LocalPath(src.Ref); ok {
		path = p
	}
	w, h := d.Dimensions(src.Width, src.Height)
	if w == 0 {
		return nil, ErrUnknownDimensions
	}
	if _, err := exec.LookPath(d.binary); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrBinaryNotFound, d.binary, err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cmd := commandContext(cctx, d.binary, d.args(path, w, h)...) //nolint:gosec
	stderr := &limitedBuffer{max: maxStderrBytes}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	r := &reader{
		cmd:       cmd,
		cancel:    cancel,
		out:       bufio.NewReaderSize(stdout, w*h*bytesPerPixel),
		stderr:    stderr,
		width:     w,
		height:    h,
		frameSize: w * h * bytesPerPixel,
	}
	first, err := r.read()
	if err != nil {
		_ = r.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s", ErrNoFrames, r.stderr.String())
		}
		return nil, err
	}
	r.pending = &first
	return r, nil
}

func (d *Decoder) args(path string, w, h int) []string {
	return []string{
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-vf", "scale=" + strconv.Itoa(w) + ":" + strconv.Itoa(h),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

type reader struct {
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	out       *bufio.Reader
	stderr    *limitedBuffer
	width     int
	height    int
	frameSize int
	index     int
	pending   *sampler.Frame
	closeOnce sync.Once
	closeErr  error
}

// Next returns the next frame or io.EOF once ffmpeg finishes cleanly.
func (r *reader) Next() (sampler.Frame, error) {
	if r.pending != nil {
		f := *r.pending
		r.pending = nil
		return f, nil
	}
	f, err := r.read()
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return sampler.Frame{}, fmt.Errorf("%w: frame %d: %s", ErrShortRead, r.index, r.stderr.String())
	case errors.Is(err, io.EOF):
		if werr := r.wait(); werr != nil {
			return sampler.Frame{}, fmt.Errorf("ffmpeg exited: %w: %s", werr, r.stderr.String())
		}
		return sampler.Frame{}, io.EOF
	default:
		return sampler.Frame{}, err
	}
}

// Skip discards n frames without copying them out.
func (r *reader) Skip(n int) error {
	if n <= 0 {
		return nil
	}
	if r.pending != nil {
		r.pending = nil
		n--
	}
	if n == 0 {
		return nil
	}
	want := int64(n) * int64(r.frameSize)
	got, err := io.CopyN(io.Discard, r.out, want)
	r.index += int(got / int64(r.frameSize))
	if errors.Is(err, io.EOF) {
		if got%int64(r.frameSize) != 0 {
			return fmt.Errorf("%w: frame %d", ErrShortRead, r.index)
		}
		return io.EOF
	}
	return err
}

func (r *reader) read() (sampler.Frame, error) {
	buf := make([]byte, r.frameSize)
	if _, err := io.ReadFull(r.out, buf); err != nil {
		return sampler.Frame{}, err
	}
	f := sampler.Frame{Index: r.index, Width: r.width, Height: r.height, Data: buf}
	r.index++
	return f, nil
}

func (r *reader) wait() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.cmd.Wait()
		r.cancel()
	})
	return r.closeErr
}

// Close stops ffmpeg and releases the pipe.
func (r *reader) Close() error {
	r.cancel()
	err := r.wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
