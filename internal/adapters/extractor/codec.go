// Package extractor runs landmark models as external processes speaking
// length-prefixed msgpack over stdin and stdout.
package extractor

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
)

// MaxMessageSize bounds a single framed message.
const MaxMessageSize = 64 << 20

// Request is sent to the model for every frame.
type Request struct {
	FrameNumber int     `msgpack:"frame_number"`
	Timestamp   float64 `msgpack:"timestamp"`
	Width       int     `msgpack:"width"`
	Height      int     `msgpack:"height"`
	FrameData   []byte  `msgpack:"frame_data"`
	Kind        string  `msgpack:"kind"`
}

// Response is the model's answer for one frame. Each region point is
// [x, y] or [x, y, z] or [x, y, z, visibility].
type Response struct {
	Detected   bool                   `msgpack:"detected"`
	Confidence float64                `msgpack:"confidence"`
	Regions    map[string][][]float64 `msgpack:"regions"`
	Error      string                 `msgpack:"error"`
}

// NewRequest builds the wire request for a frame.
func NewRequest(kind landmark.Kind, f model.FrameSample) Request {
	return Request{
		FrameNumber: f.FrameNumber,
		Timestamp:   f.TimestampSeconds,
		Width:       f.Width,
		Height:      f.Height,
		FrameData:   f.Data,
		Kind:        string(kind),
	}
}

// Record converts the response into a landmark record.
func (r Response) Record() (landmark.Record, error) {
	if r.Error != "" {
		return landmark.Record{}, fmt.Errorf("%w: %s", ErrModel, r.Error)
	}
	if !r.Detected {
		return landmark.NoDetection, nil
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return landmark.Record{}, fmt.Errorf("%w: confidence %v", ErrInvalidResponse, r.Confidence)
	}
	regions := make(map[string][]landmark.Point, len(r.Regions))
	for name, raw := range r.Regions {
		pts := make([]landmark.Point, 0, len(raw))
		for _, p := range raw {
			if len(p) < 2 {
				return landmark.Record{}, fmt.Errorf("%w: region %q point has %d values", ErrInvalidResponse, name, len(p))
			}
			pt := landmark.Point{X: p[0], Y: p[1], Visibility: 1}
			if len(p) > 2 {
				pt.Z = p[2]
			}
			if len(p) > 3 {
				pt.Visibility = p[3]
			}
			pts = append(pts, pt)
		}
		regions[name] = pts
	}
	return landmark.Record{Detected: true, Confidence: r.Confidence, Regions: regions}, nil
}

// WriteMessage writes v as a 4-byte big-endian length followed by msgpack.
func WriteMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal msgpack: %w", err)
	}
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload))) //nolint:gosec // bounded above
	copy(frame[4:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed msgpack message into v.
func ReadMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read message body: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

// Conn carries one request at a time over a reader and writer pair.
// After a timeout or I/O failure the stream is out of sync and the Conn
// refuses further calls. A Conn is not safe for concurrent use.
type Conn struct {
	r       *bufio.Reader
	w       io.Writer
	timeout time.Duration
	broken  error
}

// NewConn wraps r and w. A timeout of zero waits as long as ctx allows.
func NewConn(r io.Reader, w io.Writer, timeout time.Duration) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w, timeout: timeout}
}

// Broken returns the error that poisoned the connection, if any.
func (c *Conn) Broken() error { return c.broken }

// RoundTrip sends req and waits for its response. Timeouts and I/O failures
// are transient; a model-level error in the response is not.
func (c *Conn) RoundTrip(ctx context.Context, req Request) (Response, error) { //nolint:gocritic // hugeParam
	const op = "extractor.roundtrip"
	if c.broken != nil {
		return Response{}, model.WrapKind(op, model.ErrTransient, c.broken)
	}

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if err := WriteMessage(c.w, req); err != nil {
			done <- result{err: err}
			return
		}
		var resp Response
		err := ReadMessage(c.r, &resp)
		done <- result{resp: resp, err: err}
	}()

	var timer <-chan time.Time
	if c.timeout > 0 {
		t := time.NewTimer(c.timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case res := <-done:
		if res.err != nil {
			c.broken = res.err
			return Response{}, model.WrapKind(op, model.ErrTransient, res.err)
		}
		return res.resp, nil
	case <-timer:
		c.broken = ErrTimeout
		return Response{}, model.WrapKind(op, model.ErrTransient, ErrTimeout)
	case <-ctx.Done():
		c.broken = ctx.Err()
		return Response{}, ctx.Err()
	}
}
