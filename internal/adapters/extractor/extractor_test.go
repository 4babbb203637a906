package extractor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/okian/clutch/internal/domain/landmark"
	"github.com/okian/clutch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const helperEnv = "CLUTCH_EXTRACTOR_HELPER"

// TestHelperProcess is the fake model run by the process tests.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	defer os.Exit(0)
	os.Stderr.WriteString("[INFO] model loaded\n")
	for {
		var req Request
		if err := ReadMessage(os.Stdin, &req); err != nil {
			return
		}
		switch mode {
		case "hang":
			time.Sleep(time.Minute)
		case "exit":
			return
		}
		resp := fakeResponse(req)
		if err := WriteMessage(os.Stdout, resp); err != nil {
			return
		}
	}
}

func fakeResponse(req Request) Response {
	switch {
	case req.FrameNumber == 3:
		return Response{Error: "frame decode failed"}
	case req.FrameNumber%5 == 4:
		return Response{Detected: false}
	}
	return Response{
		Detected:   true,
		Confidence: 0.8,
		Regions: map[string][][]float64{
			"left_wrist": {{req.Timestamp, 0.5, 0.1, 0.9}},
			"nose":       {{0.5, 0.2}},
		},
	}
}

func helper(mode string, opts ...Option) *Process {
	opts = append([]Option{WithEnv(helperEnv + "=" + mode), WithStopGrace(100 * time.Millisecond)}, opts...)
	p, err := NewProcess(landmark.KindPose, os.Args[0]+" -test.run=^TestHelperProcess$", opts...)
	So(err, ShouldBeNil)
	return p
}

func frame(n int) model.FrameSample {
	return model.FrameSample{FrameNumber: n, TimestampSeconds: float64(n) / 30, Width: 2, Height: 2, Data: make([]byte, 12)}
}

func TestCodec(t *testing.T) {
	Convey("Given a framed request written to a buffer", t, func() {
		var buf bytes.Buffer
		req := NewRequest(landmark.KindFace, frame(7))
		So(WriteMessage(&buf, req), ShouldBeNil)

		Convey("Then the length prefix matches and it decodes back", func() {
			raw := buf.Bytes()
			n := int(raw[0])<<24 | int(raw[1])<<16 | int(raw[2])<<8 | int(raw[3])
			So(n, ShouldEqual, len(raw)-4)

			var got Request
			So(ReadMessage(&buf, &got), ShouldBeNil)
			So(got.FrameNumber, ShouldEqual, 7)
			So(got.Kind, ShouldEqual, "face")
			So(len(got.FrameData), ShouldEqual, 12)
		})
	})

	Convey("Given an oversized length prefix", t, func() {
		var resp Response
		err := ReadMessage(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), &resp)
		So(errors.Is(err, ErrMessageTooLarge), ShouldBeTrue)
	})

	Convey("Given an empty stream", t, func() {
		var resp Response
		So(errors.Is(ReadMessage(bytes.NewReader(nil), &resp), io.EOF), ShouldBeTrue)
	})

	Convey("Given responses", t, func() {
		rec, err := fakeResponse(Request{FrameNumber: 1, Timestamp: 0.25}).Record()
		So(err, ShouldBeNil)
		So(rec.Detected, ShouldBeTrue)
		wrist, ok := rec.Point("left_wrist")
		So(ok, ShouldBeTrue)
		So(wrist.X, ShouldEqual, 0.25)
		So(wrist.Visibility, ShouldEqual, 0.9)
		nose, _ := rec.Point("nose")
		So(nose.Visibility, ShouldEqual, 1.0)

		none, err := Response{}.Record()
		So(err, ShouldBeNil)
		So(none.Detected, ShouldBeFalse)

		_, err = Response{Error: "boom"}.Record()
		So(errors.Is(err, ErrModel), ShouldBeTrue)
		_, err = Response{Detected: true, Confidence: 1.5}.Record()
		So(errors.Is(err, ErrInvalidResponse), ShouldBeTrue)
		_, err = Response{Detected: true, Confidence: 0.5, Regions: map[string][][]float64{"x": {{1}}}}.Record()
		So(errors.Is(err, ErrInvalidResponse), ShouldBeTrue)
	})
}

func TestConnOverPipes(t *testing.T) {
	Convey("Given a Conn talking to an in-process fake model", t, func() {
		reqR, reqW := io.Pipe()
		respR, respW := io.Pipe()
		go func() {
			for {
				var req Request
				if err := ReadMessage(reqR, &req); err != nil {
					return
				}
				if req.FrameNumber == 99 {
					continue
				}
				if err := WriteMessage(respW, fakeResponse(req)); err != nil {
					return
				}
			}
		}()
		defer func() {
			_ = reqW.Close()
			_ = respW.Close()
		}()
		c := NewConn(respR, reqW, 200*time.Millisecond)

		Convey("Then requests round trip in order", func() {
			for _, n := range []int{0, 1, 2} {
				resp, err := c.RoundTrip(context.Background(), NewRequest(landmark.KindPose, frame(n)))
				So(err, ShouldBeNil)
				So(resp.Detected, ShouldBeTrue)
			}
		})

		Convey("Then an unanswered frame times out as transient and poisons the conn", func() {
			_, err := c.RoundTrip(context.Background(), NewRequest(landmark.KindPose, frame(99)))
			So(errors.Is(err, ErrTimeout), ShouldBeTrue)
			So(errors.Is(err, model.ErrTransient), ShouldBeTrue)
			So(c.Broken(), ShouldNotBeNil)

			_, err = c.RoundTrip(context.Background(), NewRequest(landmark.KindPose, frame(1)))
			So(errors.Is(err, model.ErrTransient), ShouldBeTrue)
		})

		Convey("Then a cancelled context returns the context error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := NewConn(respR, reqW, 0).RoundTrip(ctx, NewRequest(landmark.KindPose, frame(99)))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	Convey("Given a healthy model process", t, func() {
		p := helper("serve", WithFrameTimeout(5*time.Second))
		defer func() { _ = p.Close() }()

		Convey("Then frames yield records, no-detections and per-frame errors", func() {
			rec, err := p.Extract(ctx, frame(0))
			So(err, ShouldBeNil)
			So(rec.Detected, ShouldBeTrue)
			So(rec.Confidence, ShouldEqual, 0.8)

			rec, err = p.Extract(ctx, frame(4))
			So(err, ShouldBeNil)
			So(rec.Detected, ShouldBeFalse)

			_, err = p.Extract(ctx, frame(3))
			So(errors.Is(err, ErrModel), ShouldBeTrue)
			So(model.IsRetryable(err), ShouldBeFalse)

			_, err = p.Extract(ctx, frame(5))
			So(err, ShouldBeNil)
			So(p.Starts(), ShouldEqual, 1)
		})

		Convey("Then Close makes later calls fatal", func() {
			So(p.Close(), ShouldBeNil)
			_, err := p.Extract(ctx, frame(0))
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
			So(model.IsFatal(err), ShouldBeTrue)
		})
	})

	Convey("Given a model that dies on the first frame", t, func() {
		p := helper("exit", WithFrameTimeout(5*time.Second))
		defer func() { _ = p.Close() }()

		Convey("Then the failure is transient and the next call respawns", func() {
			_, err := p.Extract(ctx, frame(0))
			So(errors.Is(err, model.ErrTransient), ShouldBeTrue)
			_, _ = p.Extract(ctx, frame(1))
			So(p.Starts(), ShouldEqual, 2)
		})
	})

	Convey("Given a model that hangs", t, func() {
		p := helper("hang", WithFrameTimeout(100*time.Millisecond))
		defer func() { _ = p.Close() }()

		Convey("Then the frame times out as transient", func() {
			_, err := p.Extract(ctx, frame(0))
			So(errors.Is(err, ErrTimeout), ShouldBeTrue)
			So(model.IsRetryable(err), ShouldBeTrue)
		})
	})

	Convey("Given a missing model binary", t, func() {
		p, err := NewProcess(landmark.KindFace, "/nonexistent/clutch-face-model --fast")
		So(err, ShouldBeNil)
		_, err = p.Extract(ctx, frame(0))
		So(model.IsFatal(err), ShouldBeTrue)
	})

	Convey("Given no command", t, func() {
		_, err := NewProcess(landmark.KindFace, "  ")
		So(errors.Is(err, ErrNoCommand), ShouldBeTrue)
	})
}

func TestProvider(t *testing.T) {
	Convey("Given a provider with only a pose command", t, func() {
		pr, err := NewProvider("pose-model --gpu", "")
		So(err, ShouldBeNil)
		defer func() { _ = pr.Close() }()

		ext, err := pr.Extractor(landmark.KindPose)
		So(err, ShouldBeNil)
		So(ext.(*Process).Kind(), ShouldEqual, landmark.KindPose)

		_, err = pr.Extractor(landmark.KindFace)
		So(errors.Is(err, landmark.ErrUnsupportedKind), ShouldBeTrue)
	})

	Convey("Given no commands at all", t, func() {
		_, err := NewProvider("", "")
		So(errors.Is(err, ErrNoCommand), ShouldBeTrue)
	})
}
