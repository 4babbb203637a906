package ffprobe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "codec_name": "aac"},
    {"index": 1, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30000/1001", "avg_frame_rate": "30/1", "duration": "12.0"}
  ],
  "format": {"filename": "swing.mp4", "nb_streams": 2, "duration": "12.512", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestResultHelpers(t *testing.T) {
	Convey("Given a result with an audio and a video stream", t, func() {
		res := Result{
			Streams: []Stream{
				{CodecType: "audio"},
				{CodecType: "video", Width: 1280, Height: 720, RFrameRate: "60/1", Duration: "4.5"},
			},
			Format: Format{Duration: "5.0", Size: "1000", FormatName: "matroska,webm"},
		}

		Convey("Then the helpers read the video stream and container", func() {
			v, ok := res.VideoStream()
			So(ok, ShouldBeTrue)
			So(v.Width, ShouldEqual, 1280)
			So(res.VideoStreamCount(), ShouldEqual, 1)
			So(res.FPS(), ShouldEqual, 60.0)
			So(res.DurationSeconds(), ShouldEqual, 5.0)
			So(res.SizeBytes(), ShouldEqual, int64(1000))
			So(res.FormatNames(), ShouldResemble, []string{"matroska", "webm"})
		})

		Convey("When the container omits the duration", func() {
			res.Format.Duration = ""
			So(res.DurationSeconds(), ShouldEqual, 4.5)
		})

		Convey("When r_frame_rate is missing", func() {
			res.Streams[1].RFrameRate = "0/0"
			res.Streams[1].AvgFrameRate = "25/1"
			So(res.FPS(), ShouldEqual, 25.0)
		})
	})

	Convey("Given malformed numbers", t, func() {
		So(parseRate("bad"), ShouldEqual, 0.0)
		So(parseRate("30/0"), ShouldEqual, 0.0)
		So(parseRate("24"), ShouldEqual, 24.0)
		So(math.Abs(parseRate("30000/1001")-29.97), ShouldBeLessThan, 0.01)
		So(Result{Format: Format{Size: "-1"}}.SizeBytes(), ShouldEqual, int64(0))
		So(Result{}.FPS(), ShouldEqual, 0.0)
	})
}

func TestMetadata(t *testing.T) {
	Convey("Given a probed result", t, func() {
		res := Result{
			Streams: []Stream{{CodecType: "video", Width: 640, Height: 480, RFrameRate: "30/1"}},
			Format:  Format{Duration: "8", FormatName: "mov,mp4,m4a"},
		}

		Convey("Then the file extension names the format", func() {
			md, err := metadata("/videos/a.MOV", res)
			So(err, ShouldBeNil)
			So(md.Format, ShouldEqual, "mov")
			So(md.Width, ShouldEqual, 640)
			So(md.FPS, ShouldEqual, 30.0)
			So(md.DurationSeconds, ShouldEqual, 8.0)
		})

		Convey("Then an extensionless path falls back to the container name", func() {
			md, err := metadata("/videos/clip", res)
			So(err, ShouldBeNil)
			So(md.Format, ShouldEqual, "mov")
		})

		Convey("Then a result without video is rejected", func() {
			_, err := metadata("/videos/a.mp4", Result{Streams: []Stream{{CodecType: "audio"}}})
			So(err, ShouldEqual, errNoVideoStream)
		})
	})
}

func TestInspectWithFakeBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	Convey("Given a stub ffprobe printing fixed JSON", t, func() {
		dir := t.TempDir()
		payload := filepath.Join(dir, "out.json")
		So(os.WriteFile(payload, []byte(sampleJSON), 0o600), ShouldBeNil)
		bin := filepath.Join(dir, "ffprobe")
		So(os.WriteFile(bin, []byte("#!/bin/sh\ncat "+payload+"\n"), 0o700), ShouldBeNil)

		Convey("Then Inspect decodes it and the Prober maps it", func() {
			res, err := Inspect(context.Background(), bin, "swing.mp4")
			So(err, ShouldBeNil)
			So(res.VideoStreamCount(), ShouldEqual, 1)
			So(len(res.RawJSON()), ShouldBeGreaterThan, 0)

			md, err := NewProber(bin).Probe(context.Background(), "file:///data/swing.mp4")
			So(err, ShouldBeNil)
			So(md.Format, ShouldEqual, "mp4")
			So(md.Width, ShouldEqual, 1920)
			So(md.Height, ShouldEqual, 1080)
			So(md.DurationSeconds, ShouldEqual, 12.512)
		})

		Convey("Then remote references are not probed", func() {
			md, err := NewProber(bin).Probe(context.Background(), "https://cdn/x.mp4")
			So(err, ShouldBeNil)
			So(md.Width, ShouldEqual, 0)
		})
	})

	Convey("Given a failing binary", t, func() {
		_, err := Inspect(context.Background(), filepath.Join(t.TempDir(), "missing"), "a.mp4")
		So(err, ShouldNotBeNil)
		_, err = Inspect(context.Background(), "", " ")
		So(err, ShouldNotBeNil)
	})
}
