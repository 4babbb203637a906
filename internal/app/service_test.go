package service_test

import (
	"context"
	"testing"
	"time"

	service "github.com/okian/clutch/internal/app"
	"github.com/okian/clutch/internal/config"
	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func syntheticConfig() *config.Config {
	cfg := config.New()
	cfg.Decoder = config.DecoderSynthetic
	cfg.Extractor = config.ExtractorSynthetic
	cfg.WorkerCount = 4
	cfg.QueueSize = 64
	cfg.WatchTimeoutMS = 100
	return cfg
}

func request(subject string, seconds float64) ingest.Request {
	return ingest.Request{
		VideoURL:        "https://videos.example.com/" + subject + ".mp4",
		Format:          "mp4",
		DurationSeconds: seconds,
		Width:           640,
		Height:          480,
		FPS:             30,
		Tags: ingest.Tags{
			SubjectID:   subject,
			Sport:       analysisconfig.SportBasketball,
			SessionType: analysisconfig.SessionGame,
		},
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should not be started", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a new service with a custom config", t, func() {
		cfg := syntheticConfig()
		svc := service.New(service.WithConfig(cfg), service.WithLogger(logger.Nop()))

		Convey("Then the stats reflect it", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 4)
			So(stats["queueSize"], ShouldEqual, 64)
			So(stats["store"], ShouldEqual, config.StoreMemory)
		})
	})
}

func TestService_NotStarted(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(service.WithConfig(syntheticConfig()))
		ctx := context.Background()

		Convey("Then every operation reports it", func() {
			_, err := svc.Ingest(ctx, request("p-1", 2))
			So(err, ShouldEqual, service.ErrNotStarted)
			_, err = svc.Session(ctx, "any")
			So(err, ShouldEqual, service.ErrNotStarted)
			_, err = svc.History(ctx, "p-1", 0)
			So(err, ShouldEqual, service.ErrNotStarted)
			_, err = svc.Cancel(ctx, "any")
			So(err, ShouldEqual, service.ErrNotStarted)
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithConfig(syntheticConfig()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Ensure service is stopped after test
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["sessions"], ShouldEqual, 0)
				So(stats["activeWorkers"], ShouldEqual, 0)
			})

			Convey("And starting twice is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given an invalid configuration", t, func() {
		cfg := syntheticConfig()
		cfg.MinConfidence = 2
		svc := service.New(service.WithConfig(cfg))

		Convey("Then Start fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a process extractor without commands", t, func() {
		cfg := syntheticConfig()
		cfg.Extractor = config.ExtractorProcess
		svc := service.New(service.WithConfig(cfg))

		Convey("Then Start fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New(service.WithConfig(syntheticConfig()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When stopping the service", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And ingest is refused", func() {
				_, err := svc.Ingest(ctx, request("p-1", 2))
				So(err, ShouldEqual, service.ErrNotStarted)
			})
		})
	})
}

func TestService_Analyze(t *testing.T) {
	Convey("Given a started service with synthetic media", t, func() {
		svc := service.New(service.WithConfig(syntheticConfig()))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When a video is ingested and awaited", func() {
			rc, err := svc.Ingest(ctx, request("p-1", 4))
			So(err, ShouldBeNil)
			So(rc.Duplicate, ShouldBeFalse)

			v, err := svc.Await(ctx, rc.SessionID, 20*time.Millisecond)

			Convey("Then the session completes with a report", func() {
				So(err, ShouldBeNil)
				So(v.Status, ShouldEqual, model.SessionCompleted)
				So(v.Report, ShouldNotBeNil)
				So(v.Report.TimelineLength, ShouldEqual, 120)
			})

			Convey("And the subject history lists it", func() {
				h, err := svc.History(ctx, "p-1", 0)
				So(err, ShouldBeNil)
				So(h.WindowDays, ShouldEqual, 30)
				So(len(h.Sessions), ShouldEqual, 1)
				So(h.Sessions[0].ID, ShouldEqual, rc.SessionID)
			})

			Convey("And the stats count it", func() {
				stats := svc.GetStats()
				So(stats["sessions"], ShouldEqual, 1)
				So(stats["dedupeKeys"], ShouldEqual, int64(1))
			})
		})

		Convey("When the same delivery arrives twice", func() {
			first, err := svc.Ingest(ctx, request("p-2", 2))
			So(err, ShouldBeNil)
			second, err := svc.Ingest(ctx, request("p-2", 2))
			So(err, ShouldBeNil)

			Convey("Then the second is a duplicate", func() {
				So(second.Duplicate, ShouldBeTrue)
				So(second.SessionID, ShouldBeBlank)
				_, err := svc.Await(ctx, first.SessionID, 20*time.Millisecond)
				So(err, ShouldBeNil)
			})
		})

		Convey("When an unknown session is awaited", func() {
			_, err := svc.Await(ctx, "missing", 0)

			Convey("Then the lookup error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
