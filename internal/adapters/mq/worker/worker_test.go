package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/clutch/internal/adapters/mq/queue"
	"github.com/okian/clutch/internal/adapters/mq/worker"
	"github.com/okian/clutch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen map[string]int
	fail map[string]error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: map[string]int{}, fail: map[string]error{}}
}

func (h *recordingHandler) Handle(_ context.Context, j worker.Job) error { //nolint:gocritic // hugeParam
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[j.SessionID+"/"+string(j.Stream)]++
	return h.fail[j.SessionID]
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.seen {
		n += c
	}
	return n
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPool(t *testing.T) {
	Convey("Given a pool of 4 workers over a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		h := newRecordingHandler()
		h.fail["bad"] = errors.New("analyzer exploded")
		p := worker.NewPool(4, q, h)
		So(p.Size(), ShouldEqual, 4)
		p.Start(ctx)

		Convey("When both streams of 10 sessions are enqueued", func() {
			for i := range 10 {
				id := fmt.Sprintf("s-%d", i)
				So(q.Enqueue(ctx, model.StreamJob{SessionID: id, Stream: model.StreamBiomechanical}), ShouldBeTrue)
				So(q.Enqueue(ctx, model.StreamJob{SessionID: id, Stream: model.StreamBehavioral}), ShouldBeTrue)
			}

			Convey("Then every job is handled exactly once", func() {
				So(waitFor(func() bool { return h.count() == 20 }), ShouldBeTrue)
				So(waitFor(func() bool { return p.Processed() == 20 }), ShouldBeTrue)
				h.mu.Lock()
				for _, c := range h.seen {
					So(c, ShouldEqual, 1)
				}
				h.mu.Unlock()
				So(p.Shutdown(context.Background()), ShouldBeNil)
			})
		})

		Convey("When a handler fails", func() {
			So(q.Enqueue(ctx, model.StreamJob{SessionID: "bad", Stream: model.StreamBehavioral}), ShouldBeTrue)

			Convey("Then the failure is counted and the pool keeps running", func() {
				So(waitFor(func() bool { return p.Failed() == 1 }), ShouldBeTrue)
				So(q.Enqueue(ctx, model.StreamJob{SessionID: "good", Stream: model.StreamBehavioral}), ShouldBeTrue)
				So(waitFor(func() bool { return h.count() == 2 }), ShouldBeTrue)
				So(p.Shutdown(context.Background()), ShouldBeNil)
			})
		})

		Convey("When shut down twice", func() {
			So(p.Shutdown(context.Background()), ShouldBeNil)
			So(p.Shutdown(context.Background()), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
		})
	})
}

func TestPoolRecoversPanics(t *testing.T) {
	Convey("Given a handler that panics on one job", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		var handled atomic.Int64
		h := worker.HandlerFunc(func(_ context.Context, j worker.Job) error { //nolint:gocritic // hugeParam
			handled.Add(1)
			if j.SessionID == "boom" {
				panic("nil landmark map")
			}
			return nil
		})
		p := worker.NewPool(1, q, h)
		p.Start(context.Background())

		So(q.Enqueue(context.Background(), model.StreamJob{SessionID: "boom"}), ShouldBeTrue)
		So(q.Enqueue(context.Background(), model.StreamJob{SessionID: "fine"}), ShouldBeTrue)

		Convey("Then the worker survives and handles the next job", func() {
			So(waitFor(func() bool { return handled.Load() == 2 }), ShouldBeTrue)
			So(waitFor(func() bool { return p.Processed() == 2 }), ShouldBeTrue)
			So(p.Failed(), ShouldEqual, int64(1))
			So(p.Shutdown(context.Background()), ShouldBeNil)
		})
	})
}

func TestPoolShutdownTimeout(t *testing.T) {
	Convey("Given a handler that blocks until released", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		release := make(chan struct{})
		started := make(chan struct{})
		p := worker.NewPool(1, q, worker.HandlerFunc(func(context.Context, worker.Job) error { //nolint:gocritic // hugeParam
			close(started)
			<-release
			return nil
		}))
		p.Start(context.Background())
		So(q.Enqueue(context.Background(), model.StreamJob{SessionID: "slow"}), ShouldBeTrue)
		<-started

		Convey("Then shutdown reports the timeout and succeeds once released", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			err := p.Shutdown(ctx)
			So(errors.Is(err, worker.ErrShutdownTimeout), ShouldBeTrue)
			So(p.Active(), ShouldEqual, 1)

			close(release)
			So(p.Shutdown(context.Background()), ShouldBeNil)
			So(p.Active(), ShouldEqual, 0)
		})
	})
}
