package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/clutch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func job(session string, kind model.StreamKind) Job {
	return Job{SessionID: session, Stream: kind}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))
		So(q.Len(ctx), ShouldEqual, 0)
		So(q.Capacity(), ShouldEqual, 2)

		Convey("When both jobs of a session are enqueued", func() {
			So(q.Enqueue(ctx, job("s1", model.StreamBiomechanical)), ShouldBeTrue)
			So(q.Enqueue(ctx, job("s1", model.StreamBehavioral)), ShouldBeTrue)

			Convey("Then a third job is refused without blocking", func() {
				So(q.Enqueue(ctx, job("s2", model.StreamBiomechanical)), ShouldBeFalse)
				So(errors.Is(Push(ctx, q, job("s2", model.StreamBiomechanical)), ErrFull), ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 2)
			})

			Convey("Then jobs are delivered in order", func() {
				ch := q.Dequeue(ctx)
				first, second := <-ch, <-ch
				So(first.Stream, ShouldEqual, model.StreamBiomechanical)
				So(second.Stream, ShouldEqual, model.StreamBehavioral)
				So(q.Len(ctx), ShouldEqual, 0)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, job("s1", model.StreamBehavioral)), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue fails and queued jobs drain before the channel closes", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, job("s2", model.StreamBehavioral)), ShouldBeFalse)
				So(errors.Is(Push(ctx, q, job("s2", model.StreamBehavioral)), ErrClosed), ShouldBeTrue)

				j, ok := <-q.Dequeue(ctx)
				So(ok, ShouldBeTrue)
				So(j.SessionID, ShouldEqual, "s1")
				_, ok = <-q.Dequeue(ctx)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then the job is refused with the context error", func() {
				So(q.Enqueue(cctx, job("s1", model.StreamBehavioral)), ShouldBeFalse)
				So(errors.Is(Push(cctx, q, job("s1", model.StreamBehavioral)), context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryQueueConcurrency(t *testing.T) {
	Convey("Given concurrent producers against a bounded queue", t, func() {
		q := NewInMemoryQueue(WithCapacity(50))
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for p := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 10 {
					if q.Enqueue(context.Background(), job(fmt.Sprintf("s-%d-%d", p, i), model.StreamBehavioral)) {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly capacity jobs are accepted", func() {
			So(accepted, ShouldEqual, 50)
			So(q.Len(context.Background()), ShouldEqual, 50)
		})
	})
}
