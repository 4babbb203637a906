package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/clutch/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a delivery key is recorded", func() {
			seen := d.SeenAndRecord(ctx, "delivery-1")

			Convey("Then it is new the first time and seen afterwards", func() {
				So(seen, ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "delivery-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a recorded key is unrecorded", func() {
			d.SeenAndRecord(ctx, "subject-1|https://videos/a.mp4")
			d.Unrecord(ctx, "subject-1|https://videos/a.mp4")

			Convey("Then the delivery can be retried", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "subject-1|https://videos/a.mp4"), ShouldBeFalse)
			})
		})

		Convey("When an unknown key is unrecorded", func() {
			d.SeenAndRecord(ctx, "a")
			d.Unrecord(ctx, "missing")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a nil context is passed", func() {
			So(func() { d.SeenAndRecord(nil, "x") }, ShouldNotPanic)
			So(func() { d.Unrecord(nil, "x") }, ShouldNotPanic)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, k := range []string{"k1", "k2", "k3"} {
			So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
		}

		Convey("When one more key arrives", func() {
			So(d.SeenAndRecord(ctx, "k4"), ShouldBeFalse)

			Convey("Then the oldest key is evicted and newer keys remain", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "k4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)
			})
		})

		Convey("When a middle key is unrecorded before eviction", func() {
			d.Unrecord(ctx, "k2")
			So(d.SeenAndRecord(ctx, "k4"), ShouldBeFalse)

			Convey("Then no eviction was needed", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "k1"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k3"), ShouldBeTrue)
			})
		})

		Convey("When the oldest and newest keys are unrecorded", func() {
			d.Unrecord(ctx, "k1")
			d.Unrecord(ctx, "k3")
			So(d.SeenAndRecord(ctx, "k5"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "k6"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "k7"), ShouldBeFalse)

			Convey("Then eviction still follows insertion order", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "k6"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k7"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k5"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := range 1000 {
			So(d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i)), ShouldBeFalse)
		}
		So(d.Size(), ShouldEqual, int64(1000))
		So(d.SeenAndRecord(ctx, "k-0"), ShouldBeTrue)
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given concurrent deliveries of the same key", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		const goroutines = 16

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(context.Background(), "delivery-x") {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one caller wins", func() {
			So(fresh, ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given concurrent distinct keys", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		var wg sync.WaitGroup
		for g := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range 100 {
					k := fmt.Sprintf("k-%d-%d", g, j)
					d.SeenAndRecord(context.Background(), k)
					if j%2 == 0 {
						d.Unrecord(context.Background(), k)
					}
				}
			}()
		}
		wg.Wait()

		So(d.Size(), ShouldEqual, int64(500))
	})
}
