package dedupe_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/skillrank/internal/domain/dedupe"
	"github.com/smartystreets/goconvey/convey"
)

func TestSet(t *testing.T) {
	convey.Convey("Given a bounded set", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(3))

		convey.Convey("When recording new ids", func() {
			convey.So(d.SeenAndRecord("c1"), convey.ShouldBeFalse)
			convey.So(d.SeenAndRecord("c1"), convey.ShouldBeTrue)
			convey.So(d.Size(), convey.ShouldEqual, 1)
		})

		convey.Convey("When exceeding capacity", func() {
			for _, id := range []string{"c1", "c2", "c3", "c4"} {
				d.SeenAndRecord(id)
			}

			convey.Convey("Then the least recently seen id is evicted", func() {
				convey.So(d.Size(), convey.ShouldEqual, 3)
				convey.So(d.SeenAndRecord("c4"), convey.ShouldBeTrue)
				convey.So(d.SeenAndRecord("c2"), convey.ShouldBeTrue)
				convey.So(d.SeenAndRecord("c1"), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When forgetting an id", func() {
			d.SeenAndRecord("c1")
			d.Forget("c1")
			d.Forget("missing")

			convey.So(d.Size(), convey.ShouldEqual, 0)
			convey.So(d.SeenAndRecord("c1"), convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given an unbounded set", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(fmt.Sprintf("c%d", i))
		}
		convey.So(d.Size(), convey.ShouldEqual, 1000)
		convey.So(d.SeenAndRecord("c0"), convey.ShouldBeTrue)
	})

	convey.Convey("Given concurrent writers racing on the same ids", t, func() {
		d := dedupe.New()
		var fresh atomic.Int64
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(fmt.Sprintf("c%d", i)) {
						fresh.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		convey.So(fresh.Load(), convey.ShouldEqual, 100)
		convey.So(d.Size(), convey.ShouldEqual, 100)
	})
}
