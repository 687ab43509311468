package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/skillrank/internal/adapters/mq/queue"
	"github.com/okian/skillrank/internal/app/recalc"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// stubRunner records calls and blocks each run until release is closed.
type stubRunner struct {
	mu         sync.Mutex
	periods    []model.Period
	historical int
	calls      chan struct{}
	release    chan struct{}
	err        error
}

func newStubRunner() *stubRunner {
	return &stubRunner{calls: make(chan struct{}, 16), release: make(chan struct{})}
}

func (r *stubRunner) RecalculateAllScopes(ctx context.Context, p model.Period) (recalc.Summary, error) {
	r.mu.Lock()
	r.periods = append(r.periods, p)
	r.mu.Unlock()
	r.calls <- struct{}{}
	<-r.release
	return recalc.Summary{Periods: 1}, r.err
}

func (r *stubRunner) RecalculateAllHistorical(ctx context.Context) (recalc.Summary, error) {
	r.mu.Lock()
	r.historical++
	r.mu.Unlock()
	r.calls <- struct{}{}
	<-r.release
	return recalc.Summary{Periods: 3}, r.err
}

func (r *stubRunner) seen() []model.Period {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Period(nil), r.periods...)
}

func waitIdle(s *Scheduler) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.IsRunning() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func waitCall(r *stubRunner) bool {
	select {
	case <-r.calls:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestNextRun(t *testing.T) {
	Convey("Given a scheduler firing at 02:00 UTC", t, func() {
		s := New(newStubRunner(), WithAutoRun(false))

		Convey("Mid-month rolls to the 1st of next month", func() {
			now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
			So(s.NextRun(now), ShouldEqual, time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC))
		})

		Convey("Early on the 1st fires the same day", func() {
			now := time.Date(2024, 4, 1, 1, 30, 0, 0, time.UTC)
			So(s.NextRun(now), ShouldEqual, time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC))
		})

		Convey("Exactly at the fire time moves on a month", func() {
			now := time.Date(2024, 12, 1, 2, 0, 0, 0, time.UTC)
			So(s.NextRun(now), ShouldEqual, time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC))
		})

		Convey("A configured hour is honoured", func() {
			s := New(newStubRunner(), WithAutoRun(false), WithScheduleHour(5))
			now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
			So(s.NextRun(now), ShouldEqual, time.Date(2024, 4, 1, 5, 0, 0, 0, time.UTC))
		})
	})
}

func TestTrigger(t *testing.T) {
	Convey("Given a started scheduler with a blocking runner", t, func() {
		ctx := context.Background()
		clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
		runner := newStubRunner()
		s := New(runner, WithClock(clock), WithAutoRun(false))
		s.Start(ctx)
		defer func() { _ = s.Stop(ctx) }()

		Convey("A nil period targets the previous month", func() {
			acc, err := s.Trigger(ctx, nil)
			So(err, ShouldBeNil)
			So(acc.JobID, ShouldNotBeEmpty)
			So(acc.Status, ShouldEqual, "accepted")
			So(waitCall(runner), ShouldBeTrue)

			st := s.Status()
			So(st.IsRunning, ShouldBeTrue)
			So(st.CurrentJob, ShouldNotBeNil)
			So(st.CurrentJob.ID, ShouldEqual, acc.JobID)

			close(runner.release)
			So(waitIdle(s), ShouldBeTrue)
			So(runner.seen(), ShouldResemble, []model.Period{{Year: 2024, Month: time.February}})

			st = s.Status()
			So(st.CurrentJob, ShouldBeNil)
			So(st.LastRun, ShouldNotBeNil)
			So(st.LastJob.Job.ID, ShouldEqual, acc.JobID)
			So(st.LastJob.Summary.Periods, ShouldEqual, 1)
			So(st.LastError, ShouldBeEmpty)
			So(st.NextScheduledRun, ShouldEqual, time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC))
		})

		Convey("A second trigger during a run is refused", func() {
			p := model.Period{Year: 2024, Month: time.January}
			first, err := s.Trigger(ctx, &p)
			So(err, ShouldBeNil)
			So(waitCall(runner), ShouldBeTrue)

			_, err = s.Trigger(ctx, &p)
			So(errors.Is(err, ErrAlreadyRunning), ShouldBeTrue)
			_, err = s.TriggerHistorical(ctx)
			So(errors.Is(err, ErrAlreadyRunning), ShouldBeTrue)

			close(runner.release)
			So(waitIdle(s), ShouldBeTrue)

			second, err := s.TriggerHistorical(ctx)
			So(err, ShouldBeNil)
			So(second.JobID, ShouldNotEqual, first.JobID)
			So(waitCall(runner), ShouldBeTrue)
			So(waitIdle(s), ShouldBeTrue)
			So(s.Status().LastJob.Summary.Periods, ShouldEqual, 3)
		})

		Convey("Concurrent triggers admit exactly one job", func() {
			var accepted, refused atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.TriggerHistorical(ctx)
					switch {
					case err == nil:
						accepted.Add(1)
					case errors.Is(err, ErrAlreadyRunning):
						refused.Add(1)
					}
				}()
			}
			wg.Wait()
			So(accepted.Load(), ShouldEqual, 1)
			So(refused.Load(), ShouldEqual, 31)

			close(runner.release)
			So(waitIdle(s), ShouldBeTrue)
		})

		Convey("A failing run records its error and frees the scheduler", func() {
			runner.err = errors.New("store unavailable")
			close(runner.release)

			_, err := s.TriggerHistorical(ctx)
			So(err, ShouldBeNil)
			So(waitCall(runner), ShouldBeTrue)
			So(waitIdle(s), ShouldBeTrue)
			So(s.Status().LastError, ShouldEqual, "store unavailable")

			_, err = s.TriggerHistorical(ctx)
			So(err, ShouldBeNil)
			So(waitCall(runner), ShouldBeTrue)
			So(waitIdle(s), ShouldBeTrue)
		})
	})
}

func TestRunSync(t *testing.T) {
	Convey("Given a started scheduler with a blocking runner", t, func() {
		ctx := context.Background()
		runner := newStubRunner()
		s := New(runner, WithAutoRun(false))
		s.Start(ctx)
		defer func() { _ = s.Stop(ctx) }()

		Convey("A synchronous run is refused while a queued job runs", func() {
			_, err := s.TriggerHistorical(ctx)
			So(err, ShouldBeNil)
			So(waitCall(runner), ShouldBeTrue)

			called := false
			err = s.RunSync(ctx, "sync_historical", func(context.Context) error {
				called = true
				return nil
			})
			So(errors.Is(err, ErrAlreadyRunning), ShouldBeTrue)
			So(called, ShouldBeFalse)

			close(runner.release)
			So(waitIdle(s), ShouldBeTrue)
		})

		Convey("Triggers are refused while a synchronous run holds the flag", func() {
			entered := make(chan struct{})
			release := make(chan struct{})
			done := make(chan error, 1)
			go func() {
				done <- s.RunSync(ctx, "sync_period_all", func(context.Context) error {
					close(entered)
					<-release
					return nil
				})
			}()
			<-entered

			So(s.IsRunning(), ShouldBeTrue)
			_, err := s.TriggerHistorical(ctx)
			So(errors.Is(err, ErrAlreadyRunning), ShouldBeTrue)
			err = s.RunSync(ctx, "sync_period", func(context.Context) error { return nil })
			So(errors.Is(err, ErrAlreadyRunning), ShouldBeTrue)

			close(release)
			So(<-done, ShouldBeNil)
			So(s.IsRunning(), ShouldBeFalse)

			close(runner.release)
			_, err = s.TriggerHistorical(ctx)
			So(err, ShouldBeNil)
			So(waitCall(runner), ShouldBeTrue)
			So(waitIdle(s), ShouldBeTrue)
		})

		Convey("A failing synchronous run releases the flag and returns its error", func() {
			boom := errors.New("store unavailable")
			err := s.RunSync(ctx, "sync_historical", func(context.Context) error { return boom })
			So(errors.Is(err, boom), ShouldBeTrue)
			So(s.IsRunning(), ShouldBeFalse)
		})
	})
}

func TestMonthlyFire(t *testing.T) {
	Convey("Given a scheduler with auto run on a fake clock", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		clock := clockwork.NewFakeClockAt(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC))
		runner := newStubRunner()
		close(runner.release)
		s := New(runner, WithClock(clock))
		s.Start(ctx)
		defer func() { _ = s.Stop(context.Background()) }()

		Convey("When the 1st of the month at 02:00 passes", func() {
			So(clock.BlockUntilContext(ctx, 1), ShouldBeNil)
			clock.Advance(3 * time.Hour)

			Convey("Then the previous month is recalculated once", func() {
				So(waitCall(runner), ShouldBeTrue)
				So(waitIdle(s), ShouldBeTrue)
				So(runner.seen(), ShouldResemble, []model.Period{{Year: 2024, Month: time.February}})
				So(s.Status().LastJob.Job.Trigger, ShouldEqual, TriggerScheduled)
			})
		})
	})

	Convey("Given a scheduler that is busy when the month turns", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC))
		runner := newStubRunner()
		s := New(runner, WithClock(clock))
		s.Start(ctx)
		defer func() { _ = s.Stop(context.Background()) }()

		_, err := s.TriggerHistorical(ctx)
		So(err, ShouldBeNil)
		So(waitCall(runner), ShouldBeTrue)

		So(clock.BlockUntilContext(ctx, 1), ShouldBeNil)
		clock.Advance(3 * time.Hour)
		// The loop re-arms for July after skipping June's fire.
		So(clock.BlockUntilContext(ctx, 1), ShouldBeNil)

		close(runner.release)
		So(waitIdle(s), ShouldBeTrue)
		So(runner.seen(), ShouldBeEmpty)
		So(s.Status().LastJob.Job.Kind, ShouldEqual, queue.JobHistorical)
	})
}
