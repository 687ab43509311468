package scheduler

import (
	"github.com/jonboulle/clockwork"
	"github.com/okian/skillrank/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock driving the monthly fire.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithScheduleHour sets the UTC hour of the monthly fire on the 1st.
func WithScheduleHour(hour int) Option {
	return func(s *Scheduler) {
		if hour >= 0 && hour < 24 {
			s.hour = hour
		}
	}
}

// WithAutoRun enables or disables the monthly fire. Manual triggers work
// either way.
func WithAutoRun(enabled bool) Option {
	return func(s *Scheduler) {
		s.autoRun = enabled
	}
}

// WithOnFinish registers fn to run after every job, before the scheduler
// accepts the next one.
func WithOnFinish(fn func(JobResult)) Option {
	return func(s *Scheduler) {
		s.onDone = fn
	}
}
