// Package scheduler owns when recalculations run: a monthly timer plus
// manual triggers, with at most one job in flight per process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/okian/skillrank/internal/adapters/mq/queue"
	"github.com/okian/skillrank/internal/adapters/mq/worker"
	"github.com/okian/skillrank/internal/app/recalc"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
)

// Default scheduler configuration constants.
const (
	defaultScheduleHour = 2
	stopTimeout         = 30 * time.Second
)

// Trigger sources recorded on jobs.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Runner performs the recalculations. *recalc.Orchestrator satisfies it.
type Runner interface {
	RecalculateAllScopes(ctx context.Context, p model.Period) (recalc.Summary, error)
	RecalculateAllHistorical(ctx context.Context) (recalc.Summary, error)
}

// Accepted acknowledges a manual trigger.
type Accepted struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// JobResult describes a finished job.
type JobResult struct {
	Job        queue.Job      `json:"job"`
	Summary    recalc.Summary `json:"summary"`
	FinishedAt time.Time      `json:"finished_at"`
	Error      string         `json:"error,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	IsRunning        bool       `json:"is_running"`
	AutoRun          bool       `json:"auto_run"`
	CurrentJob       *queue.Job `json:"current_job,omitempty"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	LastJob          *JobResult `json:"last_job,omitempty"`
	NextScheduledRun time.Time  `json:"next_scheduled_run"`
}

// Scheduler serialises recalculation jobs.
//
// running is the only mutual-exclusion primitive: a trigger that cannot
// flip it from false to true gets ErrAlreadyRunning. mu guards the status
// fields only.
type Scheduler struct {
	runner  Runner
	clock   clockwork.Clock
	hour    int
	autoRun bool
	logger  logger.Logger
	onDone  func(JobResult)

	running atomic.Bool
	queue   *queue.InMemoryQueue
	worker  *worker.InMemoryWorker

	mu      sync.Mutex
	current *queue.Job
	lastRun *time.Time
	lastErr string
	lastJob *JobResult

	cancel context.CancelFunc
	loopWG sync.WaitGroup
}

// New builds a scheduler around runner. Call Start to begin serving jobs.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		clock:   clockwork.NewRealClock(),
		hour:    defaultScheduleHour,
		autoRun: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(1))
	s.worker = worker.NewInMemoryWorker(s.queue, worker.HandlerFunc(s.handle),
		worker.WithName("recalc-worker"), worker.WithLogger(s.logger.Named("worker")))
	return s
}

// Start runs the job worker and, when enabled, the monthly timer.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.worker.Run(ctx)
	if s.autoRun {
		s.loopWG.Add(1)
		go s.loop(ctx)
	}
	s.logger.Info(ctx, "scheduler started",
		logger.Bool("auto_run", s.autoRun),
		logger.String("next_run", s.NextRun(s.clock.Now()).Format(time.RFC3339)),
	)
}

// Stop stops accepting jobs and waits for the job in hand.
func (s *Scheduler) Stop(ctx context.Context) error {
	_ = s.queue.Close()
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	err := s.worker.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.loopWG.Wait()
	return err
}

// NextRun returns the first monthly fire strictly after now: the 1st of a
// month at the configured hour, UTC.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), 1, s.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// Trigger recalculates every scope for p, or for the previous calendar
// month when p is nil.
func (s *Scheduler) Trigger(ctx context.Context, p *model.Period) (Accepted, error) {
	if p == nil {
		prev := model.PeriodOf(s.clock.Now()).Previous()
		p = &prev
	}
	return s.submit(ctx, queue.JobPeriod, p, TriggerManual)
}

// TriggerHistorical wipes and recomputes all ratings.
func (s *Scheduler) TriggerHistorical(ctx context.Context) (Accepted, error) {
	return s.submit(ctx, queue.JobHistorical, nil, TriggerManual)
}

func (s *Scheduler) submit(ctx context.Context, kind queue.JobKind, p *model.Period, trigger string) (Accepted, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.RecordErrorByComponent("scheduler", "already_running")
		return Accepted{}, ErrAlreadyRunning
	}
	job := queue.Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Period:     p,
		Trigger:    trigger,
		EnqueuedAt: s.clock.Now().UTC(),
	}
	s.mu.Lock()
	s.current = &job
	s.mu.Unlock()
	metrics.SetSchedulerRunning(true)

	if !s.queue.Enqueue(ctx, job) {
		s.finish(ctx, job, recalc.Summary{}, ErrRejected)
		return Accepted{}, ErrRejected
	}
	s.logger.Info(ctx, "recalculation accepted",
		logger.String("job_id", job.ID),
		logger.String("kind", string(kind)),
		logger.String("trigger", trigger),
	)
	return Accepted{Status: "accepted", JobID: job.ID}, nil
}

// RunSync runs fn on the caller's goroutine while holding the same
// running flag as queued jobs, so a synchronous run and a queued job never
// overlap. It returns ErrAlreadyRunning without calling fn if a job is in
// flight.
func (s *Scheduler) RunSync(ctx context.Context, name string, fn func(context.Context) error) error {
	if !s.running.CompareAndSwap(false, true) {
		metrics.RecordErrorByComponent("scheduler", "already_running")
		return ErrAlreadyRunning
	}
	metrics.SetSchedulerRunning(true)
	defer func() {
		metrics.SetSchedulerRunning(false)
		s.running.Store(false)
	}()

	start := s.clock.Now()
	err := fn(ctx)
	metrics.RecordRecalculationDuration(name, float64(s.clock.Since(start).Milliseconds()))
	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.Error(ctx, "synchronous recalculation failed", logger.String("run", name), logger.Error(err))
	}
	metrics.RecordRecalculation(name, outcome)
	return err
}

// handle runs on the worker goroutine. The run is detached from the
// worker's cancellation so shutdown waits for it instead of cutting a
// period in half.
func (s *Scheduler) handle(ctx context.Context, job queue.Job) error {
	start := s.clock.Now()
	runCtx := context.WithoutCancel(ctx)

	var (
		sum recalc.Summary
		err error
	)
	switch job.Kind {
	case queue.JobHistorical:
		sum, err = s.runner.RecalculateAllHistorical(runCtx)
	case queue.JobPeriod:
		if job.Period == nil {
			err = fmt.Errorf("period job %s without period", job.ID)
			break
		}
		sum, err = s.runner.RecalculateAllScopes(runCtx, *job.Period)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	metrics.RecordRecalculationDuration(string(job.Kind), float64(s.clock.Since(start).Milliseconds()))
	s.finish(ctx, job, sum, err)
	return err
}

// finish records the outcome and releases the running flag last.
func (s *Scheduler) finish(ctx context.Context, job queue.Job, sum recalc.Summary, err error) {
	now := s.clock.Now().UTC()
	res := &JobResult{Job: job, Summary: sum, FinishedAt: now}
	outcome := "ok"
	if err != nil {
		res.Error = err.Error()
		outcome = "error"
		s.logger.Error(ctx, "recalculation failed", logger.String("job_id", job.ID), logger.Error(err))
	} else {
		s.logger.Info(ctx, "recalculation finished",
			logger.String("job_id", job.ID),
			logger.Int("periods", sum.Periods),
			logger.Int("rated", sum.Rated),
			logger.Int("skipped", sum.Skipped),
		)
	}
	metrics.RecordRecalculation(string(job.Kind), outcome)

	s.mu.Lock()
	s.current = nil
	s.lastRun = &now
	s.lastErr = res.Error
	s.lastJob = res
	s.mu.Unlock()

	if s.onDone != nil {
		s.onDone(*res)
	}

	metrics.SetSchedulerLastRun(now)
	metrics.SetSchedulerRunning(false)
	s.running.Store(false)
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	st := Status{
		IsRunning:        s.running.Load(),
		AutoRun:          s.autoRun,
		NextScheduledRun: s.NextRun(s.clock.Now()),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		j := *s.current
		st.CurrentJob = &j
	}
	if s.lastRun != nil {
		t := *s.lastRun
		st.LastRun = &t
	}
	st.LastError = s.lastErr
	if s.lastJob != nil {
		r := *s.lastJob
		st.LastJob = &r
	}
	return st
}

// IsRunning reports whether a job is in flight.
func (s *Scheduler) IsRunning() bool { return s.running.Load() }

func (s *Scheduler) loop(ctx context.Context) {
	defer s.loopWG.Done()
	for {
		now := s.clock.Now()
		next := s.NextRun(now)
		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		p := model.PeriodOf(next).Previous()
		_, err := s.submit(ctx, queue.JobPeriod, &p, TriggerScheduled)
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			metrics.RecordSchedulerSkipped()
			s.logger.Warn(ctx, "monthly recalculation skipped, a job is running",
				logger.String("period", p.String()))
		case err != nil:
			s.logger.Error(ctx, "monthly recalculation not started",
				logger.String("period", p.String()), logger.Error(err))
		}
	}
}
