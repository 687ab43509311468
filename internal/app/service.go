// Package service wires the rating store, contest source, orchestrator,
// scheduler and leaderboard into the component the HTTP API and CLI use.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/skillrank/internal/adapters/contests"
	"github.com/okian/skillrank/internal/adapters/repository"
	"github.com/okian/skillrank/internal/adapters/repository/postgres"
	"github.com/okian/skillrank/internal/adapters/repository/sqlite"
	"github.com/okian/skillrank/internal/app/leaderboard"
	"github.com/okian/skillrank/internal/app/recalc"
	"github.com/okian/skillrank/internal/app/scheduler"
	"github.com/okian/skillrank/internal/config"
	"github.com/okian/skillrank/internal/domain/glicko"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
)

// Sentinel errors returned by the service.
var (
	// ErrNotStarted is returned by operations that need a started service.
	ErrNotStarted = errors.New("service not started")
	// ErrReadOnlySource is returned when the contest source cannot record contests.
	ErrReadOnlySource = errors.New("contest source is read-only")
)

// Service implements the API dependencies for the rating system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	source      contests.Source
	sink        contests.Sink
	orch        *recalc.Orchestrator
	sched       *scheduler.Scheduler
	board       *leaderboard.Service
	closeStore  func() error
	injectStore bool

	// Configuration
	driver           string
	sqlitePath       string
	postgresDSN      string
	glickoOpts       []glicko.Option
	workerCount      int
	maxLimit         int
	cacheTTL         time.Duration
	schedulerEnabled bool
	scheduleHour     int
	clock            clockwork.Clock

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStores injects a rating store and contest source instead of opening
// one from the driver settings. The caller keeps ownership of both.
func WithStores(store repository.Store, source contests.Source) Option {
	return func(s *Service) {
		s.store = store
		s.source = source
		if sink, ok := source.(contests.Sink); ok {
			s.sink = sink
		}
		s.injectStore = store != nil && source != nil
	}
}

// WithMemoryStore keeps ratings and contests in process memory.
func WithMemoryStore() Option {
	return func(s *Service) { s.driver = config.DriverMemory }
}

// WithSQLite opens the SQLite database at path.
func WithSQLite(path string) Option {
	return func(s *Service) {
		s.driver = config.DriverSQLite
		s.sqlitePath = path
	}
}

// WithPostgres connects to PostgreSQL using dsn.
func WithPostgres(dsn string) Option {
	return func(s *Service) {
		s.driver = config.DriverPostgres
		s.postgresDSN = dsn
	}
}

// WithGlicko sets the Glicko2 system constants.
func WithGlicko(tau, epsilon float64, maxIterations int) Option {
	return func(s *Service) {
		s.glickoOpts = []glicko.Option{
			glicko.WithTau(tau),
			glicko.WithEpsilon(epsilon),
			glicko.WithMaxIterations(maxIterations),
		}
	}
}

// WithWorkerCount bounds per-player parallelism within a period.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard page sizes.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLeaderboardCacheTTL caches leaderboard pages. Zero disables the cache.
func WithLeaderboardCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithScheduler enables or disables the monthly run and sets its UTC hour.
func WithScheduler(enabled bool, hour int) Option {
	return func(s *Service) {
		s.schedulerEnabled = enabled
		s.scheduleHour = hour
	}
}

// WithClock sets the clock shared by the orchestrator and scheduler.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// OptionsFromConfig translates a loaded Config into service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithGlicko(cfg.GlickoTau, cfg.GlickoEpsilon, cfg.GlickoMaxIterations),
		WithWorkerCount(cfg.WorkerCount),
		WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		WithLeaderboardCacheTTL(cfg.LeaderboardCacheTTL()),
		WithScheduler(cfg.SchedulerEnabled, cfg.ScheduleHour),
	}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		opts = append(opts, WithMemoryStore())
	case config.DriverPostgres:
		opts = append(opts, WithPostgres(cfg.PostgresDSN))
	default:
		opts = append(opts, WithSQLite(cfg.SQLitePath))
	}
	return opts
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		driver:           config.DriverMemory,
		workerCount:      runtime.NumCPU(),
		maxLimit:         1000,
		schedulerEnabled: true,
		scheduleHour:     2,
		clock:            clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the store and starts the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting rating service...")

	calc, err := glicko.New(s.glickoOpts...)
	if err != nil {
		return fmt.Errorf("rating calculator: %w", err)
	}
	if err := s.openStore(ctx); err != nil {
		return err
	}

	s.orch = recalc.New(s.store, s.source, calc,
		recalc.WithConcurrency(s.workerCount),
		recalc.WithClock(s.clock),
		recalc.WithLogger(s.logger.Named("recalc")),
	)
	s.board = leaderboard.New(s.store,
		leaderboard.WithMaxLimit(s.maxLimit),
		leaderboard.WithCacheTTL(s.cacheTTL),
		leaderboard.WithLogger(s.logger.Named("leaderboard")),
	)
	s.board.Start()
	board := s.board
	s.sched = scheduler.New(s.orch,
		scheduler.WithClock(s.clock),
		scheduler.WithAutoRun(s.schedulerEnabled),
		scheduler.WithScheduleHour(s.scheduleHour),
		scheduler.WithOnFinish(func(scheduler.JobResult) { board.Invalidate() }),
		scheduler.WithLogger(s.logger.Named("scheduler")),
	)
	s.sched.Start(ctx)

	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "rating service started",
		logger.String("store", s.driver),
		logger.Int("workers", s.workerCount),
		logger.Bool("scheduler", s.schedulerEnabled),
	)

	return nil
}

func (s *Service) openStore(ctx context.Context) error {
	if s.injectStore {
		s.closeStore = func() error { return nil }
		return nil
	}
	switch s.driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, s.sqlitePath, sqlite.WithLogger(s.logger.Named("sqlite")))
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		s.store, s.source, s.sink, s.closeStore = st, st, st, st.Close
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.sqlitePath))
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, s.postgresDSN, postgres.WithLogger(s.logger.Named("postgres")))
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return fmt.Errorf("migrate postgres store: %w", err)
		}
		s.store, s.source, s.sink, s.closeStore = st, st, st, st.Close
		s.logger.Info(ctx, "using postgres store")
	default:
		mem := repository.NewMemoryStore(repository.WithLogger(s.logger.Named("memory-store")))
		src := contests.NewMemorySource()
		s.store, s.source, s.sink, s.closeStore = mem, src, src, mem.Close
		s.logger.Info(ctx, "using memory store")
	}
	return nil
}

// Stop gracefully shuts down the service, waiting for a running job.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping rating service...")

	var errs []error
	if err := s.sched.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	s.board.Stop()
	s.orch.Close()
	if err := s.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "rating service stopped")
	return errors.Join(errs...)
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Status returns the scheduler status.
func (s *Service) Status(ctx context.Context) (scheduler.Status, error) {
	if err := s.ready(); err != nil {
		return scheduler.Status{}, err
	}
	return s.sched.Status(), nil
}

// Trigger schedules a recalculation of every scope for p, or for the
// previous month when p is nil.
func (s *Service) Trigger(ctx context.Context, p *model.Period) (scheduler.Accepted, error) {
	if err := s.ready(); err != nil {
		return scheduler.Accepted{}, err
	}
	return s.sched.Trigger(ctx, p)
}

// TriggerHistorical schedules a full wipe and replay.
func (s *Service) TriggerHistorical(ctx context.Context) (scheduler.Accepted, error) {
	if err := s.ready(); err != nil {
		return scheduler.Accepted{}, err
	}
	return s.sched.TriggerHistorical(ctx)
}

// RecalculatePeriod runs one scope and period synchronously. It shares the
// scheduler's running flag and returns scheduler.ErrAlreadyRunning while a
// job is in flight.
func (s *Service) RecalculatePeriod(ctx context.Context, scope model.Scope, p model.Period) (recalc.PeriodReport, error) {
	if err := s.ready(); err != nil {
		return recalc.PeriodReport{}, err
	}
	var r recalc.PeriodReport
	err := s.sched.RunSync(ctx, "sync_period", func(ctx context.Context) error {
		var err error
		r, err = s.orch.RecalculatePeriod(ctx, scope, p.Year, p.Month)
		s.board.Invalidate()
		return err
	})
	return r, err
}

// RecalculateAllScopes runs every scope for p synchronously.
func (s *Service) RecalculateAllScopes(ctx context.Context, p model.Period) (recalc.Summary, error) {
	if err := s.ready(); err != nil {
		return recalc.Summary{}, err
	}
	var sum recalc.Summary
	err := s.sched.RunSync(ctx, "sync_period_all", func(ctx context.Context) error {
		var err error
		sum, err = s.orch.RecalculateAllScopes(ctx, p)
		s.board.Invalidate()
		return err
	})
	return sum, err
}

// RecalculateHistorical wipes and replays every period synchronously.
func (s *Service) RecalculateHistorical(ctx context.Context) (recalc.Summary, error) {
	if err := s.ready(); err != nil {
		return recalc.Summary{}, err
	}
	var sum recalc.Summary
	err := s.sched.RunSync(ctx, "sync_historical", func(ctx context.Context) error {
		var err error
		sum, err = s.orch.RecalculateAllHistorical(ctx)
		s.board.Invalidate()
		return err
	})
	return sum, err
}

// Leaderboard returns ranked entries for scope.
func (s *Service) Leaderboard(ctx context.Context, scope model.Scope, minGames, limit int) ([]leaderboard.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.board.Leaderboard(ctx, scope, minGames, limit)
}

// Player returns the latest rating of a player in scope.
func (s *Service) Player(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error) {
	if err := s.ready(); err != nil {
		return model.PlayerRating{}, err
	}
	return s.board.Player(ctx, scope, playerID)
}

// History returns a player's rating history in scope, newest first.
func (s *Service) History(ctx context.Context, scope model.Scope, playerID string, limit int) ([]model.HistoryPoint, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.board.History(ctx, scope, playerID, limit)
}

// InsertContest records a finished contest for future recalculations.
func (s *Service) InsertContest(ctx context.Context, c model.Contest) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.sink == nil {
		return ErrReadOnlySource
	}
	return s.sink.InsertContest(ctx, c)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":          s.started,
		"store":            s.driver,
		"workerCount":      s.workerCount,
		"schedulerEnabled": s.schedulerEnabled,
	}

	if s.started {
		stats["uptimeSeconds"] = int64(s.clock.Since(s.startedAt).Seconds())
		stats["running"] = s.sched.IsRunning()

		scopes := map[string]int{}
		if n, err := s.store.Count(ctx, model.Overall()); err == nil {
			scopes[model.Overall().String()] = n
			metrics.UpdateRatedPlayers(model.Overall().String(), n)
		}
		if games, err := s.source.GameIDs(ctx); err == nil {
			for _, g := range games {
				scope := model.Game(g)
				if n, err := s.store.Count(ctx, scope); err == nil {
					scopes[scope.String()] = n
				}
			}
		}
		stats["ratedPlayers"] = scopes
	}

	return stats
}
