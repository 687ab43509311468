// Package leaderboard serves ranked, read-only views over the rating store.
package leaderboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/okian/skillrank/internal/adapters/repository"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
)

// Default service configuration constants.
const (
	DefaultLimit         = 100
	defaultMaxLimit      = 1000
	defaultCacheCapacity = 1024
)

// Entry is one leaderboard row. Rank is the 1-based position.
type Entry struct {
	Rank int `json:"rank"`
	model.PlayerRating
}

// Reader is the subset of the store the service needs.
type Reader interface {
	GetLatest(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error)
	GetHistory(ctx context.Context, playerID string, scope model.Scope, limit int) ([]model.HistoryPoint, error)
	GetLeaderboard(ctx context.Context, scope model.Scope, minGames, limit int) ([]model.PlayerRating, error)
}

// Service answers leaderboard, rating and history queries.
type Service struct {
	store    Reader
	ttl      time.Duration
	capacity uint64
	maxLimit int
	cache    *ttlcache.Cache[string, []Entry]
	logger   logger.Logger

	// janitor is non-nil while the cache's expiry loop runs.
	mu      sync.Mutex
	janitor chan struct{}
}

// New builds a leaderboard service over store.
func New(store Reader, opts ...Option) *Service {
	s := &Service{
		store:    store,
		capacity: defaultCacheCapacity,
		maxLimit: defaultMaxLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("leaderboard")
	}
	if s.ttl > 0 {
		s.cache = ttlcache.New(
			ttlcache.WithTTL[string, []Entry](s.ttl),
			ttlcache.WithCapacity[string, []Entry](s.capacity),
			ttlcache.WithDisableTouchOnHit[string, []Entry](),
		)
	}
	return s
}

// Start runs the cache's expiry loop so stale pages are dropped even when
// nobody reads them. It is a no-op without a cache or when already running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil || s.janitor != nil {
		return
	}
	done := make(chan struct{})
	s.janitor = done
	go func() {
		defer close(done)
		s.cache.Start()
	}()
}

// Stop ends the expiry loop started by Start and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.janitor == nil {
		return
	}
	s.cache.Stop()
	<-s.janitor
	s.janitor = nil
}

// cached returns the number of pages held.
func (s *Service) cached() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// MaxLimit returns the row cap applied to every request.
func (s *Service) MaxLimit() int { return s.maxLimit }

// Leaderboard returns up to limit ranked rows for scope. A limit of zero
// means DefaultLimit; larger limits are capped at MaxLimit.
func (s *Service) Leaderboard(ctx context.Context, scope model.Scope, minGames, limit int) ([]Entry, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidScope, scope)
	}
	if minGames < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: min_games=%d limit=%d", ErrInvalidQuery, minGames, limit)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, s.maxLimit)

	key := fmt.Sprintf("%s|%d|%d", scope, minGames, limit)
	if s.cache != nil {
		if item := s.cache.Get(key); item != nil {
			metrics.RecordLeaderboardCacheHit()
			return item.Value(), nil
		}
		metrics.RecordLeaderboardCacheMiss()
	}

	rows, err := s.store.GetLeaderboard(ctx, scope, minGames, limit)
	if err != nil {
		s.logger.Error(ctx, "leaderboard query failed", logger.String("scope", scope.String()), logger.Error(err))
		return nil, fmt.Errorf("leaderboard %s: %w", scope, err)
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{Rank: i + 1, PlayerRating: r}
	}
	if s.cache != nil {
		s.cache.Set(key, entries, ttlcache.DefaultTTL)
	}
	return entries, nil
}

// Player returns the latest rating of playerID in scope, or
// repository.ErrNotFound.
func (s *Service) Player(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error) {
	if !scope.Valid() {
		return model.PlayerRating{}, fmt.Errorf("%w: %s", model.ErrInvalidScope, scope)
	}
	r, err := s.store.GetLatest(ctx, scope, playerID)
	if err != nil {
		return model.PlayerRating{}, fmt.Errorf("rating %s/%s: %w", scope, playerID, err)
	}
	return r, nil
}

// History returns up to limit history points, newest first. A limit of
// zero returns the full history.
func (s *Service) History(ctx context.Context, scope model.Scope, playerID string, limit int) ([]model.HistoryPoint, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidScope, scope)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit=%d", ErrInvalidQuery, limit)
	}
	points, err := s.store.GetHistory(ctx, playerID, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("history %s/%s: %w", scope, playerID, err)
	}
	return points, nil
}

// Invalidate drops every cached page. Called after a recalculation commits.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.DeleteAll()
	}
}

// Ensure the repository stores satisfy Reader.
var _ Reader = (repository.Store)(nil)
