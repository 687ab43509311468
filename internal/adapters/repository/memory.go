package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Each scope owns a treap ordered by Less, so an in-order traversal yields
// the leaderboard from best to worst. Priorities are a hash of the player
// id, which keeps the shape independent of rating values.

type node struct {
	key   model.PlayerRating
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, r model.PlayerRating) *node {
	if n == nil {
		return &node{key: r, prio: xxhash.Sum64String(r.PlayerID), size: 1}
	}
	if Less(&r, &n.key) {
		n.left = insert(n.left, r)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, r)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, r *model.PlayerRating) *node {
	if n == nil {
		return nil
	}
	if n.key.PlayerID == r.PlayerID {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, r)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, r)
		}
	} else if Less(r, &n.key) {
		n.left = deleteNode(n.left, r)
	} else {
		n.right = deleteNode(n.right, r)
	}
	fix(n)
	return n
}

// collect appends up to limit rows with at least minGames games in rank order.
func collect(n *node, minGames, limit int, out *[]model.PlayerRating) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, minGames, limit, out)
	if len(*out) < limit && n.key.GamesPlayed >= minGames {
		*out = append(*out, n.key)
	}
	if len(*out) < limit {
		collect(n.right, minGames, limit, out)
	}
}

type latestKey struct {
	scope    string
	playerID string
}

// MemoryStore keeps ratings in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	latest  map[latestKey]model.PlayerRating
	history map[latestKey]map[int64]model.HistoryPoint
	boards  map[string]*node

	failWrites error
	logger     logger.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		latest:  make(map[latestKey]model.PlayerRating),
		history: make(map[latestKey]map[int64]model.HistoryPoint),
		boards:  make(map[string]*node),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("memory-store")
	}
	return s
}

// Close releases nothing; present for parity with the SQL stores.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) checkWrite(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if s.failWrites != nil {
		metrics.RecordErrorByComponent("repository", "write_failed")
		return fmt.Errorf("%w: %w", ErrStore, s.failWrites)
	}
	return nil
}

// GetLatest implements Store.
func (s *MemoryStore) GetLatest(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[latestKey{scope: scope.String(), playerID: playerID}]
	if !ok {
		return model.PlayerRating{}, ErrNotFound
	}
	return r, nil
}

// UpsertLatest implements Store.
func (s *MemoryStore) UpsertLatest(ctx context.Context, r model.PlayerRating) error {
	defer observeUpdate(time.Now())
	if err := s.checkWrite(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.upsertLocked(r)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) upsertLocked(r model.PlayerRating) {
	r.LastPeriodEnd = r.LastPeriodEnd.UTC()
	scope := r.Scope.String()
	key := latestKey{scope: scope, playerID: r.PlayerID}
	root := s.boards[scope]
	if old, ok := s.latest[key]; ok {
		root = deleteNode(root, &old)
	}
	s.latest[key] = r
	s.boards[scope] = insert(root, r)
}

// AppendHistory implements Store.
func (s *MemoryStore) AppendHistory(ctx context.Context, h model.HistoryPoint) error {
	defer observeUpdate(time.Now())
	if err := s.checkWrite(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.appendLocked(h)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) appendLocked(h model.HistoryPoint) {
	h.PeriodEnd = h.PeriodEnd.UTC()
	key := latestKey{scope: h.Scope.String(), playerID: h.PlayerID}
	points, ok := s.history[key]
	if !ok {
		points = make(map[int64]model.HistoryPoint)
		s.history[key] = points
	}
	points[h.PeriodEnd.Unix()] = h
}

// GetHistory implements Store.
func (s *MemoryStore) GetHistory(ctx context.Context, playerID string, scope model.Scope, limit int) ([]model.HistoryPoint, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	points := s.history[latestKey{scope: scope.String(), playerID: playerID}]
	out := make([]model.HistoryPoint, 0, len(points))
	for _, h := range points {
		out = append(out, h)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PeriodEnd.After(out[j].PeriodEnd) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetLeaderboard implements Store with an in-order treap walk.
func (s *MemoryStore) GetLeaderboard(ctx context.Context, scope model.Scope, minGames, limit int) ([]model.PlayerRating, error) {
	defer observeQuery(time.Now())
	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PlayerRating, 0, min(limit, nsize(s.boards[scope.String()])))
	collect(s.boards[scope.String()], minGames, limit, &out)
	return out, nil
}

// ListLatest implements Store.
func (s *MemoryStore) ListLatest(ctx context.Context, scope model.Scope) ([]model.PlayerRating, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	root := s.boards[scope.String()]
	out := make([]model.PlayerRating, 0, nsize(root))
	collect(root, 0, nsize(root), &out)
	return out, nil
}

// CommitPeriod implements Store under a single write lock.
func (s *MemoryStore) CommitPeriod(ctx context.Context, c PeriodCommit) error {
	defer observeUpdate(time.Now())
	if err := s.checkWrite(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range c.History {
		s.appendLocked(h)
	}
	for _, r := range c.Latest {
		s.upsertLocked(r)
	}
	metrics.UpdateRatedPlayers(c.Scope.String(), nsize(s.boards[c.Scope.String()]))
	return nil
}

// ClearAll implements Store.
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	if err := s.checkWrite(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.latest = make(map[latestKey]model.PlayerRating)
	s.history = make(map[latestKey]map[int64]model.HistoryPoint)
	s.boards = make(map[string]*node)
	s.mu.Unlock()
	s.logger.Warn(ctx, "cleared all ratings")
	metrics.ResetRatedPlayers()
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, scope model.Scope) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nsize(s.boards[scope.String()]), nil
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}
