// Package postgres implements the rating store and contest source on
// PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/skillrank/internal/adapters/contests"
	"github.com/okian/skillrank/internal/adapters/repository"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
)

//go:embed schema.sql
var schema embed.FS

// Store is a pgx pool holding ratings and contests.
type Store struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var (
	_ repository.Store = (*Store)(nil)
	_ contests.Source  = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to dsn. Call Migrate before first use.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", repository.ErrStore, err)
	}
	s := &Store{pool: p}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("postgres-store")
	}
	return s, nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
		return storeErr("migrate", err)
	}
	return nil
}

func scopeCols(scope model.Scope) (string, string) {
	return string(scope.Kind), scope.GameID
}

func storeErr(op string, err error) error {
	metrics.RecordErrorByComponent("postgres", op)
	return fmt.Errorf("%w: %s: %w", repository.ErrStore, op, err)
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

const upsertLatestSQL = `
	INSERT INTO rating_latest
		(player_id, scope_type, scope_id, rating, rd, volatility,
		 games_played, wins, losses, last_period_end)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (player_id, scope_type, scope_id) DO UPDATE SET
		rating          = EXCLUDED.rating,
		rd              = EXCLUDED.rd,
		volatility      = EXCLUDED.volatility,
		games_played    = EXCLUDED.games_played,
		wins            = EXCLUDED.wins,
		losses          = EXCLUDED.losses,
		last_period_end = EXCLUDED.last_period_end`

const upsertHistorySQL = `
	INSERT INTO rating_history
		(player_id, scope_type, scope_id, period_end, rating, rd, volatility,
		 period_games, period_wins, period_losses)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (player_id, scope_type, scope_id, period_end) DO UPDATE SET
		rating        = EXCLUDED.rating,
		rd            = EXCLUDED.rd,
		volatility    = EXCLUDED.volatility,
		period_games  = EXCLUDED.period_games,
		period_wins   = EXCLUDED.period_wins,
		period_losses = EXCLUDED.period_losses`

func latestArgs(r *model.PlayerRating) []any {
	kind, id := scopeCols(r.Scope)
	return []any{r.PlayerID, kind, id, r.Rating, r.Deviation, r.Volatility,
		r.GamesPlayed, r.Wins, r.Losses, r.LastPeriodEnd.UTC()}
}

func historyArgs(h *model.HistoryPoint) []any {
	kind, id := scopeCols(h.Scope)
	return []any{h.PlayerID, kind, id, h.PeriodEnd.UTC(), h.Rating, h.Deviation, h.Volatility,
		h.PeriodGames, h.PeriodWins, h.PeriodLosses}
}

const selectLatest = `
	SELECT player_id, rating, rd, volatility, games_played, wins, losses, last_period_end
	FROM rating_latest`

func scanLatest(row pgx.Row, scope model.Scope) (model.PlayerRating, error) {
	r := model.PlayerRating{Scope: scope}
	if err := row.Scan(&r.PlayerID, &r.Rating, &r.Deviation, &r.Volatility,
		&r.GamesPlayed, &r.Wins, &r.Losses, &r.LastPeriodEnd); err != nil {
		return model.PlayerRating{}, err
	}
	r.LastPeriodEnd = r.LastPeriodEnd.UTC()
	return r, nil
}

// GetLatest implements repository.Store.
func (s *Store) GetLatest(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error) {
	defer observeQuery(time.Now())
	kind, id := scopeCols(scope)
	row := s.pool.QueryRow(ctx, selectLatest+` WHERE player_id = $1 AND scope_type = $2 AND scope_id = $3`,
		playerID, kind, id)
	r, err := scanLatest(row, scope)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PlayerRating{}, repository.ErrNotFound
	}
	if err != nil {
		return model.PlayerRating{}, storeErr("get_latest", err)
	}
	return r, nil
}

// UpsertLatest implements repository.Store.
func (s *Store) UpsertLatest(ctx context.Context, r model.PlayerRating) error {
	defer observeUpdate(time.Now())
	if _, err := s.pool.Exec(ctx, upsertLatestSQL, latestArgs(&r)...); err != nil {
		return storeErr("upsert_latest", err)
	}
	return nil
}

// AppendHistory implements repository.Store.
func (s *Store) AppendHistory(ctx context.Context, h model.HistoryPoint) error {
	defer observeUpdate(time.Now())
	if _, err := s.pool.Exec(ctx, upsertHistorySQL, historyArgs(&h)...); err != nil {
		return storeErr("append_history", err)
	}
	return nil
}

// GetHistory implements repository.Store.
func (s *Store) GetHistory(ctx context.Context, playerID string, scope model.Scope, limit int) ([]model.HistoryPoint, error) {
	defer observeQuery(time.Now())
	kind, id := scopeCols(scope)
	var lim any // NULL means no limit
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT period_end, rating, rd, volatility, period_games, period_wins, period_losses
		FROM rating_history
		WHERE player_id = $1 AND scope_type = $2 AND scope_id = $3
		ORDER BY period_end DESC LIMIT $4`, playerID, kind, id, lim)
	if err != nil {
		return nil, storeErr("get_history", err)
	}
	defer rows.Close()

	var out []model.HistoryPoint
	for rows.Next() {
		h := model.HistoryPoint{PlayerID: playerID, Scope: scope}
		if err := rows.Scan(&h.PeriodEnd, &h.Rating, &h.Deviation, &h.Volatility,
			&h.PeriodGames, &h.PeriodWins, &h.PeriodLosses); err != nil {
			return nil, storeErr("get_history", err)
		}
		h.PeriodEnd = h.PeriodEnd.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get_history", err)
	}
	return out, nil
}

// GetLeaderboard implements repository.Store.
func (s *Store) GetLeaderboard(ctx context.Context, scope model.Scope, minGames, limit int) ([]model.PlayerRating, error) {
	defer observeQuery(time.Now())
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	kind, id := scopeCols(scope)
	return s.queryLatest(ctx, "get_leaderboard", selectLatest+`
		WHERE scope_type = $1 AND scope_id = $2 AND games_played >= $3
		ORDER BY rating DESC, games_played DESC, player_id COLLATE "C" ASC
		LIMIT $4`, scope, kind, id, minGames, limit)
}

// ListLatest implements repository.Store.
func (s *Store) ListLatest(ctx context.Context, scope model.Scope) ([]model.PlayerRating, error) {
	defer observeQuery(time.Now())
	kind, id := scopeCols(scope)
	return s.queryLatest(ctx, "list_latest", selectLatest+` WHERE scope_type = $1 AND scope_id = $2`, scope, kind, id)
}

func (s *Store) queryLatest(ctx context.Context, op, query string, scope model.Scope, args ...any) ([]model.PlayerRating, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var out []model.PlayerRating
	for rows.Next() {
		r, err := scanLatest(rows, scope)
		if err != nil {
			return nil, storeErr(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

// CommitPeriod implements repository.Store as one batched transaction.
func (s *Store) CommitPeriod(ctx context.Context, c repository.PeriodCommit) error {
	defer observeUpdate(time.Now())
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("commit_period", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // safe if already committed

	b := &pgx.Batch{}
	for i := range c.History {
		b.Queue(upsertHistorySQL, historyArgs(&c.History[i])...)
	}
	for i := range c.Latest {
		b.Queue(upsertLatestSQL, latestArgs(&c.Latest[i])...)
	}
	if b.Len() > 0 {
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return storeErr("commit_period", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit_period", err)
	}
	if n, err := s.Count(ctx, c.Scope); err == nil {
		metrics.UpdateRatedPlayers(c.Scope.String(), n)
	}
	return nil
}

// ClearAll implements repository.Store.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE rating_history, rating_latest`); err != nil {
		return storeErr("clear_all", err)
	}
	s.logger.Warn(ctx, "cleared all ratings")
	metrics.ResetRatedPlayers()
	return nil
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context, scope model.Scope) (int, error) {
	kind, id := scopeCols(scope)
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rating_latest WHERE scope_type = $1 AND scope_id = $2`, kind, id).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}
