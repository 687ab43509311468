// Package sqlite implements the rating store and contest source on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/skillrank/internal/adapters/contests"
	"github.com/okian/skillrank/internal/adapters/repository"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
	_ "modernc.org/sqlite"
)

// Contest start times are stored as fixed-width UTC RFC3339 text so that
// string order is time order.
const startLayout = "2006-01-02T15:04:05Z"

const (
	memoryPath = ":memory:"
	readConns  = 4
)

// Store wraps a SQLite database.
//
// db is the single writer connection. rdb is a read-only pool over the same
// file; under WAL its readers see the last committed state and never wait
// for a write transaction. An in-memory database is private to its
// connection, so there rdb is db.
type Store struct {
	db     *sql.DB
	rdb    *sql.DB
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

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data directory: %w", repository.ErrStore, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", repository.ErrStore, err)
	}
	db.SetMaxOpenConns(1) // single writer
	s := &Store{db: db, rdb: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sqlite-store")
	}
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA foreign_keys=ON`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s: %w", repository.ErrStore, pragma, err)
		}
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create tables: %w", repository.ErrStore, err)
	}
	if path != memoryPath {
		if err := s.openReader(ctx, path); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) openReader(ctx context.Context, path string) error {
	rdb, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return fmt.Errorf("%w: open read handle: %w", repository.ErrStore, err)
	}
	rdb.SetMaxOpenConns(readConns)
	if err := rdb.PingContext(ctx); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("%w: open read handle: %w", repository.ErrStore, err)
	}
	s.rdb = rdb
	return nil
}

// Close closes the database handles.
func (s *Store) Close() error {
	var errs []error
	if s.rdb != s.db {
		errs = append(errs, s.rdb.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rating_latest (
			player_id       TEXT NOT NULL,
			scope_type      TEXT NOT NULL,
			scope_id        TEXT NOT NULL DEFAULT '',
			rating          REAL NOT NULL,
			rd              REAL NOT NULL,
			volatility      REAL NOT NULL,
			games_played    INTEGER NOT NULL DEFAULT 0,
			wins            INTEGER NOT NULL DEFAULT 0,
			losses          INTEGER NOT NULL DEFAULT 0,
			last_period_end INTEGER NOT NULL,
			UNIQUE (player_id, scope_type, scope_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rating_latest_board
			ON rating_latest(scope_type, scope_id, rating DESC, games_played DESC, player_id)`,
		`CREATE TABLE IF NOT EXISTS rating_history (
			player_id     TEXT NOT NULL,
			scope_type    TEXT NOT NULL,
			scope_id      TEXT NOT NULL DEFAULT '',
			period_end    INTEGER NOT NULL,
			rating        REAL NOT NULL,
			rd            REAL NOT NULL,
			volatility    REAL NOT NULL,
			period_games  INTEGER NOT NULL DEFAULT 0,
			period_wins   INTEGER NOT NULL DEFAULT 0,
			period_losses INTEGER NOT NULL DEFAULT 0,
			UNIQUE (player_id, scope_type, scope_id, period_end)
		)`,
		`CREATE TABLE IF NOT EXISTS contests (
			id         TEXT PRIMARY KEY,
			game_id    TEXT NOT NULL,
			started_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contests_started_at ON contests(started_at)`,
		`CREATE TABLE IF NOT EXISTS contest_participants (
			contest_id TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
			player_id  TEXT NOT NULL,
			placement  INTEGER NOT NULL,
			PRIMARY KEY (contest_id, player_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func scopeCols(scope model.Scope) (string, string) {
	return string(scope.Kind), scope.GameID
}

func storeErr(op string, err error) error {
	metrics.RecordErrorByComponent("sqlite", op)
	return fmt.Errorf("%w: %s: %w", repository.ErrStore, op, err)
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertLatestSQL = `
	INSERT INTO rating_latest
		(player_id, scope_type, scope_id, rating, rd, volatility,
		 games_played, wins, losses, last_period_end)
	VALUES (?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(player_id, scope_type, scope_id) DO UPDATE SET
		rating          = excluded.rating,
		rd              = excluded.rd,
		volatility      = excluded.volatility,
		games_played    = excluded.games_played,
		wins            = excluded.wins,
		losses          = excluded.losses,
		last_period_end = excluded.last_period_end`

const upsertHistorySQL = `
	INSERT INTO rating_history
		(player_id, scope_type, scope_id, period_end, rating, rd, volatility,
		 period_games, period_wins, period_losses)
	VALUES (?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(player_id, scope_type, scope_id, period_end) DO UPDATE SET
		rating        = excluded.rating,
		rd            = excluded.rd,
		volatility    = excluded.volatility,
		period_games  = excluded.period_games,
		period_wins   = excluded.period_wins,
		period_losses = excluded.period_losses`

func upsertLatest(ctx context.Context, e execer, r *model.PlayerRating) error {
	kind, id := scopeCols(r.Scope)
	_, err := e.ExecContext(ctx, upsertLatestSQL,
		r.PlayerID, kind, id, r.Rating, r.Deviation, r.Volatility,
		r.GamesPlayed, r.Wins, r.Losses, r.LastPeriodEnd.Unix(),
	)
	return err
}

func upsertHistory(ctx context.Context, e execer, h *model.HistoryPoint) error {
	kind, id := scopeCols(h.Scope)
	_, err := e.ExecContext(ctx, upsertHistorySQL,
		h.PlayerID, kind, id, h.PeriodEnd.Unix(), h.Rating, h.Deviation, h.Volatility,
		h.PeriodGames, h.PeriodWins, h.PeriodLosses,
	)
	return err
}

// GetLatest implements repository.Store.
func (s *Store) GetLatest(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error) {
	defer observeQuery(time.Now())
	kind, id := scopeCols(scope)
	row := s.rdb.QueryRowContext(ctx, `
		SELECT player_id, rating, rd, volatility, games_played, wins, losses, last_period_end
		FROM rating_latest WHERE player_id = ? AND scope_type = ? AND scope_id = ?`,
		playerID, kind, id)
	r, err := scanLatest(row, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlayerRating{}, repository.ErrNotFound
	}
	if err != nil {
		return model.PlayerRating{}, storeErr("get_latest", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLatest(sc scanner, scope model.Scope) (model.PlayerRating, error) {
	r := model.PlayerRating{Scope: scope}
	var end int64
	if err := sc.Scan(&r.PlayerID, &r.Rating, &r.Deviation, &r.Volatility,
		&r.GamesPlayed, &r.Wins, &r.Losses, &end); err != nil {
		return model.PlayerRating{}, err
	}
	r.LastPeriodEnd = time.Unix(end, 0).UTC()
	return r, nil
}

// UpsertLatest implements repository.Store.
func (s *Store) UpsertLatest(ctx context.Context, r model.PlayerRating) error {
	defer observeUpdate(time.Now())
	if err := upsertLatest(ctx, s.db, &r); err != nil {
		return storeErr("upsert_latest", err)
	}
	return nil
}

// AppendHistory implements repository.Store.
func (s *Store) AppendHistory(ctx context.Context, h model.HistoryPoint) error {
	defer observeUpdate(time.Now())
	if err := upsertHistory(ctx, s.db, &h); err != nil {
		return storeErr("append_history", err)
	}
	return nil
}

// GetHistory implements repository.Store.
func (s *Store) GetHistory(ctx context.Context, playerID string, scope model.Scope, limit int) ([]model.HistoryPoint, error) {
	defer observeQuery(time.Now())
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means no limit
	}
	kind, id := scopeCols(scope)
	rows, err := s.rdb.QueryContext(ctx, `
		SELECT period_end, rating, rd, volatility, period_games, period_wins, period_losses
		FROM rating_history
		WHERE player_id = ? AND scope_type = ? AND scope_id = ?
		ORDER BY period_end DESC LIMIT ?`,
		playerID, kind, id, limit)
	if err != nil {
		return nil, storeErr("get_history", err)
	}
	defer rows.Close()

	var out []model.HistoryPoint
	for rows.Next() {
		h := model.HistoryPoint{PlayerID: playerID, Scope: scope}
		var end int64
		if err := rows.Scan(&end, &h.Rating, &h.Deviation, &h.Volatility,
			&h.PeriodGames, &h.PeriodWins, &h.PeriodLosses); err != nil {
			return nil, storeErr("get_history", err)
		}
		h.PeriodEnd = time.Unix(end, 0).UTC()
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
	return s.queryLatest(ctx, "get_leaderboard", `
		SELECT player_id, rating, rd, volatility, games_played, wins, losses, last_period_end
		FROM rating_latest
		WHERE scope_type = ? AND scope_id = ? AND games_played >= ?
		ORDER BY rating DESC, games_played DESC, player_id ASC
		LIMIT ?`, scope, kind, id, minGames, limit)
}

// ListLatest implements repository.Store.
func (s *Store) ListLatest(ctx context.Context, scope model.Scope) ([]model.PlayerRating, error) {
	defer observeQuery(time.Now())
	kind, id := scopeCols(scope)
	return s.queryLatest(ctx, "list_latest", `
		SELECT player_id, rating, rd, volatility, games_played, wins, losses, last_period_end
		FROM rating_latest WHERE scope_type = ? AND scope_id = ?`, scope, kind, id)
}

func (s *Store) queryLatest(ctx context.Context, op, query string, scope model.Scope, args ...any) ([]model.PlayerRating, error) {
	rows, err := s.rdb.QueryContext(ctx, query, args...)
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

// CommitPeriod implements repository.Store in one transaction.
func (s *Store) CommitPeriod(ctx context.Context, c repository.PeriodCommit) error {
	defer observeUpdate(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("commit_period", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range c.History {
		if err := upsertHistory(ctx, tx, &c.History[i]); err != nil {
			return storeErr("commit_period", err)
		}
	}
	for i := range c.Latest {
		if err := upsertLatest(ctx, tx, &c.Latest[i]); err != nil {
			return storeErr("commit_period", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit_period", err)
	}
	if n, err := s.Count(ctx, c.Scope); err == nil {
		metrics.UpdateRatedPlayers(c.Scope.String(), n)
	}
	return nil
}

// ClearAll implements repository.Store.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("clear_all", err)
	}
	defer tx.Rollback() //nolint:errcheck
	for _, stmt := range []string{`DELETE FROM rating_history`, `DELETE FROM rating_latest`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storeErr("clear_all", err)
		}
	}
	if err := tx.Commit(); err != nil {
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
	err := s.rdb.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rating_latest WHERE scope_type = ? AND scope_id = ?`, kind, id).Scan(&n)
	if err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}
