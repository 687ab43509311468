// Package repository defines the rating store interface and an in-memory
// implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/skillrank/internal/domain/model"
)

// PeriodCommit is everything one recalculation writes for one scope and
// period. Stores apply it atomically.
type PeriodCommit struct {
	Scope     model.Scope
	PeriodEnd time.Time
	Latest    []model.PlayerRating
	History   []model.HistoryPoint
}

// Store persists latest ratings and rating history.
//
// Writes for a key are visible to subsequent reads of the same key.
// Every persistence failure is wrapped in ErrStore.
type Store interface {
	// GetLatest returns the latest rating or ErrNotFound.
	GetLatest(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error)
	// UpsertLatest replaces the row keyed by (player, scope).
	UpsertLatest(ctx context.Context, r model.PlayerRating) error
	// AppendHistory inserts or replaces the row keyed by (player, scope, period_end).
	AppendHistory(ctx context.Context, h model.HistoryPoint) error
	// GetHistory returns history sorted by period_end descending. limit <= 0 returns all rows.
	GetHistory(ctx context.Context, playerID string, scope model.Scope, limit int) ([]model.HistoryPoint, error)
	// GetLeaderboard returns latest rows with at least minGames games, ordered by
	// rating desc, games_played desc, player_id asc.
	GetLeaderboard(ctx context.Context, scope model.Scope, minGames, limit int) ([]model.PlayerRating, error)
	// ListLatest returns every latest row in scope, in no particular order.
	ListLatest(ctx context.Context, scope model.Scope) ([]model.PlayerRating, error)
	// CommitPeriod applies a whole period's writes as one commit.
	CommitPeriod(ctx context.Context, c PeriodCommit) error
	// ClearAll deletes every latest and history row.
	ClearAll(ctx context.Context) error
	// Count returns the number of latest rows in scope.
	Count(ctx context.Context, scope model.Scope) (int, error)
}

// Less reports whether a ranks ahead of b on a leaderboard. It is a total
// order: rating desc, then games played desc, then player id asc.
func Less(a, b *model.PlayerRating) bool {
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	if a.GamesPlayed != b.GamesPlayed {
		return a.GamesPlayed > b.GamesPlayed
	}
	return a.PlayerID < b.PlayerID
}
