package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/okian/skillrank/internal/domain/model"
)

// InsertContest stores a finished contest and its placements. Re-inserting
// a contest id is a no-op.
func (s *Store) InsertContest(ctx context.Context, c model.Contest) error {
	defer observeUpdate(time.Now())
	if c.ContestID == "" {
		return storeErr("insert_contest", errors.New("empty contest id"))
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("insert_contest", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // safe if already committed

	tag, err := tx.Exec(ctx,
		`INSERT INTO contests (id, game_id, started_at) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`,
		c.ContestID, c.GameID, c.Start.UTC())
	if err != nil {
		return storeErr("insert_contest", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, p := range c.Participants {
		b.Queue(`INSERT INTO contest_participants (contest_id, player_id, placement)
			VALUES ($1,$2,$3) ON CONFLICT (contest_id, player_id) DO NOTHING`,
			c.ContestID, p.PlayerID, p.Placement)
	}
	if b.Len() > 0 {
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return storeErr("insert_contest", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("insert_contest", err)
	}
	return nil
}

// ContestsBetween implements contests.Source.
func (s *Store) ContestsBetween(ctx context.Context, from, to time.Time) ([]model.Contest, error) {
	defer observeQuery(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.game_id, c.started_at, p.player_id, p.placement
		FROM contests c
		LEFT JOIN contest_participants p ON p.contest_id = c.id
		WHERE c.started_at >= $1 AND c.started_at < $2
		ORDER BY c.started_at, c.id COLLATE "C", p.placement, p.player_id COLLATE "C"`, from.UTC(), to.UTC())
	if err != nil {
		return nil, storeErr("contests_between", err)
	}
	defer rows.Close()

	var out []model.Contest
	for rows.Next() {
		var (
			id, game  string
			start     time.Time
			player    *string
			placement *int
		)
		if err := rows.Scan(&id, &game, &start, &player, &placement); err != nil {
			return nil, storeErr("contests_between", err)
		}
		if len(out) == 0 || out[len(out)-1].ContestID != id {
			out = append(out, model.Contest{ContestID: id, GameID: game, Start: start.UTC()})
		}
		if player != nil && placement != nil {
			cur := &out[len(out)-1]
			cur.Participants = append(cur.Participants, model.Participant{PlayerID: *player, Placement: *placement})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("contests_between", err)
	}
	return out, nil
}

// GameIDs implements contests.Source.
func (s *Store) GameIDs(ctx context.Context) ([]string, error) {
	defer observeQuery(time.Now())
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT game_id FROM contests WHERE game_id <> '' ORDER BY game_id COLLATE "C"`)
	if err != nil {
		return nil, storeErr("game_ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeErr("game_ids", err)
	}
	return ids, nil
}

// EarliestStart implements contests.Source as UTC RFC3339 text.
func (s *Store) EarliestStart(ctx context.Context) (string, error) {
	defer observeQuery(time.Now())
	var raw *string
	err := s.pool.QueryRow(ctx,
		`SELECT to_char(MIN(started_at) AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"') FROM contests`).Scan(&raw)
	if err != nil {
		return "", storeErr("earliest_start", err)
	}
	if raw == nil {
		return "", nil
	}
	return *raw, nil
}
