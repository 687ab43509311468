package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/okian/skillrank/internal/domain/model"
)

// InsertContest stores a finished contest and its placements. Re-inserting
// a contest id is a no-op.
func (s *Store) InsertContest(ctx context.Context, c model.Contest) error {
	defer observeUpdate(time.Now())
	if c.ContestID == "" {
		return storeErr("insert_contest", errors.New("empty contest id"))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("insert_contest", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO contests (id, game_id, started_at) VALUES (?,?,?) ON CONFLICT(id) DO NOTHING`,
		c.ContestID, c.GameID, c.Start.UTC().Format(startLayout))
	if err != nil {
		return storeErr("insert_contest", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	for _, p := range c.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contest_participants (contest_id, player_id, placement)
			VALUES (?,?,?) ON CONFLICT(contest_id, player_id) DO NOTHING`,
			c.ContestID, p.PlayerID, p.Placement); err != nil {
			return storeErr("insert_contest", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("insert_contest", err)
	}
	return nil
}

// ContestsBetween implements contests.Source.
func (s *Store) ContestsBetween(ctx context.Context, from, to time.Time) ([]model.Contest, error) {
	defer observeQuery(time.Now())
	rows, err := s.rdb.QueryContext(ctx, `
		SELECT c.id, c.game_id, c.started_at, p.player_id, p.placement
		FROM contests c
		LEFT JOIN contest_participants p ON p.contest_id = c.id
		WHERE c.started_at >= ? AND c.started_at < ?
		ORDER BY c.started_at, c.id, p.placement, p.player_id`,
		from.UTC().Format(startLayout), to.UTC().Format(startLayout))
	if err != nil {
		return nil, storeErr("contests_between", err)
	}
	defer rows.Close()

	var out []model.Contest
	for rows.Next() {
		var (
			id, game, started string
			player            sql.NullString
			placement         sql.NullInt64
		)
		if err := rows.Scan(&id, &game, &started, &player, &placement); err != nil {
			return nil, storeErr("contests_between", err)
		}
		if len(out) == 0 || out[len(out)-1].ContestID != id {
			start, err := time.Parse(time.RFC3339, started)
			if err != nil {
				return nil, storeErr("contests_between", err)
			}
			out = append(out, model.Contest{ContestID: id, GameID: game, Start: start.UTC()})
		}
		if player.Valid {
			cur := &out[len(out)-1]
			cur.Participants = append(cur.Participants, model.Participant{
				PlayerID:  player.String,
				Placement: int(placement.Int64),
			})
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
	rows, err := s.rdb.QueryContext(ctx,
		`SELECT DISTINCT game_id FROM contests WHERE game_id <> '' ORDER BY game_id`)
	if err != nil {
		return nil, storeErr("game_ids", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("game_ids", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("game_ids", err)
	}
	return out, nil
}

// EarliestStart implements contests.Source. The value is returned exactly
// as stored.
func (s *Store) EarliestStart(ctx context.Context) (string, error) {
	defer observeQuery(time.Now())
	var raw sql.NullString
	if err := s.rdb.QueryRowContext(ctx, `SELECT MIN(started_at) FROM contests`).Scan(&raw); err != nil {
		return "", storeErr("earliest_start", err)
	}
	return raw.String, nil
}
