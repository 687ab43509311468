// Package seed generates synthetic contest histories with a known ground
// truth, for demos and end-to-end checks of the rating engine.
package seed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/skillrank/internal/adapters/contests"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
)

// Player is a generated player and the hidden strength that drives results.
type Player struct {
	ID       string
	Strength float64
}

// Dataset is the output of Generate.
type Dataset struct {
	Players  []Player
	Contests []model.Contest
}

// Stats summarises a seeding run.
type Stats struct {
	Contests     int
	Participants int
	StartTime    time.Time
	Duration     time.Duration
}

// Generate builds a reproducible contest history. Within a contest, players
// finish in order of strength plus noise.
func Generate(cfg Config) (Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return Dataset{}, err
	}

	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], cfg.Seed)
	src := rand.NewChaCha8(key)
	rnd := rand.New(src)

	players := make([]Player, cfg.Players)
	for i := range players {
		players[i] = Player{ID: fmt.Sprintf("player-%04d", i), Strength: rnd.NormFloat64()}
	}

	from := cfg.From.UTC()
	span := from.AddDate(0, cfg.Months, 0).Sub(from)

	out := make([]model.Contest, cfg.Contests)
	for i := range out {
		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return Dataset{}, fmt.Errorf("contest id: %w", err)
		}
		seats := cfg.MinSeats + rnd.IntN(cfg.MaxSeats-cfg.MinSeats+1)
		out[i] = model.Contest{
			ContestID:    id.String(),
			GameID:       cfg.Games[rnd.IntN(len(cfg.Games))],
			Start:        from.Add(time.Duration(rnd.Int64N(int64(span)))).Truncate(time.Second),
			Participants: placements(rnd, players, seats, cfg.Noise),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	return Dataset{Players: players, Contests: out}, nil
}

// placements seats distinct players and ranks them by noisy performance.
func placements(rnd *rand.Rand, players []Player, seats int, noise float64) []model.Participant {
	type perf struct {
		id    string
		score float64
	}
	seated := make([]perf, seats)
	for i, idx := range rnd.Perm(len(players))[:seats] {
		p := players[idx]
		seated[i] = perf{id: p.ID, score: p.Strength + noise*rnd.NormFloat64()}
	}
	sort.Slice(seated, func(i, j int) bool { return seated[i].score > seated[j].score })

	parts := make([]model.Participant, seats)
	for i, s := range seated {
		parts[i] = model.Participant{PlayerID: s.id, Placement: i + 1}
	}
	return parts
}

// Insert writes contests to sink in order.
func Insert(ctx context.Context, sink contests.Sink, cs []model.Contest) (Stats, error) {
	stats := Stats{StartTime: time.Now()}
	log := logger.Get().Named("seed")
	log.Info(ctx, "inserting contests", logger.Int("contests", len(cs)))

	for i := range cs {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("seeding cancelled after %d contests: %w", stats.Contests, err)
		}
		if err := sink.InsertContest(ctx, cs[i]); err != nil {
			return stats, fmt.Errorf("insert contest %s: %w", cs[i].ContestID, err)
		}
		stats.Contests++
		stats.Participants += len(cs[i].Participants)
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "inserted contests",
		logger.Int("contests", stats.Contests),
		logger.Int("participants", stats.Participants),
		logger.Duration("elapsed", stats.Duration),
	)
	return stats, nil
}
