package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/okian/skillrank/internal/domain/model"
)

const benchPlayers = 100_000

// populate fills an overall board with benchPlayers spread around 1500.
func populate(b *testing.B) *MemoryStore {
	b.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	rnd := rand.New(rand.NewPCG(1, 2))
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	latest := make([]model.PlayerRating, benchPlayers)
	for i := range latest {
		r := rating(fmt.Sprintf("p%06d", i), 1500+rnd.NormFloat64()*200, rnd.IntN(200))
		r.LastPeriodEnd = end
		latest[i] = r
	}
	if err := store.CommitPeriod(ctx, PeriodCommit{Scope: model.Overall(), PeriodEnd: end, Latest: latest}); err != nil {
		b.Fatalf("populate: %v", err)
	}
	return store
}

func BenchmarkMemoryStore_UpsertLatest(b *testing.B) {
	ctx := context.Background()
	store := populate(b)
	rnd := rand.New(rand.NewPCG(3, 4))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := rating(fmt.Sprintf("p%06d", rnd.IntN(benchPlayers)), 1500+rnd.NormFloat64()*200, i)
		if err := store.UpsertLatest(ctx, r); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMemoryStore_Leaderboard(b *testing.B) {
	ctx := context.Background()
	store := populate(b)
	for _, tc := range []struct {
		limit, minGames int
	}{{10, 0}, {100, 0}, {1000, 0}, {100, 150}} {
		b.Run(fmt.Sprintf("limit=%d/min_games=%d", tc.limit, tc.minGames), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := store.GetLeaderboard(ctx, model.Overall(), tc.minGames, tc.limit); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMemoryStore_MixedParallel(b *testing.B) {
	ctx := context.Background()
	store := populate(b)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		for pb.Next() {
			// one write per ten operations
			if rnd.IntN(10) == 0 {
				_ = store.UpsertLatest(ctx, rating(fmt.Sprintf("p%06d", rnd.IntN(benchPlayers)), 1500+rnd.NormFloat64()*200, 1))
				continue
			}
			if _, err := store.GetLeaderboard(ctx, model.Overall(), 0, 100); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
