package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func rating(id string, r float64, games int) model.PlayerRating {
	pr := model.NewPlayerRating(id, model.Overall())
	pr.Rating = r
	pr.GamesPlayed = games
	return pr
}

func monthEnd(m time.Month) time.Time {
	return time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

func TestMemoryStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if n, _ := store.Count(ctx, model.Overall()); n != 0 {
		t.Errorf("expected count 0, got %d", n)
	}

	if _, err := store.GetLatest(ctx, model.Overall(), "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	r := rating("p1", 1600, 4)
	r.LastPeriodEnd = monthEnd(time.January)
	if err := store.UpsertLatest(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetLatest(ctx, model.Overall(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != r {
		t.Errorf("expected %+v, got %+v", r, got)
	}

	// Same key in another scope is independent.
	if _, err := store.GetLatest(ctx, model.Game("chess"), "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other scope, got %v", err)
	}
}

func TestMemoryStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, r := range []float64{1500, 1650, 1420} {
		if err := store.UpsertLatest(ctx, rating("p1", r, 1)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n, _ := store.Count(ctx, model.Overall()); n != 1 {
		t.Fatalf("expected one row after repeated upserts, got %d", n)
	}
	board, err := store.GetLeaderboard(ctx, model.Overall(), 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(board) != 1 || board[0].Rating != 1420 {
		t.Errorf("expected single row with rating 1420, got %+v", board)
	}
}

func TestMemoryStore_LeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rows := []model.PlayerRating{
		rating("carol", 1700, 3),
		rating("bob", 1700, 5),
		rating("alice", 1700, 3),
		rating("dave", 1800, 1),
		rating("erin", 1400, 9),
	}
	for _, r := range rows {
		if err := store.UpsertLatest(ctx, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	board, err := store.GetLeaderboard(ctx, model.Overall(), 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"dave", "bob", "alice", "carol", "erin"}
	if len(board) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(board))
	}
	for i, id := range want {
		if board[i].PlayerID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, board[i].PlayerID)
		}
	}

	top, err := store.GetLeaderboard(ctx, model.Overall(), 0, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 2 || top[1].PlayerID != "bob" {
		t.Errorf("unexpected top 2: %+v", top)
	}

	filtered, err := store.GetLeaderboard(ctx, model.Overall(), 4, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filtered) != 2 || filtered[0].PlayerID != "bob" || filtered[1].PlayerID != "erin" {
		t.Errorf("unexpected min_games filter result: %+v", filtered)
	}

	if _, err := store.GetLeaderboard(ctx, model.Overall(), 0, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestMemoryStore_TiesOrderByteWise(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, id := range []string{"bob", "Zed", "alice", "Bob"} {
		if err := store.UpsertLatest(ctx, rating(id, 1500, 1)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	board, err := store.GetLeaderboard(ctx, model.Overall(), 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Bob", "Zed", "alice", "bob"}
	for i, id := range want {
		if board[i].PlayerID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, board[i].PlayerID)
		}
	}
}

func TestMemoryStore_LeaderboardAfterReorder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 50; i++ {
		_ = store.UpsertLatest(ctx, rating(fmt.Sprintf("p%02d", i), 1500+float64(i), 1))
	}
	// Move the worst player to the top.
	_ = store.UpsertLatest(ctx, rating("p00", 2000, 1))

	board, err := store.GetLeaderboard(ctx, model.Overall(), 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(board) != 50 {
		t.Fatalf("expected 50 rows, got %d", len(board))
	}
	if board[0].PlayerID != "p00" {
		t.Errorf("expected p00 first, got %s", board[0].PlayerID)
	}
	for i := 1; i < len(board); i++ {
		if Less(&board[i], &board[i-1]) {
			t.Fatalf("rows %d and %d out of order", i-1, i)
		}
	}
}

func TestMemoryStore_History(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, m := range []time.Month{time.February, time.January, time.March} {
		h := model.HistoryPoint{PlayerID: "p1", Scope: model.Overall(), PeriodEnd: monthEnd(m), Rating: float64(1500 + int(m))}
		if err := store.AppendHistory(ctx, h); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Re-run of February replaces, never duplicates.
	replaced := model.HistoryPoint{PlayerID: "p1", Scope: model.Overall(), PeriodEnd: monthEnd(time.February), Rating: 1234}
	if err := store.AppendHistory(ctx, replaced); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := store.GetHistory(ctx, "p1", model.Overall(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 points, got %d", len(all))
	}
	if !all[0].PeriodEnd.Equal(monthEnd(time.March)) || !all[2].PeriodEnd.Equal(monthEnd(time.January)) {
		t.Errorf("history not sorted descending: %+v", all)
	}
	if all[1].Rating != 1234 {
		t.Errorf("expected replaced February point, got %v", all[1].Rating)
	}

	limited, _ := store.GetHistory(ctx, "p1", model.Overall(), 2)
	if len(limited) != 2 || !limited[0].PeriodEnd.Equal(monthEnd(time.March)) {
		t.Errorf("unexpected limited history: %+v", limited)
	}
}

func TestMemoryStore_CommitAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	end := monthEnd(time.January)

	commit := PeriodCommit{
		Scope:     model.Game("chess"),
		PeriodEnd: end,
		Latest: []model.PlayerRating{
			{PlayerID: "a", Scope: model.Game("chess"), Rating: 1550, LastPeriodEnd: end},
			{PlayerID: "b", Scope: model.Game("chess"), Rating: 1450, LastPeriodEnd: end},
		},
		History: []model.HistoryPoint{
			{PlayerID: "a", Scope: model.Game("chess"), PeriodEnd: end, Rating: 1550},
			{PlayerID: "b", Scope: model.Game("chess"), PeriodEnd: end, Rating: 1450},
		},
	}
	if err := store.CommitPeriod(ctx, commit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ := store.ListLatest(ctx, model.Game("chess"))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows, _ := store.ListLatest(ctx, model.Overall()); len(rows) != 0 {
		t.Errorf("expected overall scope untouched, got %d rows", len(rows))
	}

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := store.Count(ctx, model.Game("chess")); n != 0 {
		t.Errorf("expected empty store after ClearAll, got %d", n)
	}
	if h, _ := store.GetHistory(ctx, "a", model.Game("chess"), 0); len(h) != 0 {
		t.Errorf("expected no history after ClearAll, got %d", len(h))
	}
}

func TestMemoryStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	store := NewMemoryStore(WithFailure(boom))

	err := store.CommitPeriod(ctx, PeriodCommit{Scope: model.Overall()})
	if !errors.Is(err, ErrStore) || !errors.Is(err, boom) {
		t.Errorf("expected ErrStore wrapping cause, got %v", err)
	}
	if err := store.UpsertLatest(ctx, rating("p", 1500, 0)); !errors.Is(err, ErrStore) {
		t.Errorf("expected ErrStore, got %v", err)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("w%d-p%d", w, i%10)
				_ = store.UpsertLatest(ctx, rating(id, float64(1400+i), i))
				if _, err := store.GetLeaderboard(ctx, model.Overall(), 0, 5); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	if n, _ := store.Count(ctx, model.Overall()); n != 80 {
		t.Errorf("expected 80 players, got %d", n)
	}
}
