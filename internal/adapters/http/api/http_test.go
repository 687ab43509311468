package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/skillrank/internal/adapters/http/api"
	"github.com/okian/skillrank/internal/adapters/repository"
	"github.com/okian/skillrank/internal/app/leaderboard"
	"github.com/okian/skillrank/internal/app/scheduler"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// Mock implementations for testing
type mockDeps struct {
	status     scheduler.Status
	busy       bool
	triggered  []*model.Period
	historical int
	entries    []leaderboard.Entry
	lastScope  model.Scope
	lastMin    int
	lastLimit  int
	ratings    map[string]model.PlayerRating
	history    []model.HistoryPoint
	readErr    error
}

func (m *mockDeps) Status(ctx context.Context) (scheduler.Status, error) { return m.status, nil }

func (m *mockDeps) Trigger(ctx context.Context, p *model.Period) (scheduler.Accepted, error) {
	if m.busy {
		return scheduler.Accepted{}, scheduler.ErrAlreadyRunning
	}
	m.triggered = append(m.triggered, p)
	return scheduler.Accepted{Status: "accepted", JobID: "job-1"}, nil
}

func (m *mockDeps) TriggerHistorical(ctx context.Context) (scheduler.Accepted, error) {
	if m.busy {
		return scheduler.Accepted{}, scheduler.ErrAlreadyRunning
	}
	m.historical++
	return scheduler.Accepted{Status: "accepted", JobID: "job-h"}, nil
}

func (m *mockDeps) Leaderboard(ctx context.Context, scope model.Scope, minGames, limit int) ([]leaderboard.Entry, error) {
	m.lastScope, m.lastMin, m.lastLimit = scope, minGames, limit
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.entries, nil
}

func (m *mockDeps) Player(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error) {
	m.lastScope = scope
	r, ok := m.ratings[scope.String()+"/"+playerID]
	if !ok {
		return model.PlayerRating{}, fmt.Errorf("rating %s: %w", playerID, repository.ErrNotFound)
	}
	return r, nil
}

func (m *mockDeps) History(ctx context.Context, scope model.Scope, playerID string, limit int) ([]model.HistoryPoint, error) {
	m.lastScope, m.lastLimit = scope, limit
	return m.history, nil
}

type mockStats struct{}

func (mockStats) GetStats(ctx context.Context) map[string]any {
	return map[string]any{"started": true, "store": "memory"}
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body
}

func TestRatingsEndpoints(t *testing.T) {
	Convey("Given the ratings control endpoints", t, func() {
		last := time.Date(2024, 3, 1, 2, 0, 5, 0, time.UTC)
		deps := &mockDeps{status: scheduler.Status{
			LastRun:          &last,
			NextScheduledRun: time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC),
		}}
		mux := newMux(deps)

		Convey("GET /ratings/status returns the scheduler status", func() {
			w := do(mux, http.MethodGet, "/ratings/status")
			So(w.Code, ShouldEqual, http.StatusOK)
			var st map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
			So(st["is_running"], ShouldEqual, false)
			So(st["next_scheduled_run"], ShouldEqual, "2024-04-01T02:00:00Z")
			So(st["last_run"], ShouldEqual, "2024-03-01T02:00:05Z")
		})

		Convey("POST /ratings/recalculate with a period is accepted", func() {
			w := do(mux, http.MethodPost, "/ratings/recalculate?period=2024-02")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decodeError(w)["job_id"], ShouldEqual, "job-1")
			So(len(deps.triggered), ShouldEqual, 1)
			So(*deps.triggered[0], ShouldResemble, model.Period{Year: 2024, Month: time.February})
		})

		Convey("POST /ratings/recalculate without a period passes nil", func() {
			w := do(mux, http.MethodPost, "/ratings/recalculate")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.triggered, ShouldResemble, []*model.Period{nil})
		})

		Convey("A malformed period is a bad request", func() {
			for _, raw := range []string{"2024-13", "2024/02", "feb"} {
				w := do(mux, http.MethodPost, "/ratings/recalculate?period="+raw)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
			}
			So(deps.triggered, ShouldBeEmpty)
		})

		Convey("POST /ratings/recalculate/historical is accepted", func() {
			w := do(mux, http.MethodPost, "/ratings/recalculate/historical")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.historical, ShouldEqual, 1)
		})

		Convey("A busy scheduler answers 409", func() {
			deps.busy = true
			w := do(mux, http.MethodPost, "/ratings/recalculate?period=2024-02")
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decodeError(w)["code"], ShouldEqual, "already_running")

			w = do(mux, http.MethodPost, "/ratings/recalculate/historical")
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("Wrong methods are rejected", func() {
			w := do(mux, http.MethodGet, "/ratings/recalculate")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestLeaderboardEndpoint(t *testing.T) {
	Convey("Given the leaderboard endpoint", t, func() {
		deps := &mockDeps{entries: []leaderboard.Entry{
			{Rank: 1, PlayerRating: model.PlayerRating{PlayerID: "alice", Scope: model.Game("chess"), Rating: 1720}},
			{Rank: 2, PlayerRating: model.PlayerRating{PlayerID: "bob", Scope: model.Game("chess"), Rating: 1610}},
		}}
		mux := newMux(deps)

		Convey("Query parameters reach the service", func() {
			w := do(mux, http.MethodGet, "/leaderboard?scope=game:chess&min_games=3&limit=2")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastScope, ShouldResemble, model.Game("chess"))
			So(deps.lastMin, ShouldEqual, 3)
			So(deps.lastLimit, ShouldEqual, 2)

			var rows []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0]["rank"], ShouldEqual, 1.0)
			So(rows[0]["player_id"], ShouldEqual, "alice")
			So(rows[0]["scope"], ShouldEqual, "game:chess")
		})

		Convey("Defaults apply when parameters are absent", func() {
			w := do(mux, http.MethodGet, "/leaderboard")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastScope, ShouldResemble, model.Overall())
			So(deps.lastLimit, ShouldEqual, leaderboard.DefaultLimit)
		})

		Convey("Bad parameters are rejected", func() {
			for _, q := range []string{"limit=abc", "limit=-1", "min_games=x", "scope=venue:1"} {
				w := do(mux, http.MethodGet, "/leaderboard?"+q)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("Store failures surface as 500", func() {
			deps.readErr = fmt.Errorf("leaderboard: %w", repository.ErrStore)
			w := do(mux, http.MethodGet, "/leaderboard")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decodeError(w)["code"], ShouldEqual, "internal_error")
		})
	})
}

func TestPlayerEndpoints(t *testing.T) {
	Convey("Given the player endpoints", t, func() {
		end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		deps := &mockDeps{
			ratings: map[string]model.PlayerRating{
				"overall/alice": {PlayerID: "alice", Scope: model.Overall(), Rating: 1650, GamesPlayed: 4, LastPeriodEnd: end},
			},
			history: []model.HistoryPoint{{PlayerID: "alice", Scope: model.Overall(), PeriodEnd: end, Rating: 1650}},
		}
		mux := newMux(deps)

		Convey("A known player's rating is returned", func() {
			w := do(mux, http.MethodGet, "/players/alice/rating")
			So(w.Code, ShouldEqual, http.StatusOK)
			var r model.PlayerRating
			So(json.Unmarshal(w.Body.Bytes(), &r), ShouldBeNil)
			So(r.Rating, ShouldEqual, 1650.0)
			So(r.LastPeriodEnd.Equal(end), ShouldBeTrue)
		})

		Convey("An unknown player is 404", func() {
			w := do(mux, http.MethodGet, "/players/zed/rating?scope=game:go")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w)["code"], ShouldEqual, "not_found")
			So(deps.lastScope, ShouldResemble, model.Game("go"))
		})

		Convey("History honours the limit", func() {
			w := do(mux, http.MethodGet, "/players/alice/history?limit=5")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 5)
			So(w.Body.String(), ShouldContainSubstring, `"period_end":"2024-02-01T00:00:00Z"`)
		})

		Convey("Empty history is an empty array", func() {
			deps.history = nil
			w := do(mux, http.MethodGet, "/players/bob/history")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})
	})
}

func TestOpsEndpoints(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		mux := newMux(&mockDeps{})

		Convey("GET /stats returns the provider's stats", func() {
			w := do(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
			So(w.Body.String(), ShouldContainSubstring, `"store":"memory"`)
		})

		Convey("GET /healthz serves Prometheus metrics", func() {
			metrics.RecordPlayersRated(1)
			w := do(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "skillrank_ratings_players_rated_total")
		})

		Convey("Requests are counted by the middleware", func() {
			_ = do(mux, http.MethodGet, "/stats")
			w := do(mux, http.MethodGet, "/healthz")
			So(w.Body.String(), ShouldContainSubstring, `endpoint="stats"`)
		})
	})
}

func TestWriteDomainErrorMapping(t *testing.T) {
	Convey("Given sentinel errors from lower layers", t, func() {
		cases := []struct {
			err  error
			code int
		}{
			{scheduler.ErrAlreadyRunning, http.StatusConflict},
			{scheduler.ErrRejected, http.StatusServiceUnavailable},
			{repository.ErrNotFound, http.StatusNotFound},
			{model.ErrInvalidScope, http.StatusBadRequest},
			{leaderboard.ErrInvalidQuery, http.StatusBadRequest},
			{repository.ErrInvalidLimit, http.StatusBadRequest},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			deps := &mockDeps{readErr: tc.err}
			w := do(newMux(deps), http.MethodGet, "/leaderboard")
			So(w.Code, ShouldEqual, tc.code)
		}
	})
}
