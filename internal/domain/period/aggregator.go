// Package period buckets contests into monthly rating periods and turns
// multiplayer placements into pairwise Glicko-2 results.
package period

import (
	"sort"
	"time"

	"github.com/okian/skillrank/internal/domain/glicko"
	"github.com/okian/skillrank/internal/domain/model"
)

// Activity is what one player did in one scope during one period.
type Activity struct {
	PlayerID string
	Results  []glicko.Result
	Games    int
	Wins     int
	Losses   int
}

// Priors resolves a player's rating as of the start of the period.
// ok is false for players never rated in the scope.
type Priors func(playerID string) (r glicko.Rating, ok bool)

// InScope reports whether a contest contributes to scope during p.
func InScope(scope model.Scope, p model.Period, c *model.Contest) bool {
	if !p.Contains(c.Start.UTC()) {
		return false
	}
	if scope.IsOverall() {
		return true
	}
	return c.GameID == scope.GameID
}

// Aggregate builds per-player activity for scope during p. Every unordered
// pair of participants in a contest is one game; the lower placement wins
// and equal placements tie. Opponent strength always comes from priors.
// The result is keyed by player id and includes players whose contests had
// no opponents (observed but with no results).
func Aggregate(scope model.Scope, p model.Period, contests []model.Contest, priors Priors) map[string]*Activity {
	out := make(map[string]*Activity)
	seenContest := make(map[string]struct{}, len(contests))

	// Opponent lookups are cached so every pairing uses the same snapshot.
	snapshot := make(map[string]glicko.Rating)
	opponent := func(id string) glicko.Rating {
		if r, ok := snapshot[id]; ok {
			return r
		}
		r, ok := priors(id)
		if !ok {
			r = glicko.Rating{Rating: model.DefaultRating, Deviation: model.DefaultDeviation, Volatility: model.DefaultVolatility}
		}
		snapshot[id] = r
		return r
	}
	activity := func(id string) *Activity {
		a, ok := out[id]
		if !ok {
			a = &Activity{PlayerID: id}
			out[id] = a
		}
		return a
	}

	for i := range contests {
		c := &contests[i]
		if !InScope(scope, p, c) {
			continue
		}
		if c.ContestID != "" {
			if _, dup := seenContest[c.ContestID]; dup {
				continue
			}
			seenContest[c.ContestID] = struct{}{}
		}

		players := uniqueParticipants(c.Participants)
		for _, pl := range players {
			activity(pl.PlayerID)
		}
		for x := 0; x < len(players); x++ {
			for y := x + 1; y < len(players); y++ {
				a, b := players[x], players[y]
				scoreA := glicko.Score(a.Placement, b.Placement)
				record(activity(a.PlayerID), opponent(b.PlayerID), scoreA)
				record(activity(b.PlayerID), opponent(a.PlayerID), 1-scoreA)
			}
		}
	}
	return out
}

func record(a *Activity, opp glicko.Rating, score float64) {
	a.Results = append(a.Results, glicko.Result{
		OpponentRating:    opp.Rating,
		OpponentDeviation: opp.Deviation,
		Score:             score,
	})
	a.Games++
	switch score {
	case 1:
		a.Wins++
	case 0:
		a.Losses++
	}
}

// uniqueParticipants drops blank ids and repeated players, keeping the
// first occurrence.
func uniqueParticipants(in []model.Participant) []model.Participant {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Participant, 0, len(in))
	for _, p := range in {
		if p.PlayerID == "" {
			continue
		}
		if _, ok := seen[p.PlayerID]; ok {
			continue
		}
		seen[p.PlayerID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// GameIDs returns the distinct, sorted game ids among contests.
func GameIDs(contests []model.Contest) []string {
	set := make(map[string]struct{})
	for i := range contests {
		if contests[i].GameID != "" {
			set[contests[i].GameID] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Months lists every calendar month from the one containing from to the
// one containing to, inclusive, in chronological order.
func Months(from, to time.Time) []model.Period {
	first, last := model.PeriodOf(from), model.PeriodOf(to)
	var out []model.Period
	for p := first; !last.Before(p); p = p.Next() {
		out = append(out, p)
	}
	return out
}
