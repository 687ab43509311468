// Package model contains domain models passed between layers.
package model

import "time"

// Glicko2 seed values for a player first observed in a scope.
const (
	DefaultRating     = 1500.0
	DefaultDeviation  = 350.0
	DefaultVolatility = 0.06
)

// PlayerRating is the latest rating snapshot for a (player, scope) pair.
type PlayerRating struct {
	PlayerID      string    `json:"player_id"`
	Scope         Scope     `json:"scope"`
	Rating        float64   `json:"rating"`
	Deviation     float64   `json:"rating_deviation"`
	Volatility    float64   `json:"volatility"`
	GamesPlayed   int       `json:"games_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	LastPeriodEnd time.Time `json:"last_period_end"`
}

// NewPlayerRating returns a rating seeded with the default Glicko2 values.
func NewPlayerRating(playerID string, scope Scope) PlayerRating {
	return PlayerRating{
		PlayerID:   playerID,
		Scope:      scope,
		Rating:     DefaultRating,
		Deviation:  DefaultDeviation,
		Volatility: DefaultVolatility,
	}
}

// HistoryPoint records a player's rating at the close of one period.
type HistoryPoint struct {
	PlayerID     string    `json:"player_id"`
	Scope        Scope     `json:"scope"`
	PeriodEnd    time.Time `json:"period_end"`
	Rating       float64   `json:"rating"`
	Deviation    float64   `json:"rating_deviation"`
	Volatility   float64   `json:"volatility"`
	PeriodGames  int       `json:"period_games"`
	PeriodWins   int       `json:"period_wins"`
	PeriodLosses int       `json:"period_losses"`
}

// Participant is one player's finishing position in a contest.
// Lower placement is better; equal placements tie.
type Participant struct {
	PlayerID  string
	Placement int
}

// Contest is a finished contest as reported by the contest collaborator.
type Contest struct {
	ContestID    string
	Start        time.Time
	GameID       string
	Participants []Participant
}
