package seed

import (
	"fmt"
	"time"
)

// Config holds configuration for synthetic contest generation.
type Config struct {
	Players  int       // Number of distinct players
	Contests int       // Number of contests to generate
	Games    []string  // Game ids contests are spread over
	MinSeats int       // Fewest participants per contest
	MaxSeats int       // Most participants per contest
	From     time.Time // Start of the first month contests fall in
	Months   int       // Number of months contests are spread over
	Noise    float64   // Per-contest performance noise relative to strength spread
	Seed     uint64    // Seed for reproducible output
}

// DefaultConfig returns a small, varied data set starting at from.
func DefaultConfig(from time.Time) Config {
	return Config{
		Players:  200,
		Contests: 1500,
		Games:    []string{"chess", "go", "shogi"},
		MinSeats: 2,
		MaxSeats: 6,
		From:     from,
		Months:   6,
		Noise:    0.5,
		Seed:     1,
	}
}

// Validate checks that the config can produce contests.
func (c Config) Validate() error {
	switch {
	case c.Players < 2:
		return fmt.Errorf("%w: need at least 2 players", ErrInvalidConfig)
	case c.Contests < 1:
		return fmt.Errorf("%w: need at least 1 contest", ErrInvalidConfig)
	case len(c.Games) == 0:
		return fmt.Errorf("%w: need at least 1 game", ErrInvalidConfig)
	case c.MinSeats < 2 || c.MaxSeats < c.MinSeats:
		return fmt.Errorf("%w: seats must satisfy 2 <= min <= max", ErrInvalidConfig)
	case c.MaxSeats > c.Players:
		return fmt.Errorf("%w: max seats %d exceeds %d players", ErrInvalidConfig, c.MaxSeats, c.Players)
	case c.Months < 1:
		return fmt.Errorf("%w: need at least 1 month", ErrInvalidConfig)
	case c.Noise < 0:
		return fmt.Errorf("%w: noise must not be negative", ErrInvalidConfig)
	case c.From.IsZero():
		return fmt.Errorf("%w: missing start time", ErrInvalidConfig)
	}
	return nil
}
