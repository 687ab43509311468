package seed

import (
	"errors"
	"fmt"
)

// ErrNoOverlap is returned when no ranked player has a known strength.
var ErrNoOverlap = errors.New("no ranked players with known strength")

// Concordance reports the fraction of player pairs in ranked (best first)
// whose order agrees with their hidden strengths. 1 is a perfect ranking
// and 0.5 is what a random order scores on average.
func Concordance(players []Player, ranked []string) (float64, error) {
	strength := make(map[string]float64, len(players))
	for _, p := range players {
		strength[p.ID] = p.Strength
	}

	var known []float64
	for _, id := range ranked {
		if s, ok := strength[id]; ok {
			known = append(known, s)
		}
	}
	if len(known) < 2 {
		return 0, fmt.Errorf("%w: %d of %d", ErrNoOverlap, len(known), len(ranked))
	}

	var agree, total int
	for i := 0; i < len(known); i++ {
		for j := i + 1; j < len(known); j++ {
			total++
			if known[i] >= known[j] {
				agree++
			}
		}
	}
	return float64(agree) / float64(total), nil
}
