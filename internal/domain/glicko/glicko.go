// Package glicko implements the Glicko-2 rating period update.
//
// Variable names follow Glickman's paper (https://www.glicko.net/glicko/glicko2.pdf):
// mu and phi are rating and deviation on the internal scale, sigma is
// volatility, v the estimated variance and delta the estimated improvement.
package glicko

import (
	"fmt"
	"math"
)

// Default system constants.
const (
	DefaultTau           = 0.5
	DefaultEpsilon       = 1e-6
	DefaultMaxIterations = 100

	// MinDeviation and MaxDeviation bound every computed rating deviation.
	MinDeviation = 30.0
	MaxDeviation = 350.0

	scale      = 173.7178
	baseRating = 1500.0
)

// Rating is a player's strength estimate on the public 1500 scale.
type Rating struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// Result is one game against an opponent whose rating is taken from the
// start of the period. Score is 1 for a win, 0.5 for a tie, 0 for a loss.
type Result struct {
	OpponentRating    float64
	OpponentDeviation float64
	Score             float64
}

// Calculator applies Glicko-2 updates. It holds only immutable constants
// and is safe for concurrent use.
type Calculator struct {
	tau           float64
	epsilon       float64
	maxIterations int
}

// New builds a Calculator and validates its constants.
func New(opts ...Option) (*Calculator, error) {
	c := &Calculator{
		tau:           DefaultTau,
		epsilon:       DefaultEpsilon,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Calculator) validate() error {
	switch {
	case !(c.tau > 0) || math.IsInf(c.tau, 0):
		return fmt.Errorf("%w: tau must be positive, got %v", ErrConfig, c.tau)
	case !(c.epsilon > 0) || math.IsInf(c.epsilon, 0):
		return fmt.Errorf("%w: epsilon must be positive, got %v", ErrConfig, c.epsilon)
	case c.maxIterations < 1:
		return fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrConfig, c.maxIterations)
	}
	return nil
}

// Tau returns the configured volatility constraint.
func (c *Calculator) Tau() float64 { return c.tau }

// Update returns the rating after one period with the given results.
// With no results only the deviation grows, by the volatility.
func (c *Calculator) Update(prior Rating, results []Result) (Rating, error) {
	mu := toMu(prior.Rating)
	phi := toPhi(prior.Deviation)
	sigma := prior.Volatility

	if len(results) == 0 {
		phiStar := math.Sqrt(phi*phi + sigma*sigma)
		return Rating{
			Rating:     prior.Rating,
			Deviation:  clampDeviation(phiStar * scale),
			Volatility: sigma,
		}, nil
	}

	var sumVariance, sumImprovement float64
	for _, r := range results {
		muJ := toMu(r.OpponentRating)
		gJ := g(toPhi(r.OpponentDeviation))
		eJ := expected(mu, muJ, gJ)
		sumVariance += gJ * gJ * eJ * (1 - eJ)
		sumImprovement += gJ * (r.Score - eJ)
	}
	if !(sumVariance > 0) || !finite(sumImprovement) {
		return Rating{}, fmt.Errorf("%w: degenerate variance %v", ErrNumericDivergence, sumVariance)
	}
	v := 1 / sumVariance
	delta := v * sumImprovement

	sigmaPrime, err := c.volatility(sigma, delta, phi, v)
	if err != nil {
		return Rating{}, err
	}

	phiStar := math.Sqrt(phi*phi + sigmaPrime*sigmaPrime)
	phiPrime := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muPrime := mu + phiPrime*phiPrime*sumImprovement

	out := Rating{
		Rating:     muPrime*scale + baseRating,
		Deviation:  clampDeviation(phiPrime * scale),
		Volatility: sigmaPrime,
	}
	if !finite(out.Rating) || !finite(out.Deviation) {
		return Rating{}, fmt.Errorf("%w: non-finite rating", ErrNumericDivergence)
	}
	return out, nil
}

// volatility solves step 5 of the paper with the Illinois algorithm.
func (c *Calculator) volatility(sigma, delta, phi, v float64) (float64, error) {
	a := math.Log(sigma * sigma)
	tau2 := c.tau * c.tau
	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi*phi + v + ex
		return ex*(delta*delta-phi*phi-v-ex)/(2*d*d) - (x-a)/tau2
	}

	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1
		for ; f(a-float64(k)*c.tau) < 0; k++ {
			if k >= c.maxIterations {
				return 0, fmt.Errorf("%w: no bracket after %d steps", ErrNumericDivergence, k)
			}
		}
		B = a - float64(k)*c.tau
	}

	fA, fB := f(A), f(B)
	for i := 0; math.Abs(B-A) > c.epsilon; i++ {
		if i >= c.maxIterations {
			return 0, fmt.Errorf("%w: no convergence after %d iterations", ErrNumericDivergence, i)
		}
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if !finite(C) || !finite(fC) {
			return 0, fmt.Errorf("%w: non-finite iterate", ErrNumericDivergence)
		}
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}

	out := math.Exp(A / 2)
	if !finite(out) {
		return 0, fmt.Errorf("%w: non-finite volatility", ErrNumericDivergence)
	}
	return out, nil
}

// Score converts two placements to the first player's pairwise score.
func Score(placementA, placementB int) float64 {
	switch {
	case placementA < placementB:
		return 1
	case placementA > placementB:
		return 0
	default:
		return 0.5
	}
}

func toMu(rating float64) float64   { return (rating - baseRating) / scale }
func toPhi(deviation float64) float64 { return deviation / scale }

func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func expected(mu, muJ, gJ float64) float64 {
	return 1 / (1 + math.Exp(-gJ*(mu-muJ)))
}

func clampDeviation(rd float64) float64 {
	return math.Max(MinDeviation, math.Min(MaxDeviation, rd))
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
