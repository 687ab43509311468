package glicko

import "errors"

// Sentinel kinds for rating calculation errors.
var (
	// ErrConfig reports invalid system constants (tau, epsilon, iteration cap).
	ErrConfig = errors.New("invalid glicko2 configuration")
	// ErrNumericDivergence reports that the volatility solver did not converge.
	ErrNumericDivergence = errors.New("glicko2 volatility solver diverged")
)
