package glicko

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithTau sets the system constant constraining volatility change.
func WithTau(tau float64) Option {
	return func(c *Calculator) {
		c.tau = tau
	}
}

// WithEpsilon sets the convergence tolerance of the volatility solver.
func WithEpsilon(epsilon float64) Option {
	return func(c *Calculator) {
		c.epsilon = epsilon
	}
}

// WithMaxIterations caps the iterations of the volatility solver.
func WithMaxIterations(n int) Option {
	return func(c *Calculator) {
		c.maxIterations = n
	}
}
