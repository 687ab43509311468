package dedupe

// Option applies a configuration option to New.
type Option func(*settings)

// WithMaxSize sets the maximum number of ids kept. If maxSize <= 0 the
// set never evicts.
func WithMaxSize(maxSize int) Option {
	return func(s *settings) {
		s.maxSize = maxSize
	}
}
