package repository

import "github.com/okian/skillrank/pkg/logger"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFailure makes every write fail with err wrapped in ErrStore. It lets
// callers exercise the abort path without a real database.
func WithFailure(err error) Option {
	return func(s *MemoryStore) {
		s.failWrites = err
	}
}
