package leaderboard

import (
	"time"

	"github.com/okian/skillrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCacheTTL caches leaderboard pages for ttl. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCacheCapacity bounds the number of cached pages. The least recently
// used page is evicted first.
func WithCacheCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.capacity = uint64(n)
		}
	}
}

// WithMaxLimit caps the number of rows one request may return.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}
