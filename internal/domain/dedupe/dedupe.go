// Package dedupe tracks ids that have already been ingested.
package dedupe

import (
	"github.com/jellydator/ttlcache/v3"
)

// Set records seen ids so a writer can apply each one at most once.
type Set interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(id string) bool

	// Forget removes id so a failed write can be retried.
	Forget(id string)

	Size() int64
}

// cacheSet keeps ids in a non-expiring ttlcache. Once maxSize ids are held
// the least recently seen one is evicted. With maxSize <= 0 it grows
// without bound.
type cacheSet struct {
	ids *ttlcache.Cache[string, struct{}]
}

type settings struct {
	maxSize int
}

// New creates an in-memory Set.
func New(opts ...Option) Set {
	cfg := settings{maxSize: 50000}
	for _, opt := range opts {
		opt(&cfg)
	}

	cacheOpts := []ttlcache.Option[string, struct{}]{
		ttlcache.WithTTL[string, struct{}](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	}
	if cfg.maxSize > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, struct{}](uint64(cfg.maxSize)))
	}
	return &cacheSet{ids: ttlcache.New(cacheOpts...)}
}

func (d *cacheSet) SeenAndRecord(id string) bool {
	_, seen := d.ids.GetOrSet(id, struct{}{})
	return seen
}

func (d *cacheSet) Forget(id string) {
	d.ids.Delete(id)
}

func (d *cacheSet) Size() int64 {
	return int64(d.ids.Len())
}
